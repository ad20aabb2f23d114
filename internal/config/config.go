// Package config loads SharedBoard settings from defaults, an optional
// sharedboard.yaml, SHAREDBOARD_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SharedBoard/internal/logging"
	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/protocol"

	"github.com/spf13/viper"
)

var (
	ErrCodecTransport = errors.New("cbor frames cannot travel over the line-delimited tcp transport")
	ErrBadSize        = errors.New("board dimensions must be positive")
)

const (
	FileName  = "sharedboard"
	EnvPrefix = "SHAREDBOARD"
)

type Config struct {
	Board struct {
		Width        int `mapstructure:"width"`
		Height       int `mapstructure:"height"`
		HistoryLimit int `mapstructure:"historyLimit"`
		Background   struct {
			Pattern string `mapstructure:"pattern"`
			Color   string `mapstructure:"color"`
		} `mapstructure:"background"`
	} `mapstructure:"board"`
	Net struct {
		Transport  string   `mapstructure:"transport"`
		Port       int      `mapstructure:"port"`
		Codec      string   `mapstructure:"codec"`
		ICEServers []string `mapstructure:"iceServers"`
	} `mapstructure:"net"`
	Discovery struct {
		Enabled bool          `mapstructure:"enabled"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"discovery"`
	Session struct {
		Code string `mapstructure:"code"`
		Name string `mapstructure:"name"`
	} `mapstructure:"session"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// New returns a viper instance holding every default and reading
// SHAREDBOARD_BOARD_WIDTH style variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("board.width", 1280)
	v.SetDefault("board.height", 720)
	v.SetDefault("board.historyLimit", 30)
	v.SetDefault("board.background.pattern", "solid")
	v.SetDefault("board.background.color", "#ffffff")
	v.SetDefault("net.transport", bnet.TransportWS)
	v.SetDefault("net.port", 8888)
	v.SetDefault("net.codec", "json")
	v.SetDefault("net.iceServers", []string{})
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.timeout", 3*time.Second)
	v.SetDefault("session.code", "")
	v.SetDefault("session.name", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatAuto)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result. With an empty
// path, sharedboard.yaml is looked up in the working directory and in
// $HOME/.config/sharedboard, and a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sharedboard"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Net.Transport = strings.ToLower(strings.TrimSpace(c.Net.Transport))
	switch c.Net.Transport {
	case bnet.TransportTCP, bnet.TransportWS, bnet.TransportWebRTC:
	default:
		return fmt.Errorf("%w: %q", bnet.ErrUnknownTransport, c.Net.Transport)
	}
	codec, err := protocol.CodecByName(c.Net.Codec)
	if err != nil {
		return err
	}
	c.Net.Codec = codec.Name()
	if c.Net.Codec == "cbor" && c.Net.Transport == bnet.TransportTCP {
		return ErrCodecTransport
	}
	if c.Board.Width <= 0 || c.Board.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadSize, c.Board.Width, c.Board.Height)
	}
	if c.Net.Port < 0 || c.Net.Port > 65535 {
		return fmt.Errorf("net.port %d out of range", c.Net.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
