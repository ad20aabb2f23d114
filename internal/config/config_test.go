package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	bnet "SharedBoard/internal/net"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Board.Width != 1280 || cfg.Board.Height != 720 || cfg.Board.HistoryLimit != 30 {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Net.Transport != "ws" || cfg.Net.Port != 8888 || cfg.Net.Codec != "json" {
		t.Errorf("net = %+v", cfg.Net)
	}
	if !cfg.Discovery.Enabled || cfg.Discovery.Timeout != 3*time.Second {
		t.Errorf("discovery = %+v", cfg.Discovery)
	}
	if cfg.Board.Background.Color != "#ffffff" || cfg.Log.Level != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	yaml := `
board:
  width: 800
  historyLimit: 10
net:
  transport: tcp
  iceServers:
    - stun:stun.l.google.com:19302
discovery:
  timeout: 500ms
session:
  name: Ana
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHAREDBOARD_NET_PORT", "9001")
	t.Setenv("SHAREDBOARD_LOG_LEVEL", "debug")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Board.Width != 800 || cfg.Board.Height != 720 || cfg.Board.HistoryLimit != 10 {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Net.Transport != bnet.TransportTCP || cfg.Net.Port != 9001 {
		t.Errorf("net = %+v", cfg.Net)
	}
	if len(cfg.Net.ICEServers) != 1 || cfg.Discovery.Timeout != 500*time.Millisecond {
		t.Errorf("ice = %v, timeout = %v", cfg.Net.ICEServers, cfg.Discovery.Timeout)
	}
	if cfg.Session.Name != "Ana" || cfg.Log.Level != "debug" {
		t.Errorf("session = %+v, log = %+v", cfg.Session, cfg.Log)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("missing explicit config file was accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Board.Width, c.Board.Height = 10, 10
		c.Net.Transport, c.Net.Codec = "ws", "json"
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"cbor over tcp", func(c *Config) { c.Net.Transport, c.Net.Codec = "tcp", "cbor" }, ErrCodecTransport},
		{"cbor over webrtc", func(c *Config) { c.Net.Transport, c.Net.Codec = "webrtc", "CBOR" }, nil},
		{"unknown transport", func(c *Config) { c.Net.Transport = "carrier-pigeon" }, bnet.ErrUnknownTransport},
		{"zero width", func(c *Config) { c.Board.Width = 0 }, ErrBadSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
