package raster

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrBadDataURL = errors.New("malformed data URL")

// MaxImagePixels caps the decoded size of an image payload.
const MaxImagePixels = 8192 * 8192

// DecodeDataURL decodes a "data:image/...;base64," payload into an image.
// png, jpeg, gif, webp and bmp are understood. Images larger than
// MaxImagePixels are refused before their pixels are read.
func DecodeDataURL(s string) (image.Image, error) {
	raw, err := dataURLBytes(s)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxImagePixels {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrBadDataURL, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}
	return img, nil
}

func dataURLBytes(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrBadDataURL
	}
	if strings.HasSuffix(meta, ";base64") {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		return raw, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	return []byte(unescaped), nil
}

// EncodePNGDataURL encodes img as a PNG data URL.
func EncodePNGDataURL(img image.Image) (string, error) {
	raw, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGFromDataURL returns the PNG bytes behind a data URL, re-encoding
// other formats.
func PNGFromDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:image/png;base64,") {
		return dataURLBytes(s)
	}
	img, err := DecodeDataURL(s)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}
