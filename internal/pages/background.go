package pages

import (
	"regexp"
	"strings"
)

const solidBaseColor = "#ffffff"

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Background describes how a page's paper looks.
type Background struct {
	Style   string `json:"style"`
	Color   string `json:"color"`
	Pattern string `json:"pattern"`
	Image   string `json:"image,omitempty"`
	Size    *Size  `json:"size,omitempty"`
}

type preset struct {
	id            string
	baseColor     string
	supportsColor bool
	tile          *Size
}

var presets = []preset{
	{id: "solid", baseColor: solidBaseColor, supportsColor: true},
	{id: "grid", baseColor: "#ffffff", tile: &Size{64, 64}},
	{id: "lined", baseColor: "#fbfdff", tile: &Size{8, 72}},
	{id: "pentagram", baseColor: "#fffdf5", tile: &Size{8, 120}},
	{id: "millimeter", baseColor: "#ffffff", tile: &Size{16, 16}},
	{id: "large-grid", baseColor: "#ffffff", tile: &Size{96, 96}},
	{id: "double-lines", baseColor: "#fffefa", tile: &Size{8, 120}},
}

func findPreset(id string) (preset, bool) {
	for _, p := range presets {
		if p.id == id {
			return p, true
		}
	}
	return preset{}, false
}

// Patterns lists the known background pattern ids.
func Patterns() []string {
	out := make([]string, len(presets))
	for i, p := range presets {
		out[i] = p.id
	}
	return out
}

var (
	shortHex = regexp.MustCompile(`^#([0-9a-f])([0-9a-f])([0-9a-f])$`)
	longHex  = regexp.MustCompile(`^#[0-9a-f]{6}$`)
)

// NormalizeColor lower-cases a hex color and expands the 3-digit form.
// Anything else yields "".
func NormalizeColor(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if m := shortHex.FindStringSubmatch(v); m != nil {
		return "#" + m[1] + m[1] + m[2] + m[2] + m[3] + m[3]
	}
	if longHex.MatchString(v) {
		return v
	}
	return ""
}

// ResolveBackground turns loose hints (pattern id, color, legacy style
// string) into a complete Background. Only the solid pattern takes a
// custom color.
func ResolveBackground(pattern, color, style string) Background {
	if p, ok := findPreset(pattern); ok {
		c := p.baseColor
		if p.supportsColor {
			if n := NormalizeColor(color); n != "" {
				c = n
			}
		}
		bg := Background{Style: c, Color: c, Pattern: p.id}
		if p.tile != nil {
			size := *p.tile
			bg.Size = &size
			bg.Style = p.id
		}
		return bg
	}

	if n := NormalizeColor(style); n != "" {
		return Background{Style: n, Color: n, Pattern: "solid"}
	}
	c := NormalizeColor(color)
	if c == "" {
		c = solidBaseColor
	}
	s := strings.TrimSpace(style)
	if s == "" {
		s = c
	}
	return Background{Style: s, Color: c, Pattern: "solid"}
}

// DefaultBackground is plain white paper.
func DefaultBackground() Background {
	return ResolveBackground("solid", solidBaseColor, "")
}
