// Package replay rebuilds a page's pixels from its baseline and action log.
package replay

import (
	"fmt"
	"log/slog"

	"SharedBoard/internal/state"
)

// SurfaceRenderer is the pixel surface replay draws onto.
type SurfaceRenderer interface {
	Size() (width, height int)
	Resize(width, height int)
	// Reset overwrites the whole surface with baseline, a data URL. An
	// empty baseline leaves the surface transparent.
	Reset(baseline string) error
	// Clear blanks the surface to transparent, not to the baseline.
	Clear()
	DrawSegment(seg state.Segment)
	DrawShape(shape state.Shape)
	// LoadImage decodes and caches an image payload without drawing it.
	LoadImage(img state.Image) error
	DrawImage(img state.Image) error
	// Snapshot encodes the surface as a PNG data URL.
	Snapshot() (string, error)
}

// Engine applies actions to a SurfaceRenderer.
type Engine struct {
	renderer SurfaceRenderer
	logger   *slog.Logger
}

func NewEngine(renderer SurfaceRenderer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{renderer: renderer, logger: logger}
}

func (e *Engine) Renderer() SurfaceRenderer { return e.renderer }

// Rebuild draws baseline, then every active action in commit order.
// Inactive actions are skipped. A clear blanks what has been drawn so far
// and later actions land on the blank surface.
func (e *Engine) Rebuild(baseline string, actions []*state.Action) error {
	if err := e.renderer.Reset(baseline); err != nil {
		e.logger.Warn("baseline could not be drawn", "error", err)
		e.renderer.Clear()
	}
	applied := 0
	for _, a := range actions {
		if a == nil || !a.Active {
			continue
		}
		if err := e.Apply(a); err != nil {
			e.logger.Warn("action skipped during replay", "action", a.ID, "error", err)
			continue
		}
		applied++
	}
	e.logger.Debug("replay finished", "actions", len(actions), "applied", applied)
	return nil
}

// Apply draws a single action on top of the current surface.
func (e *Engine) Apply(a *state.Action) error {
	switch a.Type {
	case state.ActionStroke:
		for _, seg := range a.Segments {
			e.renderer.DrawSegment(seg)
		}
	case state.ActionShape:
		if a.Shape == nil {
			return fmt.Errorf("shape action %s has no shape", a.ID)
		}
		e.renderer.DrawShape(*a.Shape)
	case state.ActionImage:
		if a.Image == nil {
			return fmt.Errorf("image action %s has no image", a.ID)
		}
		return e.renderer.DrawImage(*a.Image)
	case state.ActionClear:
		e.renderer.Clear()
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// DrawSegment paints one streamed segment ahead of its stroke's commit.
func (e *Engine) DrawSegment(seg state.Segment) {
	e.renderer.DrawSegment(seg)
}
