// Package export writes board pages to documents.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"SharedBoard/internal/pages"
	"SharedBoard/internal/raster"

	"github.com/jung-kurt/gofpdf"
)

var ErrNoPages = errors.New("nothing to export")

const margin = 10 // mm

type Options struct {
	Title  string
	Author string
}

// WritePDF renders one landscape A4 page per board page: the page color
// first, then the page pixels scaled to fit and centered. A page without
// pixels comes out as its background alone.
func WritePDF(w io.Writer, list []pages.Page, opts Options) error {
	if len(list) == 0 {
		return ErrNoPages
	}
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetCreator("SharedBoard", true)
	if opts.Title != "" {
		p.SetTitle(opts.Title, true)
	}
	if opts.Author != "" {
		p.SetAuthor(opts.Author, true)
	}

	for i, page := range list {
		p.AddPage()
		pw, ph := p.GetPageSize()
		bg := raster.ParseColor(page.Background.Color)
		p.SetFillColor(int(bg.R), int(bg.G), int(bg.B))
		p.Rect(0, 0, pw, ph, "F")

		if page.Image == "" {
			continue
		}
		img, err := raster.DecodeDataURL(page.Image)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		data, err := raster.EncodePNG(raster.Flatten(img, page.Background.Color))
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page-%d", i)
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		p.RegisterImageOptionsReader(name, opt, bytes.NewReader(data))

		b := img.Bounds()
		x, y, iw, ih := fit(float64(b.Dx()), float64(b.Dy()), pw-2*margin, ph-2*margin)
		p.ImageOptions(name, margin+x, margin+y, iw, ih, false, opt, 0, "")
		if err := p.Error(); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return p.Output(w)
}

// WritePDFFile is WritePDF into a new file at path.
func WritePDFFile(path string, list []pages.Page, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePDF(f, list, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// fit scales a w x h image into a box, keeping its aspect ratio, and
// returns the offset that centers it.
func fit(w, h, boxW, boxH float64) (x, y, fw, fh float64) {
	if w <= 0 || h <= 0 {
		return 0, 0, boxW, boxH
	}
	scale := min(boxW/w, boxH/h)
	fw, fh = w*scale, h*scale
	return (boxW - fw) / 2, (boxH - fh) / 2, fw, fh
}
