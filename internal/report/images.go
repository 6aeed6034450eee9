package report

import (
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/stgm/visitreport/internal/imagefetch"
)

// ImageSource resolves image references to local files.
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (*imagefetch.Handle, error)
}

// drawImage fetches ref and draws it aspect-fitted inside box. The fetched
// file is released before returning, whatever the outcome.
func (d *document) drawImage(ctx context.Context, src ImageSource, ref string, box Box) (err error) {
	if d.pdf.Err() {
		return d.pdf.Error()
	}
	h, err := src.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	defer h.Release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to embed image: %v", r)
			d.pdf.ClearError()
		}
	}()

	opts := fpdf.ImageOptions{ImageType: h.Type}
	info := d.pdf.RegisterImageOptions(h.Path, opts)
	if d.pdf.Err() || info == nil {
		err = d.pdf.Error()
		d.pdf.ClearError()
		if err == nil {
			err = fmt.Errorf("failed to register image %s", h.Path)
		}
		return err
	}

	ratio := 0.0
	if w, ht := info.Width(), info.Height(); w > 0 && ht > 0 {
		ratio = w / ht
	}
	fit := FitAspect(box, ratio)
	d.pdf.ImageOptions(h.Path, fit.X, fit.Y, fit.W, fit.H, false, opts, 0, "")
	return nil
}

// placeholder draws a light grey box with a centred caption.
func (d *document) placeholder(box Box, caption string) {
	d.pdf.SetFillColor(235, 235, 235)
	d.pdf.SetDrawColor(190, 190, 190)
	d.pdf.Rect(box.X, box.Y, box.W, box.H, "FD")
	d.font("I", 8)
	d.pdf.SetTextColor(120, 120, 120)
	d.pdf.SetXY(box.X, box.Y+box.H/2-2.5)
	d.fitCell(box.W, 5, caption, "", 0, "C", false, "")
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.SetDrawColor(0, 0, 0)
}
