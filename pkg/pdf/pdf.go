package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF-")

// CmToPoints converts centimeters to PDF points.
func CmToPoints(cm float64) float64 {
	return cm * 72.0 / 2.54
}

// Dim is a page size in PDF points.
type Dim struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Landscape reports whether the page is wider than tall.
func (d Dim) Landscape() bool {
	return d.Width > d.Height
}

// HasMagic reports whether data begins with the PDF file header. The
// download stage uses this to reject non-PDF template bodies before
// any parsing happens.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// Validate parses and validates a complete PDF document. It returns an
// error for anything a later stage could not safely operate on: a
// missing header, an unparseable body, or a document without pages.
func Validate(data []byte) error {
	if !HasMagic(data) {
		return errors.New("missing PDF header")
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), conf())
	if err != nil {
		return fmt.Errorf("failed to parse PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	if ctx.PageCount < 1 {
		return errors.New("document has no pages")
	}
	return nil
}

// PageCount returns the number of pages in the document.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), conf())
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}

// PageDims returns the media box of every page in points, in page
// order.
func PageDims(data []byte) ([]Dim, error) {
	pd, err := api.PageDims(bytes.NewReader(data), conf())
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	dims := make([]Dim, 0, len(pd))
	for _, d := range pd {
		dims = append(dims, Dim{Width: d.Width, Height: d.Height})
	}
	return dims, nil
}

// conf returns a fresh engine configuration per call. Contexts mutate
// their configuration while processing, so instances are never shared.
func conf() *model.Configuration {
	c := model.NewDefaultConfiguration()
	c.ValidationMode = model.ValidationRelaxed
	return c
}
