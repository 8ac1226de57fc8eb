package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/certmint/certmint/pkg/types"
)

// InsertQR stamps a QR PNG onto one page of the document and returns
// the rewritten bytes. Landscape pages take the automatic placement:
// centered horizontally, SizeCM square, MarginYCM above the bottom
// edge. Portrait pages require an explicit rect in points; its absence
// is an error, as is a page index outside the document.
func InsertQR(doc, qrPNG []byte, placement types.Placement) ([]byte, error) {
	dims, err := PageDims(doc)
	if err != nil {
		return nil, err
	}
	if placement.PageIndex < 0 || placement.PageIndex >= len(dims) {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", placement.PageIndex, len(dims))
	}

	imgCfg, err := png.DecodeConfig(bytes.NewReader(qrPNG))
	if err != nil {
		return nil, fmt.Errorf("failed to decode QR image: %w", err)
	}

	d := dims[placement.PageIndex]
	var rect types.Rect
	if d.Landscape() {
		rect = autoRect(d, placement)
	} else {
		if placement.Rect == nil {
			return nil, errors.New("qr_rect is required for portrait pages")
		}
		rect = *placement.Rect
	}

	width := rect.X1 - rect.X0
	if width <= 0 {
		return nil, fmt.Errorf("invalid QR rect: width %.2f pt", width)
	}
	// The stamp is sized to the rect width: one pixel per point at
	// scale 1, scaled in either direction so an undersized bitmap
	// still fills its box.
	scale := width / float64(imgCfg.Width)

	desc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.4f abs, rotation:0",
		rect.X0, rect.Y0, scale)
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(qrPNG), desc, true, false, pdftypes.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR stamp: %w", err)
	}

	var buf bytes.Buffer
	pages := []string{strconv.Itoa(placement.PageIndex + 1)}
	if err := api.AddWatermarks(bytes.NewReader(doc), &buf, pages, wm, conf()); err != nil {
		return nil, fmt.Errorf("failed to stamp QR: %w", err)
	}
	return buf.Bytes(), nil
}

// autoRect computes the landscape QR box: SizeCM square, centered
// horizontally, MarginYCM above the bottom edge.
func autoRect(d Dim, p types.Placement) types.Rect {
	size := CmToPoints(p.SizeCM)
	margin := CmToPoints(p.MarginYCM)
	x0 := (d.Width - size) / 2
	return types.Rect{X0: x0, Y0: margin, X1: x0 + size, Y1: margin + size}
}

// stampsFor converts a page's substitution set into watermark stamps.
// Redaction fills come first so no rewritten text sits under a fill.
func stampsFor(reps []replacement, d Dim) ([]*model.Watermark, error) {
	fills := make([]*model.Watermark, 0, len(reps))
	texts := make([]*model.Watermark, 0, len(reps))
	for _, rep := range reps {
		w := rep.rect.X1 - rep.rect.X0
		h := rep.rect.Y1 - rep.rect.Y0
		if w <= 0 || h <= 0 {
			continue
		}

		fill, err := whitePNG(int(math.Ceil(w)), int(math.Ceil(h)))
		if err != nil {
			return nil, fmt.Errorf("failed to encode redaction fill: %w", err)
		}
		fillDesc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0",
			rep.rect.X0, rep.rect.Y0)
		box, err := api.ImageWatermarkForReader(bytes.NewReader(fill), fillDesc, true, false, pdftypes.POINTS)
		if err != nil {
			return nil, fmt.Errorf("failed to build redaction stamp: %w", err)
		}
		fills = append(fills, box)

		if strings.TrimSpace(rep.text) == "" {
			continue
		}
		size := fitTextSize(rep.text, w, h, rep.size)
		// Centered on the region: the offset moves the stamp anchor
		// from the page center to the rect center.
		dx := (rep.rect.X0+rep.rect.X1)/2 - d.Width/2
		dy := (rep.rect.Y0+rep.rect.Y1)/2 - d.Height/2
		textDesc := fmt.Sprintf(
			"fontname:Helvetica, points:%d, position:c, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:#000000, aligntext:c",
			size, dx, dy)
		txt, err := api.TextWatermark(rep.text, textDesc, true, false, pdftypes.POINTS)
		if err != nil {
			return nil, fmt.Errorf("failed to build text stamp: %w", err)
		}
		texts = append(texts, txt)
	}
	return append(fills, texts...), nil
}

// whitePNG encodes a solid white bitmap used as a redaction fill,
// sized one pixel per point of the region it covers.
func whitePNG(w, h int) ([]byte, error) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
