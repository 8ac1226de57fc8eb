package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"
	"sync"

	qrcode "github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/types"
)

// Module width handed to the renderer; the result is rescaled to the final
// size afterwards.
const blockWidth = 16

// Config controls the generated PNG.
type Config struct {
	// Size is the final PNG edge length in pixels. Default 512.
	Size int
	// LogoPath optionally names a PNG or WebP image drawn over the QR
	// center. Empty means no logo.
	LogoPath string
	// LogoScale is the logo edge relative to the QR edge. Default 0.22.
	LogoScale float64
}

// Generator produces verification QR codes as PNG bytes.
type Generator struct {
	size      int
	logoPath  string
	logoScale float64

	once    sync.Once
	logo    image.Image
	logoErr error
}

// New builds a Generator, applying defaults for zero values.
func New(cfg Config) *Generator {
	g := &Generator{
		size:      cfg.Size,
		logoPath:  cfg.LogoPath,
		logoScale: cfg.LogoScale,
	}
	if g.size <= 0 {
		g.size = 512
	}
	if g.logoScale <= 0.05 || g.logoScale >= 0.60 {
		g.logoScale = 0.22
	}
	return g
}

// VerifyURL is the string encoded into the QR.
func VerifyURL(baseURL, verifyCode string) string {
	return baseURL + "?code=" + verifyCode
}

// Generate renders the verification QR for the given spec. Both fields are
// required after whitespace trimming.
func (g *Generator) Generate(spec types.QRSpec) ([]byte, error) {
	baseURL := strings.TrimSpace(spec.BaseURL)
	verifyCode := strings.TrimSpace(spec.VerifyCode)
	if baseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	if verifyCode == "" {
		return nil, fmt.Errorf("verify_code is required")
	}

	code, err := qrcode.New(VerifyURL(baseURL, verifyCode))
	if err != nil {
		return nil, fmt.Errorf("failed to build QR matrix: %w", err)
	}

	// Render the raw matrix to PNG.
	var buf bytes.Buffer
	w := standard.NewWithWriter(nopWriteCloser{&buf},
		standard.WithQRWidth(blockWidth),
		standard.WithBorderWidth(2),
	)
	if err := code.Save(w); err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered QR: %w", err)
	}

	if logo := g.loadLogo(); logo != nil {
		img = overlayCenteredLogo(img, logo, g.logoScale)
	}

	// Normalize to the final edge length.
	if img.Bounds().Dx() != g.size {
		scaled := image.NewRGBA(image.Rect(0, 0, g.size, g.size))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)
		img = scaled
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR PNG: %w", err)
	}
	return out.Bytes(), nil
}

// loadLogo reads the configured logo once. A missing or unreadable logo is
// logged and skipped; the QR is still valid without it.
func (g *Generator) loadLogo() image.Image {
	if g.logoPath == "" {
		return nil
	}
	g.once.Do(func() {
		f, err := os.Open(g.logoPath)
		if err != nil {
			g.logoErr = err
			return
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			g.logoErr = err
			return
		}
		g.logo = img
	})
	if g.logoErr != nil {
		logger := log.WithComponent("qr")
		logger.Warn().Err(g.logoErr).Str("logo_path", g.logoPath).Msg("Generating QR without logo")
		return nil
	}
	return g.logo
}

// overlayCenteredLogo draws the logo over the QR center on a white
// backplate. High error correction in the matrix absorbs the covered
// modules.
func overlayCenteredLogo(qr image.Image, logo image.Image, scale float64) image.Image {
	bounds := qr.Bounds()
	qrW, qrH := bounds.Dx(), bounds.Dy()

	dst := image.NewRGBA(bounds)
	xdraw.Draw(dst, bounds, qr, bounds.Min, xdraw.Src)

	target := int(float64(min(qrW, qrH)) * scale)
	if target < 32 {
		target = 32
	}

	pad := max(6, target/10)
	bgSize := target + pad*2

	cx := bounds.Min.X + qrW/2
	cy := bounds.Min.Y + qrH/2

	bgRect := image.Rect(cx-bgSize/2, cy-bgSize/2, cx+bgSize/2, cy+bgSize/2)
	fillRect(dst, bgRect, color.RGBA{255, 255, 255, 255})

	logoRGBA := image.NewRGBA(image.Rect(0, 0, target, target))
	xdraw.CatmullRom.Scale(logoRGBA, logoRGBA.Bounds(), logo, logo.Bounds(), xdraw.Over, nil)

	logoRect := image.Rect(cx-target/2, cy-target/2, cx+target/2, cy+target/2)
	xdraw.Draw(dst, logoRect, logoRGBA, image.Point{}, xdraw.Over)

	return dst
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// standard.NewWithWriter requires an io.WriteCloser; bytes.Buffer is only an
// io.Writer.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
