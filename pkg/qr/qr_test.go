package qr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certmint/certmint/pkg/types"
)

func TestGenerate(t *testing.T) {
	g := New(Config{Size: 256})

	data, err := g.Generate(types.QRSpec{
		BaseURL:    "https://verify.example.com/certs",
		VerifyCode: "CERT-2026-001",
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestGenerateDeterministic(t *testing.T) {
	g := New(Config{})
	spec := types.QRSpec{BaseURL: "https://verify.example.com", VerifyCode: "A-1"}

	first, err := g.Generate(spec)
	require.NoError(t, err)
	second, err := g.Generate(spec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateRequiresInputs(t *testing.T) {
	g := New(Config{})

	tests := []struct {
		name    string
		spec    types.QRSpec
		wantErr string
	}{
		{
			name:    "empty base url",
			spec:    types.QRSpec{VerifyCode: "C-1"},
			wantErr: "base_url is required",
		},
		{
			name:    "empty verify code",
			spec:    types.QRSpec{BaseURL: "https://verify.example.com"},
			wantErr: "verify_code is required",
		},
		{
			name:    "whitespace only",
			spec:    types.QRSpec{BaseURL: "  ", VerifyCode: "\t"},
			wantErr: "base_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVerifyURL(t *testing.T) {
	assert.Equal(t,
		"https://verify.example.com/certs?code=CERT-01",
		VerifyURL("https://verify.example.com/certs", "CERT-01"),
	)
}

func TestGenerateWithLogo(t *testing.T) {
	// A solid red square stands in for the logo.
	logoPath := filepath.Join(t.TempDir(), "logo.png")
	logo := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			logo.SetRGBA(x, y, color.RGBA{200, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, logo))
	require.NoError(t, os.WriteFile(logoPath, buf.Bytes(), 0o644))

	g := New(Config{Size: 256, LogoPath: logoPath})
	data, err := g.Generate(types.QRSpec{BaseURL: "https://verify.example.com", VerifyCode: "L-1"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// The QR center carries the logo, not black/white modules.
	r, gch, b, _ := img.At(128, 128).RGBA()
	assert.Greater(t, r, gch, "center pixel should be red-dominated")
	assert.Greater(t, r, b, "center pixel should be red-dominated")
}

func TestGenerateMissingLogoFallsBack(t *testing.T) {
	g := New(Config{Size: 128, LogoPath: "/nonexistent/logo.png"})

	data, err := g.Generate(types.QRSpec{BaseURL: "https://verify.example.com", VerifyCode: "F-1"})
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
