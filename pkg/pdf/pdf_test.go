package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmToPoints(t *testing.T) {
	cases := []struct {
		cm   float64
		want float64
	}{
		{1.0, 72.0 / 2.54},
		{2.5, 2.5 * 72.0 / 2.54},
		{5.0, 5.0 * 72.0 / 2.54},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CmToPoints(tc.cm), "cm=%v", tc.cm)
	}
}

func TestHasMagic(t *testing.T) {
	assert.True(t, HasMagic([]byte("%PDF-1.4\nrest")))
	assert.False(t, HasMagic([]byte("PK\x03\x04 zip bytes")))
	assert.False(t, HasMagic(nil))
	assert.False(t, HasMagic([]byte("%PD")))
}

func TestValidate(t *testing.T) {
	doc := buildPDF(t, landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "Hello"}))
	assert.NoError(t, Validate(doc))
}

func TestValidateRejectsNonPDF(t *testing.T) {
	err := Validate([]byte("not a pdf at all"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing PDF header")
}

func TestValidateRejectsTruncated(t *testing.T) {
	doc := buildPDF(t, landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "Hello"}))
	assert.Error(t, Validate(doc[:len(doc)/2]))
}

func TestPageCount(t *testing.T) {
	doc := buildPDF(t,
		landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "one"}),
		portraitPage(fixtureText{x: 100, y: 500, size: 14, text: "two"}),
	)
	n, err := PageCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPageDims(t *testing.T) {
	doc := buildPDF(t,
		landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "one"}),
		portraitPage(fixtureText{x: 100, y: 500, size: 14, text: "two"}),
	)
	dims, err := PageDims(doc)
	require.NoError(t, err)
	require.Len(t, dims, 2)

	assert.InDelta(t, 842, dims[0].Width, 0.01)
	assert.InDelta(t, 595, dims[0].Height, 0.01)
	assert.True(t, dims[0].Landscape())

	assert.InDelta(t, 595, dims[1].Width, 0.01)
	assert.InDelta(t, 842, dims[1].Height, 0.01)
	assert.False(t, dims[1].Landscape())
}
