package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certmint/certmint/pkg/types"
)

// textLine builds a synthetic extraction line: one seg per rune, half
// a font size of advance each, mirroring the test fixture metrics.
func textLine(x, y, size float64, s string) line {
	var ln line
	cx := x
	for _, r := range s {
		w := avgGlyphRatio * size
		ln.segs = append(ln.segs, seg{text: string(r), x: cx, y: y, w: w, size: size})
		cx += w
	}
	return ln
}

func TestFormatPlaceholders(t *testing.T) {
	tokens := formatPlaceholders([]types.KeyValue{
		{Key: " curso ", Value: "  Go Avanzado  "},
		{Key: "", Value: "ignored"},
		{Key: "   ", Value: "ignored"},
		{Key: "NOMBRE_PARTICIPANTE", Value: "ANA"},
		{Key: "curso", Value: "Go Basico"},
	})

	require.Len(t, tokens, 2)
	assert.Equal(t, "{{curso}}", tokens[0].raw)
	assert.Equal(t, "Go Basico", tokens[0].value, "repeated key takes the last value")
	assert.False(t, tokens[0].isName)
	assert.Equal(t, "{{NOMBRE_PARTICIPANTE}}", tokens[1].raw)
	assert.True(t, tokens[1].isName)
}

func TestReplacePageLineMatch(t *testing.T) {
	lines := []line{textLine(100, 300, 14, "{{curso}}")}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "curso", Value: "Go Avanzado"}})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 1)
	assert.Equal(t, "Go Avanzado", reps[0].text)
	assert.Equal(t, lineFontSize, reps[0].size)

	// Whole line box, two points of padding on every side.
	assert.InDelta(t, 98, reps[0].rect.X0, 0.01)
	assert.InDelta(t, 100+9*7+2, reps[0].rect.X1, 0.01)
	assert.InDelta(t, 300-0.25*14-2, reps[0].rect.Y0, 0.01)
	assert.InDelta(t, 300+0.75*14+2, reps[0].rect.Y1, 0.01)
}

func TestReplacePageNameStyling(t *testing.T) {
	lines := []line{textLine(200, 400, 18, "{{nombre_participante}}")}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "nombre_participante", Value: "ANA MARIA"}})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 1)
	assert.Equal(t, nameFontSize, reps[0].size)
	assert.InDelta(t, 200-namePad, reps[0].rect.X0, 0.01)
}

func TestReplacePageClaimsWholeLine(t *testing.T) {
	// Both tokens sit on one line. The first claims and redacts the
	// whole line; the second finds nothing left to match.
	lines := []line{textLine(100, 300, 14, "Curso: {{curso}} {{nivel}}")}
	tokens := formatPlaceholders([]types.KeyValue{
		{Key: "curso", Value: "Go"},
		{Key: "nivel", Value: "B2"},
	})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 1)
	assert.Equal(t, "Go", reps[0].text)
}

func TestReplacePageBlockPassSecondOccurrence(t *testing.T) {
	lines := []line{
		textLine(100, 400, 14, "{{curso}}"),
		textLine(100, 100, 14, "Detalle: {{curso}} presencial"),
	}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "curso", Value: "Go Avanzado"}})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 2)
	assert.Equal(t, "Go Avanzado", reps[0].text)
	assert.Equal(t, "Detalle: Go Avanzado presencial", reps[1].text)
	assert.Equal(t, blockFontSize, reps[1].size)
}

func TestReplacePageBlockPassSplitToken(t *testing.T) {
	// The token wraps across two baselines of one block, so only the
	// block pass can see it.
	lines := []line{
		textLine(100, 200, 14, "{{nombre_"),
		textLine(100, 185, 14, "participante}}"),
	}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "nombre_participante", Value: "ANA"}})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 1)
	assert.Equal(t, blockFontSize, reps[0].size)
	assert.Less(t, reps[0].rect.Y0, 185.0)
	assert.Greater(t, reps[0].rect.Y1, 200.0)
}

func TestReplacePageEmptyValueRedactsOnly(t *testing.T) {
	lines := []line{textLine(100, 300, 14, "{{firma}}")}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "firma", Value: ""}})

	reps := replacePage(lines, tokens)
	require.Len(t, reps, 1)
	assert.Empty(t, reps[0].text)
}

func TestReplacePageNoMatches(t *testing.T) {
	lines := []line{textLine(100, 300, 14, "Certificado de asistencia")}
	tokens := formatPlaceholders([]types.KeyValue{{Key: "curso", Value: "Go"}})

	assert.Empty(t, replacePage(lines, tokens))
}

func TestReplacePageDeterministic(t *testing.T) {
	lines := []line{
		textLine(100, 400, 18, "{{nombre_participante}}"),
		textLine(100, 300, 14, "Curso: {{curso}}"),
		textLine(100, 100, 14, "Codigo {{serial}} verificable"),
	}
	tokens := formatPlaceholders([]types.KeyValue{
		{Key: "nombre_participante", Value: "ANA MARIA LOPEZ"},
		{Key: "curso", Value: "Go Avanzado"},
		{Key: "serial", Value: "CERT-001"},
	})

	first := replacePage(lines, tokens)
	second := replacePage(lines, tokens)
	assert.Equal(t, first, second)
}

func TestGroupBlocks(t *testing.T) {
	lines := []line{
		textLine(100, 400, 14, "titulo"),
		textLine(100, 385, 14, "subtitulo"),
		textLine(100, 100, 14, "pie de pagina"),
	}
	blocks := groupBlocks(lines)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].lines, 2)
	assert.Len(t, blocks[1].lines, 1)
}

func TestFitTextSize(t *testing.T) {
	assert.Equal(t, 18, fitTextSize("ANA", 200, 40, 18))
	assert.Equal(t, 6, fitTextSize("nombre extremadamente largo que nunca cabe", 20, 8, 18))

	shrunk := fitTextSize("ANA MARIA LOPEZ GARCIA", 120, 40, 18)
	assert.Less(t, shrunk, 18)
	assert.GreaterOrEqual(t, shrunk, minFontSize)
}

func TestStripWS(t *testing.T) {
	assert.Equal(t, "{{curso}}", stripWS("{{ curso }}"))
	assert.Equal(t, "abc", stripWS("a b\tc\n"))
	assert.Equal(t, "", stripWS("  \n\t "))
}

func TestRenderReplacesPlaceholders(t *testing.T) {
	doc := buildPDF(t, landscapePage(
		fixtureText{x: 250, y: 400, size: 18, text: "{{nombre_participante}}"},
		fixtureText{x: 250, y: 300, size: 14, text: "Curso: {{curso}}"},
	))

	out, err := Render(doc, []types.KeyValue{
		{Key: "nombre_participante", Value: "ANA MARIA LOPEZ"},
		{Key: "curso", Value: "Go Avanzado"},
	})
	require.NoError(t, err)
	require.NotEqual(t, doc, out)
	require.NoError(t, Validate(out))

	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRenderSecondPage(t *testing.T) {
	doc := buildPDF(t,
		landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "portada"}),
		landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "{{curso}}"}),
	)

	out, err := Render(doc, []types.KeyValue{{Key: "curso", Value: "Go"}})
	require.NoError(t, err)
	require.NotEqual(t, doc, out)
	require.NoError(t, Validate(out))
}

func TestRenderPassThroughWithoutTokens(t *testing.T) {
	doc := buildPDF(t, landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "sin marcadores"}))

	out, err := Render(doc, []types.KeyValue{{Key: "curso", Value: "Go"}})
	require.NoError(t, err)
	assert.Equal(t, doc, out, "documents without tokens pass through untouched")
}

func TestRenderPassThroughEmptyPlaceholders(t *testing.T) {
	doc := buildPDF(t, landscapePage(fixtureText{x: 100, y: 300, size: 14, text: "{{curso}}"}))

	out, err := Render(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	out, err = Render(doc, []types.KeyValue{{Key: "   ", Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestRenderMalformedTemplate(t *testing.T) {
	_, err := Render([]byte("%PDF-1.4 not really"), []types.KeyValue{{Key: "curso", Value: "Go"}})
	assert.Error(t, err)
}
