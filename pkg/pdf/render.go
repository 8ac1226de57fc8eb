package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/certmint/certmint/pkg/types"
)

const (
	// Participant names render larger and with more clearance than
	// ordinary fields.
	nameKey      = "nombre_participante"
	nameFontSize = 18
	namePad      = 4.0

	lineFontSize = 14
	linePad      = 2.0

	blockFontSize = 14
	blockPad      = 3.0

	// Replacement text shrinks until it fits its redaction box, but
	// never below this size.
	minFontSize = 6

	// Average Helvetica glyph advance as a fraction of the font size.
	// The estimate drives the shrink loop; the stamp engine centers
	// the text from real font metrics.
	avgGlyphRatio = 0.5
	lineSpacing   = 1.2
)

// token is one placeholder ready for matching: the literal {{key}}
// text, its whitespace-stripped form, and the replacement value.
type token struct {
	raw    string
	norm   string
	value  string
	isName bool
}

// formatPlaceholders converts the item's key/value list into match
// tokens. Keys and values are trimmed; entries with an empty key are
// dropped; a repeated key keeps its first position and takes the last
// value.
func formatPlaceholders(items []types.KeyValue) []token {
	out := make([]token, 0, len(items))
	index := make(map[string]int, len(items))
	for _, kv := range items {
		key := strings.TrimSpace(kv.Key)
		if key == "" {
			continue
		}
		value := strings.TrimSpace(kv.Value)
		if i, ok := index[key]; ok {
			out[i].value = value
			continue
		}
		raw := "{{" + key + "}}"
		index[key] = len(out)
		out = append(out, token{
			raw:    raw,
			norm:   stripWS(raw),
			value:  value,
			isName: strings.Contains(strings.ToLower(key), nameKey),
		})
	}
	return out
}

// replacement is one redact-and-rewrite region on a page.
type replacement struct {
	rect types.Rect
	text string
	size int
}

// replacePage computes the substitution set for one page from its
// positioned text. Two passes:
//
// Line pass: each token claims the first line whose stripped text
// contains it. The whole line is redacted and only the value is
// written back. A claimed line is gone for every later match.
//
// Block pass: the remaining lines are grouped into blocks. Each token
// still present claims the first unvisited block containing it; the
// block is redacted and rewritten with every token substituted into
// its text. Tokens split across lines inside a block are erased with
// the block even when the raw text keeps them verbatim.
func replacePage(lines []line, tokens []token) []replacement {
	var reps []replacement
	consumed := make([]bool, len(lines))

	for _, tk := range tokens {
		idx := -1
		for i, ln := range lines {
			if consumed[i] {
				continue
			}
			if strings.Contains(ln.norm(), tk.norm) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		consumed[idx] = true
		padPt, size := linePad, lineFontSize
		if tk.isName {
			padPt, size = namePad, nameFontSize
		}
		reps = append(reps, replacement{
			rect: pad(lines[idx].rect(), padPt),
			text: tk.value,
			size: size,
		})
	}

	rest := make([]line, 0, len(lines))
	for i, ln := range lines {
		if !consumed[i] {
			rest = append(rest, ln)
		}
	}
	blocks := groupBlocks(rest)
	visited := make(map[int]bool, len(blocks))

	for _, tk := range tokens {
		idx := -1
		for i, b := range blocks {
			if strings.Contains(b.norm(), tk.norm) {
				idx = i
				break
			}
		}
		if idx < 0 || visited[idx] {
			continue
		}
		text := blocks[idx].raw()
		changed := false
		for _, sub := range tokens {
			if strings.Contains(stripWS(text), sub.norm) {
				text = strings.ReplaceAll(text, sub.raw, sub.value)
				changed = true
			}
		}
		if !changed {
			continue
		}
		visited[idx] = true
		reps = append(reps, replacement{
			rect: pad(blocks[idx].rect(), blockPad),
			text: text,
			size: blockFontSize,
		})
	}
	return reps
}

// Render substitutes placeholder tokens in a template and returns the
// rewritten document. Each key in the list matches the literal token
// {{key}} in the template text. A template containing none of the
// tokens, or an empty placeholder list, passes through unchanged.
func Render(template []byte, placeholders []types.KeyValue) ([]byte, error) {
	tokens := formatPlaceholders(placeholders)
	if len(tokens) == 0 {
		return template, nil
	}

	reader, err := lpdf.NewReader(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	dims, err := PageDims(template)
	if err != nil {
		return nil, err
	}

	pages := reader.NumPage()
	if len(dims) < pages {
		pages = len(dims)
	}
	stamps := make(map[int][]*model.Watermark)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines, err := pageLines(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		reps := replacePage(lines, tokens)
		if len(reps) == 0 {
			continue
		}
		wms, err := stampsFor(reps, dims[i-1])
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if len(wms) > 0 {
			stamps[i] = wms
		}
	}

	if len(stamps) == 0 {
		return template, nil
	}

	var buf bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(template), &buf, stamps, conf()); err != nil {
		return nil, fmt.Errorf("failed to write replacements: %w", err)
	}
	return buf.Bytes(), nil
}

// fitTextSize shrinks the starting font size until the text fits the
// box, stopping at the minimum size whether or not it fits there.
func fitTextSize(text string, w, h float64, start int) int {
	size := start
	for size > minFontSize && !textFits(text, float64(size), w, h) {
		size--
	}
	return size
}

func textFits(text string, size, w, h float64) bool {
	lines := strings.Split(text, "\n")
	widest := 0
	for _, ln := range lines {
		if n := utf8.RuneCountInString(ln); n > widest {
			widest = n
		}
	}
	if float64(widest)*avgGlyphRatio*size > w {
		return false
	}
	return float64(len(lines))*size*lineSpacing <= h
}

// pad grows a rectangle by p points on every side.
func pad(r types.Rect, p float64) types.Rect {
	return types.Rect{X0: r.X0 - p, Y0: r.Y0 - p, X1: r.X1 + p, Y1: r.Y1 + p}
}
