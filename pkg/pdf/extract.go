package pdf

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/certmint/certmint/pkg/types"
)

// Glyph box approximations for the text layer. Extraction yields the
// baseline and advance of each glyph; ascent and descent are estimated
// as fractions of the font size and absorbed by the redaction padding.
const (
	ascentRatio  = 0.75
	descentRatio = 0.25

	// Consecutive glyphs further apart than this fraction of the font
	// size get a space inserted between them in the raw text, so that
	// templates positioning words with offsets instead of space glyphs
	// still read naturally.
	wordGapRatio = 0.3

	// Baselines further apart than this factor times the font size
	// start a new block.
	blockGapFactor = 1.8

	fallbackFontSize = 12.0
)

// seg is one positioned text show from a page content stream, usually
// a single glyph.
type seg struct {
	text string
	x    float64
	y    float64
	w    float64
	size float64
}

// line is a baseline-grouped run of segs, sorted left to right.
type line struct {
	segs []seg
}

func (l line) baseline() float64 {
	if len(l.segs) == 0 {
		return 0
	}
	return l.segs[0].y
}

func (l line) maxSize() float64 {
	size := 0.0
	for _, s := range l.segs {
		if s.size > size {
			size = s.size
		}
	}
	if size <= 0 {
		size = fallbackFontSize
	}
	return size
}

// norm returns the line text with all whitespace stripped.
func (l line) norm() string {
	var b strings.Builder
	for _, s := range l.segs {
		b.WriteString(stripWS(s.text))
	}
	return b.String()
}

// raw reconstructs the readable line text, inserting a space wherever
// the horizontal gap between segs indicates a word boundary.
func (l line) raw() string {
	var b strings.Builder
	for i, s := range l.segs {
		if i > 0 {
			prev := l.segs[i-1]
			size := prev.size
			if size <= 0 {
				size = fallbackFontSize
			}
			if s.x-(prev.x+prev.w) > wordGapRatio*size && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s.text)
	}
	return strings.TrimRight(b.String(), " ")
}

// rect returns the bounding box of the whole line in PDF points.
func (l line) rect() types.Rect {
	r := types.Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, s := range l.segs {
		size := s.size
		if size <= 0 {
			size = fallbackFontSize
		}
		r.X0 = math.Min(r.X0, s.x)
		r.X1 = math.Max(r.X1, s.x+s.w)
		r.Y0 = math.Min(r.Y0, s.y-descentRatio*size)
		r.Y1 = math.Max(r.Y1, s.y+ascentRatio*size)
	}
	return r
}

// block is a group of lines whose baselines sit close enough to read
// as one paragraph.
type block struct {
	lines []line
}

func (b block) norm() string {
	var sb strings.Builder
	for _, ln := range b.lines {
		sb.WriteString(ln.norm())
	}
	return sb.String()
}

// raw joins the block's line texts with newlines, dropping trailing
// blank lines.
func (b block) raw() string {
	out := make([]string, 0, len(b.lines))
	for _, ln := range b.lines {
		out = append(out, ln.raw())
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func (b block) rect() types.Rect {
	r := types.Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, ln := range b.lines {
		lr := ln.rect()
		r.X0 = math.Min(r.X0, lr.X0)
		r.Y0 = math.Min(r.Y0, lr.Y0)
		r.X1 = math.Max(r.X1, lr.X1)
		r.Y1 = math.Max(r.Y1, lr.Y1)
	}
	return r
}

// pageLines extracts the positioned text of one page grouped by
// baseline, top of the page first. The underlying reader panics on
// malformed content streams, so the walk runs under recover.
func pageLines(p lpdf.Page) (lines []line, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text extraction failed: %v", r)
		}
	}()

	rows, err := p.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}
	for _, row := range rows {
		var ln line
		for _, t := range row.Content {
			ln.segs = append(ln.segs, seg{
				text: t.S,
				x:    t.X,
				y:    t.Y,
				w:    t.W,
				size: t.FontSize,
			})
		}
		if len(ln.segs) == 0 {
			continue
		}
		sort.SliceStable(ln.segs, func(i, j int) bool { return ln.segs[i].x < ln.segs[j].x })
		lines = append(lines, ln)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].baseline() > lines[j].baseline() })
	return lines, nil
}

// groupBlocks clusters top-down ordered lines into visual blocks.
func groupBlocks(lines []line) []block {
	var blocks []block
	var cur block
	for _, ln := range lines {
		if len(cur.lines) > 0 {
			prev := cur.lines[len(cur.lines)-1]
			if prev.baseline()-ln.baseline() > blockGapFactor*prev.maxSize() {
				blocks = append(blocks, cur)
				cur = block{}
			}
		}
		cur.lines = append(cur.lines, ln)
	}
	if len(cur.lines) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

// stripWS removes all whitespace from s. Placeholder matching runs on
// whitespace-stripped text so that glyph spacing and line wrapping do
// not hide a token.
func stripWS(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
