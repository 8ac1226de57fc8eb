package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

// fixtureText is one absolutely positioned Helvetica string on a
// fixture page. x and y are the glyph origin in points, bottom-left
// page origin.
type fixtureText struct {
	x, y float64
	size int
	text string
}

// fixturePage describes one page of a generated test document.
type fixturePage struct {
	width  float64
	height float64
	texts  []fixtureText
}

func landscapePage(texts ...fixtureText) fixturePage {
	return fixturePage{width: 842, height: 595, texts: texts}
}

func portraitPage(texts ...fixtureText) fixturePage {
	return fixturePage{width: 595, height: 842, texts: texts}
}

var pdfStringEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// buildPDF assembles a small but complete PDF document with exact
// cross-reference offsets. The font dictionary carries a widths array
// so extraction yields real glyph positions and advances.
func buildPDF(t *testing.T, pages ...fixturePage) []byte {
	t.Helper()

	n := len(pages)
	kids := make([]string, 0, n)
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	widths := make([]string, 95)
	for i := range widths {
		widths[i] = "500"
	}

	objs := make([]string, 0, 3+2*n)
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	objs = append(objs, fmt.Sprintf(
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " ")))

	for i, pg := range pages {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pg.width, pg.height, 5+2*i))
		var sb strings.Builder
		for _, tx := range pg.texts {
			fmt.Fprintf(&sb, "BT /F1 %d Tf %.2f %.2f Td (%s) Tj ET\n",
				tx.size, tx.x, tx.y, pdfStringEscaper.Replace(tx.text))
		}
		content := sb.String()
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// testPNG encodes a solid square PNG standing in for a generated QR.
func testPNG(t *testing.T, edge int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, edge, edge))
	for y := 0; y < edge; y++ {
		for x := 0; x < edge; x++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
