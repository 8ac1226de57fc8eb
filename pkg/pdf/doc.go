/*
Package pdf edits certificate documents: placeholder replacement, QR
stamping, and the inspection helpers the pipeline stages gate on.

Reading and writing are split across two engines. Positioned text is
extracted with ledongthuc/pdf, which yields every glyph with its
baseline and advance; all rewriting goes through pdfcpu watermark
stamps, so the original page content is never reflowed.

Replacement runs per page in two passes over the extracted text:

	lines  ── contains {{key}}? ──► redact whole line, write value
	  │ leftover lines
	  ▼
	blocks ── contains {{key}}? ──► redact block, substitute all keys

Matching is whitespace-insensitive: both the token and the page text
are compared with every space stripped, so glyph spacing and line
wrapping cannot hide a placeholder. Matched regions are covered with a
white fill and the replacement text is written centered over it in
Helvetica, 18 pt for participant names, 14 pt otherwise, shrinking to
6 pt when the box is tight.

QR placement distinguishes page orientation: landscape pages get the
automatic bottom-center box derived from qr_size_cm and
qr_margin_y_cm, portrait pages require an explicit rect in points.
One centimeter is 72/2.54 points.

Documents containing none of the requested tokens pass through
byte-identical; the engines only rewrite when there is something to
change.
*/
package pdf
