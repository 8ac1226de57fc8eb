/*
Package qr renders certificate verification QR codes as PNG images.

The encoded content is the verification URL:

	<base_url>?code=<verify_code>

Both fields come from the batch item's qr section and must be non-empty
after trimming; an empty field is the qr_generation stage error.

Rendering pipeline: the matrix is built with yeqown/go-qrcode, rendered to
PNG, optionally overlaid with a centered logo on a white backplate, and
rescaled to the configured edge length (default 512px) with CatmullRom
interpolation. QR error correction absorbs the modules the logo covers.

The logo is loaded once from the configured path (PNG or WebP). A missing
or unreadable logo downgrades to a plain QR with a warning; it never fails
generation.
*/
package qr
