// Package doc2pixels is the untrusted half of a conversion. It runs inside
// the sandbox: it reads a document from stdin, rasterizes every page and
// writes the pixels to stdout using the frame protocol. Failures are
// reported through the process exit status only.
//
// Supported inputs:
//   - PNG, JPEG, BMP, TIFF and WebP images (one page)
//   - GIF images (one page per frame)
//   - UTF-8 text, rendered as Markdown by goldmark and rasterized by
//     headless Chrome, one Letter page per screen slice
package doc2pixels
