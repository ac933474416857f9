package doc2pixels

import (
	"bytes"
	"unicode/utf8"
)

// Format is a detected input format.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatGIF
	FormatBMP
	FormatTIFF
	FormatWebP
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatGIF:
		return "gif"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	case FormatWebP:
		return "webp"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// IsImage reports whether f is decoded as an image.
func (f Format) IsImage() bool {
	return f >= FormatPNG && f <= FormatWebP
}

var signatures = []struct {
	format Format
	magic  []byte
}{
	{FormatPNG, []byte("\x89PNG\r\n\x1a\n")},
	{FormatJPEG, []byte{0xff, 0xd8, 0xff}},
	{FormatGIF, []byte("GIF87a")},
	{FormatGIF, []byte("GIF89a")},
	{FormatBMP, []byte("BM")},
	{FormatTIFF, []byte("II*\x00")},
	{FormatTIFF, []byte("MM\x00*")},
}

// Detect identifies data from its magic number. Anything that is valid
// UTF-8 without NUL bytes is text. The file name is never consulted.
func Detect(data []byte) Format {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return FormatWebP
	}
	if len(data) > 0 && utf8.Valid(data) && bytes.IndexByte(data, 0) < 0 {
		return FormatText
	}
	return FormatUnknown
}
