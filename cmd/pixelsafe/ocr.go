package main

import (
	"fmt"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
)

// newRecognizer is set when the binary is built with -tags tesseract.
var newRecognizer func(dpi int) (pdfrender.Recognizer, error)

// newRenderer builds the page renderer, with a recognizer when a text
// layer is requested.
func newRenderer(ocrLang string) (*pdfrender.Renderer, error) {
	opts := pdfrender.Options{DPI: pixelsafe.DefaultDPI}
	if ocrLang != "" {
		if newRecognizer == nil {
			return nil, fmt.Errorf("%w: rebuild pixelsafe with -tags tesseract", pdfrender.ErrOCRUnavailable)
		}
		rec, err := newRecognizer(opts.DPI)
		if err != nil {
			return nil, fmt.Errorf("starting OCR engine: %w", err)
		}
		opts.Recognizer = rec
	}
	return pdfrender.New(opts), nil
}
