//go:build tesseract

package main

import (
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
	"github.com/alnah/go-pixelsafe/internal/pdfrender/tesseract"
)

func init() {
	newRecognizer = func(dpi int) (pdfrender.Recognizer, error) {
		return tesseract.New(dpi), nil
	}
}
