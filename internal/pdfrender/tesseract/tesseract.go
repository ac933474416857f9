//go:build tesseract

// Package tesseract recognizes page text with Tesseract through
// gosseract. Building it needs cgo and libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer implements pdfrender.Recognizer. A Recognizer owns one
// Tesseract client and is not safe for concurrent use.
type Recognizer struct {
	client *gosseract.Client
	dpi    int
}

// New creates a Recognizer for images rasterized at dpi.
func New(dpi int) *Recognizer {
	return &Recognizer{client: gosseract.NewClient(), dpi: dpi}
}

// Recognize returns the plain text found in the PNG image. lang uses
// Tesseract's codes, several joined with '+' (e.g. "eng+fra").
func (r *Recognizer) Recognize(ctx context.Context, img []byte, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if r.dpi > 0 {
		if err := r.client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(r.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := r.client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract client.
func (r *Recognizer) Close() error {
	return r.client.Close()
}
