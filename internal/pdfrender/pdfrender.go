// Package pdfrender turns raw RGB pages into PDF pages with pdfcpu and
// joins them into one document. Pages carry nothing but an image and,
// optionally, an invisible OCR text layer.
package pdfrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// DefaultDPI is used when Options.DPI is zero.
const DefaultDPI = 150

// textLayerDesc draws the recognized text fully transparent on top of
// the image, so it can be searched and copied but never seen.
const textLayerDesc = "font:Helvetica, points:8, pos:tl, scale:1 abs, rot:0, op:0"

// ErrOCRUnavailable is returned when a text layer is requested but no
// Recognizer is configured.
var ErrOCRUnavailable = errors.New("OCR requested but no text recognizer is configured")

func init() {
	// Never create a pdfcpu config dir in the user's home.
	api.DisableConfigDir()
}

// Recognizer extracts text from a PNG image.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte, lang string) (string, error)
}

// Options configure a Renderer.
type Options struct {
	// DPI maps pixels to page size.
	DPI int
	// Recognizer adds text layers. Optional.
	Recognizer Recognizer
}

// Renderer implements page rendering and assembly with pdfcpu. It is not
// safe for concurrent use when its Recognizer is not.
type Renderer struct {
	dpi  int
	ocr  Recognizer
	conf *model.Configuration
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Renderer{dpi: dpi, ocr: opts.Recognizer, conf: conf}
}

// RenderPage returns a one-page PDF showing the width x height RGB image.
func (r *Renderer) RenderPage(ctx context.Context, pixels []byte, width, height int, ocrLang string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width < 1 || height < 1 || len(pixels) != width*height*3 {
		return nil, fmt.Errorf("pixel buffer of %d bytes does not match %dx%d RGB", len(pixels), width, height)
	}
	if ocrLang != "" && r.ocr == nil {
		return nil, ErrOCRUnavailable
	}

	img, err := encodePNG(pixels, width, height)
	if err != nil {
		return nil, err
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	imp.DPI = r.dpi

	var page bytes.Buffer
	if err := api.ImportImages(nil, &page, []io.Reader{bytes.NewReader(img)}, imp, r.conf); err != nil {
		return nil, fmt.Errorf("importing page image: %w", err)
	}
	if ocrLang == "" {
		return page.Bytes(), nil
	}

	text, err := r.ocr.Recognize(ctx, img, ocrLang)
	if err != nil {
		return nil, fmt.Errorf("recognizing text (%s): %w", ocrLang, err)
	}
	return r.addTextLayer(page.Bytes(), text)
}

// Assemble merges single-page PDFs, in order, into w.
func (r *Renderer) Assemble(ctx context.Context, pages []io.ReadSeeker, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch len(pages) {
	case 0:
		return errors.New("no pages to assemble")
	case 1:
		if _, err := pages[0].Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := io.Copy(w, pages[0])
		return err
	}
	if err := api.MergeRaw(pages, w, false, r.conf); err != nil {
		return fmt.Errorf("merging %d pages: %w", len(pages), err)
	}
	return nil
}

// Close closes the Recognizer when it holds resources.
func (r *Renderer) Close() error {
	if c, ok := r.ocr.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Renderer) addTextLayer(page []byte, text string) ([]byte, error) {
	text = layerText(text)
	if text == "" {
		return page, nil
	}
	wm, err := api.TextWatermark(text, textLayerDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("building text layer: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(page), &out, nil, wm, r.conf); err != nil {
		return nil, fmt.Errorf("adding text layer: %w", err)
	}
	return out.Bytes(), nil
}

// encodePNG wraps the packed RGB buffer in an opaque RGBA image.
func encodePNG(pixels []byte, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(pixels); i, j = i+3, j+4 {
		img.Pix[j] = pixels[i]
		img.Pix[j+1] = pixels[i+1]
		img.Pix[j+2] = pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding page image: %w", err)
	}
	return buf.Bytes(), nil
}

// layerText keeps what the standard fonts can encode: Latin-1 printable
// runes and newlines.
func layerText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r == '\t':
			b.WriteByte(' ')
		case (r >= 0x20 && r < 0x7f) || (r >= 0xa0 && r <= 0xff):
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
