package doc2pixels

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/alnah/go-pixelsafe"
)

// decodeImagePages decodes an image into pages. Every GIF frame is a
// page, composed over the frames before it.
func decodeImagePages(data []byte, format Format) (pageSeq, error) {
	// Check dimensions before allocating anything.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return pageSeq{}, exitError(pixelsafe.CodeInvalidImage, "reading %s header: %v", format, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return pageSeq{}, err
	}

	if format == FormatGIF {
		return decodeGIF(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pageSeq{}, exitError(pixelsafe.CodeInvalidImage, "decoding %s: %v", format, err)
	}
	return pageList([]image.Image{img}), nil
}

// decodeGIF composes frames on a single canvas as they are consumed, so
// only one page is ever held in full color.
func decodeGIF(data []byte) (pageSeq, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return pageSeq{}, exitError(pixelsafe.CodeInvalidImage, "decoding gif: %v", err)
	}
	if len(g.Image) > pixelsafe.MaxPages {
		return pageSeq{}, exitError(pixelsafe.CodeMaxPages, "gif has %d frames", len(g.Image))
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	all := func(yield func(image.Image) bool) {
		canvas := image.NewRGBA(bounds)
		draw.Draw(canvas, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
		for _, frame := range g.Image {
			draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
			if !yield(canvas) {
				return
			}
		}
	}
	return pageSeq{count: len(g.Image), all: all}, nil
}

func checkDimensions(width, height int) error {
	if width < 1 || width > pixelsafe.MaxPageWidth {
		return exitError(pixelsafe.CodeMaxPageWidth, "page width %d", width)
	}
	if height < 1 || height > pixelsafe.MaxPageHeight {
		return exitError(pixelsafe.CodeMaxPageHeight, "page height %d", height)
	}
	return nil
}

// toFrame flattens img over white and packs it as RGB.
func toFrame(img image.Image) *pixelsafe.Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Over)

	pixels := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		pixels = append(pixels, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	return &pixelsafe.Frame{Width: b.Dx(), Height: b.Dy(), Pixels: pixels}
}
