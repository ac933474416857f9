package doc2pixels

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/alnah/go-pixelsafe"
)

// Defaults.
const (
	DefaultDPI = pixelsafe.DefaultDPI
	// DefaultMaxInput bounds the document read from stdin.
	DefaultMaxInput = 256 << 20
)

// Config configures a Converter.
type Config struct {
	// DPI is the rendering resolution for text documents.
	DPI int
	// MaxInput is the largest accepted document in bytes.
	MaxInput int64
	// PlainText renders text verbatim instead of as Markdown.
	PlainText bool
	// Rasterizer renders HTML. Required for text documents only.
	Rasterizer Rasterizer
	Logger     *slog.Logger
}

// Converter turns one untrusted document into pixel frames.
type Converter struct {
	cfg    Config
	html   HTMLConverter
	logger *slog.Logger
}

// New creates a Converter.
func New(cfg Config) *Converter {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.MaxInput <= 0 {
		cfg.MaxInput = DefaultMaxInput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{cfg: cfg, html: NewGoldmarkConverter(), logger: logger}
}

// pageSeq yields a document's pages in order. A yielded image is only
// valid until the next one is requested.
type pageSeq struct {
	count int
	all   iter.Seq[image.Image]
}

func pageList(pages []image.Image) pageSeq {
	return pageSeq{count: len(pages), all: slices.Values(pages)}
}

// Run reads the document from in and writes the page stream to out.
// Nothing is written unless every page rendered, so a failure leaves the
// exit status as the only signal.
func (c *Converter) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(io.LimitReader(in, c.cfg.MaxInput+1))
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxInput {
		return exitError(pixelsafe.CodeFormatUnsupported, "document exceeds %d bytes", c.cfg.MaxInput)
	}

	format := Detect(data)
	c.logger.Debug("detected document format", "format", format, "bytes", len(data))

	var pages pageSeq
	switch {
	case format.IsImage():
		pages, err = decodeImagePages(data, format)
	case format == FormatText:
		pages, err = c.renderText(ctx, string(data))
	default:
		return exitError(pixelsafe.CodeFormatUnsupported, "unsupported document format")
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if pages.count > pixelsafe.MaxPages {
		return exitError(pixelsafe.CodeMaxPages, "document has %d pages", pages.count)
	}

	return c.writePages(ctx, pages, out)
}

func (c *Converter) renderText(ctx context.Context, content string) (pageSeq, error) {
	if c.cfg.Rasterizer == nil {
		return pageSeq{}, exitError(pixelsafe.CodeFormatUnsupported, "no rasterizer for text documents")
	}

	var doc string
	if c.cfg.PlainText {
		doc = PlainTextHTML(content)
	} else {
		var err error
		if doc, err = c.html.ToHTML(ctx, content); err != nil {
			if ctx.Err() != nil {
				return pageSeq{}, ctx.Err()
			}
			return pageSeq{}, exitError(pixelsafe.CodePixelConversion, "%v", err)
		}
	}

	img, err := c.cfg.Rasterizer.Rasterize(ctx, doc, c.cfg.DPI)
	if err != nil {
		if ctx.Err() != nil {
			return pageSeq{}, ctx.Err()
		}
		return pageSeq{}, exitError(pixelsafe.CodePixelConversion, "rasterizing document: %w", err)
	}

	width, height := PageSize(c.cfg.DPI)
	if err := checkDimensions(width, height); err != nil {
		return pageSeq{}, err
	}
	return pageList(slicePages(img, width, height)), nil
}

func (c *Converter) writePages(ctx context.Context, pages pageSeq, out io.Writer) error {
	bw := bufio.NewWriter(out)
	fw, err := pixelsafe.NewFrameWriter(bw, pages.count)
	if err != nil {
		return err
	}
	i := 0
	for page := range pages.all {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := toFrame(page)
		if err := fw.WriteFrame(frame); err != nil {
			return err
		}
		i++
		c.logger.Debug("wrote page", "page", i, "pages", pages.count, "width", frame.Width, "height", frame.Height)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing pages: %w", err)
	}
	return nil
}
