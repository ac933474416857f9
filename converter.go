package pixelsafe

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/alnah/go-pixelsafe/internal/fileutil"
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
)

// Compile-time interface implementation checks.
var (
	_ PageRenderer = (*pdfrender.Renderer)(nil)
)

// pagesDirName is the subfolder of the working directory holding one
// rendered file per page.
const pagesDirName = "pixels"

// Converter turns untrusted documents into pixel-only PDFs. The document
// is parsed by a child process started through the isolation Provider;
// the parent only reads validated pixel frames back.
// Create with NewConverter. A Converter is safe for concurrent use: each
// Convert call owns its own child and working directory.
type Converter struct {
	cfg        converterConfig
	controller *Controller
	renderer   PageRenderer
	logger     *slog.Logger
}

// NewConverter creates a Converter using provider for isolation.
func NewConverter(provider Provider, opts ...Option) (*Converter, error) {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.cfg.logger
	if c.logger == nil {
		c.logger = slog.Default()
	}

	controller, err := NewController(ControllerConfig{
		Provider: provider,
		Timeouts: c.cfg.timeouts,
		Debug:    c.cfg.debug,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}
	c.controller = controller

	c.renderer = c.cfg.renderer
	if c.renderer == nil {
		c.renderer = pdfrender.New(pdfrender.Options{DPI: DefaultDPI})
	}
	return c, nil
}

// Controller returns the lifecycle controller driving the children.
func (c *Converter) Controller() *Controller {
	return c.controller
}

// Close releases renderer resources, such as an OCR engine.
func (c *Converter) Close() error {
	if closer, ok := c.renderer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Convert sanitizes doc. The document always ends in exactly one terminal
// state; the returned error is a *ConversionError whose Message is fit for
// users. Convert never panics.
func (c *Converter) Convert(ctx context.Context, doc Document) (err error) {
	doc.MarkAsConverting()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
		if err != nil {
			err = c.fail(ctx, doc, err)
		}
	}()

	workDir, err := os.MkdirTemp(c.cfg.tempDir, "pixelsafe-")
	if err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			c.logger.Warn("removing working directory failed", "doc", doc.ID(), "dir", workDir, "error", rmErr)
		}
	}()
	pagesDir := filepath.Join(workDir, pagesDirName)
	if err := os.Mkdir(pagesDir, fileutil.DirPermissions); err != nil {
		return fmt.Errorf("creating pages directory: %w", err)
	}

	var pages []string
	err = c.controller.Use(ctx, doc, func(p Process) error {
		// Cancellation kills the group, which unblocks any pending I/O.
		stop := context.AfterFunc(ctx, func() { _ = p.Kill() })
		defer stop()

		if err := c.feed(doc, p); err != nil {
			return err
		}
		var err error
		pages, err = c.readPages(ctx, doc, p, pagesDir)
		return err
	})
	if err != nil {
		return err
	}

	if err := c.assemble(ctx, doc, pages); err != nil {
		return err
	}

	doc.MarkAsSafe()
	c.logger.Info("document sanitized", "doc", doc.ID(), "pages", len(pages), "output", doc.OutputFilename())

	if doc.ArchiveAfterConversion() {
		if err := doc.Archive(); err != nil {
			// The output is safe already; the original just stays put.
			c.logger.Error("archiving original failed", "doc", doc.ID(), "error", err)
		}
	}
	return nil
}

// feed streams the input document into the child and closes its stdin.
func (c *Converter) feed(doc Document, p Process) error {
	in, err := os.Open(doc.InputFilename()) // #nosec G304 -- user-selected document
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer func() { _ = in.Close() }()

	stdin := p.Stdin()
	hasher := blake3.New()
	w := &trackingWriter{w: stdin}

	n, err := io.Copy(io.MultiWriter(w, hasher), in)
	if w.err != nil {
		_ = stdin.Close()
		return protocolError(CodeConverterProc, fmt.Errorf("writing document to conversion process: %w", w.err))
	}
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("reading input: %w", err)
	}
	if err := stdin.Close(); err != nil {
		return protocolError(CodeConverterProc, fmt.Errorf("closing conversion process input: %w", err))
	}

	c.logger.Debug("document sent to conversion process",
		"doc", doc.ID(), "pid", p.PID(), "bytes", n, "blake3", hex.EncodeToString(hasher.Sum(nil)))
	return nil
}

// readPages decodes every frame in stream order, renders it and spills
// the page to dir. It returns the page files in order.
func (c *Converter) readPages(ctx context.Context, doc Document, p Process, dir string) ([]string, error) {
	fr := NewFrameReader(p.Stdout())
	n, err := fr.PageCount()
	if err != nil {
		return nil, err
	}

	searchable := ""
	if doc.OCRLanguage() != "" {
		searchable = "searchable "
	}

	progress := newPageProgress(n)
	pages := make([]string, 0, n)
	for page := 1; page <= n; page++ {
		frame, err := fr.Next()
		if err != nil {
			return nil, err
		}

		c.reportProgress(doc, false,
			fmt.Sprintf("Converting page %d/%d from pixels to %sPDF", page, n, searchable), progress.advance())

		out, err := c.renderer.RenderPage(ctx, frame.Pixels, frame.Width, frame.Height, doc.OCRLanguage())
		if err != nil {
			return nil, fmt.Errorf("rendering page %d/%d: %w", page, n, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("page-%05d.pdf", page))
		if err := os.WriteFile(path, out, fileutil.PrivatePermissions); err != nil {
			return nil, fmt.Errorf("storing page %d/%d: %w", page, n, err)
		}
		pages = append(pages, path)

		c.reportProgress(doc, false, fmt.Sprintf("Converted page %d/%d", page, n), progress.advance())
	}

	// Nothing the child writes after the last page is ever read.
	if err := fr.Close(); err != nil {
		c.logger.Debug("closing conversion output failed", "doc", doc.ID(), "error", err)
	}
	return pages, nil
}

// assemble joins the pages under the staging name, then renames the
// result over the output.
func (c *Converter) assemble(ctx context.Context, doc Document, pages []string) error {
	readers, closePages, err := fileutil.OpenAll(pages)
	if err != nil {
		return err
	}
	defer func() { _ = closePages() }()

	err = fileutil.WriteViaStaging(doc.SanitizedOutputFilename(), doc.OutputFilename(), func(w io.Writer) error {
		return c.renderer.Assemble(ctx, readers, w)
	})
	if err != nil {
		return fmt.Errorf("assembling output: %w", err)
	}
	return nil
}

// fail reports err once, marks doc failed and returns the user-facing
// error.
func (c *Converter) fail(ctx context.Context, doc Document, err error) error {
	ce, ok := AsConversionError(err)
	switch {
	case ctx.Err() != nil:
		ce = &ConversionError{
			Kind:    KindUnexpected,
			Code:    CodeInterrupted,
			Message: exitCodeMessage(CodeInterrupted),
			Err:     errors.Join(ctx.Err(), err),
		}
	case !ok:
		c.logger.Error("unexpected conversion failure", "doc", doc.ID(), "error", err)
		ce = &ConversionError{
			Kind:    KindUnexpected,
			Code:    CodeUnexpected,
			Message: exitCodeMessage(CodeUnexpected),
			Err:     err,
		}
	}

	c.reportProgress(doc, true, ce.Message, 0)
	doc.MarkAsFailed()
	return ce
}

// trackingWriter remembers the first write error, so a broken pipe to the
// child can be told apart from a failing input file.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
