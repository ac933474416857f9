package doc2pixels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-pixelsafe/internal/fileutil"
)

// Sentinel errors for browser operations.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrScreenshot     = errors.New("failed to capture page")
)

// Page dimensions in inches (US Letter format).
const (
	paperWidthInches  = 8.5
	paperHeightInches = 11
	// cssDPI is the browser's reference resolution.
	cssDPI = 96
)

// Rasterizer renders a standalone HTML document to one tall image.
type Rasterizer interface {
	Rasterize(ctx context.Context, htmlContent string, dpi int) (image.Image, error)
	Close() error
}

// Compile-time interface check.
var _ Rasterizer = (*RodRasterizer)(nil)

// RodRasterizer screenshots HTML in headless Chrome through go-rod.
type RodRasterizer struct {
	browser *rod.Browser
	timeout time.Duration
	tempDir string
}

// NewRodRasterizer creates a RodRasterizer. The browser starts lazily.
func NewRodRasterizer(timeout time.Duration) *RodRasterizer {
	return &RodRasterizer{timeout: timeout}
}

func (r *RodRasterizer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New().Set("disable-javascript").Set("blink-settings", "imagesEnabled=false")

	// Pre-installed browser in the converter image.
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// The sandbox we run in already forbids what Chrome's would.
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	r.browser = rod.New().ControlURL(u)
	if err := r.browser.Connect(); err != nil {
		r.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close releases browser resources.
func (r *RodRasterizer) Close() error {
	if r.tempDir != "" {
		_ = os.RemoveAll(r.tempDir)
		r.tempDir = ""
	}
	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// Rasterize loads htmlContent from a temporary file and captures the full
// page at dpi.
func (r *RodRasterizer) Rasterize(ctx context.Context, htmlContent string, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	path, err := r.writeHTML(htmlContent)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(path) }()

	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	page = page.Context(ctx).Timeout(timeout)

	if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(paperWidthInches * cssDPI),
		Height:            int(paperHeightInches * cssDPI),
		DeviceScaleFactor: float64(dpi) / cssDPI,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}

	if err := page.Navigate("file://" + path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScreenshot, err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding screenshot: %v", ErrScreenshot, err)
	}
	return img, nil
}

func (r *RodRasterizer) writeHTML(content string) (string, error) {
	if r.tempDir == "" {
		dir, err := os.MkdirTemp("", "doc2pixels-")
		if err != nil {
			return "", fmt.Errorf("creating temp dir: %w", err)
		}
		r.tempDir = dir
	}
	path := filepath.Join(r.tempDir, "document.html")
	if err := os.WriteFile(path, []byte(content), fileutil.PrivatePermissions); err != nil {
		return "", fmt.Errorf("writing HTML: %w", err)
	}
	return path, nil
}

// PageSize returns the page size in pixels at dpi.
func PageSize(dpi int) (width, height int) {
	return int(paperWidthInches * float64(dpi)), int(paperHeightInches * float64(dpi))
}

// slicePages cuts a tall image into pages of the given size without
// scaling. Columns beyond width are cropped and the last page is padded
// with white.
func slicePages(img image.Image, width, height int) []image.Image {
	b := img.Bounds()
	n := max((b.Dy()+height-1)/height, 1)

	pages := make([]image.Image, 0, n)
	for i := range n {
		page := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		src := image.Pt(b.Min.X, b.Min.Y+i*height)
		draw.Draw(page, page.Bounds(), img, src, draw.Over)
		pages = append(pages, page)
	}
	return pages
}
