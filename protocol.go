package pixelsafe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol limits. Every value read from the child is checked against
// these before it is used for allocation.
const (
	// IntBytes is the width of every length-prefixed integer on the wire.
	IntBytes = 2

	MaxPages      = 10000
	MaxPageWidth  = 10000
	MaxPageHeight = 10000

	// DefaultDPI is the resolution the child rasterizes pages at.
	DefaultDPI = 150

	// bytesPerPixel is fixed: RGB, no alpha, no padding.
	bytesPerPixel = 3
)

// Frame is one decoded page: Width*Height RGB pixels, row-major.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// readInt reads one big-endian unsigned integer. A short read is a
// process I/O failure, never end of stream.
func readInt(r io.Reader) (int, error) {
	var buf [IntBytes]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, protocolError(CodeConverterProc, fmt.Errorf("reading integer: %w", shortRead(err)))
	}
	return int(binary.BigEndian.Uint16(buf[:])), nil
}

// readBytes reads exactly n bytes.
func readBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, protocolError(CodeConverterProc, fmt.Errorf("reading %d bytes: %w", n, shortRead(err)))
	}
	return buf, nil
}

// shortRead turns a clean EOF into io.ErrUnexpectedEOF: on this wire
// every read has a promised length.
func shortRead(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// FrameReader decodes the child's output stream:
//
//	[count][page]*   page = [width][height][width*height*3 bytes]
//
// It fails closed on any malformed input.
type FrameReader struct {
	r     io.Reader
	total int
	read  int
}

// NewFrameReader wraps the child's output stream.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, total: -1}
}

// PageCount reads the stream header. It must be called once, before Next.
func (fr *FrameReader) PageCount() (int, error) {
	if fr.total >= 0 {
		return fr.total, nil
	}
	n, err := readInt(fr.r)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > MaxPages {
		return 0, protocolError(CodeMaxPages, fmt.Errorf("page count %d", n))
	}
	fr.total = n
	return n, nil
}

// Remaining returns the number of pages not yet read.
func (fr *FrameReader) Remaining() int {
	if fr.total < 0 {
		return 0
	}
	return fr.total - fr.read
}

// Next reads the next page. Dimensions are validated before a single
// pixel byte is read.
func (fr *FrameReader) Next() (*Frame, error) {
	if fr.total < 0 {
		return nil, errors.New("pixelsafe: Next called before PageCount")
	}
	if fr.read >= fr.total {
		return nil, io.EOF
	}

	width, err := readInt(fr.r)
	if err != nil {
		return nil, err
	}
	if width < 1 || width > MaxPageWidth {
		return nil, protocolError(CodeMaxPageWidth, fmt.Errorf("page %d: width %d", fr.read+1, width))
	}
	height, err := readInt(fr.r)
	if err != nil {
		return nil, err
	}
	if height < 1 || height > MaxPageHeight {
		return nil, protocolError(CodeMaxPageHeight, fmt.Errorf("page %d: height %d", fr.read+1, height))
	}

	pixels, err := readBytes(fr.r, width*height*bytesPerPixel)
	if err != nil {
		return nil, err
	}
	fr.read++
	return &Frame{Width: width, Height: height, Pixels: pixels}, nil
}

// Close closes the underlying stream if it is closable, so nothing the
// child writes afterwards is ever consumed.
func (fr *FrameReader) Close() error {
	if c, ok := fr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FrameWriter encodes frames for the parent. The child uses it; it
// refuses values the parent would reject.
type FrameWriter struct {
	w       io.Writer
	total   int
	written int
}

// NewFrameWriter writes the page count header and returns the writer.
func NewFrameWriter(w io.Writer, pages int) (*FrameWriter, error) {
	if pages < 1 || pages > MaxPages {
		return nil, protocolError(CodeMaxPages, fmt.Errorf("page count %d", pages))
	}
	fw := &FrameWriter{w: w, total: pages}
	if err := fw.writeInt(pages); err != nil {
		return nil, err
	}
	return fw, nil
}

// WriteFrame emits one page.
func (fw *FrameWriter) WriteFrame(f *Frame) error {
	if fw.written >= fw.total {
		return fmt.Errorf("pixelsafe: all %d pages already written", fw.total)
	}
	if f.Width < 1 || f.Width > MaxPageWidth {
		return protocolError(CodeMaxPageWidth, fmt.Errorf("width %d", f.Width))
	}
	if f.Height < 1 || f.Height > MaxPageHeight {
		return protocolError(CodeMaxPageHeight, fmt.Errorf("height %d", f.Height))
	}
	if want := f.Width * f.Height * bytesPerPixel; len(f.Pixels) != want {
		return fmt.Errorf("pixelsafe: frame has %d pixel bytes, want %d", len(f.Pixels), want)
	}
	if err := fw.writeInt(f.Width); err != nil {
		return err
	}
	if err := fw.writeInt(f.Height); err != nil {
		return err
	}
	if _, err := fw.w.Write(f.Pixels); err != nil {
		return fmt.Errorf("writing pixels: %w", err)
	}
	fw.written++
	return nil
}

func (fw *FrameWriter) writeInt(v int) error {
	var buf [IntBytes]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	if _, err := fw.w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing integer: %w", err)
	}
	return nil
}
