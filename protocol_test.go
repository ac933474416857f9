package pixelsafe

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, kind Kind, code int) *ConversionError {
	t.Helper()

	ce, ok := AsConversionError(err)
	require.True(t, ok, "want *ConversionError, got %T: %v", err, err)
	assert.Equal(t, kind, ce.Kind, "kind")
	assert.Equal(t, code, ce.Code, "code")
	return ce
}

func TestFrameReader_WellFormed(t *testing.T) {
	t.Parallel()

	stream := buildStream(3, fullPage(10, 10), fullPage(1, 1), fullPage(4, 2))
	fr := NewFrameReader(bytes.NewReader(stream))

	n, err := fr.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, fr.Remaining())

	want := []struct{ w, h int }{{10, 10}, {1, 1}, {4, 2}}
	for i, dim := range want {
		f, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, dim.w, f.Width)
		assert.Equal(t, dim.h, f.Height)
		assert.Len(t, f.Pixels, dim.w*dim.h*3)
		assert.Equal(t, byte(i+1), f.Pixels[0], "pages come out in stream order")
	}
	assert.Equal(t, 0, fr.Remaining())

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReader_PageCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream []byte
		code   int
	}{
		{"zero pages", u16(0), CodeMaxPages},
		{"too many pages", u16(MaxPages + 1), CodeMaxPages},
		{"max uint16", u16(0xffff), CodeMaxPages},
		{"empty stream", nil, CodeConverterProc},
		{"one byte", []byte{0x01}, CodeConverterProc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFrameReader(bytes.NewReader(tt.stream)).PageCount()
			requireCode(t, err, KindProtocolViolation, tt.code)
			assert.ErrorIs(t, err, ErrProtocolViolation)
		})
	}
}

func TestFrameReader_PageCountBounds(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, MaxPages} {
		got, err := NewFrameReader(bytes.NewReader(u16(n))).PageCount()
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

// countingReader counts the bytes handed out.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestFrameReader_DimensionsCheckedBeforePixels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		page      pageSpec
		code      int
		readUntil int // bytes consumed when the error is raised
	}{
		{"zero width", pageSpec{0, 10, 300}, CodeMaxPageWidth, 4},
		{"width too large", pageSpec{MaxPageWidth + 1, 1, 30}, CodeMaxPageWidth, 4},
		{"zero height", pageSpec{10, 0, 300}, CodeMaxPageHeight, 6},
		{"height too large", pageSpec{1, MaxPageHeight + 1, 30}, CodeMaxPageHeight, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cr := &countingReader{r: bytes.NewReader(buildStream(1, tt.page))}
			fr := NewFrameReader(cr)
			_, err := fr.PageCount()
			require.NoError(t, err)

			_, err = fr.Next()
			requireCode(t, err, KindProtocolViolation, tt.code)
			assert.Equal(t, tt.readUntil, cr.n, "no pixel byte may be read")
		})
	}
}

func TestFrameReader_ShortPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream []byte
	}{
		{"truncated pixels", buildStream(1, pageSpec{10, 10, 299})},
		{"missing height", append(u16(1), u16(10)...)},
		{"missing page", buildStream(2, fullPage(2, 2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fr := NewFrameReader(bytes.NewReader(tt.stream))
			n, err := fr.PageCount()
			require.NoError(t, err)

			for range n {
				if _, err = fr.Next(); err != nil {
					break
				}
			}
			requireCode(t, err, KindProtocolViolation, CodeConverterProc)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestFrameReader_NextBeforePageCount(t *testing.T) {
	t.Parallel()

	_, err := NewFrameReader(bytes.NewReader(nil)).Next()
	assert.Error(t, err)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestFrameReader_Close(t *testing.T) {
	t.Parallel()

	rc := &closeRecorder{Reader: bytes.NewReader(nil)}
	require.NoError(t, NewFrameReader(rc).Close())
	assert.True(t, rc.closed)

	assert.NoError(t, NewFrameReader(bytes.NewReader(nil)).Close(), "plain readers are left alone")
}

func TestFrameWriter_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fw, err := NewFrameWriter(&buf, 2)
	require.NoError(t, err)

	frames := []*Frame{
		{Width: 2, Height: 1, Pixels: []byte{1, 2, 3, 4, 5, 6}},
		{Width: 1, Height: 1, Pixels: []byte{7, 8, 9}},
	}
	for _, f := range frames {
		require.NoError(t, fw.WriteFrame(f))
	}
	assert.Error(t, fw.WriteFrame(frames[1]), "page count is exhausted")

	fr := NewFrameReader(&buf)
	n, err := fr.PageCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for _, want := range frames {
		got, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFrameWriter_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewFrameWriter(io.Discard, 0)
	requireCode(t, err, KindProtocolViolation, CodeMaxPages)
	_, err = NewFrameWriter(io.Discard, MaxPages+1)
	requireCode(t, err, KindProtocolViolation, CodeMaxPages)

	fw, err := NewFrameWriter(io.Discard, 1)
	require.NoError(t, err)

	err = fw.WriteFrame(&Frame{Width: MaxPageWidth + 1, Height: 1})
	requireCode(t, err, KindProtocolViolation, CodeMaxPageWidth)
	err = fw.WriteFrame(&Frame{Width: 1, Height: MaxPageHeight + 1})
	requireCode(t, err, KindProtocolViolation, CodeMaxPageHeight)
	assert.Error(t, fw.WriteFrame(&Frame{Width: 1, Height: 1, Pixels: []byte{0}}))
}

func TestFrameWriter_WriteError(t *testing.T) {
	t.Parallel()

	_, err := NewFrameWriter(failingWriter{}, 1)
	assert.ErrorIs(t, err, errBoom)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errBoom }
