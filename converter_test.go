package pixelsafe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConverter_NoProvider(t *testing.T) {
	t.Parallel()

	_, err := NewConverter(nil)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestWithRenderer_NilPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { WithRenderer(nil) })
}

func readOutput(t *testing.T, doc Document) string {
	t.Helper()

	data, err := os.ReadFile(doc.OutputFilename())
	require.NoError(t, err)
	return string(data)
}

// Scenario A: one 10x10 page, no OCR.
func TestConvert_SinglePage(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(1, fullPage(10, 10)))
	renderer := &fakeRenderer{}
	conv, progress := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
	doc := newTestDocument(t, "untrusted bytes", DocumentOptions{})

	require.NoError(t, conv.Convert(context.Background(), doc))

	calls := renderer.renderCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, renderCall{size: 300, width: 10, height: 10, lang: "", first: 1}, calls[0])

	assert.Equal(t, StateSafe, doc.State())
	assert.Equal(t, "page-1", readOutput(t, doc))
	assert.NoFileExists(t, doc.SanitizedOutputFilename())

	events := progress.all()
	require.Len(t, events, 2)
	assert.InDelta(t, 50, events[0].Percent, 1e-9)
	assert.Equal(t, float64(100), events[1].Percent)
	for _, e := range events {
		assert.False(t, e.Error)
		assert.Contains(t, e.Message, "1/1")
		assert.Equal(t, doc.ID(), e.DocumentID)
	}

	assert.Equal(t, "untrusted bytes", proc.stdin.String())
	assert.True(t, proc.stdin.closed)
	_, _, closes := proc.counts()
	assert.Equal(t, 1, closes)
}

func TestConvert_PagesInOrder(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(3, fullPage(2, 3), fullPage(5, 1), fullPage(1, 1)))
	renderer := &fakeRenderer{}
	conv, progress := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
	doc := newTestDocument(t, "x", DocumentOptions{})

	require.NoError(t, conv.Convert(context.Background(), doc))

	assert.Equal(t, "page-1|page-2|page-3", readOutput(t, doc))
	assert.Len(t, renderer.renderCalls(), 3)

	events := progress.all()
	require.Len(t, events, 6)
	prev := 0.0
	for _, e := range events {
		assert.Greater(t, e.Percent, prev, "progress only grows")
		prev = e.Percent
	}
	assert.Equal(t, float64(100), prev)
	assert.Contains(t, events[2].Message, "page 2/3")
}

// Scenario B: page 2 is too wide.
func TestConvert_PageTooWide(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(3,
		fullPage(2, 2),
		pageSpec{width: MaxPageWidth + 1, height: 1, payload: 30},
		fullPage(2, 2),
	))
	renderer := &fakeRenderer{}
	conv, progress := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
	doc := newTestDocument(t, "x", DocumentOptions{})

	err := conv.Convert(context.Background(), doc)

	requireCode(t, err, KindProtocolViolation, CodeMaxPageWidth)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Len(t, renderer.renderCalls(), 1, "nothing after page 2 is rendered")
	assert.Equal(t, StateFailed, doc.State())
	assert.NoFileExists(t, doc.OutputFilename())

	events := progress.all()
	var errorEvents int
	for _, e := range events {
		if e.Error {
			errorEvents++
		}
	}
	assert.Equal(t, 1, errorEvents)
	last := events[len(events)-1]
	assert.True(t, last.Error)
	assert.Equal(t, "A page exceeded the maximum width", last.Message)
}

// Scenario C: the child hangs after writing every page.
func TestConvert_HangingChildAfterOutput(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(2, fullPage(3, 3), fullPage(3, 3)))
	proc.ignoreTerminate = true
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{})

	start := time.Now()
	require.NoError(t, conv.Convert(context.Background(), doc))
	assert.Less(t, time.Since(start), shortTimeouts.Grace+shortTimeouts.Force+time.Second)

	assert.Equal(t, StateSafe, doc.State())
	_, kills, _ := proc.counts()
	assert.Equal(t, 1, kills)
	assert.True(t, proc.Exited())
}

func TestConvert_PageCountOutOfRange(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, MaxPages + 1} {
		proc := newFakeProcess(u16(n))
		renderer := &fakeRenderer{}
		conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
		doc := newTestDocument(t, "x", DocumentOptions{})

		err := conv.Convert(context.Background(), doc)

		requireCode(t, err, KindProtocolViolation, CodeMaxPages)
		assert.Empty(t, renderer.renderCalls())
		assert.Equal(t, StateFailed, doc.State())
	}
}

func TestConvert_ShortPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exitCode int
		kind     Kind
		code     int
	}{
		{"child claims success", 0, KindProtocolViolation, CodeConverterProc},
		{"child reports image failure", CodeInvalidImage, KindExitCode, CodeInvalidImage},
		{"child was killed", CodeKilled, KindExitCode, CodeKilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proc := newFakeProcess(buildStream(1, pageSpec{width: 10, height: 10, payload: 299}))
			proc.exit(tt.exitCode)
			renderer := &fakeRenderer{}
			conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
			doc := newTestDocument(t, "x", DocumentOptions{})

			err := conv.Convert(context.Background(), doc)

			requireCode(t, err, tt.kind, tt.code)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Empty(t, renderer.renderCalls(), "no partial page")
			assert.Equal(t, StateFailed, doc.State())
		})
	}
}

func TestConvert_ShortPayloadUnresponsive(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(1, pageSpec{width: 10, height: 10, payload: 1}))
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{})

	err := conv.Convert(context.Background(), doc)

	ce := requireCode(t, err, KindProcessUnresponsive, CodeUnexpected)
	assert.Equal(t, fakePID, ce.PID)
	assert.Equal(t, shortTimeouts.Exception, ce.Timeout)
	assert.True(t, proc.Exited(), "the hanging child is still torn down")
}

func TestConvert_BrokenPipe(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(nil)
	proc.stdin.writeErr = syscall.EPIPE
	proc.exit(CodeFormatUnsupported)
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{})

	err := conv.Convert(context.Background(), doc)

	ce := requireCode(t, err, KindExitCode, CodeFormatUnsupported)
	assert.Equal(t, "The document format is not supported", ce.Message)
	assert.ErrorIs(t, err, syscall.EPIPE)
	assert.Equal(t, StateFailed, doc.State())
}

func TestConvert_StartFailure(t *testing.T) {
	t.Parallel()

	conv, progress := newTestConverter(t, &fakeProvider{startErr: errBoom}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{})

	err := conv.Convert(context.Background(), doc)

	requireCode(t, err, KindUnexpected, CodeUnexpected)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateFailed, doc.State())
	require.Len(t, progress.all(), 1)
	assert.True(t, progress.all()[0].Error)
}

func TestConvert_RenderFailure(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(1, fullPage(1, 1)))
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{renderErr: errBoom})
	doc := newTestDocument(t, "x", DocumentOptions{})

	err := conv.Convert(context.Background(), doc)

	requireCode(t, err, KindUnexpected, CodeUnexpected)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, ErrUnexpectedConversion)
	assert.Equal(t, StateFailed, doc.State())
}

func TestConvert_RendererPanic(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(2, fullPage(1, 1), fullPage(1, 1)))
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{panicOn: 2})
	doc := newTestDocument(t, "x", DocumentOptions{})

	var err error
	assert.NotPanics(t, func() { err = conv.Convert(context.Background(), doc) })

	ce := requireCode(t, err, KindUnexpected, CodeUnexpected)
	assert.Contains(t, ce.Err.Error(), "renderer exploded")
	assert.Equal(t, StateFailed, doc.State())
	_, _, closes := proc.counts()
	assert.Equal(t, 1, closes, "the child is torn down on panic")
}

func TestConvert_OCRLanguage(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(1, fullPage(1, 1)))
	renderer := &fakeRenderer{}
	conv, progress := newTestConverter(t, &fakeProvider{proc: proc}, renderer)
	doc := newTestDocument(t, "x", DocumentOptions{OCRLanguage: "fra"})

	require.NoError(t, conv.Convert(context.Background(), doc))

	assert.Equal(t, "fra", renderer.renderCalls()[0].lang)
	assert.Contains(t, progress.all()[0].Message, "searchable PDF")
}

func TestConvert_Archive(t *testing.T) {
	t.Parallel()

	proc := newFakeProcess(buildStream(1, fullPage(1, 1)))
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{Archive: true})
	input := doc.InputFilename()

	require.NoError(t, conv.Convert(context.Background(), doc))

	assert.Equal(t, StateSafe, doc.State())
	assert.NoFileExists(t, input)
	assert.FileExists(t, filepath.Join(filepath.Dir(input), ArchiveDirName, filepath.Base(input)))
}

func TestConvert_Canceled(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	proc := newFakeProcess(nil)
	proc.stdout = pr
	proc.onKill = func() { _ = pw.CloseWithError(io.ErrClosedPipe) }
	conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})
	doc := newTestDocument(t, "x", DocumentOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := conv.Convert(ctx, doc)

	requireCode(t, err, KindUnexpected, CodeInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, doc.State())
	assert.True(t, proc.Exited())
}

func TestConvert_RemovesWorkingDirectory(t *testing.T) {
	t.Parallel()

	for _, stream := range [][]byte{
		buildStream(1, fullPage(1, 1)),
		buildStream(2, fullPage(1, 1)),
	} {
		proc := newFakeProcess(stream)
		proc.exit(0)
		conv, _ := newTestConverter(t, &fakeProvider{proc: proc}, &fakeRenderer{})

		_ = conv.Convert(context.Background(), newTestDocument(t, "x", DocumentOptions{}))

		entries, err := os.ReadDir(conv.cfg.tempDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}
