package pixelsafe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePID never matches a live process.
const fakePID = 999999999

// ---------------------------------------------------------------------------
// Stream builders
// ---------------------------------------------------------------------------

// pageSpec describes one page of a hand-built stream. A negative payload
// writes width*height*3 bytes.
type pageSpec struct {
	width, height int
	payload       int
}

func u16(v int) []byte {
	var b [IntBytes]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return b[:]
}

// buildStream encodes count and pages without validating anything.
func buildStream(count int, pages ...pageSpec) []byte {
	var buf bytes.Buffer
	buf.Write(u16(count))
	for i, p := range pages {
		buf.Write(u16(p.width))
		buf.Write(u16(p.height))
		n := p.payload
		if n < 0 {
			n = p.width * p.height * bytesPerPixel
		}
		buf.Write(bytes.Repeat([]byte{byte(i + 1)}, n))
	}
	return buf.Bytes()
}

func fullPage(width, height int) pageSpec {
	return pageSpec{width: width, height: height, payload: -1}
}

// ---------------------------------------------------------------------------
// fakeProcess
// ---------------------------------------------------------------------------

// fakeStdin records what the parent writes.
type fakeStdin struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (s *fakeStdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(p)
}

func (s *fakeStdin) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStdin) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// fakeProcess is a scriptable Process. By default it exits on Terminate
// and on Kill.
type fakeProcess struct {
	pid    int
	stdin  *fakeStdin
	stdout io.ReadCloser
	stderr io.Reader

	ignoreTerminate bool
	ignoreKill      bool
	waitErr         error
	// onKill runs on every Kill, e.g. to break a blocked stdout.
	onKill func()

	mu         sync.Mutex
	exited     chan struct{}
	exitCode   int
	terminates int
	kills      int
	pidKills   int
	closes     int
}

func newFakeProcess(stdout []byte) *fakeProcess {
	return &fakeProcess{
		pid:    fakePID,
		stdin:  &fakeStdin{},
		stdout: io.NopCloser(bytes.NewReader(stdout)),
		exited: make(chan struct{}),
	}
}

// exit makes the process exit with code; later calls are ignored.
func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.exited:
	default:
		p.exitCode = code
		close(p.exited)
	}
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderr }

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) Wait(timeout time.Duration) (int, error) {
	select {
	case <-p.exited:
	case <-time.After(timeout):
		return 0, fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
	}
	if p.waitErr != nil {
		return 0, p.waitErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, nil
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminates++
	ignore := p.ignoreTerminate
	p.mu.Unlock()
	if !ignore {
		p.exit(-15)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	ignore := p.ignoreKill
	onKill := p.onKill
	p.mu.Unlock()
	if onKill != nil {
		onKill()
	}
	if !ignore {
		p.exit(-9)
	}
	return nil
}

func (p *fakeProcess) KillProcess() error {
	p.mu.Lock()
	p.pidKills++
	ignore := p.ignoreKill
	p.mu.Unlock()
	if !ignore {
		p.exit(-9)
	}
	return nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// processKills returns how many times the child alone was killed.
func (p *fakeProcess) processKills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pidKills
}

// counts returns terminates, kills and closes.
func (p *fakeProcess) counts() (terminates, kills, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates, p.kills, p.closes
}

// ---------------------------------------------------------------------------
// fakeProvider
// ---------------------------------------------------------------------------

type fakeProvider struct {
	proc     *fakeProcess
	startErr error

	mu         sync.Mutex
	starts     int
	terminates int
	startOpts  []StartOptions
}

func (f *fakeProvider) Name() string                      { return "fake" }
func (f *fakeProvider) Install(context.Context) error     { return nil }
func (f *fakeProvider) MaxParallelConversions() int        { return 2 }

func (f *fakeProvider) Start(_ context.Context, _ Document, opts StartOptions) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.startOpts = append(f.startOpts, opts)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.proc, nil
}

func (f *fakeProvider) Terminate(_ context.Context, _ Document, p Process) error {
	f.mu.Lock()
	f.terminates++
	f.mu.Unlock()
	return p.Terminate()
}

// ---------------------------------------------------------------------------
// fakeRenderer
// ---------------------------------------------------------------------------

type renderCall struct {
	size          int
	width, height int
	lang          string
	first         byte
}

type fakeRenderer struct {
	mu        sync.Mutex
	calls     []renderCall
	renderErr error
	panicOn   int
}

func (r *fakeRenderer) RenderPage(_ context.Context, pixels []byte, width, height int, lang string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{size: len(pixels), width: width, height: height, lang: lang, first: pixels[0]})
	if r.panicOn == len(r.calls) {
		panic("renderer exploded")
	}
	if r.renderErr != nil {
		return nil, r.renderErr
	}
	return []byte(fmt.Sprintf("page-%d", pixels[0])), nil
}

// Assemble joins the pages with "|" so tests can check their order.
func (r *fakeRenderer) Assemble(_ context.Context, pages []io.ReadSeeker, w io.Writer) error {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		b, err := io.ReadAll(p)
		if err != nil {
			return err
		}
		parts = append(parts, string(b))
	}
	_, err := io.WriteString(w, strings.Join(parts, "|"))
	return err
}

func (r *fakeRenderer) renderCalls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.calls...)
}

// ---------------------------------------------------------------------------
// Setup helpers
// ---------------------------------------------------------------------------

// shortTimeouts keep escalation tests fast.
var shortTimeouts = Timeouts{
	Exception: 100 * time.Millisecond,
	Grace:     50 * time.Millisecond,
	Force:     50 * time.Millisecond,
}

func neverSharesGroup(int) (bool, error) { return false, nil }

func newTestController(t *testing.T, provider Provider, debug bool, logger *slog.Logger) *Controller {
	t.Helper()

	if logger == nil {
		logger = discardLogger()
	}
	c, err := NewController(ControllerConfig{
		Provider: provider,
		Timeouts: shortTimeouts,
		Debug:    debug,
		Logger:   logger,
	})
	require.NoError(t, err)
	c.sharesGroup = neverSharesGroup
	return c
}

// progressRecorder collects events.
type progressRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *progressRecorder) record(e ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *progressRecorder) all() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

func newTestConverter(t *testing.T, provider Provider, renderer PageRenderer, opts ...Option) (*Converter, *progressRecorder) {
	t.Helper()

	rec := &progressRecorder{}
	opts = append([]Option{
		WithRenderer(renderer),
		WithTimeouts(shortTimeouts),
		WithLogger(discardLogger()),
		WithProgress(rec.record),
		WithTempDir(t.TempDir()),
	}, opts...)

	conv, err := NewConverter(provider, opts...)
	require.NoError(t, err)
	conv.controller.sharesGroup = neverSharesGroup
	return conv, rec
}

// newTestDocument writes an input file and returns a pending document.
func newTestDocument(t *testing.T, content string, opts DocumentOptions) *FileDocument {
	t.Helper()

	input := filepath.Join(t.TempDir(), "untrusted.docx")
	require.NoError(t, os.WriteFile(input, []byte(content), 0o600))
	doc, err := NewFileDocument(input, opts)
	require.NoError(t, err)
	return doc
}

// errReader fails every read.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

var errBoom = errors.New("boom")
