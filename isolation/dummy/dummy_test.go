//go:build unix

package dummy

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alnah/go-pixelsafe"
)

func testDocument(t *testing.T) *pixelsafe.FileDocument {
	t.Helper()

	input := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(input, []byte("text"), 0o600))
	doc, err := pixelsafe.NewFileDocument(input, pixelsafe.DocumentOptions{})
	require.NoError(t, err)
	return doc
}

func TestNew_NoCommand(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestProvider_Basics(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Command: []string{"sh"}})
	require.NoError(t, err)

	assert.Equal(t, "dummy", p.Name())
	assert.Equal(t, 1, p.MaxParallelConversions())
	assert.NoError(t, p.Install(context.Background()))

	missing, err := New(Config{Command: []string{"/nonexistent/doc2pixels"}})
	require.NoError(t, err)
	assert.Error(t, missing.Install(context.Background()))
}

func TestProvider_StartAndExitCode(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	p, err := New(Config{
		Command: []string{"sh", "-c", "cat >/dev/null; exit 110"},
		Logger:  slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)

	proc, err := p.Start(context.Background(), testDocument(t), pixelsafe.StartOptions{})
	require.NoError(t, err)
	defer func() { _ = proc.Close() }()

	require.NoError(t, proc.Stdin().Close())
	code, err := proc.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, pixelsafe.CodeFormatUnsupported, code)
	assert.Contains(t, logs.String(), "NOT isolate")
}

func TestProvider_Terminate(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Command: []string{"sleep", "60"}, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	doc := testDocument(t)

	proc, err := p.Start(context.Background(), doc, pixelsafe.StartOptions{})
	require.NoError(t, err)
	defer func() { _ = proc.Close() }()

	require.NoError(t, p.Terminate(context.Background(), doc, proc))
	code, err := proc.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, -15, code)
}
