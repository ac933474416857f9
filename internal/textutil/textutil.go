// Package textutil sanitizes untrusted text before it reaches a terminal
// or a log.
package textutil

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// Replacement is written in place of every rejected byte.
const Replacement = '�'

// ReplaceControlChars keeps printable ASCII and replaces everything else,
// including non-ASCII bytes, with Replacement. Newlines survive when
// keepNewlines is set.
func ReplaceControlChars(untrusted string, keepNewlines bool) string {
	var b strings.Builder
	b.Grow(len(untrusted))
	for i := 0; i < len(untrusted); i++ {
		c := untrusted[i]
		switch {
		case c == '\n' && keepNewlines:
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			b.WriteRune(Replacement)
		}
	}
	return b.String()
}

// ReadDebugText reads at most size bytes of free-form text and sanitizes
// it. If r supports read deadlines, reading stops after timeout; whatever
// was read until then is returned.
func ReadDebugText(r io.Reader, size int, timeout time.Duration) (string, error) {
	if d, ok := r.(interface{ SetReadDeadline(time.Time) error }); ok && timeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(timeout))
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if errors.Is(err, os.ErrDeadlineExceeded) {
		err = nil
	}
	return ReplaceControlChars(string(data), true), err
}
