// Package unittest holds helpers shared by package tests.
package unittest

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Read(p)
}

// CaptureLogs points the global zap logger at a buffer for the duration of
// the test and returns a reader over everything logged.
func CaptureLogs(t *testing.T) io.Reader {
	t.Helper()
	buffer := &lockedBuffer{}
	revert := zap.ReplaceGlobals(zap.New(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(buffer),
			zapcore.DebugLevel,
		)))
	t.Cleanup(revert)
	return buffer
}
