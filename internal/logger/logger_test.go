package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false // Disable colors for easier testing
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "info message")
	})

	t.Run("ErrorLevelShowsOnlyErrors", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.NotContains(t, output, "info message")
		assert.NotContains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})
}

func TestSetLevel(t *testing.T) {
	t.Run("SetLevelChangesFilteringBehavior", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Info("should not appear")
		buf.Reset()

		SetLevel("INFO")
		Info("should appear")

		assert.Contains(t, buf.String(), "should appear")
	})

	t.Run("InvalidLevelIsIgnored", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("BOGUS")

		Info("still at info")
		assert.Contains(t, buf.String(), "still at info")
	})

	t.Run("LevelIsCaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		Debug("lowercase works")
		assert.Contains(t, buf.String(), "lowercase works")

		SetLevel("INFO")
	})
}

func TestStructuredFields(t *testing.T) {
	t.Run("FieldsAppearInTextOutput", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("text")

		Info("connection registered",
			KeyTransport, "tcp",
			KeyConnectionID, "abc-123",
			KeySize, 42,
		)

		output := buf.String()
		assert.Contains(t, output, "connection registered")
		assert.Contains(t, output, "transport=tcp")
		assert.Contains(t, output, "connection_id=abc-123")
		assert.Contains(t, output, "size=42")
	})

	t.Run("JSONFormatProducesParseableOutput", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")
		defer SetFormat("text")

		Info("envelope dispatched", KeyCommand, "ping", KeyRequestID, "r1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "envelope dispatched", entry["msg"])
		assert.Equal(t, "ping", entry["command"])
		assert.Equal(t, "r1", entry["request_id"])
	})

	t.Run("InvalidFormatIsIgnored", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetFormat("text")
		SetFormat("xml")

		Info("plain text")
		assert.True(t, strings.HasPrefix(buf.String(), "["),
			"expected text format output, got: %s", buf.String())
	})
}

func TestContextInjection(t *testing.T) {
	t.Run("ContextFieldsArePrepended", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("text")

		lc := NewLogContext("ws", "conn-7", "10.0.0.1:5312")
		ctx := WithContext(context.Background(), lc.WithCommand("ping", "req-9"))

		InfoCtx(ctx, "handler invoked")

		output := buf.String()
		assert.Contains(t, output, "transport=ws")
		assert.Contains(t, output, "connection_id=conn-7")
		assert.Contains(t, output, "remote_addr=10.0.0.1:5312")
		assert.Contains(t, output, "command=ping")
		assert.Contains(t, output, "request_id=req-9")
	})

	t.Run("NilContextValuesAreTolerated", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		InfoCtx(context.Background(), "no log context attached")

		assert.Contains(t, buf.String(), "no log context attached")
	})

	t.Run("CloneDoesNotAliasOriginal", func(t *testing.T) {
		lc := NewLogContext("tcp", "conn-1", "127.0.0.1:9")
		scoped := lc.WithCommand("echo", "r2")

		assert.Equal(t, "", lc.Command)
		assert.Equal(t, "echo", scoped.Command)
		assert.Equal(t, "conn-1", scoped.ConnectionID)
	})
}

func TestWith(t *testing.T) {
	t.Run("PreBoundFieldsAppearOnEveryRecord", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("text")

		l := With(KeyTransport, "kcp", KeyPort, 5004)
		l.Info("gateway listening")
		l.Info("gateway stopped")

		output := buf.String()
		assert.Equal(t, 2, strings.Count(output, "transport=kcp"))
		assert.Equal(t, 2, strings.Count(output, "port=5004"))
	})
}

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent write", KeyConnectionID, "c")
			}
		}()
	}
	wg.Wait()

	// Every line must be intact: [timestamp] [LEVEL] message fields
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 16*50)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "["), "interleaved line: %q", line)
		assert.Contains(t, line, "concurrent write")
	}
}
