package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"error", LevelError},
		{"WARN", LevelWarn},
		{" Info ", LevelInfo},
		{"debug", LevelDebug},
		{"TRACE", LevelTrace},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestPrefixedLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger("TEST")
	root.SetOutput(&buf)
	child := root.WithPrefix("child")

	child.Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	root.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, child.Level())

	child.Debug("shown %d", 2)
	out := buf.String()
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "component=child")
}
