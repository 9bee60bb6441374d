package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	t.Run("Should write text output with fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: InfoLevel, Output: &buf, TimeFormat: "15:04:05"})

		l.With("npi", "1033933064").Info("search done", "records", 1)

		out := buf.String()
		assert.Contains(t, out, "search done")
		assert.Contains(t, out, "npi")
		assert.Contains(t, out, "1033933064")
	})

	t.Run("Should write JSON when enabled", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

		l.Warn("lookup table unreadable")

		out := buf.String()
		assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
		assert.Contains(t, out, "lookup table unreadable")
	})

	t.Run("Should drop messages below the level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: WarnLevel, Output: &buf})

		l.Debug("hidden")
		l.Info("hidden too")

		assert.Empty(t, buf.String())
	})
}

func TestLogLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, InfoLevel.charmLevel(), LogLevel("verbose").charmLevel())
	assert.Equal(t, DebugLevel.charmLevel(), LogLevel("DEBUG").charmLevel())
}
