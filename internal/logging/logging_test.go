package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter(Config{}, &buf)
		require.NoError(t, err)

		logger.Info("hello")
		require.NoError(t, logger.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "info", entry["level"])
		assert.Contains(t, entry, "ts")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter(Config{Level: "warn"}, &buf)
		require.NoError(t, err)

		logger.Info("quiet")
		logger.Warn("loud")
		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "loud")
	})

	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter(Config{Format: "console", Level: "DEBUG"}, &buf)
		require.NoError(t, err)

		logger.Debug("plain text")
		assert.True(t, strings.Contains(buf.String(), "DEBUG"))
		assert.False(t, json.Valid(buf.Bytes()))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}
