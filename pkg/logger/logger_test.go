package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestCallerPointsAtCallSite(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel)

	l.Info("direct %d", 1)
	entry := lastEntry(t, &buf)
	assert.Equal(t, "direct 1", entry["message"])
	assert.Contains(t, entry["caller"], "logger_test.go")

	l.Warn("direct warn")
	assert.Contains(t, lastEntry(t, &buf)["caller"], "logger_test.go")

	prev := GlobalLogger
	GlobalLogger = l
	defer func() { GlobalLogger = prev }()

	Error("global %s", "error")
	entry = lastEntry(t, &buf)
	assert.Equal(t, "global error", entry["message"])
	assert.Equal(t, "error", entry["level"])
	assert.Contains(t, entry["caller"], "logger_test.go")

	Debug("global debug")
	assert.Contains(t, lastEntry(t, &buf)["caller"], "logger_test.go")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Equal(t, "shown", lastEntry(t, &buf)["message"])
}
