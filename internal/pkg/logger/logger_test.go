package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return &Logger{level: INFO, mu: &sync.Mutex{}, out: buf, redactPII: true}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestLogRedactsEmailFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Info("subscriber added", "email", "alice@example.com", "note", "contact bob@example.org")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "al***@example.com", entry["email"])
	assert.Equal(t, "contact bo***@example.org", entry["note"])
}

func TestLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf).With("op", "campaign.send")

	l.Error("send failed", "error", errors.New("boom"))

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "campaign.send", entry["op"])
	assert.Equal(t, "boom", entry["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "", RedactSecret(""))
	assert.Equal(t, "****", RedactSecret("short"))
	assert.Equal(t, "re_a****", RedactSecret("re_abcdef123456"))
}
