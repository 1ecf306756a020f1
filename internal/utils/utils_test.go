package utils

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	sentinel := errors.New("boom")
	err := NewAppError("engine.Group", "record 3 has no timestamp", sentinel)

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, "engine.Group: record 3 has no timestamp: boom", err.Error())
	assert.Equal(t, "record 3 has no timestamp", Message(err))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Empty(t, Message(nil))

	bare := NewAppError("ingest.Read", "empty upload", nil)
	assert.Equal(t, "ingest.Read: empty upload", bare.Error())
	assert.Nil(t, errors.Unwrap(bare))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01T10:15:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), ts)

	ts, err = ParseTimestamp("2024-03-01 10:15:00")
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())

	_, err = ParseTimestamp("")
	require.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestDurationMilliseconds(t *testing.T) {
	assert.Equal(t, 1.5, DurationMilliseconds(1500*time.Microsecond))
	assert.Equal(t, 0.0, DurationMilliseconds(-time.Second))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
