package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("station", "nik")).Info(context.Background(), "solved",
		Float("miss_m", 0.27),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "solved", rec["msg"])
	assert.Equal(t, "nik", rec["station"])
	assert.Equal(t, 0.27, rec["miss_m"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ctx2, id2 := EnsureRequestID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, RequestIDFromContext(ctx2))
}

func TestLoggerFromContextFallback(t *testing.T) {
	assert.Equal(t, Noop(), LoggerFromContext(context.Background(), nil))

	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	assert.Same(t, l, LoggerFromContext(ctx, Noop()))
}

func TestLevelOf(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, levelOf(in), "level %q", in)
	}
}

func TestFileOutputUsesRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triangulator.log")
	log, closer := Open(Config{File: path, Format: "json"})
	log.Info(context.Background(), "to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestOpenStreamCloserIsNoop(t *testing.T) {
	var buf bytes.Buffer
	log, closer := Open(Config{Output: &buf})
	require.NoError(t, closer.Close())

	log.Info(context.Background(), "still writing")
	assert.Contains(t, buf.String(), "still writing")
}

func TestNewIgnoresFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "unused.log")
	New(Config{File: path, Output: &buf}).Info(context.Background(), "stream")

	assert.Contains(t, buf.String(), "stream")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
