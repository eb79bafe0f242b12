package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("warn") })

	for in, want := range map[string]slog.Level{
		"debug":  slog.LevelDebug,
		" INFO ": slog.LevelInfo,
		"error":  slog.LevelError,
		"warn":   slog.LevelWarn,
		"bogus":  slog.LevelWarn,
		"":       slog.LevelWarn,
	} {
		SetLevel(in)
		require.Equal(t, want, Level(), "level %q", in)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("warn") })
	var buf bytes.Buffer
	l := New(&buf)

	SetLevel("warn")
	l.Info("hidden")
	require.Zero(t, buf.Len())

	SetLevel("debug")
	l.Debug("shown", "k", "v")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"k":"v"`)
}
