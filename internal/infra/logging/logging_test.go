package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/infra/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		give string
		want slog.Level
	}{
		{give: "debug", want: slog.LevelDebug},
		{give: "info", want: slog.LevelInfo},
		{give: "warn", want: slog.LevelWarn},
		{give: "error", want: slog.LevelError},
		{give: "verbose", want: slog.LevelInfo},
		{give: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.give, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, logging.ParseLevel(tt.give))
		})
	}
}

//nolint:paralleltest // replaces the slog default
func TestNewWithWriter(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer

		logger := logging.NewWithWriter(&buf, "json", "info")
		logger.Info("hello", "component", "test")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "hello", line["msg"])
		require.Equal(t, "test", line["component"])
	})

	t.Run("text format drops debug at info level", func(t *testing.T) {
		var buf bytes.Buffer

		logger := logging.NewWithWriter(&buf, "text", "info")
		logger.Debug("hidden")
		logger.Warn("shown")

		out := buf.String()
		require.NotContains(t, out, "hidden")
		require.True(t, strings.Contains(out, "msg=shown"))
	})
}
