package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default warn level", 0, zerolog.WarnLevel},
		{"info level", 1, zerolog.InfoLevel},
		{"debug level", 2, zerolog.DebugLevel},
		{"trace level", 3, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			t.Setenv("XDG_STATE_HOME", tempDir)
			t.Setenv(paths.EnvStateDir, "")
			t.Cleanup(closeLogFile)

			SetupLogger(tt.verbosity)

			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())

			logPath := filepath.Join(tempDir, "dotapply", "dotapply.log")
			_, err := os.Stat(logPath)
			assert.NoError(t, err, "log file should exist at %s", logPath)
		})
	}
}

func TestGetLogFilePath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	t.Setenv(paths.EnvStateDir, "")
	assert.Equal(t, "/custom/state/dotapply/dotapply.log", getLogFilePath())

	t.Setenv(paths.EnvStateDir, "/run/dotapply")
	assert.Equal(t, "/run/dotapply/dotapply.log", getLogFilePath())
}

func TestGetLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, 1)

	logger := GetLogger("apply.symlink")
	logger.Info().Msg("linked")

	out := buf.String()
	assert.Contains(t, out, `"component":"apply.symlink"`)
	assert.Contains(t, out, "linked")
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, 2)

	done := LogOperationStart(GetLogger("test"), "stage.secrets")
	done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Operation started")
	assert.Contains(t, lines[1], "Operation completed")
	assert.Contains(t, lines[1], "duration")
}

func TestLogCommand(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, 2)

	LogCommand(GetLogger("test"), "brew", []string{"install", "git"})

	out := buf.String()
	assert.Contains(t, out, "brew")
	assert.Contains(t, out, "install")
	assert.Contains(t, out, "Running external command")
}
