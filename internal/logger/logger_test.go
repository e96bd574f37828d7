package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testConfig struct {
	level, output, file string
}

func (c testConfig) GetLevel() string  { return c.level }
func (c testConfig) GetOutput() string { return c.output }
func (c testConfig) GetFile() string   { return c.file }

func swapDefault(t *testing.T, l *Logger) {
	t.Helper()
	previous := defaultLogger
	defaultLogger = l
	t.Cleanup(func() { defaultLogger = previous })
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"verbose": INFO,
		"":        INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestPackageFunctionsFormat(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	swapDefault(t, &Logger{zapLogger: zap.New(core)})

	Debug("hidden %d", 1)
	Info("donation %d counted in %s", 7, "qf:2")
	Warn("price missing for round %d", 3)
	With(zap.String("job", "refresh")).Error("failed: %v", "boom")

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("donation 7 counted in qf:2").Len())
	assert.Equal(t, 1, logs.FilterMessage("price missing for round 3").Len())

	entry := logs.FilterMessage("failed: boom").All()
	require.Len(t, entry, 1)
	assert.Equal(t, zapcore.ErrorLevel, entry[0].Level)
	assert.Equal(t, "refresh", entry[0].ContextMap()["job"])
}

func TestInitWritesRotatedFile(t *testing.T) {
	swapDefault(t, NewNop())

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(testConfig{level: "info", output: "file", file: path}))

	Info("ledger recomputed for project %d", 12)
	Debug("not written")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ledger recomputed for project 12")
	assert.NotContains(t, string(data), "not written")
	assert.Contains(t, string(data), `"timestamp"`)
}
