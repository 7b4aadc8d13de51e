package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerIsSafeBeforeInitialize(t *testing.T) {
	// The package-level funcs must not panic with the load-time nop logger.
	assert.NotPanics(t, func() {
		Infow("before init", "key", "value")
		Warnw("before init")
		Errorw("before init")
		Debugw("before init")
	})
}

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
	assert.NotNil(t, Logger)
	assert.NotPanics(t, func() { Infow("console mode", "n", 1) })
}

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)
	Cleanup()
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("NORMGATE_LOG_LEVEL", "debug")
	assert.Equal(t, zap.DebugLevel, levelFromEnv())

	t.Setenv("NORMGATE_LOG_LEVEL", "warn")
	assert.Equal(t, zap.WarnLevel, levelFromEnv())

	t.Setenv("NORMGATE_LOG_LEVEL", "")
	assert.Equal(t, zap.InfoLevel, levelFromEnv())
}
