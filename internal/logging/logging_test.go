package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitInstallsGlobalLogger(t *testing.T) {
	flush, err := Init("debug", "console")
	require.NoError(t, err)
	defer flush()

	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestInitDefaults(t *testing.T) {
	flush, err := Init("", "")
	require.NoError(t, err)
	defer flush()

	assert.False(t, zap.L().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, zap.L().Core().Enabled(zapcore.InfoLevel))
}

func TestInitRejectsBadInput(t *testing.T) {
	_, err := Init("loud", "json")
	assert.Error(t, err)

	_, err = Init("info", "xml")
	assert.ErrorContains(t, err, "want json or console")
}
