package logging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(Config{Level: level, OutputPaths: []string{"stderr"}})
		require.NoError(t, err, level)
		assert.NotNil(t, logger.Logger)
	}
}

func TestForTransitionAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ForTransition(base, "clock", "tx_1").Info("staged")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "clock", fields["app_id"])
	assert.Equal(t, "tx_1", fields["transition_id"])
}

func TestForTransitionNilBase(t *testing.T) {
	assert.NotPanics(t, func() {
		ForTransition(nil, "clock", "tx_1").Info("ignored")
	})
}

func TestSetLevelAffectsChildren(t *testing.T) {
	logger, err := New(Config{Level: "info", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	child := logger.Named("planner")

	assert.False(t, child.Core().Enabled(zapcore.DebugLevel))
	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, logger.SetLevel("chatty"))
}

func TestLevelHandler(t *testing.T) {
	logger, err := New(Config{Level: "info", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/log/level", strings.NewReader(`{"level":"warn"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	logger.LevelHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, zapcore.WarnLevel, logger.Level())
}
