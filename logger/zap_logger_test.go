package logger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-assets/types"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("nonsense"))
}

func TestZapWrapper_ErrorWithErrStack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapWrapper(zap.New(core))

	err := types.WrapError(errors.New("disk full"), "persist bundle")
	l.ErrorWithErrStack("cache write failed", err, zap.String("bundle", "app"))

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "persist bundle: disk full", fields["error"])
	assert.Equal(t, "app", fields["bundle"])
	assert.Contains(t, fields, "stack")
}

func TestZapWrapper_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZapWrapper(zap.New(core)).With(zap.String("component", "assets"))

	l.Info("ready")
	l.Debug("hidden")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "assets", logs.All()[0].ContextMap()["component"])
}

func TestCreateLogger_UnknownType(t *testing.T) {
	_, err := createLogger(&types.LoggerConfig{Type: "syslog", Level: "info"})
	assert.ErrorIs(t, err, types.ErrLoggerTypeUnknown)
}

func TestCreateLogger_Registered(t *testing.T) {
	RegisterLogger("nop", func(config interface{}) (types.Logger, error) {
		return NewNop(), nil
	})

	l, err := createLogger(&types.LoggerConfig{Type: "nop", Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
