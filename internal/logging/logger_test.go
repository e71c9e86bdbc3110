package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/designgov/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)

	cfg = NewDefaultConfig()
	cfg.Sampling.Tick = config.Duration(0)
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields_Session(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithSession(context.Background(), "sess-1", "architect", "feature/atrium")
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "phase transition", zap.String("to", "execute"))

	tl.AssertLogged(t, zapcore.InfoLevel, "phase transition")
	tl.AssertField(t, "phase transition", "session.id", "sess-1")
	tl.AssertField(t, "phase transition", "agent.id", "architect")
	tl.AssertField(t, "phase transition", "branch.id", "feature/atrium")
	tl.AssertField(t, "phase transition", "request.id", "req-9")
	tl.AssertField(t, "phase transition", "to", "execute")
}

func TestWithSession_EmptyIDIgnored(t *testing.T) {
	ctx := WithSession(context.Background(), "", "a", "b")
	assert.Nil(t, SessionFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestTestLogger_TraceAndReset(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "parameters", zap.Duration("took", time.Millisecond))
	tl.AssertLogged(t, TraceLevel, "parameters")

	tl.Reset()
	assert.Empty(t, tl.All())
	tl.AssertNotLogged(t, TraceLevel, "parameters")
}

func TestSampledCore_ErrorsNeverDropped(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	// Both cores of the tee remain enabled for Error.
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}
