package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/designgov/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Healthy)

	// No-op tracer still works.
	_, span := tel.Tracer("test").Start(context.Background(), "noop")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.True(t, tel.Health().Degraded)
	assert.False(t, tel.IsEnabled())
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"
	assert.Error(t, cfg.Validate(), "insecure remote endpoint")

	cfg.Insecure = false
	assert.NoError(t, cfg.Validate())

	cfg.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	for ep, want := range map[string]bool{
		"localhost:4317":     true,
		"127.0.0.1:4317":     true,
		"[::1]:4317":         true,
		"otel.internal:4317": false,
	} {
		c := &Config{Endpoint: ep}
		assert.Equal(t, want, c.isLocalEndpoint(), ep)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{Enabled: true, Endpoint: "127.0.0.1:4317", SampleRate: 0.5})
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 0.5, cfg.SampleRate)
	assert.Equal(t, "designgov", cfg.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestTestTelemetry_SpansAndCounters(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "orchestrator.Run")
	span.SetAttributes(attribute.String("session.id", "s1"))
	span.End()

	tel.AssertSpanExists(t, "orchestrator.Run")
	tel.AssertSpanAttribute(t, "orchestrator.Run", "session.id", "s1")
	assert.Equal(t, []string{"orchestrator.Run"}, tel.SpanNames())

	counter, err := tel.Meter("test").Int64Counter("runs_total")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	n, err := tel.CounterValue(ctx, "runs_total")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
