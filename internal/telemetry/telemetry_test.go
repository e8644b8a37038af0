package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	p, err := Init(context.Background(), Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitEnabledRequiresEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true}, zap.NewNop())
	assert.Error(t, err)
}

func TestSamplerSelection(t *testing.T) {
	assert.Equal(t, trace.AlwaysSample().Description(), sampler(1.0).Description())
	assert.Equal(t, trace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
