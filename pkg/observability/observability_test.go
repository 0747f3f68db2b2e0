package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/observability"
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, err := observability.New(ctx, nil)
	require.NoError(t, err)

	// Every recording method must be safe without initialized instruments.
	p.RecordDocument(ctx, 2*time.Second)
	p.RecordDetections(ctx, 5)
	p.RecordRedactions(ctx, 3)
	p.RecordAuditFailure(ctx)

	spanCtx, span := p.StartSpan(ctx, "pipeline.process")
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := observability.DefaultConfig()
	assert.Equal(t, "gopnik", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}
