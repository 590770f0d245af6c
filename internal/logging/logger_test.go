package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	logger := New(Config{Level: "debug", Format: "json"})
	ctx := WithLogger(context.Background(), logger.WithRequestID("req-1"))
	ctx = WithRequestIDContext(ctx, "req-1")

	assert.Equal(t, "req-1", RequestID(ctx))
	require.NotNil(t, FromContext(ctx))
}

func TestFromContextFallsBack(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestLevelParsing(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		t.Run(level, func(t *testing.T) {
			require.NotNil(t, New(Config{Level: level}))
		})
	}
}
