package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedMemMatchesSequentialGoldenTrace(t *testing.T) {
	sequential, err := NewSequentialEngine(goldenPipeline(t)).Run(context.Background())
	require.NoError(t, err)
	shared, err := NewSharedMemEngine(goldenPipeline(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sequential.Stats, shared.Stats)
	assert.Equal(t, sequential.FinalShares, shared.FinalShares)
	assert.Equal(t, sequential.FinalFunds, shared.FinalFunds)
	assert.Equal(t, sequential.FinalBalance, shared.FinalBalance)
}

func TestSharedMemMatchesSequentialWithGenerator(t *testing.T) {
	sequential, err := NewSequentialEngine(seededPipeline(t, 200, 4242)).Run(context.Background())
	require.NoError(t, err)
	shared, err := NewSharedMemEngine(seededPipeline(t, 200, 4242)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sequential.Stats, shared.Stats)
	assert.Equal(t, sequential.FinalShares, shared.FinalShares)
	assert.Equal(t, sequential.FinalFunds, shared.FinalFunds)
}

func TestSharedMemDeterministicAcrossRuns(t *testing.T) {
	first, err := NewSharedMemEngine(seededPipeline(t, 100, 9)).Run(context.Background())
	require.NoError(t, err)
	second, err := NewSharedMemEngine(seededPipeline(t, 100, 9)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
}

func TestSharedMemHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSharedMemEngine(seededPipeline(t, 10000, 7)).Run(ctx)
	assert.Error(t, err)
}
