package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"askdoc/internal/config"
)

func TestResolveOptionsDefaults(t *testing.T) {
	r := resolveOptions(Options{}, config.RAGConfig{})

	assert.Equal(t, adaptiveChunkSize, r.ChunkSize)
	assert.False(t, r.OverlapSet)
	assert.Equal(t, StrategySimilarity, r.Strategy)
	assert.Equal(t, defaultTopK, r.TopK)
	assert.Equal(t, defaultFetchK, r.FetchK)
	assert.Equal(t, defaultLambda, r.Lambda)
	assert.Equal(t, PolicyLenient, r.Policy)
}

func TestResolveOptionsConfigOverDefaults(t *testing.T) {
	cfg := config.RAGConfig{
		ChunkSize:         800,
		ChunkOverlap:      120,
		RetrieverStrategy: StrategyMMR,
		RetrieverK:        6,
		RetrieverFetchK:   30,
		RetrieverLambda:   0.7,
		GradingPolicy:     PolicyStrict,
	}
	r := resolveOptions(Options{}, cfg)

	assert.Equal(t, 800, r.ChunkSize)
	assert.Equal(t, 120, r.ChunkOverlap)
	assert.True(t, r.OverlapSet)
	assert.Equal(t, StrategyMMR, r.Strategy)
	assert.Equal(t, 6, r.TopK)
	assert.Equal(t, 30, r.FetchK)
	assert.Equal(t, 0.7, r.Lambda)
	assert.Equal(t, PolicyStrict, r.Policy)
}

func TestResolveOptionsRequestOverConfig(t *testing.T) {
	cfg := config.RAGConfig{ChunkSize: 800, RetrieverStrategy: StrategyMMR, GradingPolicy: PolicyStrict}
	lambda := 0.0
	r := resolveOptions(Options{
		ChunkSize: 300,
		Strategy:  StrategySimilarity,
		Policy:    PolicyLenient,
		Lambda:    &lambda,
	}, cfg)

	assert.Equal(t, 300, r.ChunkSize)
	assert.Equal(t, StrategySimilarity, r.Strategy)
	assert.Equal(t, PolicyLenient, r.Policy)
	// An explicit zero lambda must not fall back to the default.
	assert.Equal(t, 0.0, r.Lambda)
}

func TestResolveOptionsClamps(t *testing.T) {
	high := 1.5
	r := resolveOptions(Options{Lambda: &high, TopK: 10, FetchK: 5}, config.RAGConfig{})
	assert.Equal(t, 1.0, r.Lambda)
	// FetchK can never be smaller than TopK.
	assert.Equal(t, 10, r.FetchK)

	low := -0.5
	r = resolveOptions(Options{Lambda: &low}, config.RAGConfig{})
	assert.Equal(t, 0.0, r.Lambda)
}
