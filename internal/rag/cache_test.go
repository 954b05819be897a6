package rag

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/model"
)

func TestCacheKeyIgnoresSourceOrder(t *testing.T) {
	r := Resolved{ChunkSize: 700, ChunkOverlap: 140, OverlapSet: true}
	a := cacheKey([]string{"https://a", "https://b"}, []string{"u1", "u2"}, r)
	b := cacheKey([]string{"https://b", "https://a"}, []string{"u2", "u1"}, r)
	assert.Equal(t, a, b)
}

func TestCacheKeySensitiveToParams(t *testing.T) {
	urls := []string{"https://a"}
	base := cacheKey(urls, nil, Resolved{ChunkSize: 700, ChunkOverlap: 140, OverlapSet: true})

	assert.NotEqual(t, base, cacheKey(urls, nil, Resolved{ChunkSize: 900, ChunkOverlap: 140, OverlapSet: true}))
	assert.NotEqual(t, base, cacheKey(urls, nil, Resolved{ChunkSize: 700, ChunkOverlap: 100, OverlapSet: true}))
	assert.NotEqual(t, base, cacheKey(urls, nil, Resolved{ChunkSize: adaptiveChunkSize}))
	assert.NotEqual(t, base, cacheKey([]string{"https://b"}, nil, Resolved{ChunkSize: 700, ChunkOverlap: 140, OverlapSet: true}))
}

func TestCacheKeySeparatesAdjacentSources(t *testing.T) {
	// A single URL containing a comma must not collide with two URLs whose
	// concatenation reads the same.
	r := Resolved{ChunkSize: 700, ChunkOverlap: 140, OverlapSet: true}
	joined := cacheKey([]string{"https://x/a,https://x/b"}, nil, r)
	split := cacheKey([]string{"https://x/a", "https://x/b"}, nil, r)
	assert.NotEqual(t, joined, split)

	// Same for upload IDs spilling into the URL section.
	a := cacheKey([]string{"https://x/a"}, []string{"u1"}, r)
	b := cacheKey(nil, []string{"https://x/a|uploads=u1"}, r)
	assert.NotEqual(t, a, b)
}

func TestCacheKeyAdaptiveIsStable(t *testing.T) {
	// The adaptive marker must be computable before any document is fetched,
	// so two identical requests agree on the key.
	a := cacheKey([]string{"https://a"}, nil, Resolved{ChunkSize: adaptiveChunkSize})
	b := cacheKey([]string{"https://a"}, nil, Resolved{ChunkSize: adaptiveChunkSize})
	assert.Equal(t, a, b)
}

func TestGetOrBuildBuildsOnce(t *testing.T) {
	cache := NewIndexCache()
	builds := 0
	build := func() (*VectorIndex, error) {
		builds++
		return &VectorIndex{chunks: []model.Chunk{{Text: "x"}}, vectors: [][]float32{{1}}}, nil
	}

	idx1, hit, err := cache.GetOrBuild("k", build)
	require.NoError(t, err)
	assert.False(t, hit)

	idx2, hit, err := cache.GetOrBuild("k", build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, idx1, idx2)
	assert.Equal(t, 1, builds)
}

func TestGetOrBuildDoesNotCacheFailures(t *testing.T) {
	cache := NewIndexCache()
	calls := 0
	_, _, err := cache.GetOrBuild("k", func() (*VectorIndex, error) {
		calls++
		return nil, errors.New("embedding backend down")
	})
	require.Error(t, err)

	idx, hit, err := cache.GetOrBuild("k", func() (*VectorIndex, error) {
		calls++
		return &VectorIndex{}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, idx)
	assert.Equal(t, 2, calls)
}

func TestGetOrBuildDeduplicatesConcurrentBuilds(t *testing.T) {
	cache := NewIndexCache()
	var mu sync.Mutex
	builds := 0
	release := make(chan struct{})

	build := func() (*VectorIndex, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		<-release
		return &VectorIndex{}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*VectorIndex, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer wg.Done()
			idx, _, err := cache.GetOrBuild("k", build)
			assert.NoError(t, err)
			results[i] = idx
		}()
	}
	// Let the goroutines pile onto the flight before releasing the build.
	// A brief block on release is enough; stragglers that arrive after the
	// build completes hit the cache instead.
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// Callers either join the in-flight build or find the stored entry; the
	// double-checked lookup inside the flight means build runs exactly once.
	assert.Equal(t, 1, builds)
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestInvalidate(t *testing.T) {
	cache := NewIndexCache()
	_, _, err := cache.GetOrBuild("k", func() (*VectorIndex, error) {
		return &VectorIndex{}, nil
	})
	require.NoError(t, err)

	cache.Invalidate("k")
	_, ok := cache.Lookup("k")
	assert.False(t, ok)
}
