package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// IndexCache keeps built vector indexes keyed by their source set and chunk
// parameters. Concurrent requests for the same key share a single build via
// singleflight; failed builds are never stored, so the next caller retries.
type IndexCache struct {
	mu      sync.RWMutex
	entries map[string]*VectorIndex
	group   singleflight.Group
}

func NewIndexCache() *IndexCache {
	return &IndexCache{entries: make(map[string]*VectorIndex)}
}

// Lookup reports whether an index is already cached for key.
func (c *IndexCache) Lookup(key string) (*VectorIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.entries[key]
	return idx, ok
}

// GetOrBuild returns the cached index for key, or runs build exactly once
// across concurrent callers and caches its result. The hit flag is true when
// no build ran for this caller.
//
// The in-flight build runs under the first caller's context; later callers
// joining the flight inherit its outcome.
func (c *IndexCache) GetOrBuild(key string, build func() (*VectorIndex, error)) (*VectorIndex, bool, error) {
	if idx, ok := c.Lookup(key); ok {
		return idx, true, nil
	}
	built := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if idx, ok := c.Lookup(key); ok {
			return idx, nil
		}
		built = true
		idx, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = idx
		c.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*VectorIndex), !built, nil
}

// Invalidate drops the entry for key, if present.
func (c *IndexCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// cacheKey derives the cache identity of a build: the sorted source URLs, the
// sorted upload IDs, and the chunk parameters. Adaptive values appear as the
// literal "auto" so the key is computable before any document is fetched.
// Source order never changes the key.
func cacheKey(urls, uploadIDs []string, r Resolved) string {
	sortedURLs := append([]string(nil), urls...)
	sort.Strings(sortedURLs)
	sortedIDs := append([]string(nil), uploadIDs...)
	sort.Strings(sortedIDs)

	size := "auto"
	if r.ChunkSize != adaptiveChunkSize {
		size = strconv.Itoa(r.ChunkSize)
	}
	overlap := "auto"
	if r.OverlapSet {
		overlap = strconv.Itoa(r.ChunkOverlap)
	}

	// Length-prefix every component so no URL or ID can masquerade as the
	// concatenation of its neighbours.
	var b strings.Builder
	b.WriteString("urls=")
	for _, u := range sortedURLs {
		b.WriteString(strconv.Itoa(len(u)))
		b.WriteByte(':')
		b.WriteString(u)
	}
	b.WriteString("|uploads=")
	for _, id := range sortedIDs {
		b.WriteString(strconv.Itoa(len(id)))
		b.WriteByte(':')
		b.WriteString(id)
	}
	b.WriteString("|size=")
	b.WriteString(size)
	b.WriteString("|overlap=")
	b.WriteString(overlap)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
