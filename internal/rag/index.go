package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"askdoc/internal/model"
)

// Embedder is the slice of the model provider the index needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	embedBatchSize   = 32
	embedConcurrency = 4
)

// VectorIndex is an immutable in-memory index over a fixed set of chunks.
// Vectors are stored in chunk order; searches resolve back to chunk indices.
type VectorIndex struct {
	chunks  []model.Chunk
	vectors [][]float32
}

// BuildIndex embeds every chunk and assembles the index. Embedding runs in
// bounded concurrent batches; any batch failure aborts the whole build so a
// partial index can never be observed or cached. An empty chunk set yields a
// valid empty index.
func BuildIndex(ctx context.Context, embedder Embedder, chunks []model.Chunk) (*VectorIndex, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			vecs, err := embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(texts))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &VectorIndex{chunks: chunks, vectors: vectors}, nil
}

// Len reports the number of indexed chunks.
func (idx *VectorIndex) Len() int { return len(idx.chunks) }

// Chunk returns the chunk at position i.
func (idx *VectorIndex) Chunk(i int) model.Chunk { return idx.chunks[i] }

// Search returns the indices of the k chunks most similar to the query
// vector, best first. Ties keep insertion order. k larger than the index is
// truncated to the index size.
func (idx *VectorIndex) Search(query []float32, k int) []int {
	order := make([]int, len(idx.vectors))
	scores := make([]float64, len(idx.vectors))
	for i, v := range idx.vectors {
		order[i] = i
		scores[i] = cosineSimilarity(query, v)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	if k < 0 {
		k = 0
	}
	return order[:k]
}

// SearchMMR ranks with maximal marginal relevance: it pools the fetchK most
// similar chunks, seeds the result with the single most relevant one, then
// repeatedly picks the pooled chunk maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToSelected
//
// until k chunks are chosen. lambda 1 degenerates to pure similarity order
// over the pool; lambda 0 maximizes diversity. Ties keep pool order.
func (idx *VectorIndex) SearchMMR(query []float32, k, fetchK int, lambda float64) []int {
	if fetchK < k {
		fetchK = k
	}
	pool := idx.Search(query, fetchK)
	if len(pool) == 0 || k <= 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	relevance := make(map[int]float64, len(pool))
	for _, i := range pool {
		relevance[i] = cosineSimilarity(query, idx.vectors[i])
	}

	selected := []int{pool[0]}
	remaining := pool[1:]
	for len(selected) < k {
		bestAt := -1
		bestScore := math.Inf(-1)
		for at, i := range remaining {
			maxSim := math.Inf(-1)
			for _, s := range selected {
				if sim := cosineSimilarity(idx.vectors[i], idx.vectors[s]); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestAt = at
			}
		}
		selected = append(selected, remaining[bestAt])
		remaining = append(remaining[:bestAt], remaining[bestAt+1:]...)
	}
	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
