package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"askdoc/internal/model"
	"askdoc/internal/source"
)

const stubDim = 64

// hashEmbedder produces a deterministic bag-of-words vector so texts sharing
// words score higher cosine similarity. Good enough to make retrieval tests
// meaningful without a real model.
type hashEmbedder struct {
	embedCalls int32
	batchCalls int32
	failBatch  bool
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.embedCalls, 1)
	return hashVector(text), nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.batchCalls, 1)
	if e.failBatch {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	vec := make([]float32, stubDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%stubDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}

// scriptProvider routes completions by prompt kind so tests can script the
// graders and the generator independently.
type scriptProvider struct {
	hashEmbedder

	completeCalls int32
	docGrade      func(msgs []model.Turn) (string, error)
	answerGrade   func(msgs []model.Turn) (string, error)
	generate      func(msgs []model.Turn) (string, error)
}

func (p *scriptProvider) Complete(ctx context.Context, msgs []model.Turn) (string, error) {
	atomic.AddInt32(&p.completeCalls, 1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sys := ""
	if len(msgs) > 0 {
		sys = msgs[0].Content
	}
	switch sys {
	case docGradeSystemPrompt:
		if p.docGrade != nil {
			return p.docGrade(msgs)
		}
		return "yes", nil
	case answerGradeSystemPrompt:
		if p.answerGrade != nil {
			return p.answerGrade(msgs)
		}
		return "yes", nil
	default:
		if p.generate != nil {
			return p.generate(msgs)
		}
		return "stub answer", nil
	}
}

// stubLoader serves documents from fixed maps.
type stubLoader struct {
	urls        map[string]model.Document
	uploads     map[string]model.Document
	unsupported map[string]bool
}

func (l *stubLoader) LoadURL(ctx context.Context, url string) (model.Document, error) {
	doc, ok := l.urls[url]
	if !ok {
		return model.Document{}, fmt.Errorf("fetch %s: connection refused", url)
	}
	return doc, nil
}

func (l *stubLoader) LoadUpload(ctx context.Context, id string) (model.Document, error) {
	if l.unsupported[id] {
		return model.Document{}, fmt.Errorf("upload %s (image/png): %w", id, source.ErrUnsupportedType)
	}
	doc, ok := l.uploads[id]
	if !ok {
		return model.Document{}, fmt.Errorf("upload %s: %w", id, source.ErrUploadNotFound)
	}
	return doc, nil
}

// constEmbedder returns the same vector for every input, making all
// similarity scores equal.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
