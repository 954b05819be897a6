package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/model"
)

func TestSplitTextOverlapInvariant(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)
	size, overlap := 100, 20

	chunks := splitText(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), size, "chunk %d too long", i)
	}
	for i := 1; i < len(chunks); i++ {
		tail := tailRunes(chunks[i-1], overlap)
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with the previous chunk's tail", i)
	}
}

func TestSplitTextReconstructsOriginal(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta ", 30)
	size, overlap := 50, 10

	chunks := splitText(text, size, overlap)
	require.NotEmpty(t, chunks)

	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		rebuilt += string([]rune(c)[overlap:])
	}
	assert.Equal(t, text, rebuilt)
}

func TestSplitTextPrefersWordBoundaries(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta"
	chunks := splitText(text, 12, 2)
	require.Greater(t, len(chunks), 1)
	// Every interior break lands on a word boundary when the words fit the
	// chunk budget, so each non-final chunk ends with a separator.
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, " "), "chunk %q breaks mid-word", c)
	}
}

func TestSplitTextLongWordIsSliced(t *testing.T) {
	text := strings.Repeat("x", 500)
	size := 100
	chunks := splitText(text, size, 10)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), size)
	}
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, splitText("", 100, 20))
}

func TestAdaptiveSize(t *testing.T) {
	doc := func(n int) model.Document {
		return model.Document{Content: strings.Repeat("a", n)}
	}

	tests := []struct {
		name string
		docs []model.Document
		want int
	}{
		{"long corpus", []model.Document{doc(7000)}, 900},
		{"short corpus", []model.Document{doc(1000)}, 400},
		{"medium corpus", []model.Document{doc(3000)}, 700},
		{"mixed mean above threshold", []model.Document{doc(10000), doc(4000)}, 900},
		{"no documents", nil, 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adaptiveSize(tt.docs))
		})
	}
}

func TestEffectiveChunkParams(t *testing.T) {
	docs := []model.Document{{Content: strings.Repeat("a", 3000)}}

	size, overlap := effectiveChunkParams(docs, Resolved{ChunkSize: adaptiveChunkSize})
	assert.Equal(t, 700, size)
	assert.Equal(t, 140, overlap)

	size, overlap = effectiveChunkParams(docs, Resolved{ChunkSize: 900})
	assert.Equal(t, 900, size)
	assert.Equal(t, 180, overlap)

	size, overlap = effectiveChunkParams(docs, Resolved{ChunkSize: 500, ChunkOverlap: 50, OverlapSet: true})
	assert.Equal(t, 500, size)
	assert.Equal(t, 50, overlap)

	// An overlap at or above the size is clamped rather than rejected.
	size, overlap = effectiveChunkParams(docs, Resolved{ChunkSize: 100, ChunkOverlap: 150, OverlapSet: true})
	assert.Equal(t, 100, size)
	assert.Equal(t, 50, overlap)
}

func TestChunkDocumentsKeepsMetadataAndBoundaries(t *testing.T) {
	docs := []model.Document{
		{Content: strings.Repeat("first document text. ", 20), Metadata: map[string]string{model.MetaSourceURL: "https://a.example"}},
		{Content: strings.Repeat("second document text. ", 20), Metadata: map[string]string{model.MetaSourceURL: "https://b.example"}},
	}
	chunks := chunkDocuments(docs, 100, 20)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		src := c.Metadata[model.MetaSourceURL]
		if strings.Contains(c.Text, "first") {
			assert.Equal(t, "https://a.example", src)
			assert.NotContains(t, c.Text, "second")
		}
	}
}
