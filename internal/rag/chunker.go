package rag

import (
	"math"
	"strings"
	"unicode/utf8"

	"askdoc/internal/model"
)

// Separator ladder for recursive splitting, coarsest first. The empty string
// is the terminal level and slices by rune count.
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Adaptive sizing thresholds over the mean document length in runes.
const (
	longDocMean  = 6000
	shortDocMean = 1500

	longDocChunkSize    = 900
	shortDocChunkSize   = 400
	defaultRunChunkSize = 700

	overlapRatio = 0.2
)

// effectiveChunkParams turns the resolved options plus the loaded corpus into
// the concrete size and overlap used for this run. A zero ChunkSize selects
// the adaptive rule; the overlap defaults to 20% of the size, rounded.
func effectiveChunkParams(docs []model.Document, r Resolved) (size, overlap int) {
	size = r.ChunkSize
	if size == adaptiveChunkSize {
		size = adaptiveSize(docs)
	}
	if r.OverlapSet {
		overlap = r.ChunkOverlap
	} else {
		overlap = int(math.Round(overlapRatio * float64(size)))
	}
	if overlap >= size {
		overlap = size / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	return size, overlap
}

func adaptiveSize(docs []model.Document) int {
	if len(docs) == 0 {
		return defaultRunChunkSize
	}
	total := 0
	for _, d := range docs {
		total += utf8.RuneCountInString(d.Content)
	}
	mean := float64(total) / float64(len(docs))
	switch {
	case mean > longDocMean:
		return longDocChunkSize
	case mean < shortDocMean:
		return shortDocChunkSize
	default:
		return defaultRunChunkSize
	}
}

// chunkDocuments splits every document independently and stamps each chunk
// with its document's metadata. Chunks never span documents.
func chunkDocuments(docs []model.Document, size, overlap int) []model.Chunk {
	var chunks []model.Chunk
	for _, d := range docs {
		for _, text := range splitText(d.Content, size, overlap) {
			meta := make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				meta[k] = v
			}
			chunks = append(chunks, model.Chunk{Text: text, Metadata: meta})
		}
	}
	return chunks
}

// splitText produces chunks of at most size runes where every chunk after the
// first begins with the literal last `overlap` runes of its predecessor. The
// text is first broken into atoms no larger than size-overlap so that an
// overlap tail plus any atom always fits in one chunk.
func splitText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	budget := size - overlap
	if budget < 1 {
		budget = 1
	}
	atoms := splitAtoms(text, budget, 0)

	var chunks []string
	cur := ""
	fresh := false // cur holds material not yet emitted
	for _, atom := range atoms {
		if cur != "" && utf8.RuneCountInString(cur)+utf8.RuneCountInString(atom) > size {
			chunks = append(chunks, cur)
			cur = tailRunes(cur, overlap)
			fresh = false
		}
		cur += atom
		fresh = true
	}
	if fresh && cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// splitAtoms recursively breaks text into pieces of at most limit runes,
// preferring the coarsest separator that yields conforming pieces. Separators
// stay attached to the piece they terminate so that joining the atoms
// reproduces the text exactly.
func splitAtoms(text string, limit, sepIdx int) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	sep := chunkSeparators[sepIdx]
	if sep == "" {
		return sliceRunes(text, limit)
	}

	var atoms []string
	rest := text
	for {
		i := strings.Index(rest, sep)
		var piece string
		if i < 0 {
			piece = rest
			rest = ""
		} else {
			piece = rest[:i+len(sep)]
			rest = rest[i+len(sep):]
		}
		if piece != "" {
			if utf8.RuneCountInString(piece) <= limit {
				atoms = append(atoms, piece)
			} else {
				atoms = append(atoms, splitAtoms(piece, limit, sepIdx+1)...)
			}
		}
		if rest == "" {
			return atoms
		}
	}
}

// sliceRunes cuts s into consecutive pieces of at most n runes.
func sliceRunes(s string, n int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		k := n
		if k > len(runes) {
			k = len(runes)
		}
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
