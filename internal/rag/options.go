package rag

import "askdoc/internal/config"

// Retrieval strategies. Similarity ranks purely by cosine score; MMR trades
// relevance against redundancy among the picked passages.
const (
	StrategySimilarity = "similarity"
	StrategyMMR        = "mmr"
)

// Grading policies for the answer grader.
const (
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
)

// Built-in fallbacks, used when neither the request nor the configuration
// supplies a value.
const (
	defaultTopK   = 4
	defaultFetchK = 20
	defaultLambda = 0.5

	// adaptiveChunkSize is the sentinel meaning "decide from the corpus at
	// chunk time". It also appears as the literal "auto" in cache keys.
	adaptiveChunkSize = 0
)

// Options are per-request overrides. Zero values mean "unset" and defer to
// the configuration, except Lambda where 0 is meaningful and a nil pointer
// marks unset.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Strategy     string
	TopK         int
	FetchK       int
	Lambda       *float64
	Policy       string
}

// Resolved holds the effective parameters for one run after merging request
// options over configuration over built-in defaults. ChunkSize 0 means
// adaptive sizing; ChunkOverlap is only trusted when ChunkSize is fixed,
// otherwise the adaptive rule derives it.
type Resolved struct {
	ChunkSize    int
	ChunkOverlap int
	OverlapSet   bool
	Strategy     string
	TopK         int
	FetchK       int
	Lambda       float64
	Policy       string
	AllowEmpty   bool
}

func resolveOptions(opts Options, cfg config.RAGConfig) Resolved {
	r := Resolved{
		ChunkSize:  adaptiveChunkSize,
		Strategy:   StrategySimilarity,
		TopK:       defaultTopK,
		FetchK:     defaultFetchK,
		Lambda:     defaultLambda,
		Policy:     PolicyLenient,
		AllowEmpty: cfg.AllowEmptyContext,
	}

	if cfg.ChunkSize > 0 {
		r.ChunkSize = cfg.ChunkSize
	}
	if opts.ChunkSize > 0 {
		r.ChunkSize = opts.ChunkSize
	}
	if cfg.ChunkOverlap > 0 {
		r.ChunkOverlap = cfg.ChunkOverlap
		r.OverlapSet = true
	}
	if opts.ChunkOverlap > 0 {
		r.ChunkOverlap = opts.ChunkOverlap
		r.OverlapSet = true
	}

	if cfg.RetrieverStrategy != "" {
		r.Strategy = cfg.RetrieverStrategy
	}
	if opts.Strategy != "" {
		r.Strategy = opts.Strategy
	}

	if cfg.RetrieverK > 0 {
		r.TopK = cfg.RetrieverK
	}
	if opts.TopK > 0 {
		r.TopK = opts.TopK
	}
	if cfg.RetrieverFetchK > 0 {
		r.FetchK = cfg.RetrieverFetchK
	}
	if opts.FetchK > 0 {
		r.FetchK = opts.FetchK
	}

	if cfg.RetrieverLambda > 0 {
		r.Lambda = cfg.RetrieverLambda
	}
	if opts.Lambda != nil {
		r.Lambda = *opts.Lambda
	}
	if r.Lambda < 0 {
		r.Lambda = 0
	}
	if r.Lambda > 1 {
		r.Lambda = 1
	}

	if cfg.GradingPolicy != "" {
		r.Policy = cfg.GradingPolicy
	}
	if opts.Policy != "" {
		r.Policy = opts.Policy
	}

	if r.FetchK < r.TopK {
		r.FetchK = r.TopK
	}
	return r
}
