package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"askdoc/internal/config"
	"askdoc/internal/model"
	"askdoc/internal/source"
)

// ModelProvider is everything the pipeline needs from a language model
// backend.
type ModelProvider interface {
	Embedder
	Completer
}

// DocumentLoader resolves the request's sources into documents.
type DocumentLoader interface {
	LoadURL(ctx context.Context, url string) (model.Document, error)
	LoadUpload(ctx context.Context, id string) (model.Document, error)
}

// Stage names, in execution order. Grading may terminate the run before
// generation when no usable context survives.
const (
	stageRetrieve    = "retrieve"
	stageGradeDocs   = "grade_documents"
	stageGenerate    = "generate_answer"
	stageGradeAnswer = "grade_answer"
	stageDone        = "done"
)

// Request is one question against a set of sources. Index, when non-nil,
// bypasses loading and caching entirely and answers against the given index.
type Request struct {
	Question  string
	URLs      []string
	UploadIDs []string
	History   []model.Turn
	Options   Options
	Index     *VectorIndex
}

// Result reports the answer together with the context that produced it.
type Result struct {
	Answer    string
	Passages  []model.Chunk
	Retrieved int
	Strategy  string
	CacheHit  bool
}

// Pipeline runs the retrieve, grade, generate, grade sequence against an
// injectable cache and model provider. It is safe for concurrent use.
type Pipeline struct {
	provider ModelProvider
	loader   DocumentLoader
	cache    *IndexCache
	cfg      config.RAGConfig
}

func NewPipeline(provider ModelProvider, loader DocumentLoader, cache *IndexCache, cfg config.RAGConfig) *Pipeline {
	return &Pipeline{provider: provider, loader: loader, cache: cache, cfg: cfg}
}

// pipelineState is the accumulated run state. Stages never mutate it
// directly; they return a stateUpdate the runner applies.
type pipelineState struct {
	question  string
	history   []model.Turn
	resolved  Resolved
	index     *VectorIndex
	retrieved []model.Chunk
	documents []model.Chunk
	answer    string
	terminate bool
}

// stateUpdate is a partial update produced by one stage. Slices replace only
// when their set flag is true, the answer replaces when non-nil, and
// terminate is sticky once set.
type stateUpdate struct {
	retrieved    []model.Chunk
	retrievedSet bool
	documents    []model.Chunk
	documentsSet bool
	answer       *string
	terminate    bool
}

func (st *pipelineState) apply(u stateUpdate) {
	if u.retrievedSet {
		st.retrieved = u.retrieved
	}
	if u.documentsSet {
		st.documents = u.documents
	}
	if u.answer != nil {
		st.answer = *u.answer
	}
	if u.terminate {
		st.terminate = true
	}
}

// Run answers one request. Validation errors surface before any model call;
// everything else is a staged PipelineError. The run deadline depends on
// whether an index already exists: cached (or prebuilt) runs get the short
// query timeout, first builds get the long build timeout.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}
	resolved := resolveOptions(req.Options, p.cfg)

	key := ""
	cacheHit := req.Index != nil
	if req.Index == nil {
		key = cacheKey(req.URLs, req.UploadIDs, resolved)
		_, cacheHit = p.cache.Lookup(key)
	}

	ctx, cancel := context.WithTimeout(ctx, p.deadline(cacheHit))
	defer cancel()

	started := time.Now()
	index := req.Index
	if index == nil {
		var err error
		index, _, err = p.cache.GetOrBuild(key, func() (*VectorIndex, error) {
			return p.buildIndex(ctx, req.URLs, req.UploadIDs, resolved)
		})
		if err != nil {
			return nil, err
		}
	}

	st := &pipelineState{
		question: req.Question,
		history:  req.History,
		resolved: resolved,
		index:    index,
	}
	if err := p.runStages(ctx, st); err != nil {
		return nil, err
	}

	log.Debug().
		Str("strategy", resolved.Strategy).
		Int("retrieved", len(st.retrieved)).
		Int("passages", len(st.documents)).
		Bool("cache_hit", cacheHit).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline run complete")

	return &Result{
		Answer:    st.answer,
		Passages:  st.documents,
		Retrieved: len(st.retrieved),
		Strategy:  resolved.Strategy,
		CacheHit:  cacheHit,
	}, nil
}

// Prewarm builds and caches the index for a source set without asking a
// question. It reports the cache key, the index size, and whether the index
// was already cached.
func (p *Pipeline) Prewarm(ctx context.Context, urls, uploadIDs []string, opts Options) (string, int, bool, error) {
	if len(urls)+len(uploadIDs) == 0 {
		return "", 0, false, invalidInput("at least one source is required")
	}
	if max := p.maxURLs(); len(urls) > max {
		return "", 0, false, invalidInput("at most %d urls are allowed, got %d", max, len(urls))
	}
	resolved := resolveOptions(opts, p.cfg)
	key := cacheKey(urls, uploadIDs, resolved)

	ctx, cancel := context.WithTimeout(ctx, p.deadline(false))
	defer cancel()

	idx, hit, err := p.cache.GetOrBuild(key, func() (*VectorIndex, error) {
		return p.buildIndex(ctx, urls, uploadIDs, resolved)
	})
	if err != nil {
		return "", 0, false, err
	}
	return key, idx.Len(), hit, nil
}

func (p *Pipeline) validate(req Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return invalidInput("question must not be blank")
	}
	if req.Index == nil && len(req.URLs)+len(req.UploadIDs) == 0 {
		return invalidInput("at least one source is required")
	}
	if max := p.maxURLs(); len(req.URLs) > max {
		return invalidInput("at most %d urls are allowed, got %d", max, len(req.URLs))
	}
	return nil
}

func (p *Pipeline) maxURLs() int {
	if p.cfg.MaxURLs > 0 {
		return p.cfg.MaxURLs
	}
	return 3
}

func (p *Pipeline) deadline(cacheHit bool) time.Duration {
	if cacheHit {
		if p.cfg.QueryTimeoutSeconds > 0 {
			return time.Duration(p.cfg.QueryTimeoutSeconds) * time.Second
		}
		return 30 * time.Second
	}
	if p.cfg.BuildTimeoutSeconds > 0 {
		return time.Duration(p.cfg.BuildTimeoutSeconds) * time.Second
	}
	return 300 * time.Second
}

// buildIndex loads every source, chunks with the effective parameters and
// embeds the result. Any single source failing fails the build: a partial
// corpus under a key naming the full source set would poison the cache.
func (p *Pipeline) buildIndex(ctx context.Context, urls, uploadIDs []string, resolved Resolved) (*VectorIndex, error) {
	docs := make([]model.Document, len(urls)+len(uploadIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			doc, err := p.loader.LoadURL(gctx, u)
			if err != nil {
				return stageError(stageRetrieve, KindFetchFailure, err)
			}
			docs[i] = doc
			return nil
		})
	}
	for i, id := range uploadIDs {
		i, id := i, id
		g.Go(func() error {
			doc, err := p.loader.LoadUpload(gctx, id)
			if err != nil {
				// A bad upload ID or type is the caller's mistake, not a
				// transient fetch problem.
				kind := KindFetchFailure
				if errors.Is(err, source.ErrUnsupportedType) || errors.Is(err, source.ErrUploadNotFound) {
					kind = KindInvalidInput
				}
				return stageError(stageRetrieve, kind, err)
			}
			docs[len(urls)+i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size, overlap := effectiveChunkParams(docs, resolved)
	chunks := chunkDocuments(docs, size, overlap)

	idx, err := BuildIndex(ctx, p.provider, chunks)
	if err != nil {
		return nil, stageError(stageRetrieve, KindEmbedding, err)
	}
	return idx, nil
}

func (p *Pipeline) runStages(ctx context.Context, st *pipelineState) error {
	stage := stageRetrieve
	for stage != stageDone {
		var (
			upd stateUpdate
			err error
		)
		switch stage {
		case stageRetrieve:
			upd, err = p.retrieve(ctx, st)
		case stageGradeDocs:
			upd, err = p.gradeDocuments(ctx, st)
		case stageGenerate:
			upd, err = p.generate(ctx, st)
		case stageGradeAnswer:
			upd, err = p.gradeAnswer(ctx, st)
		}
		if err != nil {
			return err
		}
		st.apply(upd)
		stage = nextStage(stage, st)
	}
	return nil
}

// nextStage advances the run. A terminated grading stage skips generation
// and answer grading; the fallback answer is already in place.
func nextStage(current string, st *pipelineState) string {
	switch current {
	case stageRetrieve:
		return stageGradeDocs
	case stageGradeDocs:
		if st.terminate {
			return stageDone
		}
		return stageGenerate
	case stageGenerate:
		return stageGradeAnswer
	default:
		return stageDone
	}
}

func (p *Pipeline) retrieve(ctx context.Context, st *pipelineState) (stateUpdate, error) {
	query, err := p.provider.Embed(ctx, st.question)
	if err != nil {
		return stateUpdate{}, stageError(stageRetrieve, KindEmbedding, err)
	}

	var picks []int
	switch st.resolved.Strategy {
	case StrategyMMR:
		picks = st.index.SearchMMR(query, st.resolved.TopK, st.resolved.FetchK, st.resolved.Lambda)
	default:
		picks = st.index.Search(query, st.resolved.TopK)
	}

	retrieved := make([]model.Chunk, 0, len(picks))
	for _, i := range picks {
		retrieved = append(retrieved, st.index.Chunk(i))
	}
	return stateUpdate{retrieved: retrieved, retrievedSet: true}, nil
}

func (p *Pipeline) gradeDocuments(ctx context.Context, st *pipelineState) (stateUpdate, error) {
	kept, err := gradeDocuments(ctx, p.provider, st.question, st.retrieved)
	if err != nil {
		return stateUpdate{}, stageError(stageGradeDocs, KindClassification, err)
	}
	upd := stateUpdate{documents: kept, documentsSet: true}
	if len(kept) == 0 && !st.resolved.AllowEmpty {
		fallback := noContextAnswer
		upd.answer = &fallback
		upd.terminate = true
	}
	return upd, nil
}

func (p *Pipeline) generate(ctx context.Context, st *pipelineState) (stateUpdate, error) {
	messages := buildGenerationMessages(st.question, st.history, st.documents, p.cfg.MaxHistoryTurns)
	answer, err := p.provider.Complete(ctx, messages)
	if err != nil {
		return stateUpdate{}, stageError(stageGenerate, KindGeneration, err)
	}
	return stateUpdate{answer: &answer}, nil
}

func (p *Pipeline) gradeAnswer(ctx context.Context, st *pipelineState) (stateUpdate, error) {
	graded := gradeAnswer(ctx, p.provider, st.question, st.answer, st.resolved.Policy)
	return stateUpdate{answer: &graded}, nil
}
