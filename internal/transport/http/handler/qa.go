package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"askdoc/internal/bootstrap"
	"askdoc/internal/model"
	"askdoc/internal/rag"
	"askdoc/internal/source"
	"askdoc/internal/transport/http/response"
)

type QAHandler struct {
	app *bootstrap.App
}

func NewQAHandler(app *bootstrap.App) *QAHandler {
	return &QAHandler{app: app}
}

type AskOptions struct {
	ChunkSize     int      `json:"chunk_size"`
	ChunkOverlap  int      `json:"chunk_overlap"`
	Strategy      string   `json:"strategy"`
	TopK          int      `json:"top_k"`
	FetchK        int      `json:"fetch_k"`
	Lambda        *float64 `json:"lambda"`
	GradingPolicy string   `json:"grading_policy"`
}

type AskRequest struct {
	Question  string     `json:"question" binding:"required"`
	URLs      []string   `json:"urls"`
	UploadIDs []string   `json:"upload_ids"`
	SessionID string     `json:"session_id" binding:"max=64"`
	Options   AskOptions `json:"options"`
}

type PassageView struct {
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

type AskResponse struct {
	Answer     string        `json:"answer"`
	Passages   []PassageView `json:"passages"`
	Strategy   string        `json:"strategy"`
	CacheHit   bool          `json:"cache_hit"`
	DurationMS int64         `json:"duration_ms"`
	SessionID  string        `json:"session_id,omitempty"`
}

func (h *QAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	var history []model.Turn
	if req.SessionID != "" {
		turns, err := h.app.Sessions.History(c.Request.Context(), req.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("load session history failed")
		} else {
			history = turns
		}
	}

	started := time.Now()
	result, err := h.app.Pipeline.Run(c.Request.Context(), rag.Request{
		Question:  req.Question,
		URLs:      req.URLs,
		UploadIDs: req.UploadIDs,
		History:   history,
		Options: rag.Options{
			ChunkSize:    req.Options.ChunkSize,
			ChunkOverlap: req.Options.ChunkOverlap,
			Strategy:     req.Options.Strategy,
			TopK:         req.Options.TopK,
			FetchK:       req.Options.FetchK,
			Lambda:       req.Options.Lambda,
			Policy:       req.Options.GradingPolicy,
		},
	})
	if err != nil {
		writePipelineError(c, err)
		return
	}
	elapsed := time.Since(started)

	if req.SessionID != "" {
		if err := h.app.Sessions.Append(c.Request.Context(), req.SessionID,
			model.Turn{Role: model.RoleUser, Content: req.Question},
			model.Turn{Role: model.RoleAssistant, Content: result.Answer},
		); err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("append session history failed")
		}
	}

	if h.app.Publisher != nil {
		transcript := model.Transcript{
			SessionID:    req.SessionID,
			Question:     req.Question,
			Answer:       result.Answer,
			SourceCount:  len(req.URLs) + len(req.UploadIDs),
			PassageCount: len(result.Passages),
			Strategy:     result.Strategy,
			CacheHit:     result.CacheHit,
			DurationMS:   elapsed.Milliseconds(),
			CreatedAt:    time.Now(),
		}
		// Best effort with its own deadline; the answer is already computed.
		pubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := h.app.Publisher.Publish(pubCtx, transcript); err != nil {
			log.Error().Err(err).Msg("enqueue transcript failed")
		}
		cancel()
	}

	response.OK(c, AskResponse{
		Answer:     result.Answer,
		Passages:   passageViews(result.Passages),
		Strategy:   result.Strategy,
		CacheHit:   result.CacheHit,
		DurationMS: elapsed.Milliseconds(),
		SessionID:  req.SessionID,
	})
}

type PrewarmRequest struct {
	URLs      []string   `json:"urls"`
	UploadIDs []string   `json:"upload_ids"`
	Options   AskOptions `json:"options"`
}

// Prewarm builds the index for a source set ahead of the first question so
// that question gets the short query timeout instead of the build timeout.
func (h *QAHandler) Prewarm(c *gin.Context) {
	var req PrewarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	key, chunks, hit, err := h.app.Pipeline.Prewarm(c.Request.Context(), req.URLs, req.UploadIDs, rag.Options{
		ChunkSize:    req.Options.ChunkSize,
		ChunkOverlap: req.Options.ChunkOverlap,
	})
	if err != nil {
		writePipelineError(c, err)
		return
	}
	response.OK(c, gin.H{
		"index_key": key,
		"chunks":    chunks,
		"cache_hit": hit,
	})
}

// Upload accepts a multipart form with "file" and registers it for later
// index builds. The returned id goes into upload_ids on ask requests.
func (h *QAHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.app.Config.Sources.MaxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeUploadTooLarge, "file too large")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.app.Config.Sources.MaxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if int64(len(data)) > h.app.Config.Sources.MaxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeUploadTooLarge, "file too large")
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if !source.SupportedUpload(file.Filename, mimeType) {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedUpload, "unsupported file type")
		return
	}
	id := h.app.Registry.Put(file.Filename, mimeType, data)

	response.OK(c, gin.H{
		"upload_id": id,
		"file_name": file.Filename,
		"size":      len(data),
	})
}

// History returns the recorded transcripts for a session when persistence is
// enabled, falling back to the in-redis conversation turns otherwise.
func (h *QAHandler) History(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	if h.app.TranscriptRepo != nil {
		transcripts, err := h.app.TranscriptRepo.ListBySessionID(sessionID, 0)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list history failed")
			return
		}
		response.OK(c, gin.H{"session_id": sessionID, "transcripts": transcripts})
		return
	}

	turns, err := h.app.Sessions.History(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list history failed")
		return
	}
	response.OK(c, gin.H{"session_id": sessionID, "turns": turns})
}

// ClearHistory drops the redis conversation state for a session. Persisted
// transcripts are an audit log and stay.
func (h *QAHandler) ClearHistory(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}
	if err := h.app.Sessions.Clear(c.Request.Context(), sessionID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear history failed")
		return
	}
	response.OK(c, gin.H{"cleared_session_id": sessionID})
}

func passageViews(chunks []model.Chunk) []PassageView {
	views := make([]PassageView, 0, len(chunks))
	for _, chunk := range chunks {
		src := chunk.Metadata[model.MetaSourceURL]
		if src == "" {
			src = chunk.Metadata[model.MetaFileName]
		}
		views = append(views, PassageView{Source: src, Text: chunk.Text})
	}
	return views
}

func writePipelineError(c *gin.Context, err error) {
	switch rag.ErrKind(err) {
	case rag.KindInvalidInput:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case rag.KindTimeout:
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "the request timed out; try prewarming the index or asking again")
	case rag.KindFetchFailure:
		response.Error(c, http.StatusBadGateway, response.CodeFetchFailed, err.Error())
	default:
		log.Error().Err(err).Msg("pipeline run failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
	}
}
