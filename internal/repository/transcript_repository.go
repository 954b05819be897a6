package repository

import (
	"fmt"

	"gorm.io/gorm"

	"askdoc/internal/model"
)

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) Create(t *model.Transcript) error {
	if err := r.db.Create(t).Error; err != nil {
		return fmt.Errorf("create transcript failed: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) ListBySessionID(sessionID string, limit int) ([]model.Transcript, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var transcripts []model.Transcript
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Limit(limit).Find(&transcripts).Error; err != nil {
		return nil, fmt.Errorf("list transcripts failed: %w", err)
	}
	return transcripts, nil
}
