package model

import "time"

// Transcript is a persisted record of one completed question-answering run.
// Rows are written asynchronously by the transcript worker.
type Transcript struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"size:64;index" json:"session_id"`
	Question     string    `gorm:"type:text;not null" json:"question"`
	Answer       string    `gorm:"type:text" json:"answer"`
	SourceCount  int       `json:"source_count"`
	PassageCount int       `json:"passage_count"`
	Strategy     string    `gorm:"size:16" json:"strategy"`
	CacheHit     bool      `json:"cache_hit"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
