package source

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUploadNotFound = errors.New("upload not found")

// Upload is a file accepted over the API and held in memory until an index
// build consumes it.
type Upload struct {
	ID         string
	FileName   string
	MIMEType   string
	Data       []byte
	UploadedAt time.Time
}

// Registry stores uploads by generated ID. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	uploads map[string]Upload
}

func NewRegistry() *Registry {
	return &Registry{uploads: make(map[string]Upload)}
}

// Put registers the upload and returns its ID.
func (r *Registry) Put(fileName, mimeType string, data []byte) string {
	up := Upload{
		ID:         uuid.NewString(),
		FileName:   fileName,
		MIMEType:   mimeType,
		Data:       data,
		UploadedAt: time.Now(),
	}
	r.mu.Lock()
	r.uploads[up.ID] = up
	r.mu.Unlock()
	return up.ID
}

func (r *Registry) Get(id string) (Upload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	up, ok := r.uploads[id]
	return up, ok
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.uploads, id)
	r.mu.Unlock()
}
