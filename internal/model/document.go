package model

// Document is a unit of ingested content: the raw text of a fetched URL or a
// decoded upload, plus source metadata (source URL, file name, MIME type,
// upload identifier). Documents are immutable once created.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Metadata keys set by source loaders.
const (
	MetaSourceURL = "source_url"
	MetaFileName  = "file_name"
	MetaMIMEType  = "mime_type"
	MetaUploadID  = "upload_id"
)

// Chunk is a contiguous slice of a Document's content with the document's
// metadata inherited. Chunks are never mutated after creation.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Turn is a single conversation turn, also used as a chat message sent to the
// language model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
