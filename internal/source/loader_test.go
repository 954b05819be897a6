package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/config"
	"askdoc/internal/model"
)

const samplePage = `<!doctype html>
<html>
<head><title>Test</title><style>body { color: red }</style></head>
<body>
<nav>Home | About</nav>
<script>alert("tracking")</script>
<h1>Release Notes</h1>
<p>Version 2.0 adds streaming support.</p>
<footer>Copyright</footer>
</body>
</html>`

func TestLoadURLStripsBoilerplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	loader := NewLoader(config.SourcesConfig{}, NewRegistry())
	doc, err := loader.LoadURL(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, doc.Content, "Release Notes")
	assert.Contains(t, doc.Content, "streaming support")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "Home | About")
	assert.NotContains(t, doc.Content, "Copyright")
	assert.Equal(t, srv.URL, doc.Metadata[model.MetaSourceURL])
}

func TestLoadURLNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	loader := NewLoader(config.SourcesConfig{}, NewRegistry())
	_, err := loader.LoadURL(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestLoadUploadText(t *testing.T) {
	reg := NewRegistry()
	id := reg.Put("notes.txt", "text/plain", []byte("vacation policy: two weeks notice"))

	loader := NewLoader(config.SourcesConfig{}, reg)
	doc, err := loader.LoadUpload(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "vacation policy: two weeks notice", doc.Content)
	assert.Equal(t, id, doc.Metadata[model.MetaUploadID])
	assert.Equal(t, "notes.txt", doc.Metadata[model.MetaFileName])
}

func TestLoadUploadUnknownID(t *testing.T) {
	loader := NewLoader(config.SourcesConfig{}, NewRegistry())
	_, err := loader.LoadUpload(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestLoadUploadUnsupportedType(t *testing.T) {
	reg := NewRegistry()
	id := reg.Put("image.png", "image/png", []byte{0x89, 0x50})

	loader := NewLoader(config.SourcesConfig{}, reg)
	_, err := loader.LoadUpload(context.Background(), id)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSupportedUpload(t *testing.T) {
	cases := []struct {
		fileName string
		mimeType string
		want     bool
	}{
		{"report.pdf", "application/pdf", true},
		{"REPORT.PDF", "", true},
		{"notes.txt", "text/plain", true},
		{"notes.md", "application/markdown", true},
		{"blob", "application/octet-stream", true},
		{"notes", "", true},
		{"image.png", "image/png", false},
		{"video.mp4", "video/mp4", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SupportedUpload(tc.fileName, tc.mimeType),
			"%s (%s)", tc.fileName, tc.mimeType)
	}
}

func TestRegistryDelete(t *testing.T) {
	reg := NewRegistry()
	id := reg.Put("a.txt", "text/plain", []byte("x"))
	reg.Delete(id)
	_, ok := reg.Get(id)
	assert.False(t, ok)
}
