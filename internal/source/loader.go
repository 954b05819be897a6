package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"askdoc/internal/config"
	"askdoc/internal/model"
)

var ErrUnsupportedType = errors.New("unsupported upload type")

// Boilerplate elements stripped from fetched pages before conversion.
const strippedSelectors = "script, style, nav, footer, aside, header, noscript, iframe"

const maxFetchBytes = 8 << 20

// Loader resolves pipeline sources: URLs are fetched and converted to
// markdown, uploads are decoded from the registry.
type Loader struct {
	client   *http.Client
	registry *Registry
}

func NewLoader(cfg config.SourcesConfig, registry *Registry) *Loader {
	timeout := 15 * time.Second
	if cfg.FetchTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	}
	return &Loader{
		client:   &http.Client{Timeout: timeout},
		registry: registry,
	}
}

// LoadURL fetches a page, strips boilerplate elements and converts the body
// to markdown so chunking works over readable text instead of raw HTML.
func (l *Loader) LoadURL(ctx context.Context, url string) (model.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Document{}, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return model.Document{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Document{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return model.Document{}, fmt.Errorf("parse %s: %w", url, err)
	}
	doc.Find(strippedSelectors).Remove()

	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		if html, err = doc.Html(); err != nil {
			return model.Document{}, fmt.Errorf("extract body of %s: %w", url, err)
		}
	}

	converter := md.NewConverter(url, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return model.Document{}, fmt.Errorf("convert %s to markdown: %w", url, err)
	}

	return model.Document{
		Content:  markdown,
		Metadata: map[string]string{model.MetaSourceURL: url},
	}, nil
}

// LoadUpload decodes a registered upload into a document. PDFs get their
// plain text extracted; anything else is treated as UTF-8 text.
func (l *Loader) LoadUpload(ctx context.Context, id string) (model.Document, error) {
	up, ok := l.registry.Get(id)
	if !ok {
		return model.Document{}, fmt.Errorf("upload %s: %w", id, ErrUploadNotFound)
	}

	var content string
	switch {
	case isPDFUpload(up.FileName, up.MIMEType):
		text, err := extractPDFText(up.Data)
		if err != nil {
			return model.Document{}, fmt.Errorf("upload %s: %w", id, err)
		}
		content = text
	case isTextUpload(up.MIMEType):
		content = string(up.Data)
	default:
		return model.Document{}, fmt.Errorf("upload %s (%s): %w", id, up.MIMEType, ErrUnsupportedType)
	}

	return model.Document{
		Content: content,
		Metadata: map[string]string{
			model.MetaUploadID: up.ID,
			model.MetaFileName: up.FileName,
			model.MetaMIMEType: up.MIMEType,
		},
	}, nil
}

// SupportedUpload reports whether a file with the given name and MIME type
// can be turned into a document, so callers can reject unsupported uploads
// before accepting them.
func SupportedUpload(fileName, mimeType string) bool {
	return isPDFUpload(fileName, mimeType) || isTextUpload(mimeType)
}

func isPDFUpload(fileName, mimeType string) bool {
	return mimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(fileName), ".pdf")
}

func isTextUpload(mimeType string) bool {
	return mimeType == "" || strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/octet-stream" || mimeType == "application/markdown"
}
