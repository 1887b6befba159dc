// Package extract turns uploaded documents into plain text for the
// analysis prompts.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/model"
)

// DefaultMaxChars caps the text taken from a single file.
const DefaultMaxChars = 50000

// maxDownloadBytes bounds a single remote download.
const maxDownloadBytes = 100 << 20

// Extractor fetches file references and extracts their text.
type Extractor struct {
	uploads  blob.Bucket
	http     *http.Client
	maxChars int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient sets the client used for http(s) references.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		e.http = c
	}
}

// WithMaxChars sets the per-file character cap.
func WithMaxChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// New creates an Extractor. uploads resolves blob:// references and may be
// nil when only http(s) references are expected.
func New(uploads blob.Bucket, opts ...Option) *Extractor {
	e := &Extractor{
		uploads:  uploads,
		http:     &http.Client{Timeout: 60 * time.Second},
		maxChars: DefaultMaxChars,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Text downloads ref and returns its text, capped at the configured limit.
func (e *Extractor) Text(ctx context.Context, ref model.FileRef) (string, error) {
	data, err := e.fetch(ctx, ref.URL)
	if err != nil {
		return "", err
	}
	text, err := FromBytes(data, ref.Name)
	if err != nil {
		return "", err
	}
	return Truncate(text, e.maxChars), nil
}

// TextOrNotice is Text with failures rendered inline so one unreadable
// file never blocks the rest of the input.
func (e *Extractor) TextOrNotice(ctx context.Context, ref model.FileRef) string {
	text, err := e.Text(ctx, ref)
	if err != nil {
		zap.L().Warn("extract: file failed",
			zap.String("name", ref.Name),
			zap.String("url", ref.URL),
			zap.Error(err),
		)
		return fmt.Sprintf("[Could not extract text from %s]", ref.Name)
	}
	return text
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	if key, ok := blob.KeyFromRef(url); ok {
		if e.uploads == nil {
			return nil, eris.New("extract: no upload bucket configured")
		}
		data, err := e.uploads.Get(ctx, key)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: read upload %s", key)
		}
		return data, nil
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, eris.Errorf("extract: unsupported reference %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "extract: create request")
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "extract: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("extract: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, eris.Wrap(err, "extract: read body")
	}
	return data, nil
}

// FromBytes extracts text from data, choosing the format by file name.
// A PDF that fails to parse falls back to a plain text decode.
func FromBytes(data []byte, name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := pdfText(data)
		if err != nil {
			zap.L().Debug("extract: pdf parse failed, decoding as text", zap.String("name", name), zap.Error(err))
			return plainText(data)
		}
		return text, nil
	case ".xlsx":
		return xlsxText(data)
	case ".docx":
		return docxText(data)
	default:
		return plainText(data)
	}
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
