// Package extract defines the PDF text extraction capability the
// processor consumes. The actual extractor is an external service; this
// package holds the interface, an HTTP-backed client, and the
// primary-plus-fallback composition.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agendawatch/agendawatch/pkg/config"
)

// Result is the outcome of one extraction pass.
type Result struct {
	Text      string
	PageCount int

	// Method names the extractor that produced the text, recorded
	// alongside the summary.
	Method string
}

// Extractor turns PDF bytes into text.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (*Result, error)
}

// Error marks empty or unusable extraction output. It is not retryable:
// the same bytes will extract the same way tomorrow.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction via %s failed: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("extraction via %s produced no text", e.Method)
}

func (e *Error) Unwrap() error { return e.Err }

// httpExtractor calls an extraction service over HTTP: POST the PDF body,
// receive JSON {text, page_count}.
type httpExtractor struct {
	url    string
	method string
	client *http.Client
}

// NewHTTP returns an Extractor backed by the service at url. method is
// the name recorded in results, e.g. "fast-text".
func NewHTTP(url, method string, timeout time.Duration) Extractor {
	return &httpExtractor{
		url:    url,
		method: method,
		client: &http.Client{Timeout: timeout},
	}
}

type extractResponse struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

func (x *httpExtractor) ExtractText(ctx context.Context, pdf []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, bytes.NewReader(pdf))
	if err != nil {
		return nil, &Error{Method: x.method, Err: err}
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, &Error{Method: x.method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Method: x.method, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Method: x.method, Err: err}
	}
	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Method: x.method, Err: err}
	}
	if strings.TrimSpace(out.Text) == "" {
		return nil, &Error{Method: x.method}
	}
	return &Result{Text: out.Text, PageCount: out.PageCount, Method: x.method}, nil
}

// chain tries the primary extractor, then the fallback exactly once.
type chain struct {
	primary  Extractor
	fallback Extractor
}

// NewChain composes a primary extractor with an optional fallback.
// fallback may be nil, in which case primary failures are final.
func NewChain(primary, fallback Extractor) Extractor {
	return &chain{primary: primary, fallback: fallback}
}

// FromConfig builds the configured extraction chain. The fallback runs
// under its own, tighter timeout.
func FromConfig(cfg *config.ExtractorConfig) Extractor {
	primary := NewHTTP(cfg.URL, "fast-text", cfg.Timeout)
	if cfg.FallbackURL == "" {
		return NewChain(primary, nil)
	}
	return NewChain(primary, NewHTTP(cfg.FallbackURL, "fallback", cfg.FallbackTimeout))
}

func (c *chain) ExtractText(ctx context.Context, pdf []byte) (*Result, error) {
	res, err := c.primary.ExtractText(ctx, pdf)
	if err == nil {
		return res, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	res, ferr := c.fallback.ExtractText(ctx, pdf)
	if ferr != nil {
		return nil, fmt.Errorf("fallback after %v: %w", err, ferr)
	}
	return res, nil
}
