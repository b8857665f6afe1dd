// Package fetch is the outbound HTTP client for vendor portals: retrying,
// vendor-rate-limited, with a process-wide request ceiling.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/ratelimit"
)

// downloadBufSize is the streaming copy buffer for PDF downloads.
const downloadBufSize = 8 * 1024

// Fetcher issues rate-limited, retrying HTTP requests on behalf of
// adapters and the processor.
type Fetcher struct {
	cfg     *config.FetcherConfig
	limiter *ratelimit.VendorLimiter
	global  *rate.Limiter
	client  *http.Client
}

// New creates a Fetcher. The vendor limiter is consulted before every
// request; the global ceiling caps total outbound traffic on top of it.
func New(cfg *config.FetcherConfig, limiter *ratelimit.VendorLimiter) *Fetcher {
	return &Fetcher{
		cfg:     cfg,
		limiter: limiter,
		global:  rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1),
		client:  &http.Client{},
	}
}

// Get fetches a listing/API/agenda page with the listing timeout.
func (f *Fetcher) Get(ctx context.Context, vendor models.Vendor, url string) ([]byte, error) {
	return f.do(ctx, vendor, url, f.cfg.ListingTimeout, 0)
}

// GetJSON fetches and decodes a JSON API response.
func (f *Fetcher) GetJSON(ctx context.Context, vendor models.Vendor, url string, v any) error {
	body, err := f.Get(ctx, vendor, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// Download streams a document with the download timeout. maxBytes > 0
// aborts the transfer as soon as the size guard is breached, even when
// the server never sent a Content-Length.
func (f *Fetcher) Download(ctx context.Context, vendor models.Vendor, url string, maxBytes int64) ([]byte, error) {
	return f.do(ctx, vendor, url, f.cfg.DownloadTimeout, maxBytes)
}

// do runs one rate-limited, retrying request. Transient failures retry
// with exponential backoff up to MaxRetries; 4xx responses fail fast.
func (f *Fetcher) do(ctx context.Context, vendor models.Vendor, url string, timeout time.Duration, maxBytes int64) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx, vendor); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			if err := f.global.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("building request for %s: %w", url, err))
			}
			req.Header.Set("User-Agent", f.cfg.UserAgent)

			resp, err := f.client.Do(req)
			if err != nil {
				return &TransientError{URL: url, Err: err}
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return &TransientError{URL: url, Status: resp.StatusCode}
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(&PermanentError{URL: url, Status: resp.StatusCode})
			}

			body, err = readBody(resp.Body, maxBytes)
			if errors.Is(err, ErrTooLarge) {
				return retry.Unrecoverable(fmt.Errorf("%w: %s", err, url))
			}
			if err != nil {
				return &TransientError{URL: url, Err: err}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.MaxRetries)),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// readBody copies the response in small buffered reads so an oversized
// document is abandoned mid-stream instead of fully downloaded.
func readBody(r io.Reader, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, downloadBufSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if maxBytes > 0 && int64(buf.Len()) > maxBytes {
				return nil, ErrTooLarge
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func isTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
