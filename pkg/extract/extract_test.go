package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/config"
)

func testExtractor(url string) Extractor {
	return NewHTTP(url, "fast-text", 5*time.Second)
}

func TestHTTPExtractor(t *testing.T) {
	var gotContentType string
	var gotBody int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = len(body)
		fmt.Fprint(w, `{"text": "CALL TO ORDER\n1. Budget", "page_count": 12}`)
	}))
	defer srv.Close()

	x := testExtractor(srv.URL)
	res, err := x.ExtractText(context.Background(), []byte("%PDF-1.7 fake"))
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", gotContentType)
	assert.Equal(t, 13, gotBody)
	assert.Equal(t, "CALL TO ORDER\n1. Budget", res.Text)
	assert.Equal(t, 12, res.PageCount)
	assert.Equal(t, "fast-text", res.Method)
}

func TestHTTPExtractorEmptyTextIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"text": "   \n ", "page_count": 3}`)
	}))
	defer srv.Close()

	x := testExtractor(srv.URL)
	_, err := x.ExtractText(context.Background(), []byte("pdf"))

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "fast-text", xerr.Method)
	assert.Contains(t, err.Error(), "produced no text")
}

func TestHTTPExtractorNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	x := testExtractor(srv.URL)
	_, err := x.ExtractText(context.Background(), []byte("pdf"))

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, err.Error(), "http 500")
}

type scriptedExtractor struct {
	calls int
	res   *Result
	err   error
}

func (s *scriptedExtractor) ExtractText(_ context.Context, _ []byte) (*Result, error) {
	s.calls++
	return s.res, s.err
}

func TestChainFallsBackOnce(t *testing.T) {
	primary := &scriptedExtractor{err: &Error{Method: "fast-text"}}
	fallback := &scriptedExtractor{res: &Result{Text: "recovered", PageCount: 2, Method: "fallback"}}

	res, err := NewChain(primary, fallback).ExtractText(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, "fallback", res.Method)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestChainBothFailing(t *testing.T) {
	primary := &scriptedExtractor{err: &Error{Method: "fast-text"}}
	fallback := &scriptedExtractor{err: &Error{Method: "fallback", Err: errors.New("ocr crashed")}}

	_, err := NewChain(primary, fallback).ExtractText(context.Background(), []byte("pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback after")
	assert.Contains(t, err.Error(), "ocr crashed")
	assert.Equal(t, 1, fallback.calls)
}

func TestChainNoFallback(t *testing.T) {
	primary := &scriptedExtractor{err: &Error{Method: "fast-text"}}
	_, err := NewChain(primary, nil).ExtractText(context.Background(), []byte("pdf"))

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 1, primary.calls)
}

func TestChainSkipsFallbackWhenPrimarySucceeds(t *testing.T) {
	primary := &scriptedExtractor{res: &Result{Text: "ok", Method: "fast-text"}}
	fallback := &scriptedExtractor{}

	res, err := NewChain(primary, fallback).ExtractText(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Zero(t, fallback.calls)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.ExtractorConfig{
		URL:             "http://primary/extract",
		Timeout:         120 * time.Second,
		FallbackTimeout: 30 * time.Second,
	}
	c, ok := FromConfig(cfg).(*chain)
	require.True(t, ok)
	assert.Nil(t, c.fallback)

	cfg.FallbackURL = "http://fallback/extract"
	c = FromConfig(cfg).(*chain)
	require.NotNil(t, c.fallback)

	// Each leg of the chain runs under its own timeout; the fallback gets
	// the tighter budget.
	primary, ok := c.primary.(*httpExtractor)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, primary.client.Timeout)
	fallback, ok := c.fallback.(*httpExtractor)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, fallback.client.Timeout)
}
