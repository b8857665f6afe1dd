package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/models"
)

func testFetcher() *Fetcher {
	return New(&config.FetcherConfig{
		ListingTimeout:  5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		MaxRetries:      3,
		GlobalRPS:       1000,
		UserAgent:       "agendawatch-test/1.0",
	}, nil)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "listing body")
	}))
	defer srv.Close()

	body, err := testFetcher().Get(context.Background(), models.VendorPrimeGov, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "listing body", string(body))
	assert.Equal(t, 3, hits)
}

func TestGetFailsFastOn404(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), models.VendorPrimeGov, srv.URL)

	var pe *PermanentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.Status)
	assert.Equal(t, 1, hits)
}

func TestGetExhaustsRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), models.VendorGranicus, srv.URL)

	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Retryable())
	assert.Equal(t, 3, hits)
}

func TestGetSendsUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), models.VendorPrimeGov, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "agendawatch-test/1.0", agent)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 7, "title": "City Council"}`)
	}))
	defer srv.Close()

	var out struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, testFetcher().GetJSON(context.Background(), models.VendorLegistar, srv.URL, &out))
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, "City Council", out.Title)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer bad.Close()
	assert.Error(t, testFetcher().GetJSON(context.Background(), models.VendorLegistar, bad.URL, &out))
}

func TestDownloadAbortsOversizedStream(t *testing.T) {
	// Chunked response with no Content-Length: the guard has to trip
	// mid-stream.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		chunk := strings.Repeat("x", 16*1024)
		for i := 0; i < 8; i++ {
			fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	var hits int
	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, srv.URL, http.StatusFound)
	}))
	defer counting.Close()

	_, err := testFetcher().Download(context.Background(), models.VendorCivicPlus, counting.URL, 32*1024)
	require.ErrorIs(t, err, ErrTooLarge)
	// Unrecoverable: the size guard must not trigger retries.
	assert.Equal(t, 1, hits)
}

func TestDownloadWithinLimit(t *testing.T) {
	payload := strings.Repeat("y", 20*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	body, err := testFetcher().Download(context.Background(), models.VendorCivicPlus, srv.URL, 32*1024)
	require.NoError(t, err)
	assert.Len(t, body, 20*1024)
}

func TestReadBodyUnlimited(t *testing.T) {
	body, err := readBody(strings.NewReader("small"), 0)
	require.NoError(t, err)
	assert.Equal(t, "small", string(body))
}
