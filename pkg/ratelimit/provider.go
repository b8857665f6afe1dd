package ratelimit

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agendawatch/agendawatch/pkg/config"
)

// Provider rate-limit response headers.
const (
	headerRequestsRemaining = "anthropic-ratelimit-requests-remaining"
	headerRequestsReset     = "anthropic-ratelimit-requests-reset"
	headerRetryAfter        = "retry-after"
)

// ProviderLimiter paces requests to the LLM provider per model. It blends
// three signals, strongest first: a rolling one-minute request window, the
// provider's own remaining/reset headers, and a minimum spacing floor.
type ProviderLimiter struct {
	cfg *config.ProviderConfig

	mu     sync.Mutex
	models map[string]*modelState

	now func() time.Time
}

type modelState struct {
	remaining   int // -1 until a header is seen
	resetAt     time.Time
	window      []time.Time
	lastRequest time.Time
}

// NewProviderLimiter creates a provider limiter.
func NewProviderLimiter(cfg *config.ProviderConfig) *ProviderLimiter {
	return &ProviderLimiter{
		cfg:    cfg,
		models: make(map[string]*modelState),
		now:    time.Now,
	}
}

func (l *ProviderLimiter) state(model string) *modelState {
	st, ok := l.models[model]
	if !ok {
		st = &modelState{remaining: -1}
		l.models[model] = st
	}
	return st
}

// ShouldWait returns how long the caller must sleep before issuing the
// next request for model. Zero means go now.
func (l *ProviderLimiter) ShouldWait(model string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(model)
	now := l.now()

	// 1. Rolling window: at the cap, wait until the oldest request slides
	// out of the last 60 seconds.
	st.window = pruneWindow(st.window, now)
	if len(st.window) >= l.cfg.PerMinuteCap {
		oldest := st.window[0]
		return oldest.Add(time.Minute).Sub(now)
	}

	// 2. Header-derived reset: the provider told us we are nearly out.
	if st.remaining >= 0 && st.remaining <= l.cfg.RemainingThreshold && st.resetAt.After(now) {
		return st.resetAt.Sub(now)
	}

	// 3. Minimum spacing between successive requests.
	if !st.lastRequest.IsZero() {
		if elapsed := now.Sub(st.lastRequest); elapsed < l.cfg.MinSpacing {
			return l.cfg.MinSpacing - elapsed
		}
	}
	return 0
}

// RecordRequest notes that a request for model was just issued.
func (l *ProviderLimiter) RecordRequest(model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(model)
	now := l.now()
	st.window = append(pruneWindow(st.window, now), now)
	st.lastRequest = now
}

// ObserveHeaders folds a response's rate-limit headers into the model
// state. Unparseable values are ignored.
func (l *ProviderLimiter) ObserveHeaders(model string, h http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(model)
	if v := h.Get(headerRequestsRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			st.remaining = n
		}
	}
	if v := h.Get(headerRequestsReset); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			st.resetAt = t
		}
	}
	if v := h.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			st.resetAt = l.now().Add(time.Duration(secs * float64(time.Second)))
			st.remaining = 0
		}
	}
}

func pruneWindow(window []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}

var (
	tryAgainRe   = regexp.MustCompile(`(?i)try again in\s+([0-9]*\.?[0-9]+)\s*seconds?`)
	waitRe       = regexp.MustCompile(`(?i)wait\s+([0-9]*\.?[0-9]+)\s*seconds?`)
	retryAfterRe = regexp.MustCompile(`(?i)retry[-_ ]after[:=]?\s*([0-9]*\.?[0-9]+)`)
)

// IsRateLimitError classifies provider errors that deserve a pause and a
// single retry rather than a failure.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "529", "rate", "limit", "overload"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WaitFromError extracts how long to back off after a rate-limit error:
// an explicit retry-after or in-message hint wins; otherwise 120s for 429,
// 60s for 529, 30s generic.
func WaitFromError(err error) time.Duration {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{retryAfterRe, tryAgainRe, waitRe} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}

	switch {
	case strings.Contains(msg, "429"):
		return 120 * time.Second
	case strings.Contains(msg, "529"):
		return 60 * time.Second
	default:
		return 30 * time.Second
	}
}
