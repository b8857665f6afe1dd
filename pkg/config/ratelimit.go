package config

import (
	"time"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// VendorRateConfig holds the per-vendor minimum spacing between outbound
// requests to city portals. CivicPlus blocks aggressively and gets both a
// wider spacing and doubled jitter.
type VendorRateConfig struct {
	// Spacing maps vendor tag to minimum inter-request gap.
	Spacing map[models.Vendor]time.Duration

	// UnknownSpacing applies to any vendor missing from Spacing.
	UnknownSpacing time.Duration `env:"UNKNOWN_VENDOR_SPACING" envDefault:"5s"`
}

// DefaultVendorRateConfig returns the built-in vendor spacing table.
func DefaultVendorRateConfig() *VendorRateConfig {
	return &VendorRateConfig{
		Spacing: map[models.Vendor]time.Duration{
			models.VendorPrimeGov:    3 * time.Second,
			models.VendorGranicus:    4 * time.Second,
			models.VendorCivicClerk:  3 * time.Second,
			models.VendorLegistar:    3 * time.Second,
			models.VendorNovusAgenda: 4 * time.Second,
			models.VendorCivicPlus:   8 * time.Second,
		},
		UnknownSpacing: 5 * time.Second,
	}
}

// SpacingFor resolves the minimum spacing for a vendor.
func (c *VendorRateConfig) SpacingFor(v models.Vendor) time.Duration {
	if d, ok := c.Spacing[v]; ok {
		return d
	}
	return c.UnknownSpacing
}

// ProviderConfig governs pacing against the LLM provider.
type ProviderConfig struct {
	// PerMinuteCap is the rolling request cap per model per minute.
	PerMinuteCap int `env:"PROVIDER_PER_MINUTE_CAP" envDefault:"10"`

	// MinSpacing is the floor between successive requests to one model.
	MinSpacing time.Duration `env:"PROVIDER_MIN_SPACING_SECONDS" envDefault:"2s"`

	// RemainingThreshold triggers header-derived backoff: when the
	// provider reports this many requests or fewer remaining, we wait for
	// the advertised reset time.
	RemainingThreshold int `env:"PROVIDER_REMAINING_THRESHOLD" envDefault:"5"`
}

// DefaultProviderConfig returns the built-in provider pacing defaults.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		PerMinuteCap:       10,
		MinSpacing:         2 * time.Second,
		RemainingThreshold: 5,
	}
}

// ChunkerConfig bounds PDF chunks.
type ChunkerConfig struct {
	// MaxBytes caps a chunk's serialized size. 30 MiB.
	MaxBytes int64 `env:"CHUNK_MAX_BYTES" envDefault:"31457280"`

	// MaxPages caps a chunk's page count.
	MaxPages int `env:"CHUNK_MAX_PAGES" envDefault:"90"`
}

// DefaultChunkerConfig returns the built-in chunker caps.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		MaxBytes: 31_457_280,
		MaxPages: 90,
	}
}

// FetcherConfig controls the outbound HTTP client.
type FetcherConfig struct {
	// ListingTimeout applies to vendor listing/API/agenda page requests.
	ListingTimeout time.Duration `env:"FETCH_LISTING_TIMEOUT" envDefault:"10s"`

	// DownloadTimeout applies to PDF packet/attachment downloads.
	DownloadTimeout time.Duration `env:"FETCH_DOWNLOAD_TIMEOUT" envDefault:"60s"`

	// MaxRetries bounds transient-error retries per request.
	MaxRetries int `env:"FETCH_MAX_RETRIES" envDefault:"3"`

	// GlobalRPS is a process-wide ceiling on outbound requests per second,
	// enforced on top of per-vendor spacing.
	GlobalRPS float64 `env:"FETCH_GLOBAL_RPS" envDefault:"4"`

	// UserAgent identifies the service to city portals.
	UserAgent string `env:"FETCH_USER_AGENT" envDefault:"agendawatch/1.0 (civic agenda indexing; contact@agendawatch.org)"`
}

// DefaultFetcherConfig returns the built-in fetcher defaults.
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		ListingTimeout:  10 * time.Second,
		DownloadTimeout: 60 * time.Second,
		MaxRetries:      3,
		GlobalRPS:       4,
		UserAgent:       "agendawatch/1.0 (civic agenda indexing; contact@agendawatch.org)",
	}
}
