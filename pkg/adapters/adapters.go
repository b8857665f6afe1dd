// Package adapters normalizes each civic-software vendor's portal into a
// common meeting and agenda shape. One adapter per vendor; all outbound
// traffic flows through the shared fetcher and its rate limiter.
package adapters

import (
	"context"
	"fmt"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// HTTPClient is the slice of the fetcher adapters use. Tests substitute
// a fake.
type HTTPClient interface {
	Get(ctx context.Context, vendor models.Vendor, url string) ([]byte, error)
	GetJSON(ctx context.Context, vendor models.Vendor, url string, v any) error
}

// Adapter is the per-vendor capability: list upcoming meetings and,
// for vendors exposing an item-level HTML agenda, fetch its detail.
type Adapter interface {
	// Vendor returns the adapter's vendor tag.
	Vendor() models.Vendor

	// UpcomingMeetings lists future meetings in deterministic order:
	// start time ascending, ties broken by vendor meeting id.
	UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error)

	// FetchAgenda returns the item-level agenda for a meeting, or nil
	// when the vendor only publishes monolithic packets.
	FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error)
}

// AdapterError wraps any vendor failure with enough context for the
// conductor to log and skip the city rather than crash the poll cycle.
type AdapterError struct {
	Vendor models.Vendor
	Slug   string
	Op     string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter (%s) %s: %v", e.Vendor, e.Slug, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// wrapErr builds an AdapterError for a city operation.
func wrapErr(city models.City, op string, err error) error {
	return &AdapterError{Vendor: city.Vendor, Slug: city.Slug, Op: op, Err: err}
}

// New constructs the adapter for a city's vendor. Blank slugs are
// rejected here so a misconfigured city never reaches the network.
func New(city models.City, client HTTPClient) (Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("%w: blank slug for %s", models.ErrInvalidCity, city.Banana)
	}
	switch city.Vendor {
	case models.VendorPrimeGov:
		return newPrimeGov(city, client), nil
	case models.VendorCivicClerk:
		return newCivicClerk(city, client), nil
	case models.VendorLegistar:
		return newLegistar(city, client), nil
	case models.VendorGranicus:
		return newGranicus(city, client), nil
	case models.VendorCivicPlus, models.VendorNovusAgenda, models.VendorMunicode:
		return newHeuristicScraper(city, client), nil
	default:
		return nil, fmt.Errorf("%w: no adapter for vendor %q", models.ErrInvalidCity, city.Vendor)
	}
}
