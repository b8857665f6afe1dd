// Package models defines the normalized entity model shared by adapters,
// the store, the queue, and the processing pipeline.
package models

import (
	"fmt"
	"regexp"
)

// Vendor identifies the civic-software provider hosting a city's portal.
type Vendor string

// Known vendors. Adapters exist for exactly this set.
const (
	VendorPrimeGov    Vendor = "primegov"
	VendorGranicus    Vendor = "granicus"
	VendorCivicClerk  Vendor = "civicclerk"
	VendorLegistar    Vendor = "legistar"
	VendorCivicPlus   Vendor = "civicplus"
	VendorNovusAgenda Vendor = "novusagenda"
	VendorMunicode    Vendor = "municode"
)

// AllVendors lists every supported vendor tag.
func AllVendors() []Vendor {
	return []Vendor{
		VendorPrimeGov,
		VendorGranicus,
		VendorCivicClerk,
		VendorLegistar,
		VendorCivicPlus,
		VendorNovusAgenda,
		VendorMunicode,
	}
}

// Valid reports whether v is a supported vendor tag.
func (v Vendor) Valid() bool {
	switch v {
	case VendorPrimeGov, VendorGranicus, VendorCivicClerk,
		VendorLegistar, VendorCivicPlus, VendorNovusAgenda,
		VendorMunicode:
		return true
	}
	return false
}

// CityStatus is the ingestion state of a city.
type CityStatus string

// City status values.
const (
	CityStatusActive   CityStatus = "active"
	CityStatusInactive CityStatus = "inactive"
)

// bananaRe matches the canonical city key: lowercase alphanumeric token
// followed by an uppercase two-letter state code (e.g. "paloaltoCA").
var bananaRe = regexp.MustCompile(`^[a-z0-9]+[A-Z]{2}$`)

// ValidateBanana checks the canonical city key format.
func ValidateBanana(banana string) error {
	if !bananaRe.MatchString(banana) {
		return fmt.Errorf("%w: banana %q must match %s", ErrInvalidBanana, banana, bananaRe.String())
	}
	return nil
}

// City is a jurisdiction we ingest agendas for.
type City struct {
	Banana string     `json:"banana"`
	Name   string     `json:"name"`
	State  string     `json:"state"`
	Vendor Vendor     `json:"vendor"`
	Slug   string     `json:"slug"`
	Status CityStatus `json:"status"`

	// Token is a per-client API token, used by legistar when the client
	// requires one.
	Token string `json:"token,omitempty"`

	// ListingURL overrides the default meeting listing page for scrape
	// vendors whose listing lives at a nonstandard path.
	ListingURL string `json:"listing_url,omitempty"`
}

// Validate checks the city invariants: canonical banana, known vendor,
// non-blank slug.
func (c City) Validate() error {
	if err := ValidateBanana(c.Banana); err != nil {
		return err
	}
	if !c.Vendor.Valid() {
		return fmt.Errorf("%w: unknown vendor %q", ErrInvalidCity, c.Vendor)
	}
	if c.Slug == "" {
		return fmt.Errorf("%w: blank slug for %s", ErrInvalidCity, c.Banana)
	}
	return nil
}
