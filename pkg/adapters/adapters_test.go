package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// fakeClient serves canned responses keyed by URL and records every
// request in order.
type fakeClient struct {
	responses map[string][]byte
	requested []string
}

func (f *fakeClient) Get(_ context.Context, _ models.Vendor, url string) ([]byte, error) {
	f.requested = append(f.requested, url)
	body, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("http 404 fetching %s", url)
	}
	return body, nil
}

func (f *fakeClient) GetJSON(ctx context.Context, vendor models.Vendor, url string, v any) error {
	body, err := f.Get(ctx, vendor, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func TestNewRejectsBlankSlug(t *testing.T) {
	_, err := New(models.City{Banana: "paloaltoCA", Vendor: models.VendorPrimeGov}, &fakeClient{})
	assert.ErrorIs(t, err, models.ErrInvalidCity)
}

func TestNewCoversAllVendors(t *testing.T) {
	for _, vendor := range models.AllVendors() {
		city := models.City{Banana: "paloaltoCA", Vendor: vendor, Slug: "paloalto"}
		adapter, err := New(city, &fakeClient{})
		require.NoError(t, err, string(vendor))
		assert.Equal(t, vendor, adapter.Vendor())
	}
}

func TestAdapterErrorWrapsCause(t *testing.T) {
	city := models.City{Banana: "paloaltoCA", Vendor: models.VendorPrimeGov, Slug: "cityofpaloalto"}
	cause := fmt.Errorf("boom")
	err := wrapErr(city, "listing meetings", cause)

	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, models.VendorPrimeGov, ae.Vendor)
	assert.Equal(t, "cityofpaloalto", ae.Slug)
	assert.Equal(t, "listing meetings", ae.Op)
	assert.ErrorIs(t, err, cause)
}
