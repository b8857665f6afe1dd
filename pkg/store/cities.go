package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// Store wraps the database handle with the persistence operations of the
// ingestion pipeline.
type Store struct {
	db bun.IDB
}

// New creates a Store over a bun database handle.
func New(db bun.IDB) *Store {
	return &Store{db: db}
}

// CityFilter narrows ListCities.
type CityFilter struct {
	Status models.CityStatus
	Vendor models.Vendor
	Banana string
}

// UpsertCity inserts or updates a city keyed by banana. The (vendor, slug)
// uniqueness is enforced by the schema.
func (s *Store) UpsertCity(ctx context.Context, city models.City) error {
	if err := city.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	row := &CityRow{
		Banana:    city.Banana,
		Name:      city.Name,
		State:     city.State,
		Vendor:    city.Vendor,
		Slug:      city.Slug,
		Status:    city.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if city.Token != "" {
		row.Token = &city.Token
	}
	if city.ListingURL != "" {
		row.ListingURL = &city.ListingURL
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (banana) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("state = EXCLUDED.state").
		Set("vendor = EXCLUDED.vendor").
		Set("slug = EXCLUDED.slug").
		Set("status = EXCLUDED.status").
		Set("token = EXCLUDED.token").
		Set("listing_url = EXCLUDED.listing_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upserting city %s: %w", city.Banana, err)
	}
	return nil
}

// ListCities returns cities matching the filter, ordered by banana.
func (s *Store) ListCities(ctx context.Context, filter CityFilter) ([]models.City, error) {
	var rows []CityRow
	q := s.db.NewSelect().Model(&rows).Order("banana ASC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Vendor != "" {
		q = q.Where("vendor = ?", filter.Vendor)
	}
	if filter.Banana != "" {
		q = q.Where("banana = ?", filter.Banana)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing cities: %w", err)
	}
	cities := make([]models.City, len(rows))
	for i := range rows {
		cities[i] = rows[i].City()
	}
	return cities, nil
}

// GetCity returns one city by banana.
func (s *Store) GetCity(ctx context.Context, banana string) (models.City, error) {
	var row CityRow
	err := s.db.NewSelect().Model(&row).Where("banana = ?", banana).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.City{}, fmt.Errorf("%w: city %s", ErrNotFound, banana)
	}
	if err != nil {
		return models.City{}, fmt.Errorf("getting city %s: %w", banana, err)
	}
	return row.City(), nil
}

// DeactivateCity marks a city inactive. Its meetings stay; the conductor
// simply stops polling it.
func (s *Store) DeactivateCity(ctx context.Context, banana string) error {
	res, err := s.db.NewUpdate().
		Model((*CityRow)(nil)).
		Set("status = ?", models.CityStatusInactive).
		Set("updated_at = ?", time.Now().UTC()).
		Where("banana = ?", banana).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivating city %s: %w", banana, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: city %s", ErrNotFound, banana)
	}
	slog.Info("City deactivated", "banana", banana)
	return nil
}
