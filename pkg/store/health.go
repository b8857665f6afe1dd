package store

import (
	"context"
	"fmt"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// HealthStats summarizes store contents for the health surface.
type HealthStats struct {
	CitiesByStatus      map[string]int `json:"cities_by_status"`
	CitiesByVendor      map[string]int `json:"cities_by_vendor"`
	MeetingsByStatus    map[string]int `json:"meetings_by_status"`
	ContaminatedPackets []string       `json:"contaminated_packets,omitempty"`
}

// HealthStats counts entities by status and vendor and flags granicus
// meetings whose packet URL belongs to a different city's S3 prefix.
func (s *Store) HealthStats(ctx context.Context) (*HealthStats, error) {
	stats := &HealthStats{
		CitiesByStatus:   map[string]int{},
		CitiesByVendor:   map[string]int{},
		MeetingsByStatus: map[string]int{},
	}

	var cityCounts []struct {
		Status string `bun:"status"`
		Vendor string `bun:"vendor"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*CityRow)(nil)).
		ColumnExpr("status, vendor, count(*) AS count").
		Group("status", "vendor").
		Scan(ctx, &cityCounts)
	if err != nil {
		return nil, fmt.Errorf("counting cities: %w", err)
	}
	for _, c := range cityCounts {
		stats.CitiesByStatus[c.Status] += c.Count
		stats.CitiesByVendor[c.Vendor] += c.Count
	}

	var meetingCounts []struct {
		Status string `bun:"processing_status"`
		Count  int    `bun:"count"`
	}
	err = s.db.NewSelect().
		Model((*MeetingRow)(nil)).
		ColumnExpr("processing_status, count(*) AS count").
		Group("processing_status").
		Scan(ctx, &meetingCounts)
	if err != nil {
		return nil, fmt.Errorf("counting meetings: %w", err)
	}
	for _, m := range meetingCounts {
		stats.MeetingsByStatus[m.Status] = m.Count
	}

	contaminated, err := s.findContaminatedPackets(ctx)
	if err != nil {
		return nil, err
	}
	stats.ContaminatedPackets = contaminated

	return stats, nil
}

// findContaminatedPackets scans granicus meetings for packet URLs whose S3
// slug does not match the owning city's slug. The slug comparison happens
// in Go; the URL shape is too irregular for SQL.
func (s *Store) findContaminatedPackets(ctx context.Context) ([]string, error) {
	var rows []struct {
		MeetingID string `bun:"id"`
		Slug      string `bun:"slug"`
		PacketURL string `bun:"packet_url"`
	}
	err := s.db.NewSelect().
		Model((*MeetingRow)(nil)).
		ColumnExpr("m.id, c.slug, m.packet_url").
		Join("JOIN cities AS c ON c.banana = m.banana").
		Where("c.vendor = ?", models.VendorGranicus).
		Where("m.packet_url IS NOT NULL").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("scanning granicus packets: %w", err)
	}

	var flagged []string
	for _, r := range rows {
		if CrossContaminated(r.Slug, r.PacketURL) {
			flagged = append(flagged, r.MeetingID)
		}
	}
	return flagged, nil
}
