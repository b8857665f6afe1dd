// Package store persists the normalized entity model to the embedded
// database and exposes the operations the conductor and processor need.
package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// CityRow is the cities table.
type CityRow struct {
	bun.BaseModel `bun:"table:cities,alias:c"`

	Banana     string            `bun:"banana,pk"`
	Name       string            `bun:"name,notnull"`
	State      string            `bun:"state,notnull"`
	Vendor     models.Vendor     `bun:"vendor,notnull"`
	Slug       string            `bun:"slug,notnull"`
	Status     models.CityStatus `bun:"status,notnull"`
	Token      *string           `bun:"token"`
	ListingURL *string           `bun:"listing_url"`
	CreatedAt  time.Time         `bun:"created_at,notnull"`
	UpdatedAt  time.Time         `bun:"updated_at,notnull"`
}

// City converts the row to the domain type.
func (r *CityRow) City() models.City {
	city := models.City{
		Banana: r.Banana,
		Name:   r.Name,
		State:  r.State,
		Vendor: r.Vendor,
		Slug:   r.Slug,
		Status: r.Status,
	}
	if r.Token != nil {
		city.Token = *r.Token
	}
	if r.ListingURL != nil {
		city.ListingURL = *r.ListingURL
	}
	return city
}

// MeetingRow is the meetings table. PacketURL and AgendaURL are mutually
// exclusive; the schema carries a CHECK and every write path revalidates.
type MeetingRow struct {
	bun.BaseModel `bun:"table:meetings,alias:m"`

	ID               string                  `bun:"id,pk"`
	Banana           string                  `bun:"banana,notnull"`
	VendorMeetingID  string                  `bun:"vendor_meeting_id,notnull"`
	Title            string                  `bun:"title,notnull"`
	StartsAt         time.Time               `bun:"starts_at,notnull"`
	PacketURL        *string                 `bun:"packet_url"`
	AgendaURL        *string                 `bun:"agenda_url"`
	ProcessingStatus models.ProcessingStatus `bun:"processing_status,notnull"`
	Summary          *string                 `bun:"summary"`
	Topics           *string                 `bun:"topics"`
	ExtractionMethod *string                 `bun:"extraction_method"`
	Participation    *string                 `bun:"participation"`
	CreatedAt        time.Time               `bun:"created_at,notnull"`
	UpdatedAt        time.Time               `bun:"updated_at,notnull"`
}

// SourceURL returns whichever of packet/agenda URL is set.
func (r *MeetingRow) SourceURL() string {
	if r.PacketURL != nil {
		return *r.PacketURL
	}
	if r.AgendaURL != nil {
		return *r.AgendaURL
	}
	return ""
}

// ItemRow is the items table.
type ItemRow struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID           string  `bun:"id,pk"`
	MeetingID    string  `bun:"meeting_id,notnull"`
	Sequence     int     `bun:"sequence,notnull"`
	Title        string  `bun:"title,notnull"`
	MatterNumber *string `bun:"matter_number"`
	Summary      *string `bun:"summary"`

	Attachments []*AttachmentRow `bun:"rel:has-many,join:id=item_id"`
}

// AttachmentRow is the attachments table. Meta holds the vendor metadata
// blob as JSON.
type AttachmentRow struct {
	bun.BaseModel `bun:"table:attachments,alias:a"`

	ID     string  `bun:"id,pk"`
	ItemID string  `bun:"item_id,notnull"`
	Name   string  `bun:"name,notnull"`
	URL    string  `bun:"url,notnull"`
	Meta   *string `bun:"meta"`
}

// MatterRow is the city_matters table.
type MatterRow struct {
	bun.BaseModel `bun:"table:city_matters,alias:cm"`

	ID           string  `bun:"id,pk"`
	Banana       string  `bun:"banana,notnull"`
	MatterNumber string  `bun:"matter_number,notnull"`
	Title        string  `bun:"title,notnull"`
	Summary      *string `bun:"summary"`
}

// AppearanceRow links a matter to an item within a meeting.
type AppearanceRow struct {
	bun.BaseModel `bun:"table:matter_appearances,alias:ma"`

	ID        string `bun:"id,pk"`
	MatterID  string `bun:"matter_id,notnull"`
	MeetingID string `bun:"meeting_id,notnull"`
	ItemID    string `bun:"item_id,notnull"`
}
