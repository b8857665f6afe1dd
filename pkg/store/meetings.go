package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// MeetingChange reports the outcome of one meeting upsert so the conductor
// can enqueue work for new or changed meetings only.
type MeetingChange struct {
	MeetingID string
	SourceURL string
	New       bool
	Changed   bool
}

// UpsertMeetings idempotently writes the adapter output for a city, keyed
// by (banana, vendor_meeting_id). The packet/agenda exclusivity rule is
// validated before every write; re-running a poll with no upstream changes
// produces no changes.
func (s *Store) UpsertMeetings(ctx context.Context, city models.City, meetings []models.NormalizedMeeting) ([]MeetingChange, error) {
	changes := make([]MeetingChange, 0, len(meetings))
	now := time.Now().UTC()

	for _, nm := range meetings {
		if err := nm.Validate(); err != nil {
			return nil, err
		}
		id := models.MeetingID(city.Banana, nm.VendorMeetingID)

		var existing MeetingRow
		err := s.db.NewSelect().Model(&existing).Where("id = ?", id).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			row := &MeetingRow{
				ID:               id,
				Banana:           city.Banana,
				VendorMeetingID:  nm.VendorMeetingID,
				Title:            nm.Title,
				StartsAt:         nm.StartsAt.UTC(),
				PacketURL:        nullable(nm.PacketURL),
				AgendaURL:        nullable(nm.AgendaURL),
				ProcessingStatus: models.ProcessingPending,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
				return nil, fmt.Errorf("inserting meeting %s: %w", id, err)
			}
			changes = append(changes, MeetingChange{MeetingID: id, SourceURL: nm.SourceURL(), New: true})

		case err != nil:
			return nil, fmt.Errorf("querying meeting %s: %w", id, err)

		default:
			if !meetingDiffers(&existing, nm) {
				continue
			}
			_, err := s.db.NewUpdate().
				Model((*MeetingRow)(nil)).
				Set("title = ?", nm.Title).
				Set("starts_at = ?", nm.StartsAt.UTC()).
				Set("packet_url = ?", nullable(nm.PacketURL)).
				Set("agenda_url = ?", nullable(nm.AgendaURL)).
				Set("processing_status = ?", models.ProcessingPending).
				Set("updated_at = ?", now).
				Where("id = ?", id).
				Exec(ctx)
			if err != nil {
				return nil, fmt.Errorf("updating meeting %s: %w", id, err)
			}
			changes = append(changes, MeetingChange{MeetingID: id, SourceURL: nm.SourceURL(), Changed: true})
		}
	}
	return changes, nil
}

func meetingDiffers(row *MeetingRow, nm models.NormalizedMeeting) bool {
	if row.Title != nm.Title || !row.StartsAt.Equal(nm.StartsAt.UTC()) {
		return true
	}
	if deref(row.PacketURL) != nm.PacketURL || deref(row.AgendaURL) != nm.AgendaURL {
		return true
	}
	return false
}

// GetMeeting returns one meeting by composite id.
func (s *Store) GetMeeting(ctx context.Context, id string) (*MeetingRow, error) {
	var row MeetingRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: meeting %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting meeting %s: %w", id, err)
	}
	return &row, nil
}

// SetProcessingStatus transitions the pipeline status of a meeting.
func (s *Store) SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	res, err := s.db.NewUpdate().
		Model((*MeetingRow)(nil)).
		Set("processing_status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("setting status on meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: meeting %s", ErrNotFound, id)
	}
	return nil
}

// RecordSummary writes the summarization result and marks the meeting
// completed.
func (s *Store) RecordSummary(ctx context.Context, id, summary string, topics []string, extractionMethod string) error {
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("encoding topics: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*MeetingRow)(nil)).
		Set("summary = ?", summary).
		Set("topics = ?", string(topicsJSON)).
		Set("extraction_method = ?", extractionMethod).
		Set("processing_status = ?", models.ProcessingCompleted).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording summary for meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: meeting %s", ErrNotFound, id)
	}
	return nil
}

// SetParticipation stores dial-in/virtual-meeting details scraped from an
// agenda page.
func (s *Store) SetParticipation(ctx context.Context, id string, p *models.Participation) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding participation: %w", err)
	}
	_, err = s.db.NewUpdate().
		Model((*MeetingRow)(nil)).
		Set("participation = ?", string(data)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("setting participation for meeting %s: %w", id, err)
	}
	return nil
}

// granicusAttachmentHost marks Granicus packet URLs that resolve to the
// vendor's S3 bucket; the path segment after it names the owning city slug.
const granicusAttachmentHost = "granicus_production_attachments/"

// CrossContaminated reports whether a granicus meeting's packet URL points
// at another city's S3 prefix, which indicates the vendor listing leaked
// documents across cities.
func CrossContaminated(citySlug, packetURL string) bool {
	idx := strings.Index(packetURL, granicusAttachmentHost)
	if idx < 0 {
		return false
	}
	rest := packetURL[idx+len(granicusAttachmentHost):]
	slug, _, _ := strings.Cut(rest, "/")
	return slug != "" && slug != citySlug
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
