package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobType discriminates queue payloads.
type JobType string

// Queue job types.
const (
	JobTypeMeeting JobType = "meeting"
	JobTypeMatter  JobType = "matter"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return t == JobTypeMeeting || t == JobTypeMatter
}

// itemsScheme is the synthetic source URL scheme for meetings whose items
// and attachments are already persisted and should be read from the store
// instead of fetched from a packet or agenda page.
const itemsScheme = "items://"

// ItemsURL builds the synthetic items:// source URL for a meeting.
func ItemsURL(meetingID string) string {
	return itemsScheme + meetingID
}

// ParseItemsURL extracts the meeting id from an items:// URL. The second
// return is false when u uses any other scheme.
func ParseItemsURL(u string) (string, bool) {
	if !strings.HasPrefix(u, itemsScheme) {
		return "", false
	}
	return strings.TrimPrefix(u, itemsScheme), true
}

// MeetingPayload is the typed payload for JobTypeMeeting. SourceURL is the
// meeting's packet URL, agenda URL, or the synthetic items:// URL.
type MeetingPayload struct {
	MeetingID string `json:"meeting_id"`
	SourceURL string `json:"source_url"`
}

// Fingerprint keys queue dedup for meeting jobs.
func (p MeetingPayload) Fingerprint() string { return p.MeetingID }

// Validate rejects payloads that cannot be processed.
func (p MeetingPayload) Validate() error {
	if p.MeetingID == "" || p.SourceURL == "" {
		return fmt.Errorf("%w: meeting payload requires meeting_id and source_url", ErrCorruptPayload)
	}
	return nil
}

// MatterPayload is the typed payload for JobTypeMatter.
type MatterPayload struct {
	MatterID  string   `json:"matter_id"`
	MeetingID string   `json:"meeting_id"`
	ItemIDs   []string `json:"item_ids"`
}

// Fingerprint keys queue dedup for matter jobs.
func (p MatterPayload) Fingerprint() string { return p.MatterID }

// Validate rejects payloads that cannot be processed.
func (p MatterPayload) Validate() error {
	if p.MatterID == "" || p.MeetingID == "" {
		return fmt.Errorf("%w: matter payload requires matter_id and meeting_id", ErrCorruptPayload)
	}
	return nil
}

// DecodeMeetingPayload parses and validates a raw meeting payload. Legacy
// rows that predate typed payloads decode to empty fields and are rejected
// as corrupt.
func DecodeMeetingPayload(raw json.RawMessage) (MeetingPayload, error) {
	var p MeetingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeMatterPayload parses and validates a raw matter payload.
func DecodeMatterPayload(raw json.RawMessage) (MatterPayload, error) {
	var p MatterPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
