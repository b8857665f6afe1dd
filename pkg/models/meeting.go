package models

import (
	"fmt"
	"sort"
	"time"
)

// ProcessingStatus tracks a meeting through the summarization pipeline.
type ProcessingStatus string

// Processing status values.
const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingRunning   ProcessingStatus = "running"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// NormalizedMeeting is the vendor-independent shape every adapter emits.
// Exactly one of PacketURL and AgendaURL is set: a packet is a single
// monolithic PDF, an agenda URL points at an item-level HTML page.
type NormalizedMeeting struct {
	VendorMeetingID string    `json:"vendor_meeting_id"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"starts_at"`
	PacketURL       string    `json:"packet_url,omitempty"`
	AgendaURL       string    `json:"agenda_url,omitempty"`
}

// Validate enforces the packet/agenda exclusivity rule.
func (m NormalizedMeeting) Validate() error {
	if m.VendorMeetingID == "" {
		return fmt.Errorf("%w: missing vendor meeting id", ErrInvalidMeeting)
	}
	hasPacket := m.PacketURL != ""
	hasAgenda := m.AgendaURL != ""
	if hasPacket == hasAgenda {
		return fmt.Errorf("%w: meeting %s must have exactly one of packet_url or agenda_url",
			ErrInvalidMeeting, m.VendorMeetingID)
	}
	return nil
}

// SourceURL returns whichever of the two URLs is set.
func (m NormalizedMeeting) SourceURL() string {
	if m.PacketURL != "" {
		return m.PacketURL
	}
	return m.AgendaURL
}

// SortMeetings orders meetings by start time ascending, ties broken by
// vendor meeting id. Adapters use this to guarantee deterministic output.
func SortMeetings(meetings []NormalizedMeeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		if !meetings[i].StartsAt.Equal(meetings[j].StartsAt) {
			return meetings[i].StartsAt.Before(meetings[j].StartsAt)
		}
		return meetings[i].VendorMeetingID < meetings[j].VendorMeetingID
	})
}

// MeetingID builds the stable composite meeting id.
func MeetingID(banana, vendorMeetingID string) string {
	return fmt.Sprintf("meeting-%s-%s", banana, vendorMeetingID)
}

// ItemID builds the stable composite item id from the parent meeting id
// and the 1-based sequence.
func ItemID(meetingID string, sequence int) string {
	return fmt.Sprintf("item-%s-%d", meetingID, sequence)
}

// MatterID builds the stable composite matter id.
func MatterID(banana, matterNumber string) string {
	return fmt.Sprintf("matter-%s-%s", banana, matterNumber)
}

// AgendaDetail is the item-level view of a meeting for vendors that expose
// an HTML agenda. Participation is present when the page carried dial-in
// or virtual-meeting details.
type AgendaDetail struct {
	Items         []AgendaItem   `json:"items"`
	Participation *Participation `json:"participation,omitempty"`
}

// AgendaItem is one agenda line within a meeting.
type AgendaItem struct {
	VendorItemID string             `json:"vendor_item_id"`
	Sequence     int                `json:"sequence"`
	Title        string             `json:"title"`
	MatterNumber string             `json:"matter_number,omitempty"`
	Attachments  []AgendaAttachment `json:"attachments,omitempty"`
}

// AgendaAttachment is a downloadable document hanging off an agenda item.
type AgendaAttachment struct {
	Name string            `json:"name"`
	URL  string            `json:"url"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Participation captures how the public can join a meeting, scraped from
// agenda page text.
type Participation struct {
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	VirtualURL    string `json:"virtual_url,omitempty"`
	ZoomMeetingID string `json:"zoom_meeting_id,omitempty"`
	Hybrid        bool   `json:"hybrid,omitempty"`
}
