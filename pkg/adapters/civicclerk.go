package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// civicClerk talks to the CivicClerk OData API. CivicClerk publishes
// compiled agenda packets only; there is no item-level mode.
type civicClerk struct {
	city   models.City
	client HTTPClient

	// now is swappable so tests can pin the date filter.
	now func() time.Time
}

func newCivicClerk(city models.City, client HTTPClient) *civicClerk {
	return &civicClerk{city: city, client: client, now: time.Now}
}

func (a *civicClerk) Vendor() models.Vendor { return models.VendorCivicClerk }

func (a *civicClerk) baseURL() string {
	return fmt.Sprintf("https://%s.api.civicclerk.com", a.city.Slug)
}

type civicClerkEvent struct {
	ID             int64                 `json:"id"`
	EventName      string                `json:"eventName"`
	StartDateTime  string                `json:"startDateTime"`
	PublishedFiles []civicClerkFile      `json:"publishedFiles"`
}

type civicClerkFile struct {
	FileID int64  `json:"fileId"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

type civicClerkListing struct {
	Value []civicClerkEvent `json:"value"`
}

// listingURL builds the OData query: future events only, ordered by
// start time then name so pagination is stable.
func (a *civicClerk) listingURL() string {
	cutoff := a.now().UTC().Format("2006-01-02T15:04:05.000Z")
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("startDateTime gt %s", cutoff))
	q.Set("$orderby", "startDateTime asc, eventName asc")
	return a.baseURL() + "/v1/Events?" + q.Encode()
}

func (a *civicClerk) UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error) {
	var listing civicClerkListing
	if err := a.client.GetJSON(ctx, a.Vendor(), a.listingURL(), &listing); err != nil {
		return nil, wrapErr(a.city, "listing events", err)
	}

	meetings := make([]models.NormalizedMeeting, 0, len(listing.Value))
	for _, ev := range listing.Value {
		packet, ok := civicClerkPacket(ev.PublishedFiles)
		if !ok {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.StartDateTime)
		if err != nil {
			continue
		}
		meetings = append(meetings, models.NormalizedMeeting{
			VendorMeetingID: fmt.Sprintf("%d", ev.ID),
			Title:           strings.TrimSpace(ev.EventName),
			StartsAt:        start,
			PacketURL: fmt.Sprintf("%s/v1/Meetings/GetMeetingFileStream(fileId=%d,plainText=false)",
				a.baseURL(), packet.FileID),
		})
	}
	models.SortMeetings(meetings)
	return meetings, nil
}

func civicClerkPacket(files []civicClerkFile) (civicClerkFile, bool) {
	for _, f := range files {
		if f.Type == "Agenda Packet" {
			return f, true
		}
	}
	return civicClerkFile{}, false
}

// FetchAgenda always returns nil: CivicClerk has no item-level agenda.
func (a *civicClerk) FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error) {
	return nil, nil
}
