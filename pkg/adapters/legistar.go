package adapters

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// legistar talks to the Legistar web API. Events carrying a compiled
// agenda file are packet mode; the rest fall back to item mode through
// the eventitems endpoint.
type legistar struct {
	city   models.City
	client HTTPClient

	now func() time.Time
}

func newLegistar(city models.City, client HTTPClient) *legistar {
	return &legistar{city: city, client: client, now: time.Now}
}

func (a *legistar) Vendor() models.Vendor { return models.VendorLegistar }

func (a *legistar) baseURL() string {
	return fmt.Sprintf("https://webapi.legistar.com/v1/%s", a.city.Slug)
}

// withToken appends the per-client API token when one is configured.
func (a *legistar) withToken(u string) string {
	if a.city.Token == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(a.city.Token)
}

type legistarEvent struct {
	EventID         int64  `json:"EventId"`
	EventBodyName   string `json:"EventBodyName"`
	EventDate       string `json:"EventDate"`
	EventTime       string `json:"EventTime"`
	EventAgendaFile string `json:"EventAgendaFile"`
}

type legistarEventItem struct {
	EventItemID             int64  `json:"EventItemId"`
	EventItemTitle          string `json:"EventItemTitle"`
	EventItemAgendaSequence int    `json:"EventItemAgendaSequence"`
	EventItemMatterID       int64  `json:"EventItemMatterId"`
	EventItemMatterFile     string `json:"EventItemMatterFile"`
}

type legistarAttachment struct {
	MatterAttachmentName      string `json:"MatterAttachmentName"`
	MatterAttachmentHyperlink string `json:"MatterAttachmentHyperlink"`
}

func (a *legistar) UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error) {
	cutoff := a.now().UTC().Format("2006-01-02")
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("EventDate ge datetime'%s'", cutoff))
	q.Set("$orderby", "EventDate asc")
	listURL := a.withToken(a.baseURL() + "/events?" + q.Encode())

	var events []legistarEvent
	if err := a.client.GetJSON(ctx, a.Vendor(), listURL, &events); err != nil {
		return nil, wrapErr(a.city, "listing events", err)
	}

	meetings := make([]models.NormalizedMeeting, 0, len(events))
	for _, ev := range events {
		start, err := parseLegistarStart(ev.EventDate, ev.EventTime)
		if err != nil {
			continue
		}
		m := models.NormalizedMeeting{
			VendorMeetingID: fmt.Sprintf("%d", ev.EventID),
			Title:           strings.TrimSpace(ev.EventBodyName),
			StartsAt:        start,
		}
		if ev.EventAgendaFile != "" {
			m.PacketURL = ev.EventAgendaFile
		} else {
			m.AgendaURL = fmt.Sprintf("%s/events/%d/eventitems", a.baseURL(), ev.EventID)
		}
		meetings = append(meetings, m)
	}
	models.SortMeetings(meetings)
	return meetings, nil
}

// parseLegistarStart merges the date-only EventDate with the clock-time
// EventTime. A blank time means midnight.
func parseLegistarStart(date, clock string) (time.Time, error) {
	d, err := time.Parse("2006-01-02T15:04:05", date)
	if err != nil {
		return time.Time{}, err
	}
	if clock == "" {
		return d, nil
	}
	t, err := time.Parse("3:04 PM", clock)
	if err != nil {
		return d, nil
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func (a *legistar) FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error) {
	if meeting.AgendaURL == "" {
		return nil, nil
	}
	var items []legistarEventItem
	if err := a.client.GetJSON(ctx, a.Vendor(), a.withToken(meeting.AgendaURL), &items); err != nil {
		return nil, wrapErr(a.city, "fetching event items", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EventItemAgendaSequence < items[j].EventItemAgendaSequence
	})

	detail := &models.AgendaDetail{}
	seq := 0
	for _, raw := range items {
		title := strings.TrimSpace(raw.EventItemTitle)
		if title == "" {
			continue
		}
		seq++
		item := models.AgendaItem{
			VendorItemID: fmt.Sprintf("%d", raw.EventItemID),
			Sequence:     seq,
			Title:        title,
			MatterNumber: strings.TrimSpace(raw.EventItemMatterFile),
		}
		if raw.EventItemMatterID != 0 {
			atts, err := a.matterAttachments(ctx, raw.EventItemMatterID)
			if err != nil {
				return nil, err
			}
			item.Attachments = FilterVersionedAttachments(atts, nil)
		}
		detail.Items = append(detail.Items, item)
	}
	return detail, nil
}

func (a *legistar) matterAttachments(ctx context.Context, matterID int64) ([]models.AgendaAttachment, error) {
	u := a.withToken(fmt.Sprintf("%s/matters/%d/attachments", a.baseURL(), matterID))
	var raw []legistarAttachment
	if err := a.client.GetJSON(ctx, a.Vendor(), u, &raw); err != nil {
		return nil, wrapErr(a.city, "fetching matter attachments", err)
	}
	atts := make([]models.AgendaAttachment, 0, len(raw))
	for _, att := range raw {
		if att.MatterAttachmentHyperlink == "" {
			continue
		}
		atts = append(atts, models.AgendaAttachment{
			Name: strings.TrimSpace(att.MatterAttachmentName),
			URL:  att.MatterAttachmentHyperlink,
		})
	}
	return atts, nil
}
