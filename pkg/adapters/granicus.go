package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// granicus scrapes a city's Granicus listing page. Agenda links pointing
// at AgendaViewer.php get item mode; direct PDF links are monolithic
// packets.
type granicus struct {
	city   models.City
	client HTTPClient

	now func() time.Time
}

func newGranicus(city models.City, client HTTPClient) *granicus {
	return &granicus{city: city, client: client, now: time.Now}
}

func (a *granicus) Vendor() models.Vendor { return models.VendorGranicus }

func (a *granicus) listingURL() string {
	if a.city.ListingURL != "" {
		return a.city.ListingURL
	}
	return fmt.Sprintf("https://%s.granicus.com/ViewPublisher.php?view_id=1", a.city.Slug)
}

func (a *granicus) baseURL() string {
	return fmt.Sprintf("https://%s.granicus.com", a.city.Slug)
}

// granicusDateLayouts covers the formats Granicus listing pages use.
var granicusDateLayouts = []string{
	"January 2, 2006 - 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006 - 3:04 PM",
	"Jan 2, 2006",
	"01/02/2006 3:04 PM",
	"01/02/2006",
}

func parseGranicusDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range granicusDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (a *granicus) UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error) {
	body, err := a.client.Get(ctx, a.Vendor(), a.listingURL())
	if err != nil {
		return nil, wrapErr(a.city, "fetching listing", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(a.city, "parsing listing", err)
	}

	today := a.now().UTC().Truncate(24 * time.Hour)
	var meetings []models.NormalizedMeeting

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		title := strings.TrimSpace(cells.First().Text())
		if title == "" {
			return
		}

		var start time.Time
		found := false
		cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			if t, ok := parseGranicusDate(cell.Text()); ok {
				start, found = t, true
				return false
			}
			return true
		})
		if !found || start.Before(today) {
			return
		}

		link := row.Find("a[href*='AgendaViewer.php'], a[href$='.pdf'], a[href*='.pdf?']").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = absoluteURL(a.baseURL(), href)

		m := models.NormalizedMeeting{
			VendorMeetingID: granicusMeetingID(href, title, start),
			Title:           title,
			StartsAt:        start,
		}
		if strings.Contains(href, "AgendaViewer.php") {
			m.AgendaURL = href
		} else {
			m.PacketURL = href
		}
		meetings = append(meetings, m)
	})

	models.SortMeetings(meetings)
	return meetings, nil
}

// granicusMeetingID prefers the listing link's clip or event id; rows
// without one fall back to a slugged title and date.
func granicusMeetingID(href, title string, start time.Time) string {
	if u, err := url.Parse(href); err == nil {
		q := u.Query()
		for _, key := range []string{"event_id", "clip_id", "meta_id"} {
			if v := q.Get(key); v != "" {
				return v
			}
		}
	}
	slug := strings.ToLower(strings.Join(strings.Fields(title), "-"))
	return fmt.Sprintf("%s-%s", slug, start.Format("20060102"))
}

func (a *granicus) FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error) {
	if meeting.AgendaURL == "" {
		return nil, nil
	}
	body, err := a.client.Get(ctx, a.Vendor(), meeting.AgendaURL)
	if err != nil {
		return nil, wrapErr(a.city, "fetching agenda", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(a.city, "parsing agenda", err)
	}

	detail := &models.AgendaDetail{}
	seq := 0

	addItem := func(title string, scope *goquery.Selection) {
		title = strings.TrimSpace(title)
		if title == "" {
			return
		}
		seq++
		item := models.AgendaItem{
			VendorItemID: fmt.Sprintf("%d", seq),
			Sequence:     seq,
			Title:        title,
		}
		scope.Find("a[href*='MetaViewer.php']").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			name := strings.TrimSpace(link.Text())
			if name == "" {
				name = title
			}
			item.Attachments = append(item.Attachments, models.AgendaAttachment{
				Name: name,
				URL:  absoluteURL(a.baseURL(), href),
			})
		})
		detail.Items = append(detail.Items, item)
	}

	if divs := doc.Find("div.agenda-item"); divs.Length() > 0 {
		divs.Each(func(_ int, sel *goquery.Selection) {
			addItem(firstLine(sel.Text()), sel)
		})
	} else {
		doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
			if row.Find("td").Length() == 0 {
				return
			}
			addItem(firstLine(row.Find("td").First().Text()), row)
		})
	}

	detail.Participation = ExtractParticipation(doc.Text())
	return detail, nil
}
