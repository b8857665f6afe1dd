package adapters

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// heuristicScraper covers CivicPlus, NovusAgenda, and Municode, whose
// portals are plain HTML listings of agenda PDFs. It looks for anchor
// tags pointing at agenda documents and reads the meeting date from the
// enclosing row's text. These vendors expose no item-level agenda.
type heuristicScraper struct {
	city   models.City
	client HTTPClient

	now func() time.Time
}

func newHeuristicScraper(city models.City, client HTTPClient) *heuristicScraper {
	return &heuristicScraper{city: city, client: client, now: time.Now}
}

func (a *heuristicScraper) Vendor() models.Vendor { return a.city.Vendor }

func (a *heuristicScraper) listingURL() string {
	if a.city.ListingURL != "" {
		return a.city.ListingURL
	}
	switch a.city.Vendor {
	case models.VendorCivicPlus:
		return fmt.Sprintf("https://%s.civicplus.com/AgendaCenter", a.city.Slug)
	case models.VendorNovusAgenda:
		return fmt.Sprintf("https://%s.novusagenda.com/agendapublic/meetingsresponsive.aspx", a.city.Slug)
	default:
		return fmt.Sprintf("https://%s.municodemeetings.com/", a.city.Slug)
	}
}

// scrapeDateLayouts covers the date formats these portals render.
var scrapeDateLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006 3:04 PM",
	"01/02/2006",
	"2006-01-02",
}

var scrapeDateRe = regexp.MustCompile(`(?:\d{1,2}/\d{1,2}/\d{4}(?:\s+\d{1,2}:\d{2}\s*[AP]M)?|[A-Z][a-z]+ \d{1,2}, \d{4}(?:\s+\d{1,2}:\d{2}\s*[AP]M)?|\d{4}-\d{2}-\d{2})`)

func parseScrapeDate(text string) (time.Time, bool) {
	m := scrapeDateRe.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	for _, layout := range scrapeDateLayouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// agendaLink reports whether an anchor plausibly points at an agenda
// document.
func agendaLink(href, text string) bool {
	h := strings.ToLower(href)
	t := strings.ToLower(text)
	if strings.Contains(h, ".pdf") {
		return true
	}
	return strings.Contains(t, "agenda") &&
		(strings.Contains(h, "agenda") || strings.Contains(h, "download") || strings.Contains(h, "document"))
}

func (a *heuristicScraper) UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error) {
	body, err := a.client.Get(ctx, a.Vendor(), a.listingURL())
	if err != nil {
		return nil, wrapErr(a.city, "fetching listing", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(a.city, "parsing listing", err)
	}

	base := a.listingBase()
	today := a.now().UTC().Truncate(24 * time.Hour)

	seen := make(map[string]bool)
	var meetings []models.NormalizedMeeting

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !agendaLink(href, link.Text()) {
			return
		}

		// The meeting date and title live in the nearest row-like
		// ancestor; fall back to the link itself.
		row := link.Closest("tr, li, div.meeting, div.row")
		scope := row
		if row.Length() == 0 {
			scope = link
		}
		start, ok := parseScrapeDate(scope.Text())
		if !ok || start.Before(today) {
			return
		}

		title := firstLine(scope.Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}

		u := absoluteURL(base, href)
		id := fmt.Sprintf("%s-%s",
			strings.ToLower(strings.Join(strings.Fields(title), "-")), start.Format("20060102"))
		if seen[id] {
			return
		}
		seen[id] = true

		meetings = append(meetings, models.NormalizedMeeting{
			VendorMeetingID: id,
			Title:           title,
			StartsAt:        start,
			PacketURL:       u,
		})
	})

	models.SortMeetings(meetings)
	return meetings, nil
}

// listingBase strips the path off the listing URL for resolving
// relative hrefs.
func (a *heuristicScraper) listingBase() string {
	u := a.listingURL()
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			return u[:i+3+j]
		}
	}
	return u
}

// FetchAgenda always returns nil: these portals publish packets only.
func (a *heuristicScraper) FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error) {
	return nil, nil
}
