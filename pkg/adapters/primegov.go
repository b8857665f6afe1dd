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

// primeGov talks to the PrimeGov public portal API. Cities on PrimeGov
// publish a compiled packet per meeting; some additionally expose an
// item-level portal page, which takes precedence when present.
type primeGov struct {
	city   models.City
	client HTTPClient
}

func newPrimeGov(city models.City, client HTTPClient) *primeGov {
	return &primeGov{city: city, client: client}
}

func (a *primeGov) Vendor() models.Vendor { return models.VendorPrimeGov }

func (a *primeGov) baseURL() string {
	return fmt.Sprintf("https://%s.primegov.com", a.city.Slug)
}

type primeGovMeeting struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title"`
	DateTime     string             `json:"dateTime"`
	DocumentList []primeGovDocument `json:"documentList"`
}

type primeGovDocument struct {
	TemplateName      string `json:"templateName"`
	TemplateID        int64  `json:"templateId"`
	CompileOutputType int    `json:"compileOutputType"`
}

func (a *primeGov) UpcomingMeetings(ctx context.Context) ([]models.NormalizedMeeting, error) {
	url := a.baseURL() + "/api/v2/PublicPortal/ListUpcomingMeetings"

	var listing []primeGovMeeting
	if err := a.client.GetJSON(ctx, a.Vendor(), url, &listing); err != nil {
		return nil, wrapErr(a.city, "listing meetings", err)
	}

	meetings := make([]models.NormalizedMeeting, 0, len(listing))
	for _, raw := range listing {
		m := models.NormalizedMeeting{
			VendorMeetingID: fmt.Sprintf("%d", raw.ID),
			Title:           strings.TrimSpace(raw.Title),
		}
		start, err := parsePrimeGovTime(raw.DateTime)
		if err != nil {
			continue
		}
		m.StartsAt = start

		if a.hasItemAgenda(ctx, raw.ID) {
			m.AgendaURL = fmt.Sprintf("%s/Portal/Meeting/%d", a.baseURL(), raw.ID)
		} else if doc, ok := firstPacketDocument(raw.DocumentList); ok {
			m.PacketURL = fmt.Sprintf("%s/Public/CompiledDocument?meetingTemplateId=%d&compileOutputType=%d",
				a.baseURL(), doc.TemplateID, doc.CompileOutputType)
		} else {
			continue
		}
		meetings = append(meetings, m)
	}
	models.SortMeetings(meetings)
	return meetings, nil
}

// firstPacketDocument picks the first document whose template name
// contains "Packet".
func firstPacketDocument(docs []primeGovDocument) (primeGovDocument, bool) {
	for _, d := range docs {
		if strings.Contains(d.TemplateName, "Packet") {
			return d, true
		}
	}
	return primeGovDocument{}, false
}

func parsePrimeGovTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// hasItemAgenda probes the portal page for agenda-item divs. Any fetch
// or parse failure just means packet mode.
func (a *primeGov) hasItemAgenda(ctx context.Context, meetingID int64) bool {
	url := fmt.Sprintf("%s/Portal/Meeting/%d", a.baseURL(), meetingID)
	body, err := a.client.Get(ctx, a.Vendor(), url)
	if err != nil {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find("div.agenda-item").Length() > 0
}

var agendaItemIDRe = regexp.MustCompile(`^AgendaItem_(\d+)$`)

func (a *primeGov) FetchAgenda(ctx context.Context, meeting models.NormalizedMeeting) (*models.AgendaDetail, error) {
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
	doc.Find("div.agenda-item").Each(func(_ int, sel *goquery.Selection) {
		id, ok := sel.Attr("id")
		if !ok {
			return
		}
		m := agendaItemIDRe.FindStringSubmatch(id)
		if m == nil {
			return
		}
		itemID := m[1]
		seq++

		item := models.AgendaItem{
			VendorItemID: itemID,
			Sequence:     seq,
			Title:        strings.TrimSpace(sel.Find(".agenda-item-title").First().Text()),
		}
		if item.Title == "" {
			item.Title = firstLine(sel.Text())
		}

		doc.Find(fmt.Sprintf("#agenda_item_area_%s a", itemID)).Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || !strings.Contains(href, "historyId=") {
				return
			}
			item.Attachments = append(item.Attachments, models.AgendaAttachment{
				Name: strings.TrimSpace(link.Text()),
				URL:  absoluteURL(a.baseURL(), href),
			})
		})
		detail.Items = append(detail.Items, item)
	})

	detail.Participation = ExtractParticipation(doc.Text())
	return detail, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// absoluteURL resolves a possibly relative href against the portal base.
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}
