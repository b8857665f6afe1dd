package adapters

import (
	"regexp"
	"strings"

	"github.com/agendawatch/agendawatch/pkg/models"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// The Phone: prefix keeps webinar and meeting IDs from being read
	// as dial-in numbers.
	phoneRe = regexp.MustCompile(`(?i)phone:\s*(\+?1?[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4})`)

	virtualURLRe = regexp.MustCompile(`https?://[^\s"'<>]*(?:zoom\.us|webex\.com|teams\.microsoft\.com|gotomeeting\.com|youtube\.com|youtu\.be)[^\s"'<>]*`)

	zoomIDRe = regexp.MustCompile(`(?i)(?:meeting\s*id|webinar\s*id)[:\s#]*(\d{3}[\s\-]?\d{3,4}[\s\-]?\d{3,4})`)
)

// hybridKeywords signal a meeting held both in person and online.
var hybridKeywords = []string{
	"hybrid",
	"in person and via",
	"in-person and virtual",
	"both in person and",
	"attend in person or",
}

// ExtractParticipation scrapes public participation details from agenda
// page text. Returns nil when nothing was found.
func ExtractParticipation(text string) *models.Participation {
	p := &models.Participation{}

	if m := emailRe.FindString(text); m != "" {
		p.Email = m
	}
	if m := phoneRe.FindStringSubmatch(text); m != nil {
		p.Phone = strings.TrimSpace(m[1])
	}
	if m := virtualURLRe.FindString(text); m != "" {
		p.VirtualURL = m
	}
	if m := zoomIDRe.FindStringSubmatch(text); m != nil {
		p.ZoomMeetingID = strings.TrimSpace(m[1])
	}

	lower := strings.ToLower(text)
	for _, kw := range hybridKeywords {
		if strings.Contains(lower, kw) {
			p.Hybrid = true
			break
		}
	}

	if p.Email == "" && p.Phone == "" && p.VirtualURL == "" && p.ZoomMeetingID == "" && !p.Hybrid {
		return nil
	}
	return p
}
