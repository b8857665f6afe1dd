package adapters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// defaultVersionPatterns marks attachments that are revisions of the
// same underlying document.
var defaultVersionPatterns = []string{"leg ver", "legislative version"}

// FilterVersionedAttachments collapses multiple revisions of the same
// document down to the latest one. Attachments whose names match a
// version pattern are partitioned off; the one with the highest explicit
// version number wins (first one when no number parses), and it is
// placed ahead of the unversioned attachments. nil patterns means the
// defaults.
func FilterVersionedAttachments(atts []models.AgendaAttachment, patterns []string) []models.AgendaAttachment {
	if patterns == nil {
		patterns = defaultVersionPatterns
	}

	var versioned, rest []models.AgendaAttachment
	for _, a := range atts {
		name := strings.ToLower(a.Name)
		matched := false
		for _, p := range patterns {
			if strings.Contains(name, p) {
				matched = true
				break
			}
		}
		if matched {
			versioned = append(versioned, a)
		} else {
			rest = append(rest, a)
		}
	}
	if len(versioned) == 0 {
		return rest
	}

	chosen := versioned[0]
	// Scan versions high to low so "ver 10" is not shadowed by "ver 1".
	for n := 10; n >= 1; n-- {
		re := regexp.MustCompile(fmt.Sprintf(`(?i)\b(?:ver|v|version)\s*%d\b`, n))
		found := false
		for _, a := range versioned {
			if re.MatchString(a.Name) {
				chosen = a
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	out := make([]models.AgendaAttachment, 0, len(rest)+1)
	out = append(out, chosen)
	return append(out, rest...)
}
