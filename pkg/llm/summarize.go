package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agendawatch/agendawatch/pkg/pdfchunk"
)

const meetingPrompt = `You are summarizing a municipal government meeting document for residents.
Write a concise plain-language summary of the significant business: decisions,
spending, contracts, ordinances, public hearings, and land use items. Skip
procedural boilerplate.

Meeting: %s

Document text:
%s`

const itemPrompt = `Summarize this agenda item from a municipal meeting in two or three
sentences for residents. Focus on what is being decided and its impact.

Item: %s

Attachment text:
%s`

const matterPrompt = `The following are summaries of the same legislative matter as it appeared
across several municipal meetings, oldest first. Write a short narrative of
how the matter has progressed.

Matter: %s

%s`

const topicsPrompt = `Extract up to eight short topic tags from this meeting summary. Respond
with only a JSON array of strings, e.g. ["housing","budget"].

Summary:
%s`

// SummarizeSections summarizes each chunk section and stitches the
// results. A single section yields one call and no stitching preamble.
func (c *Client) SummarizeSections(ctx context.Context, meetingTitle string, sections []pdfchunk.Section) (string, error) {
	out := make([]pdfchunk.Section, 0, len(sections))
	for _, s := range sections {
		prefix := ""
		if len(sections) > 1 {
			prefix = fmt.Sprintf("This text covers pages %d through %d of a larger packet. Summarize only this portion.\n\n", s.StartPage+1, s.EndPage+1)
		}
		text, err := c.Complete(ctx, fmt.Sprintf(meetingPrompt, meetingTitle, prefix+s.Text))
		if err != nil {
			return "", fmt.Errorf("summarizing pages %d-%d: %w", s.StartPage, s.EndPage, err)
		}
		out = append(out, pdfchunk.Section{
			Index:     s.Index,
			StartPage: s.StartPage,
			EndPage:   s.EndPage,
			Text:      text,
		})
	}
	return pdfchunk.Stitch(out), nil
}

// SummarizeItem produces a short per-item summary from attachment text.
func (c *Client) SummarizeItem(ctx context.Context, itemTitle, text string) (string, error) {
	return c.Complete(ctx, fmt.Sprintf(itemPrompt, itemTitle, text))
}

// SummarizeMatter narrates a recurring matter across its appearances,
// given the per-appearance summaries oldest first.
func (c *Client) SummarizeMatter(ctx context.Context, matterTitle string, appearances []string) (string, error) {
	var b strings.Builder
	for i, a := range appearances {
		fmt.Fprintf(&b, "Appearance %d:\n%s\n\n", i+1, a)
	}
	return c.Complete(ctx, fmt.Sprintf(matterPrompt, matterTitle, b.String()))
}

// Topics asks the model for topic tags over a finished summary. A
// malformed response degrades to no topics rather than failing the job.
func (c *Client) Topics(ctx context.Context, summary string) ([]string, error) {
	raw, err := c.Complete(ctx, fmt.Sprintf(topicsPrompt, summary))
	if err != nil {
		return nil, err
	}
	return parseTopics(raw), nil
}

// parseTopics tolerates code fences and stray prose around the array.
func parseTopics(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var topics []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &topics); err != nil {
		return nil
	}
	cleaned := topics[:0]
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}
