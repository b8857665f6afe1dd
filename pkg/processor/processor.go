// Package processor executes queue jobs: it turns a meeting's packet,
// agenda page, or stored items into text, summarizes through the LLM,
// and writes results back to the store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agendawatch/agendawatch/pkg/adapters"
	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/extract"
	"github.com/agendawatch/agendawatch/pkg/fetch"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/pdfchunk"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
)

// maxPacketBytes is a hard ceiling on any single download. Packets past
// the chunking threshold are still fetched whole; this guard only stops
// runaway responses.
const maxPacketBytes = 512 << 20

// Downloader is the slice of the fetcher the processor uses.
type Downloader interface {
	Download(ctx context.Context, vendor models.Vendor, url string, maxBytes int64) ([]byte, error)
}

// Summarizer is the slice of the LLM client the processor uses.
type Summarizer interface {
	SummarizeSections(ctx context.Context, meetingTitle string, sections []pdfchunk.Section) (string, error)
	SummarizeItem(ctx context.Context, itemTitle, text string) (string, error)
	SummarizeMatter(ctx context.Context, matterTitle string, appearances []string) (string, error)
	Topics(ctx context.Context, summary string) ([]string, error)
}

// Processor is the queue executor for meeting and matter jobs.
type Processor struct {
	cfg       *config.Config
	store     *store.Store
	queue     *queue.Queue
	fetcher   Downloader
	client    adapters.HTTPClient
	chunker   *pdfchunk.Chunker
	extractor extract.Extractor
	llm       Summarizer
	logger    *slog.Logger

	// newAdapter is swappable so tests can inject fake adapters.
	newAdapter func(models.City, adapters.HTTPClient) (adapters.Adapter, error)
}

// New creates a Processor.
func New(cfg *config.Config, st *store.Store, q *queue.Queue, fetcher Downloader,
	client adapters.HTTPClient, chunker *pdfchunk.Chunker, extractor extract.Extractor,
	llm Summarizer, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		store:      st,
		queue:      q,
		fetcher:    fetcher,
		client:     client,
		chunker:    chunker,
		extractor:  extractor,
		llm:        llm,
		logger:     logger,
		newAdapter: adapters.New,
	}
}

// Execute dispatches one claimed queue entry.
func (p *Processor) Execute(ctx context.Context, entry *queue.Entry) error {
	switch entry.JobType {
	case models.JobTypeMeeting:
		return p.processMeeting(ctx, entry)
	case models.JobTypeMatter:
		return p.processMatter(ctx, entry)
	default:
		return fmt.Errorf("corrupt_payload: unknown job type %q", entry.JobType)
	}
}

func (p *Processor) processMeeting(ctx context.Context, entry *queue.Entry) error {
	payload, err := models.DecodeMeetingPayload(entry.Payload)
	if err != nil {
		// Corrupt payloads can never succeed; fail terminally.
		return fmt.Errorf("corrupt_payload: %w", err)
	}

	meeting, err := p.store.GetMeeting(ctx, payload.MeetingID)
	if err != nil {
		return err
	}
	city, err := p.store.GetCity(ctx, meeting.Banana)
	if err != nil {
		return err
	}

	if err := p.store.SetProcessingStatus(ctx, meeting.ID, models.ProcessingRunning); err != nil {
		return err
	}

	err = p.runMeeting(ctx, city, meeting, payload)
	if err != nil {
		if serr := p.store.SetProcessingStatus(context.WithoutCancel(ctx), meeting.ID, models.ProcessingFailed); serr != nil {
			p.logger.Error("marking meeting failed", "meeting_id", meeting.ID, "error", serr)
		}
		return err
	}
	return nil
}

func (p *Processor) runMeeting(ctx context.Context, city models.City, meeting *store.MeetingRow, payload models.MeetingPayload) error {
	if _, ok := models.ParseItemsURL(payload.SourceURL); ok {
		return p.processItems(ctx, city, meeting)
	}
	if meeting.PacketURL != nil || strings.HasSuffix(strings.ToLower(payload.SourceURL), ".pdf") {
		return p.processPacket(ctx, city, meeting, payload.SourceURL)
	}
	return p.processAgenda(ctx, city, meeting)
}

// processPacket handles a monolithic packet: download, chunk when
// oversized, extract per chunk, summarize, record.
func (p *Processor) processPacket(ctx context.Context, city models.City, meeting *store.MeetingRow, url string) error {
	pdf, err := p.fetcher.Download(ctx, city.Vendor, url, maxPacketBytes)
	if err != nil {
		return err
	}

	sections, method, err := p.extractSections(ctx, pdf)
	if err != nil {
		return fmt.Errorf("extraction_failed: %w", err)
	}

	summary, err := p.llm.SummarizeSections(ctx, meeting.Title, sections)
	if err != nil {
		return err
	}
	topics := p.topicsFor(ctx, meeting.ID, summary)
	return p.store.RecordSummary(ctx, meeting.ID, summary, topics, method)
}

// extractSections splits an oversized PDF and extracts text per chunk.
// Documents under both caps get a single pass.
func (p *Processor) extractSections(ctx context.Context, pdf []byte) ([]pdfchunk.Section, string, error) {
	needs, err := p.chunker.NeedsSplit(pdf)
	if err != nil {
		return nil, "", err
	}

	if !needs {
		res, err := p.extractor.ExtractText(ctx, pdf)
		if err != nil {
			return nil, "", err
		}
		end := res.PageCount - 1
		if end < 0 {
			end = 0
		}
		return []pdfchunk.Section{{Index: 1, StartPage: 0, EndPage: end, Text: res.Text}}, res.Method, nil
	}

	chunks, err := p.chunker.Split(pdf)
	if err != nil {
		return nil, "", err
	}
	sections := make([]pdfchunk.Section, 0, len(chunks))
	method := ""
	for _, ch := range chunks {
		res, err := p.extractor.ExtractText(ctx, ch.Content)
		if err != nil {
			return nil, "", fmt.Errorf("chunk %d/%d: %w", ch.ChunkNumber, ch.TotalChunks, err)
		}
		method = res.Method
		sections = append(sections, pdfchunk.Section{
			Index:     ch.ChunkNumber,
			StartPage: ch.StartPage,
			EndPage:   ch.EndPage,
			Text:      res.Text,
		})
	}
	return sections, method, nil
}

// processAgenda handles an item-level HTML agenda: persist the item set,
// then summarize each item's attachments and roll them up.
func (p *Processor) processAgenda(ctx context.Context, city models.City, meeting *store.MeetingRow) error {
	adapter, err := p.newAdapter(city, p.client)
	if err != nil {
		return err
	}

	nm := models.NormalizedMeeting{
		VendorMeetingID: meeting.VendorMeetingID,
		Title:           meeting.Title,
		StartsAt:        meeting.StartsAt,
	}
	if meeting.AgendaURL != nil {
		nm.AgendaURL = *meeting.AgendaURL
	}

	detail, err := adapter.FetchAgenda(ctx, nm)
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("vendor %s returned no agenda detail for %s", city.Vendor, meeting.ID)
	}

	if err := p.store.UpsertItemsAndAttachments(ctx, meeting.ID, *detail); err != nil {
		return err
	}
	if detail.Participation != nil {
		if err := p.store.SetParticipation(ctx, meeting.ID, detail.Participation); err != nil {
			return err
		}
	}

	if err := p.processItems(ctx, city, meeting); err != nil {
		return err
	}
	// Matter rollups read item summaries, so matters are recorded and
	// enqueued only after the items carry theirs. Otherwise a concurrently
	// claimed matter job would roll up bare titles.
	return p.enqueueMatters(ctx, city, meeting, detail.Items)
}

// enqueueMatters records recurring matters found on the agenda and
// enqueues one matter job per matter touched by this meeting.
func (p *Processor) enqueueMatters(ctx context.Context, city models.City, meeting *store.MeetingRow, items []models.AgendaItem) error {
	byMatter := make(map[string][]string)
	for _, item := range items {
		if item.MatterNumber == "" {
			continue
		}
		itemID := models.ItemID(meeting.ID, item.Sequence)
		matterID, err := p.store.UpsertMatter(ctx, city.Banana, item.MatterNumber, item.Title, meeting.ID, itemID)
		if err != nil {
			return err
		}
		byMatter[matterID] = append(byMatter[matterID], itemID)
	}

	for matterID, itemIDs := range byMatter {
		payload := models.MatterPayload{
			MatterID:  matterID,
			MeetingID: meeting.ID,
			ItemIDs:   itemIDs,
		}
		if _, err := p.queue.Enqueue(ctx, models.JobTypeMatter, payload); err != nil && !errors.Is(err, queue.ErrDuplicate) {
			return fmt.Errorf("enqueueing matter %s: %w", matterID, err)
		}
	}
	return nil
}

// processItems summarizes the stored item set of a meeting attachment by
// attachment. Items that already carry a summary are left alone, so a
// re-enqueued meeting only pays for what changed.
func (p *Processor) processItems(ctx context.Context, city models.City, meeting *store.MeetingRow) error {
	items, err := p.store.ListItems(ctx, meeting.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("meeting %s has no stored items", meeting.ID)
	}

	method := ""
	var rollup strings.Builder
	for _, item := range items {
		if item.Summary != nil {
			fmt.Fprintf(&rollup, "%d. %s\n%s\n\n", item.Sequence, item.Title, *item.Summary)
			continue
		}

		text, m := p.attachmentText(ctx, city, item)
		if m != "" {
			method = m
		}
		if strings.TrimSpace(text) == "" {
			// Nothing to summarize; the bare title still appears in the
			// rollup.
			fmt.Fprintf(&rollup, "%d. %s\n\n", item.Sequence, item.Title)
			continue
		}

		summary, err := p.llm.SummarizeItem(ctx, item.Title, text)
		if err != nil {
			return err
		}
		if err := p.store.SetItemSummary(ctx, item.ID, summary); err != nil {
			return err
		}
		fmt.Fprintf(&rollup, "%d. %s\n%s\n\n", item.Sequence, item.Title, summary)
	}

	summary := strings.TrimSpace(rollup.String())
	if summary == "" {
		return fmt.Errorf("extraction_failed: no item produced any text for %s", meeting.ID)
	}
	topics := p.topicsFor(ctx, meeting.ID, summary)
	return p.store.RecordSummary(ctx, meeting.ID, summary, topics, method)
}

// attachmentText downloads and extracts every attachment of an item.
// Individual attachment failures are logged and skipped so one broken
// link does not sink the whole meeting.
func (p *Processor) attachmentText(ctx context.Context, city models.City, item *store.ItemRow) (string, string) {
	var texts []string
	method := ""
	for _, att := range item.Attachments {
		pdf, err := p.fetcher.Download(ctx, city.Vendor, att.URL, p.cfg.Chunker.MaxBytes)
		if err != nil {
			if errors.Is(err, fetch.ErrTooLarge) {
				p.logger.Warn("attachment exceeds size guard, skipping",
					"item_id", item.ID, "url", att.URL)
				continue
			}
			p.logger.Warn("attachment download failed, skipping",
				"item_id", item.ID, "url", att.URL, "error", err)
			continue
		}
		res, err := p.extractor.ExtractText(ctx, pdf)
		if err != nil {
			p.logger.Warn("attachment extraction failed, skipping",
				"item_id", item.ID, "url", att.URL, "error", err)
			continue
		}
		method = res.Method
		texts = append(texts, fmt.Sprintf("%s:\n%s", att.Name, res.Text))
	}
	return strings.Join(texts, "\n\n"), method
}

// topicsFor extracts topic tags from a finished summary. Topic failures
// degrade to an untagged summary rather than failing the job.
func (p *Processor) topicsFor(ctx context.Context, meetingID, summary string) []string {
	topics, err := p.llm.Topics(ctx, summary)
	if err != nil {
		p.logger.Warn("topic extraction failed", "meeting_id", meetingID, "error", err)
		return nil
	}
	return topics
}

func (p *Processor) processMatter(ctx context.Context, entry *queue.Entry) error {
	payload, err := models.DecodeMatterPayload(entry.Payload)
	if err != nil {
		return fmt.Errorf("corrupt_payload: %w", err)
	}

	matter, err := p.store.GetMatter(ctx, payload.MatterID)
	if err != nil {
		return err
	}

	appearances, err := p.store.ListAppearances(ctx, payload.MatterID)
	if err != nil {
		return err
	}

	var history []string
	for _, app := range appearances {
		item, err := p.store.GetItem(ctx, app.ItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if item.Summary != nil {
			history = append(history, *item.Summary)
		} else {
			history = append(history, item.Title)
		}
	}
	if len(history) == 0 {
		return fmt.Errorf("matter %s has no appearances to summarize", payload.MatterID)
	}

	summary, err := p.llm.SummarizeMatter(ctx, matter.Title, history)
	if err != nil {
		return err
	}
	return p.store.RecordMatterSummary(ctx, payload.MatterID, summary)
}
