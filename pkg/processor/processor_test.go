package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/adapters"
	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/extract"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/pdfchunk"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
)

// fakeDownloader serves canned bytes by URL.
type fakeDownloader struct {
	files map[string][]byte
	errs  map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, _ models.Vendor, url string, _ int64) ([]byte, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("http 404 fetching %s", url)
	}
	return body, nil
}

// fakeExtractor returns the PDF bytes as text.
type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) ExtractText(_ context.Context, pdf []byte) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Result{Text: string(pdf), PageCount: 1, Method: "fast-text"}, nil
}

// onePageEngine treats every document as one page so nothing splits.
type onePageEngine struct{}

func (onePageEngine) PageCount([]byte) (int, error) { return 1, nil }
func (onePageEngine) ExtractRange(pdf []byte, _, _ int) ([]byte, error) {
	return pdf, nil
}

// fakeSummarizer echoes deterministic summaries.
type fakeSummarizer struct {
	itemCalls    int
	sectionCalls int
	matterCalls  int
	appearances  []string
}

func (f *fakeSummarizer) SummarizeSections(_ context.Context, title string, sections []pdfchunk.Section) (string, error) {
	f.sectionCalls++
	return fmt.Sprintf("summary of %s (%d sections)", title, len(sections)), nil
}

func (f *fakeSummarizer) SummarizeItem(_ context.Context, title, _ string) (string, error) {
	f.itemCalls++
	return "item summary: " + title, nil
}

func (f *fakeSummarizer) SummarizeMatter(_ context.Context, title string, appearances []string) (string, error) {
	f.matterCalls++
	f.appearances = appearances
	return fmt.Sprintf("matter %s over %d appearances", title, len(appearances)), nil
}

func (f *fakeSummarizer) Topics(_ context.Context, _ string) ([]string, error) {
	return []string{"budget"}, nil
}

// fakeAdapter serves a fixed agenda detail.
type fakeAdapter struct {
	vendor models.Vendor
	detail *models.AgendaDetail
}

func (f *fakeAdapter) Vendor() models.Vendor { return f.vendor }
func (f *fakeAdapter) UpcomingMeetings(context.Context) ([]models.NormalizedMeeting, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchAgenda(context.Context, models.NormalizedMeeting) (*models.AgendaDetail, error) {
	return f.detail, nil
}

type fixture struct {
	proc  *Processor
	store *store.Store
	queue *queue.Queue
	sum   *fakeSummarizer
	dl    *fakeDownloader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewClient(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Queue:   &config.QueueConfig{MaxAttempts: 3, Lease: 15 * time.Minute},
		Chunker: &config.ChunkerConfig{MaxBytes: 1 << 20, MaxPages: 90},
	}
	st := store.New(db)
	q := queue.New(db, cfg.Queue)
	sum := &fakeSummarizer{}
	dl := &fakeDownloader{files: map[string][]byte{}, errs: map[string]error{}}

	proc := New(cfg, st, q, dl, nil, pdfchunk.New(cfg.Chunker, onePageEngine{}), &fakeExtractor{}, sum, slog.Default())
	return &fixture{proc: proc, store: st, queue: q, sum: sum, dl: dl}
}

func (f *fixture) seedMeeting(t *testing.T, nm models.NormalizedMeeting) models.City {
	t.Helper()
	ctx := context.Background()
	city := models.City{
		Banana: "paloaltoCA", Name: "Palo Alto", State: "CA",
		Vendor: models.VendorPrimeGov, Slug: "cityofpaloalto", Status: models.CityStatusActive,
	}
	require.NoError(t, f.store.UpsertCity(ctx, city))
	_, err := f.store.UpsertMeetings(ctx, city, []models.NormalizedMeeting{nm})
	require.NoError(t, err)
	return city
}

func meetingEntry(t *testing.T, meetingID, sourceURL string) *queue.Entry {
	t.Helper()
	raw, err := json.Marshal(models.MeetingPayload{MeetingID: meetingID, SourceURL: sourceURL})
	require.NoError(t, err)
	return &queue.Entry{ID: "e1", JobType: models.JobTypeMeeting, Payload: raw}
}

func TestProcessPacketMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	packetURL := "https://cityofpaloalto.primegov.com/packet.pdf"
	f.dl.files[packetURL] = []byte("CALL TO ORDER. Budget hearing. ADJOURN.")
	f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt: time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC), PacketURL: packetURL,
	})

	require.NoError(t, f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", packetURL)))

	row, err := f.store.GetMeeting(ctx, "meeting-paloaltoCA-7")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingCompleted, row.ProcessingStatus)
	assert.Equal(t, "summary of City Council (1 sections)", *row.Summary)
	assert.Equal(t, `["budget"]`, *row.Topics)
	assert.Equal(t, "fast-text", *row.ExtractionMethod)
	assert.Equal(t, 1, f.sum.sectionCalls)
}

func TestCorruptPayloadFailsTerminally(t *testing.T) {
	f := newFixture(t)

	entry := &queue.Entry{ID: "e1", JobType: models.JobTypeMeeting, Payload: json.RawMessage(`{"legacy": true}`)}
	err := f.proc.Execute(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt_payload")
	assert.False(t, queue.IsRetryable(err))
}

func TestUnknownJobType(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Execute(context.Background(), &queue.Entry{ID: "e1", JobType: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt_payload")
}

func TestExtractionFailureMarksMeetingFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	packetURL := "https://cityofpaloalto.primegov.com/packet.pdf"
	f.dl.files[packetURL] = []byte("scanned garbage")
	f.proc.extractor = &fakeExtractor{err: &extract.Error{Method: "fast-text"}}
	f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt: time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC), PacketURL: packetURL,
	})

	err := f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", packetURL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction_failed")

	row, err := f.store.GetMeeting(ctx, "meeting-paloaltoCA-7")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, row.ProcessingStatus)
}

func TestProcessAgendaMeetingEnqueuesMatters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agendaURL := "https://cityofpaloalto.primegov.com/Portal/Meeting/7"
	city := f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt: time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC), AgendaURL: agendaURL,
	})

	attachmentURL := "https://cityofpaloalto.primegov.com/Public/Download?historyId=991"
	f.dl.files[attachmentURL] = []byte("staff report text")
	f.proc.newAdapter = func(models.City, adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: city.Vendor, detail: &models.AgendaDetail{
			Items: []models.AgendaItem{
				{
					VendorItemID: "12", Sequence: 1, Title: "Budget Amendment",
					MatterNumber: "25-0481",
					Attachments:  []models.AgendaAttachment{{Name: "Staff Report", URL: attachmentURL}},
				},
				{VendorItemID: "15", Sequence: 2, Title: "Proclamation"},
			},
			Participation: &models.Participation{Email: "clerk@cityofpaloalto.org"},
		}}, nil
	}

	require.NoError(t, f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", agendaURL)))

	row, err := f.store.GetMeeting(ctx, "meeting-paloaltoCA-7")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingCompleted, row.ProcessingStatus)
	require.NotNil(t, row.Summary)
	assert.Contains(t, *row.Summary, "1. Budget Amendment")
	assert.Contains(t, *row.Summary, "item summary: Budget Amendment")
	// The attachment-less item appears as a bare title line.
	assert.Contains(t, *row.Summary, "2. Proclamation")
	require.NotNil(t, row.Participation)

	// Only the item with text got an LLM call.
	assert.Equal(t, 1, f.sum.itemCalls)

	// One matter job was enqueued for the matter-bearing item.
	claimed, err := f.queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.JobTypeMatter, claimed[0].JobType)

	payload, err := models.DecodeMatterPayload(claimed[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "matter-paloaltoCA-25-0481", payload.MatterID)
	assert.Equal(t, []string{"item-meeting-paloaltoCA-7-1"}, payload.ItemIDs)
}

func TestMatterJobRollsUpItemSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agendaURL := "https://cityofpaloalto.primegov.com/Portal/Meeting/7"
	city := f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt: time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC), AgendaURL: agendaURL,
	})

	attachmentURL := "https://cityofpaloalto.primegov.com/Public/Download?historyId=991"
	f.dl.files[attachmentURL] = []byte("staff report text")
	f.proc.newAdapter = func(models.City, adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: city.Vendor, detail: &models.AgendaDetail{
			Items: []models.AgendaItem{{
				VendorItemID: "12", Sequence: 1, Title: "Budget Amendment",
				MatterNumber: "25-0481",
				Attachments:  []models.AgendaAttachment{{Name: "Staff Report", URL: attachmentURL}},
			}},
		}}, nil
	}

	require.NoError(t, f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", agendaURL)))

	// The matter job is enqueued only after the item carries its summary,
	// so a worker claiming it right away rolls up the summary, not the
	// bare title.
	claimed, err := f.queue.Claim(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.JobTypeMatter, claimed[0].JobType)
	require.NoError(t, f.proc.Execute(ctx, claimed[0]))

	require.Len(t, f.sum.appearances, 1)
	assert.Equal(t, "item summary: Budget Amendment", f.sum.appearances[0])
}

func TestProcessItemsSkipsSummarized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	city := f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt:  time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC),
		AgendaURL: "https://cityofpaloalto.primegov.com/Portal/Meeting/7",
	})
	_ = city

	attachmentURL := "https://cityofpaloalto.primegov.com/Public/Download?historyId=991"
	f.dl.files[attachmentURL] = []byte("exhibit text")
	require.NoError(t, f.store.UpsertItemsAndAttachments(ctx, "meeting-paloaltoCA-7", models.AgendaDetail{
		Items: []models.AgendaItem{
			{VendorItemID: "12", Sequence: 1, Title: "Carried Over",
				Attachments: []models.AgendaAttachment{{Name: "Exhibit", URL: attachmentURL}}},
		},
	}))
	require.NoError(t, f.store.SetItemSummary(ctx, "item-meeting-paloaltoCA-7-1", "already summarized"))

	// items:// source routes to the stored item set.
	itemsURL := models.ItemsURL("meeting-paloaltoCA-7")
	require.NoError(t, f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", itemsURL)))

	// The existing summary was reused without another LLM item call.
	assert.Zero(t, f.sum.itemCalls)

	row, err := f.store.GetMeeting(ctx, "meeting-paloaltoCA-7")
	require.NoError(t, err)
	assert.Contains(t, *row.Summary, "already summarized")
}

func TestProcessMatter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt:  time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC),
		AgendaURL: "https://cityofpaloalto.primegov.com/Portal/Meeting/7",
	})
	require.NoError(t, f.store.UpsertItemsAndAttachments(ctx, "meeting-paloaltoCA-7", models.AgendaDetail{
		Items: []models.AgendaItem{{VendorItemID: "12", Sequence: 1, Title: "Housing Element"}},
	}))
	require.NoError(t, f.store.SetItemSummary(ctx, "item-meeting-paloaltoCA-7-1", "First reading held."))

	matterID, err := f.store.UpsertMatter(ctx, "paloaltoCA", "25-0481", "Housing Element",
		"meeting-paloaltoCA-7", "item-meeting-paloaltoCA-7-1")
	require.NoError(t, err)

	raw, err := json.Marshal(models.MatterPayload{
		MatterID: matterID, MeetingID: "meeting-paloaltoCA-7",
		ItemIDs: []string{"item-meeting-paloaltoCA-7-1"},
	})
	require.NoError(t, err)

	entry := &queue.Entry{ID: "e2", JobType: models.JobTypeMatter, Payload: raw}
	require.NoError(t, f.proc.Execute(ctx, entry))
	assert.Equal(t, 1, f.sum.matterCalls)

	matter, err := f.store.GetMatter(ctx, matterID)
	require.NoError(t, err)
	assert.Equal(t, "matter Housing Element over 1 appearances", *matter.Summary)
}

func TestAttachmentFailuresAreSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedMeeting(t, models.NormalizedMeeting{
		VendorMeetingID: "7", Title: "City Council",
		StartsAt:  time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC),
		AgendaURL: "https://cityofpaloalto.primegov.com/Portal/Meeting/7",
	})

	goodURL := "https://files.example.com/good.pdf"
	deadURL := "https://files.example.com/dead.pdf"
	f.dl.files[goodURL] = []byte("usable text")
	require.NoError(t, f.store.UpsertItemsAndAttachments(ctx, "meeting-paloaltoCA-7", models.AgendaDetail{
		Items: []models.AgendaItem{
			{VendorItemID: "12", Sequence: 1, Title: "Mixed Attachments",
				Attachments: []models.AgendaAttachment{
					{Name: "Dead Link", URL: deadURL},
					{Name: "Good", URL: goodURL},
				}},
		},
	}))

	require.NoError(t, f.proc.Execute(ctx, meetingEntry(t, "meeting-paloaltoCA-7", models.ItemsURL("meeting-paloaltoCA-7"))))

	item, err := f.store.GetItem(ctx, "item-meeting-paloaltoCA-7-1")
	require.NoError(t, err)
	require.NotNil(t, item.Summary)
	assert.True(t, strings.HasPrefix(*item.Summary, "item summary:"))
}
