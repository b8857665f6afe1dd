package conductor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/adapters"
	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
)

// fakeAdapter returns a scripted meeting listing.
type fakeAdapter struct {
	vendor   models.Vendor
	meetings []models.NormalizedMeeting
	err      error
}

func (f *fakeAdapter) Vendor() models.Vendor { return f.vendor }
func (f *fakeAdapter) UpcomingMeetings(context.Context) ([]models.NormalizedMeeting, error) {
	return f.meetings, f.err
}
func (f *fakeAdapter) FetchAgenda(context.Context, models.NormalizedMeeting) (*models.AgendaDetail, error) {
	return nil, nil
}

type fixture struct {
	cond  *Conductor
	store *store.Store
	queue *queue.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewClient(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	q := queue.New(db, config.DefaultQueueConfig())
	cond := New(config.DefaultConductorConfig(), st, q, nil, slog.Default())
	return &fixture{cond: cond, store: st, queue: q}
}

func (f *fixture) seedCity(t *testing.T, banana string, status models.CityStatus) models.City {
	t.Helper()
	city := models.City{
		Banana: banana, Name: "Test City", State: "CA",
		Vendor: models.VendorPrimeGov, Slug: "testcity", Status: status,
	}
	require.NoError(t, f.store.UpsertCity(context.Background(), city))
	return city
}

func listing(ids ...string) []models.NormalizedMeeting {
	out := make([]models.NormalizedMeeting, len(ids))
	for i, id := range ids {
		out[i] = models.NormalizedMeeting{
			VendorMeetingID: id,
			Title:           "City Council",
			StartsAt:        time.Date(2025, 11, 20, 19, 0, 0, 0, time.UTC),
			PacketURL:       "https://testcity.primegov.com/packet-" + id + ".pdf",
		}
	}
	return out
}

func TestPollCityEnqueuesNewMeetings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	city := f.seedCity(t, "testcityCA", models.CityStatusActive)

	f.cond.newAdapter = func(c models.City, _ adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: c.Vendor, meetings: listing("1", "2")}, nil
	}

	n, err := f.cond.PollCity(ctx, city)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	claimed, err := f.queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	payload, err := models.DecodeMeetingPayload(claimed[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "meeting-testcityCA-1", payload.MeetingID)
	assert.Equal(t, "https://testcity.primegov.com/packet-1.pdf", payload.SourceURL)
}

func TestPollCityIdempotentRepoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	city := f.seedCity(t, "testcityCA", models.CityStatusActive)

	f.cond.newAdapter = func(c models.City, _ adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: c.Vendor, meetings: listing("1")}, nil
	}

	n, err := f.cond.PollCity(ctx, city)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unchanged listing enqueues nothing new.
	n, err = f.cond.PollCity(ctx, city)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollCityChangedMeetingToleratesPendingDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	city := f.seedCity(t, "testcityCA", models.CityStatusActive)

	meetings := listing("1")
	f.cond.newAdapter = func(c models.City, _ adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: c.Vendor, meetings: meetings}, nil
	}

	_, err := f.cond.PollCity(ctx, city)
	require.NoError(t, err)

	// The meeting changes upstream while its first job is still pending:
	// the duplicate is skipped without error.
	meetings[0].Title = "City Council (Rescheduled)"
	n, err := f.cond.PollCity(ctx, city)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[queue.StatusPending])
}

func TestPollCycleSkipsFailingCity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCity(t, "brokenCA", models.CityStatusActive)

	working := models.City{
		Banana: "workingCA", Name: "Working", State: "CA",
		Vendor: models.VendorPrimeGov, Slug: "working", Status: models.CityStatusActive,
	}
	require.NoError(t, f.store.UpsertCity(ctx, working))

	f.cond.newAdapter = func(c models.City, _ adapters.HTTPClient) (adapters.Adapter, error) {
		if c.Banana == "brokenCA" {
			return &fakeAdapter{vendor: c.Vendor, err: errors.New("portal down")}, nil
		}
		return &fakeAdapter{vendor: c.Vendor, meetings: listing("9")}, nil
	}

	f.cond.PollCycle(ctx)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[queue.StatusPending])
}

func TestPollOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCity(t, "testcityCA", models.CityStatusActive)
	f.seedCity(t, "sleepyCA", models.CityStatusInactive)

	f.cond.newAdapter = func(c models.City, _ adapters.HTTPClient) (adapters.Adapter, error) {
		return &fakeAdapter{vendor: c.Vendor, meetings: listing("1")}, nil
	}

	// Invalid banana is rejected before any polling.
	_, err := f.cond.PollOnce(ctx, "NotABanana")
	assert.ErrorIs(t, err, models.ErrInvalidBanana)

	// Unknown and inactive cities are distinct errors.
	_, err = f.cond.PollOnce(ctx, "nowhereXX")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.cond.PollOnce(ctx, "sleepyCA")
	assert.ErrorIs(t, err, store.ErrCityInactive)

	n, err := f.cond.PollOnce(ctx, "testcityCA")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Blank banana polls every active city.
	n, err = f.cond.PollOnce(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// blockingAdapter parks in UpcomingMeetings until released.
type blockingAdapter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) Vendor() models.Vendor { return models.VendorPrimeGov }
func (b *blockingAdapter) UpcomingMeetings(context.Context) ([]models.NormalizedMeeting, error) {
	close(b.started)
	<-b.release
	return nil, nil
}
func (b *blockingAdapter) FetchAgenda(context.Context, models.NormalizedMeeting) (*models.AgendaDetail, error) {
	return nil, nil
}

func TestStopWaitsForStartupPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCity(t, "testcityCA", models.CityStatusActive)

	adapter := &blockingAdapter{started: make(chan struct{}), release: make(chan struct{})}
	f.cond.newAdapter = func(models.City, adapters.HTTPClient) (adapters.Adapter, error) {
		return adapter, nil
	}

	require.NoError(t, f.cond.Start(ctx))
	<-adapter.started

	stopped := make(chan struct{})
	go func() {
		f.cond.Stop()
		close(stopped)
	}()

	// Stop must not return while the startup poll is still running.
	select {
	case <-stopped:
		t.Fatal("Stop returned while the startup poll was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(adapter.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the startup poll finished")
	}
}
