// Package conductor drives the poll cycle: every tick it polls each
// active city's portal, upserts the discovered meetings, enqueues work
// for new or changed ones, and recovers expired leases. Processing
// itself happens on the worker pool, never inline.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/agendawatch/agendawatch/pkg/adapters"
	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
)

// Conductor owns the periodic poll schedule.
type Conductor struct {
	cfg    *config.ConductorConfig
	store  *store.Store
	queue  *queue.Queue
	client adapters.HTTPClient
	logger *slog.Logger

	// newAdapter is swappable so tests can inject fake adapters.
	newAdapter func(models.City, adapters.HTTPClient) (adapters.Adapter, error)

	cron     *cron.Cron
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Conductor.
func New(cfg *config.ConductorConfig, st *store.Store, q *queue.Queue, client adapters.HTTPClient, logger *slog.Logger) *Conductor {
	return &Conductor{
		cfg:        cfg,
		store:      st,
		queue:      q,
		client:     client,
		logger:     logger,
		newAdapter: adapters.New,
	}
}

// Start recovers stale leases, runs one immediate cycle, and schedules
// the recurring one.
func (c *Conductor) Start(ctx context.Context) error {
	if _, err := c.queue.RecoverLeases(ctx); err != nil {
		return fmt.Errorf("recovering leases at startup: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.PollCycle(ctx)
	}()

	c.cron = cron.New()
	_, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.cfg.PollInterval), func() {
		c.PollCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling poll cycle: %w", err)
	}
	c.cron.Start()
	c.logger.Info("conductor started", "poll_interval", c.cfg.PollInterval)
	return nil
}

// Stop halts the schedule and waits for any running cycle, including the
// immediate startup poll, to finish.
func (c *Conductor) Stop() {
	c.stopOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		c.wg.Wait()
		c.logger.Info("conductor stopped")
	})
}

// PollCycle runs one full tick: lease recovery, then a poll of every
// active city. A failing city is logged and skipped; the cycle goes on.
func (c *Conductor) PollCycle(ctx context.Context) {
	if n, err := c.queue.RecoverLeases(ctx); err != nil {
		c.logger.Error("lease recovery failed", "error", err)
	} else if n > 0 {
		c.logger.Info("recovered expired leases", "count", n)
	}

	cities, err := c.store.ListCities(ctx, store.CityFilter{Status: models.CityStatusActive})
	if err != nil {
		c.logger.Error("listing active cities failed", "error", err)
		return
	}

	var enqueued, failed int
	for _, city := range cities {
		if ctx.Err() != nil {
			return
		}
		n, err := c.PollCity(ctx, city)
		if err != nil {
			failed++
			c.logger.Warn("city poll failed, skipping",
				"banana", city.Banana, "vendor", city.Vendor, "error", err)
			continue
		}
		enqueued += n
	}
	c.logger.Info("poll cycle finished",
		"cities", len(cities), "failed", failed, "jobs_enqueued", enqueued)
}

// PollCity polls one city and enqueues a meeting job per new or changed
// meeting. Returns the number of jobs enqueued.
func (c *Conductor) PollCity(ctx context.Context, city models.City) (int, error) {
	adapter, err := c.newAdapter(city, c.client)
	if err != nil {
		return 0, err
	}

	meetings, err := adapter.UpcomingMeetings(ctx)
	if err != nil {
		return 0, err
	}

	changes, err := c.store.UpsertMeetings(ctx, city, meetings)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, change := range changes {
		if !change.New && !change.Changed {
			continue
		}
		payload := models.MeetingPayload{
			MeetingID: change.MeetingID,
			SourceURL: change.SourceURL,
		}
		if _, err := c.queue.Enqueue(ctx, models.JobTypeMeeting, payload); err != nil {
			if errors.Is(err, queue.ErrDuplicate) {
				continue
			}
			return enqueued, fmt.Errorf("enqueueing meeting %s: %w", change.MeetingID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// PollOnce polls a single city by banana, or every active city when
// banana is blank. Used by the CLI.
func (c *Conductor) PollOnce(ctx context.Context, banana string) (int, error) {
	if banana != "" {
		if err := models.ValidateBanana(banana); err != nil {
			return 0, err
		}
		city, err := c.store.GetCity(ctx, banana)
		if err != nil {
			return 0, err
		}
		if city.Status != models.CityStatusActive {
			return 0, fmt.Errorf("%w: %s", store.ErrCityInactive, banana)
		}
		return c.PollCity(ctx, city)
	}

	cities, err := c.store.ListCities(ctx, store.CityFilter{Status: models.CityStatusActive})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, city := range cities {
		n, err := c.PollCity(ctx, city)
		if err != nil {
			c.logger.Warn("city poll failed, skipping",
				"banana", city.Banana, "vendor", city.Vendor, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}
