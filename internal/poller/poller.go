// Package poller drives the fetch, extract, compare and notify pipeline on a
// time-based cadence.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/user/replacementbot/internal/notifier"
	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/source"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/pkg/logger"
)

// Fetcher acquires the raw replacement page.
type Fetcher interface {
	Fetch(ctx context.Context) (*source.Document, error)
}

// Extractor turns a raw page into a snapshot.
type Extractor interface {
	Extract(doc *source.Document) (*schedule.Snapshot, error)
}

// SnapshotStore persists the latest snapshot.
type SnapshotStore interface {
	Load() (*schedule.Snapshot, error)
	Save(snap *schedule.Snapshot) error
}

// Announcer notifies subscribers about a newly dated snapshot.
type Announcer interface {
	Announce(ctx context.Context, snap *schedule.Snapshot) (*notifier.Result, error)
}

// Housekeeper trims the notification ledger.
type Housekeeper interface {
	CleanupNotifications(ctx context.Context, daysToKeep int) (int64, error)
}

// Outcome is what one poll cycle did.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeUnchanged
	OutcomeUpdated   // content changed, same date: stored silently
	OutcomeAnnounced // date changed: stored and announced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	case OutcomeAnnounced:
		return "announced"
	default:
		return "failed"
	}
}

// Options configures the poller.
type Options struct {
	Cadence          Cadence
	CycleTimeout     time.Duration // bound on fetch, extract and save
	AnnounceTimeout  time.Duration // separate bound on the subscriber fan-out
	HousekeepingSpec string        // cron spec for ledger cleanup; empty disables it
	LedgerRetention  int           // days of ledger history to keep
}

// Poller periodically runs the replacement pipeline.
type Poller struct {
	fetcher     Fetcher
	extractor   Extractor
	store       SnapshotStore
	announcer   Announcer
	housekeeper Housekeeper
	opts        Options

	// pending is set when a date change was stored but its announcement
	// failed; the next cycles retry it even if the page is unchanged.
	pending bool

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a new replacement poller.
func NewPoller(fetcher Fetcher, extractor Extractor, store SnapshotStore, announcer Announcer, opts Options) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 2 * time.Minute
	}
	if opts.AnnounceTimeout <= 0 {
		opts.AnnounceTimeout = 10 * time.Minute
	}
	if opts.LedgerRetention <= 0 {
		opts.LedgerRetention = 30
	}

	return &Poller{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		announcer: announcer,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetHousekeeper enables periodic ledger cleanup.
func (p *Poller) SetHousekeeper(h Housekeeper) {
	p.housekeeper = h
}

// Start runs the first cycle immediately and keeps polling until Stop.
func (p *Poller) Start() error {
	if p.housekeeper != nil && p.opts.HousekeepingSpec != "" {
		loc := p.opts.Cadence.location()
		p.cron = cron.New(cron.WithLocation(loc))
		if _, err := p.cron.AddFunc(p.opts.HousekeepingSpec, p.housekeep); err != nil {
			return fmt.Errorf("invalid housekeeping schedule %q: %w", p.opts.HousekeepingSpec, err)
		}
		p.cron.Start()
	}

	p.wg.Add(1)
	go p.pollLoop()
	logger.Info().
		Int("publish_hour", p.opts.Cadence.PublishHour).
		Dur("peak", p.opts.Cadence.Peak).
		Dur("regular", p.opts.Cadence.Regular).
		Dur("backoff", p.opts.Cadence.Backoff).
		Msg("Poller started")
	return nil
}

// Stop signals the loop to exit and waits for the running cycle to finish.
func (p *Poller) Stop() {
	logger.Info().Msg("Stopping poller")
	p.cancel()
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	p.wg.Wait()
}

// pollLoop is the main polling loop.
func (p *Poller) pollLoop() {
	defer p.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			failed := p.cycle()
			next := p.opts.Cadence.Next(time.Now(), failed)
			logger.Debug().Dur("next", next).Msg("Next poll scheduled")
			timer.Reset(next)
		}
	}
}

// cycle runs one bounded pipeline pass and reports whether it failed.
func (p *Poller) cycle() (failed bool) {
	id := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("cycle", id).Interface("panic", r).Msg("Poll cycle panicked")
			failed = true
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.CycleTimeout)
	defer cancel()

	outcome, err := p.RunOnce(ctx)
	if err != nil {
		logger.Error().
			Err(err).
			Str("cycle", id).
			Dur("took", time.Since(start)).
			Msg("Poll cycle failed")
		return true
	}

	logger.Info().
		Str("cycle", id).
		Str("outcome", outcome.String()).
		Dur("took", time.Since(start)).
		Msg("Poll cycle finished")
	return false
}

// RunOnce fetches, extracts and compares the page with the stored snapshot.
// Content-only changes are stored silently; a date change is stored and
// announced.
func (p *Poller) RunOnce(ctx context.Context) (Outcome, error) {
	doc, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch: %w", err)
	}

	snap, err := p.extractor.Extract(doc)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("extract: %w", err)
	}

	prev, err := p.store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load previous snapshot, treating as new")
		prev = nil
	}

	if !storage.Differs(prev, snap) {
		if p.pending {
			return p.announce(ctx, snap)
		}
		return OutcomeUnchanged, nil
	}

	dateChanged := storage.DateDiffers(prev, snap)
	if err := p.store.Save(snap); err != nil {
		return OutcomeFailed, fmt.Errorf("save snapshot: %w", err)
	}

	if !dateChanged && !p.pending {
		logger.Info().Str("date", snap.DateValue()).Msg("Replacements corrected, stored without notification")
		return OutcomeUpdated, nil
	}
	return p.announce(ctx, snap)
}

// announce runs the fan-out on its own deadline. It keeps ctx's values but not
// its deadline, since fetching may already have used most of the cycle; it is
// still cancelled when the poller stops.
func (p *Poller) announce(ctx context.Context, snap *schedule.Snapshot) (Outcome, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.AnnounceTimeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if _, err := p.announcer.Announce(actx, snap); err != nil {
		p.pending = true
		return OutcomeFailed, fmt.Errorf("announce: %w", err)
	}
	p.pending = false
	return OutcomeAnnounced, nil
}

func (p *Poller) housekeep() {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	removed, err := p.housekeeper.CleanupNotifications(ctx, p.opts.LedgerRetention)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to clean up notification ledger")
		return
	}
	logger.Debug().Int64("removed", removed).Msg("Notification ledger cleaned up")
}
