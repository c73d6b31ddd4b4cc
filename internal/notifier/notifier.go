// Package notifier announces newly published schedules to subscribers.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/pkg/logger"
	"golang.org/x/time/rate"
)

// ErrSubscriberGone marks a permanent delivery failure: the recipient blocked
// the bot or no longer exists. Senders wrap such failures with it.
var ErrSubscriberGone = errors.New("subscriber unreachable")

// ErrInterrupted is returned by Announce when the context ended before every
// subscriber was tried. The date stays unannounced and a later call resumes
// with the subscribers that were not reached.
var ErrInterrupted = errors.New("notification fan-out interrupted")

// Sender delivers one text message to one subscriber.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Registry is the subscriber set, the ledger of announced dates and the
// per-date delivery progress.
type Registry interface {
	List(ctx context.Context) ([]int64, error)
	Remove(ctx context.Context, chatID int64) error
	IsNotified(ctx context.Context, date string) (bool, error)
	RecordNotification(ctx context.Context, n storage.Notification) error
	Attempted(ctx context.Context, date string) ([]int64, error)
	MarkAttempted(ctx context.Context, date string, chatID int64) error
}

// Result summarizes one fan-out.
type Result struct {
	Kept      []int64
	Pruned    []int64
	Remaining []int64 // never tried because the context ended; also in Kept
	Delivered int
	Failed    int // transient failures; those subscribers are kept
}

// Dispatcher sends schedule summaries to every subscriber.
type Dispatcher struct {
	sender   Sender
	registry Registry
	limiter  *rate.Limiter
}

// NewDispatcher creates a dispatcher. ratePerSec <= 0 disables throttling.
func NewDispatcher(sender Sender, registry Registry, ratePerSec int) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		registry: registry,
	}
	if ratePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return d
}

// Notify delivers the snapshot summary to each subscriber and returns the
// subscriber set without the ones that permanently rejected delivery.
func (d *Dispatcher) Notify(ctx context.Context, snap *schedule.Snapshot, subscribers []int64) Result {
	return d.fanOut(ctx, BuildSummary(snap), subscribers, nil)
}

// fanOut sends text to each subscriber in order. tried is called after every
// completed attempt. A send cut short by the context counts as not tried.
func (d *Dispatcher) fanOut(ctx context.Context, text string, subscribers []int64, tried func(chatID int64)) Result {
	res := Result{Kept: make([]int64, 0, len(subscribers))}

	interrupt := func(i int, err error) Result {
		res.Remaining = append([]int64(nil), subscribers[i:]...)
		res.Kept = append(res.Kept, res.Remaining...)
		logger.Warn().Err(err).Int("remaining", len(res.Remaining)).Msg("Notification fan-out interrupted")
		return res
	}

	for i, chatID := range subscribers {
		if err := ctx.Err(); err != nil {
			return interrupt(i, err)
		}
		if d.limiter != nil {
			// Wait also fails early when the next token lies past the deadline.
			if err := d.limiter.Wait(ctx); err != nil {
				return interrupt(i, err)
			}
		}

		err := d.sender.SendText(ctx, chatID, text)
		if err != nil && ctx.Err() != nil {
			return interrupt(i, err)
		}

		switch {
		case err == nil:
			res.Delivered++
			res.Kept = append(res.Kept, chatID)
		case errors.Is(err, ErrSubscriberGone):
			res.Pruned = append(res.Pruned, chatID)
			logger.Info().Err(err).Int64("chat_id", chatID).Msg("Dropping unreachable subscriber")
		default:
			res.Failed++
			res.Kept = append(res.Kept, chatID)
			logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send notification")
		}
		if tried != nil {
			tried(chatID)
		}
	}
	return res
}

// Announce notifies every registered subscriber about a newly dated snapshot
// once per schedule date, and prunes subscribers that are gone. Subscribers
// already tried for the date by an earlier interrupted call are skipped. The
// date is recorded in the ledger only once every subscriber has been tried;
// otherwise ErrInterrupted is returned. It returns nil and no error when there
// is nothing to announce.
func (d *Dispatcher) Announce(ctx context.Context, snap *schedule.Snapshot) (*Result, error) {
	date := snap.DateValue()
	if date == "" {
		logger.Debug().Msg("Snapshot has no date, nothing to announce")
		return nil, nil
	}

	done, err := d.registry.IsNotified(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check notification ledger: %w", err)
	}
	if done {
		logger.Info().Str("date", date).Msg("Schedule date already announced, skipping")
		return nil, nil
	}

	subs, err := d.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	attempted, err := d.registry.Attempted(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery progress: %w", err)
	}
	todo := without(subs, attempted)

	// Bookkeeping must land even when ctx ends mid fan-out.
	book := context.WithoutCancel(ctx)

	res := d.fanOut(ctx, BuildSummary(snap), todo, func(chatID int64) {
		if err := d.registry.MarkAttempted(book, date, chatID); err != nil {
			logger.Error().Err(err).Int64("chat_id", chatID).Str("date", date).Msg("Failed to record delivery progress")
		}
	})
	for _, chatID := range res.Pruned {
		if err := d.registry.Remove(book, chatID); err != nil {
			logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to remove subscriber")
		}
	}

	if len(res.Remaining) > 0 {
		return &res, fmt.Errorf("%w: %d of %d subscribers not reached for %s",
			ErrInterrupted, len(res.Remaining), len(todo), date)
	}

	if err := d.registry.RecordNotification(book, storage.Notification{
		ScheduleDate: date,
		RawDate:      snap.RawDate,
		Delivered:    res.Delivered + len(subs) - len(todo),
		Pruned:       len(res.Pruned),
	}); err != nil {
		return &res, fmt.Errorf("failed to record notification: %w", err)
	}

	logger.Info().
		Str("date", date).
		Int("subscribers", len(subs)).
		Int("resumed_after", len(subs)-len(todo)).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Int("pruned", len(res.Pruned)).
		Msg("Schedule announced")
	return &res, nil
}

// without returns ids in order, minus the ones in skip.
func without(ids, skip []int64) []int64 {
	if len(skip) == 0 {
		return ids
	}
	drop := make(map[int64]struct{}, len(skip))
	for _, id := range skip {
		drop[id] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
