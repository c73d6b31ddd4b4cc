package storage

import (
	"context"
	"database/sql"
	"errors"
)

// SubscriberStore handles subscriber and notification ledger operations.
type SubscriberStore struct {
	db *Database
}

// NewSubscriberStore creates a new subscriber store.
func NewSubscriberStore(db *Database) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Add registers a chat. Adding a known chat is a no-op; added reports whether
// the chat was new.
func (s *SubscriberStore) Add(ctx context.Context, chatID int64) (added bool, err error) {
	result, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO subscribers (chat_id) VALUES (?)`, chatID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove deletes a chat from the registry.
func (s *SubscriberStore) Remove(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	return err
}

// List returns every subscriber id in registration order.
func (s *SubscriberStore) List(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT chat_id FROM subscribers ORDER BY created_at, chat_id`)
	return ids, err
}

// Count returns the number of subscribers.
func (s *SubscriberStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscribers`)
	return n, err
}

// IsNotified reports whether the schedule date has already been announced.
func (s *SubscriberStore) IsNotified(ctx context.Context, date string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE schedule_date = ?`, date)
	return count > 0, err
}

// RecordNotification stores the outcome of announcing a schedule date.
func (s *SubscriberStore) RecordNotification(ctx context.Context, n Notification) error {
	query := `
		INSERT INTO notifications (schedule_date, raw_date, delivered, pruned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(schedule_date) DO UPDATE SET
			raw_date = excluded.raw_date,
			delivered = excluded.delivered,
			pruned = excluded.pruned,
			notified_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query, n.ScheduleDate, n.RawDate, n.Delivered, n.Pruned)
	return err
}

// MarkAttempted records that the announcement for date has been sent to the
// chat, successfully or not, so an interrupted fan-out resumes after it.
func (s *SubscriberStore) MarkAttempted(ctx context.Context, date string, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (schedule_date, chat_id) VALUES (?, ?)`, date, chatID)
	return err
}

// Attempted returns the chats already messaged about date.
func (s *SubscriberStore) Attempted(ctx context.Context, date string) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM deliveries WHERE schedule_date = ? ORDER BY chat_id`, date)
	return ids, err
}

// LastNotification returns the most recent ledger entry, or nil when empty.
func (s *SubscriberStore) LastNotification(ctx context.Context) (*Notification, error) {
	var n Notification
	err := s.db.GetContext(ctx, &n, `SELECT * FROM notifications ORDER BY notified_at DESC, schedule_date DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CleanupNotifications removes ledger entries and delivery progress older
// than daysToKeep days. It returns the number of ledger entries removed.
func (s *SubscriberStore) CleanupNotifications(ctx context.Context, daysToKeep int) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM notifications WHERE notified_at < datetime('now', '-' || ? || ' days')`, daysToKeep)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM deliveries WHERE attempted_at < datetime('now', '-' || ? || ' days')`, daysToKeep); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
