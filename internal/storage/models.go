// Package storage persists the latest schedule snapshot and the subscriber registry.
package storage

import "time"

// Notification records that a schedule date has been announced.
type Notification struct {
	ScheduleDate string    `db:"schedule_date"`
	RawDate      *string   `db:"raw_date"`
	Delivered    int       `db:"delivered"` // includes chats reached by interrupted earlier runs
	Pruned       int       `db:"pruned"`
	NotifiedAt   time.Time `db:"notified_at"`
}
