package poller

import "time"

// Cadence decides how long to sleep between poll cycles.
type Cadence struct {
	PublishHour int            // local hour during which the schedule is usually published
	Location    *time.Location // zone PublishHour is expressed in
	Peak        time.Duration  // interval inside the publication hour
	Regular     time.Duration  // interval outside it
	Backoff     time.Duration  // interval after a failed cycle
}

// DefaultCadence polls every 20 minutes from 14:00 to 15:00, every 30 minutes
// otherwise and retries failures after 5 minutes.
func DefaultCadence(loc *time.Location) Cadence {
	return Cadence{
		PublishHour: 14,
		Location:    loc,
		Peak:        20 * time.Minute,
		Regular:     30 * time.Minute,
		Backoff:     5 * time.Minute,
	}
}

// InWindow reports whether now falls inside the publication hour.
func (c Cadence) InWindow(now time.Time) bool {
	return now.In(c.location()).Hour() == c.PublishHour
}

// Next returns the delay before the next cycle. A regular sleep is cut short
// so the first poll of the publication hour happens at its start.
func (c Cadence) Next(now time.Time, failed bool) time.Duration {
	if failed {
		return c.Backoff
	}
	if c.InWindow(now) {
		return c.Peak
	}

	d := c.Regular
	local := now.In(c.location())
	start := time.Date(local.Year(), local.Month(), local.Day(), c.PublishHour, 0, 0, 0, c.location())
	if !start.After(local) {
		start = start.AddDate(0, 0, 1)
	}
	if until := start.Sub(local); until < d {
		d = until
	}
	return d
}

func (c Cadence) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
