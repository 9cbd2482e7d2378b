package metrics

import "time"

// UptimeTracker measures time since construction.
type UptimeTracker struct {
	start time.Time
	now   func() time.Time
}

// NewUptimeTracker starts counting now.
func NewUptimeTracker() *UptimeTracker {
	return &UptimeTracker{start: time.Now(), now: time.Now}
}

// Start returns the start time.
func (u *UptimeTracker) Start() time.Time { return u.start }

// Uptime returns the elapsed time.
func (u *UptimeTracker) Uptime() time.Duration {
	return u.now().Sub(u.start)
}

// Seconds returns the elapsed time in seconds.
func (u *UptimeTracker) Seconds() float64 {
	return u.Uptime().Seconds()
}
