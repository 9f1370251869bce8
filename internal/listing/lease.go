package listing

import "time"

// Lease is a time-bounded hold on a listing. It is a value type; only the
// lifecycle service and the sweeper persist or clear it.
type Lease struct {
	Start    time.Time
	Deadline time.Time
	Holder   string
}

// NewLease starts a lease at now lasting d. Timestamps are truncated to the
// precision the store keeps so that the deadline read back matches the
// deadline written.
func NewLease(now time.Time, d time.Duration, holder string) Lease {
	start := now.UTC().Truncate(time.Microsecond)

	return Lease{
		Start:    start,
		Deadline: start.Add(d.Truncate(time.Microsecond)),
		Holder:   holder,
	}
}

// IsExpired reports whether the lease has lapsed at now. A lease is still
// held at exactly its deadline.
func (l Lease) IsExpired(now time.Time) bool {
	return now.After(l.Deadline)
}
