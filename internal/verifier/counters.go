package verifier

import "sync/atomic"

// Counters holds the admission statistics, incremented atomically from
// concurrent connection goroutines.
type Counters struct {
	Accepted            atomic.Uint64
	RejectedUnapproved  atomic.Uint64
	RejectedBlacklisted atomic.Uint64
	RejectedRateLimited atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Accepted            uint64 `json:"accepted"`
	RejectedUnapproved  uint64 `json:"rejectedUnapproved"`
	RejectedBlacklisted uint64 `json:"rejectedBlacklisted"`
	RejectedRateLimited uint64 `json:"rejectedRateLimited"`
}

// Snapshot returns a point-in-time copy of the counters
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Accepted:            c.Accepted.Load(),
		RejectedUnapproved:  c.RejectedUnapproved.Load(),
		RejectedBlacklisted: c.RejectedBlacklisted.Load(),
		RejectedRateLimited: c.RejectedRateLimited.Load(),
	}
}
