package domain

import "time"

// Lease keys in Extra.
const (
	LeaseExtraReason              = "reason"
	LeaseExtraReclaimedLease      = "reclaimed_lease"
	LeaseExtraReclaimedAcquiredAt = "reclaimed_acquired_at"
)

// Lease is the persisted order-processing lock for one pair. A pair has at
// most one lease row; the row is kept after release so later leases can
// carry TradeAt forward.
type Lease struct {
	ID         string
	PairID     int64
	AcquiredAt time.Time
	TradeAt    time.Time
	Extra      map[string]string
	ReleasedAt *time.Time
}

// Held reports whether the lease has not been released.
func (l *Lease) Held() bool {
	return l.ReleasedAt == nil
}

// Stale reports whether a held lease is older than threshold at now and
// may be reclaimed.
func (l *Lease) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(l.AcquiredAt) > threshold
}

// Clone returns a deep copy.
func (l *Lease) Clone() *Lease {
	c := *l
	if l.Extra != nil {
		c.Extra = make(map[string]string, len(l.Extra))
		for k, v := range l.Extra {
			c.Extra[k] = v
		}
	}
	if l.ReleasedAt != nil {
		t := *l.ReleasedAt
		c.ReleasedAt = &t
	}
	return &c
}
