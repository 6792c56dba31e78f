package domain

import "time"

// ProxyEntry is one configured proxy and its in-memory runtime state.
type ProxyEntry struct {
	Name string
	URL  string // outbound HTTP/HTTPS URL, may carry credentials

	ConsecutiveFailures int
	LastSuccess         time.Time
	LastFailure         time.Time
	LastUsedAt          time.Time
	Banned              bool
	CooldownExpiry      time.Time
	TotalSuccess        int64
	TotalFailure        int64
}

// IsCoolingDown reports whether p is still serving its cooldown at t. The
// boundary is exclusive: a cooldown expiring exactly at t is not banned.
func (p *ProxyEntry) IsCoolingDown(t time.Time) bool {
	return p.Banned && t.Before(p.CooldownExpiry)
}

// BanRecord is a persistent row of the ban ledger.
type BanRecord struct {
	ProxyName   string
	ProxyHost   string
	BannedAt    time.Time
	ExpiresAt   time.Time
	Reason      string
	Description string
}

// StillBanned reports whether the record's cooldown has not yet expired at
// t. Exclusive boundary: ExpiresAt == t means no longer banned.
func (b BanRecord) StillBanned(t time.Time) bool {
	return t.Before(b.ExpiresAt)
}

// ProxySnapshot is the per-proxy statistics object returned by
// proxy.Pool.Snapshot for inclusion in a RunStatus.
type ProxySnapshot struct {
	Name                string
	Banned              bool
	CooldownExpiry       time.Time
	ConsecutiveFailures int
	TotalSuccess        int64
	TotalFailure        int64
}
