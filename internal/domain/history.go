package domain

import "time"

// HistoryRecord is one durable row of the history table, keyed by Href.
// CreateDate must never exceed UpdateDate, and a non-null column timestamp
// is never cleared once written (see history.Store.Merge).
type HistoryRecord struct {
	Href       string
	Phase      int
	VideoCode  string
	CreateDate time.Time
	UpdateDate time.Time

	// Columns holds the first-download timestamp per TorrentType; a missing
	// key or zero time.Time means "not yet downloaded".
	Columns map[TorrentType]time.Time
}

// NewHistoryRecord returns an empty record for href, first seen at t.
func NewHistoryRecord(href string, phase int, videoCode string, t time.Time) *HistoryRecord {
	return &HistoryRecord{
		Href:       href,
		Phase:      phase,
		VideoCode:  videoCode,
		CreateDate: t,
		UpdateDate: t,
		Columns:    make(map[TorrentType]time.Time),
	}
}

// ColumnIsSet reports whether type tt has a recorded download timestamp.
func (h *HistoryRecord) ColumnIsSet(tt TorrentType) bool {
	if h == nil {
		return false
	}
	t, ok := h.Columns[tt]
	return ok && !t.IsZero()
}
