// Package history implements the history store (C5): a durable,
// href-keyed CSV table of every entry ever seen and, per TorrentType, when
// it was first downloaded. It supports forward-compatible migration from
// the single-column legacy schema described in the distilled spec's §4.5,
// grounded in original_source/utils/history_manager.py's load/merge
// behavior but expressed as closed Go types with explicit locking instead
// of ad hoc dict mutation.
package history

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

var columnOrder = domain.AllTorrentTypes

var header = append([]string{"href", "phase", "video_code", "create_date", "update_date"}, columnStrings()...)

func columnStrings() []string {
	out := make([]string, len(columnOrder))
	for i, t := range columnOrder {
		out[i] = string(t)
	}
	return out
}

// Store is the on-disk history table. One Store per process per history
// file; Flush takes the exclusive file lock for its own write session.
type Store struct {
	path string
	mu   sync.Mutex

	records map[string]*domain.HistoryRecord
	order   []string // href insertion order, so Flush preserves row order (RT3)
}

// Open loads path (migrating a legacy single-column layout in place if
// found) and returns a ready Store. A missing file is not an error — the
// store starts empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]*domain.HistoryRecord)}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pipeerr.New("history.Open", pipeerr.IO, err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return pipeerr.New("history.load", pipeerr.IO, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return pipeerr.New("history.load", pipeerr.IO, err)
	}
	if len(rows) == 0 {
		return nil
	}
	head := rows[0]
	colIdx := make(map[string]int, len(head))
	for i, c := range head {
		colIdx[c] = i
	}
	legacy := isLegacySchema(colIdx)

	for _, row := range rows[1:] {
		rec, err := s.parseRow(row, colIdx, legacy)
		if err != nil {
			continue // PARSE-kind: skip malformed row, not fatal to the whole load
		}
		existing, ok := s.records[rec.Href]
		if !ok {
			s.order = append(s.order, rec.Href)
		}
		if !ok || rec.UpdateDate.After(existing.UpdateDate) {
			s.records[rec.Href] = rec
		}
	}
	return nil
}

// isLegacySchema detects the older single `torrent_type` column layout the
// distilled spec's §4.5 requires forward-compatible migration from.
func isLegacySchema(colIdx map[string]int) bool {
	_, hasLegacy := colIdx["torrent_type"]
	_, hasNew := colIdx["hacked_subtitle"]
	return hasLegacy && !hasNew
}

func (s *Store) parseRow(row []string, colIdx map[string]int, legacy bool) (*domain.HistoryRecord, error) {
	get := func(name string) string {
		if i, ok := colIdx[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}
	href := get("href")
	if href == "" {
		return nil, pipeerr.New("history.parseRow", pipeerr.Parse, nil)
	}
	phase := 1
	if p := get("phase"); p == "2" {
		phase = 2
	}
	create := parseDate(firstNonEmpty(get("create_date"), get("parsed_date")))
	update := parseDate(firstNonEmpty(get("update_date"), get("parsed_date")))
	if update.Before(create) {
		update = create
	}

	rec := &domain.HistoryRecord{
		Href:       href,
		Phase:      phase,
		VideoCode:  get("video_code"),
		CreateDate: create,
		UpdateDate: update,
		Columns:    make(map[domain.TorrentType]time.Time),
	}

	if legacy {
		// Legacy rows carry no per-type timestamps; the original first-seen
		// date is preserved as CreateDate and every column stays null,
		// exactly as the distilled spec's migration rule requires.
		return rec, nil
	}
	for _, t := range columnOrder {
		if v := get(string(t)); v != "" {
			if ts := parseDate(v); !ts.IsZero() {
				rec.Columns[t] = ts
			}
		}
	}
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Lookup returns the record for href, or nil if none exists.
func (s *Store) Lookup(href string) *domain.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[href]
}

// IsDownloaded reports whether type tt has a recorded timestamp for href.
func (s *Store) IsDownloaded(href string, tt domain.TorrentType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[href].ColumnIsSet(tt)
}

// Overrides carries the should_process overrides the distilled spec's
// §4.5 and CLI surface (§6) allow.
type Overrides struct {
	IgnoreHistory bool
}

// ShouldProcess returns the set of TorrentTypes the scraper should still
// try to obtain for entry in the given phase, per the distilled spec's
// §4.5 rules.
func (s *Store) ShouldProcess(href string, phase int, ov Overrides) domain.TorrentTypeSet {
	if ov.IgnoreHistory {
		return domain.NewTorrentTypeSet(domain.AllTorrentTypes...)
	}

	s.mu.Lock()
	rec := s.records[href]
	s.mu.Unlock()

	if rec == nil {
		if phase == 1 {
			return domain.NewTorrentTypeSet(domain.HackedSubtitle, domain.Subtitle)
		}
		return domain.NewTorrentTypeSet(domain.HackedNoSubtitle)
	}

	if phase == 1 {
		out := domain.NewTorrentTypeSet()
		if !rec.ColumnIsSet(domain.HackedSubtitle) {
			out.Add(domain.HackedSubtitle)
		}
		if !rec.ColumnIsSet(domain.Subtitle) {
			out.Add(domain.Subtitle)
		}
		return out
	}

	// Phase 2 upgrade path: only pursue hacked_no_subtitle once no_subtitle
	// is already recorded but hacked_no_subtitle is not.
	if rec.ColumnIsSet(domain.NoSubtitle) && !rec.ColumnIsSet(domain.HackedNoSubtitle) {
		return domain.NewTorrentTypeSet(domain.HackedNoSubtitle)
	}
	return domain.NewTorrentTypeSet()
}

// Merge creates the record if absent and sets each selected type's column
// to timestamp, never overwriting an existing non-null value (IP2).
func (s *Store) Merge(entry domain.Entry, phase int, selected domain.TorrentTypeSet, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(entry, phase, selected, timestamp)
}

func (s *Store) mergeLocked(entry domain.Entry, phase int, selected domain.TorrentTypeSet, timestamp time.Time) {
	rec, ok := s.records[entry.Href]
	if !ok {
		rec = domain.NewHistoryRecord(entry.Href, phase, entry.VideoCode, timestamp)
		s.records[entry.Href] = rec
		s.order = append(s.order, entry.Href)
	}
	changed := false
	for _, t := range selected.Slice() {
		if !rec.ColumnIsSet(t) {
			rec.Columns[t] = timestamp
			changed = true
		}
	}
	if changed && timestamp.After(rec.UpdateDate) {
		rec.UpdateDate = timestamp
	}
}

// MarkDownloaded is the superset of Merge the uploader (C7) uses after a
// successful add. phase is the discovery phase of the entry being recorded
// — it only takes effect when this is the first time href is seen, since
// Merge never changes an existing record's Phase field.
func (s *Store) MarkDownloaded(entry domain.Entry, phase int, types domain.TorrentTypeSet, timestamp time.Time) {
	s.Merge(entry, phase, types, timestamp)
}

// Flush persists the store atomically (write-temp-then-rename) under an
// exclusive lock for the duration of the write session (fsync on commit).
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := acquireFileLock(s.path + ".lock")
	if err != nil {
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}
	defer unlock()

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}

	for _, href := range s.order {
		rec := s.records[href]
		row := []string{rec.Href, phaseString(rec.Phase), rec.VideoCode, formatDate(rec.CreateDate), formatDate(rec.UpdateDate)}
		for _, t := range columnOrder {
			if ts, ok := rec.Columns[t]; ok && !ts.IsZero() {
				row = append(row, formatDate(ts))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return pipeerr.New("history.Flush", pipeerr.IO, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}
	if err := f.Close(); err != nil {
		return pipeerr.New("history.Flush", pipeerr.IO, err)
	}
	return os.Rename(tmp, s.path)
}

func phaseString(p int) string {
	if p == 2 {
		return "2"
	}
	return "1"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

