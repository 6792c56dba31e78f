// Package banledger persists proxy BanRecords (C10) to a durable CSV table.
// Appends are guarded by a filesystem lock so a concurrent reader either
// sees the ledger before or after a new record, never a partial one (IP7).
package banledger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

var header = []string{"proxy_name", "proxy_host", "banned_at", "expires_at", "reason", "description"}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Ledger is the on-disk ban-record table used by the proxy pool.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New returns a Ledger backed by path, creating its parent directory if
// necessary.
func New(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pipeerr.New("banledger.New", pipeerr.IO, err)
	}
	return &Ledger{path: path}, nil
}

// All reads every record currently in the ledger, expired or not.
func (l *Ledger) All() ([]domain.BanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Active returns only the records whose cooldown has not yet expired at t —
// expired records remain in the file as history but are filtered here.
func (l *Ledger) Active(t time.Time) ([]domain.BanRecord, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, r := range all {
		if r.StillBanned(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Append adds rec to the ledger under an exclusive filesystem lock, making
// the write atomic with respect to concurrent readers (IP7): it rewrites a
// temp file with the full table, then renames over the original.
func (l *Ledger) Append(rec domain.BanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := acquireFileLock(l.path + ".lock")
	if err != nil {
		return pipeerr.New("banledger.Append", pipeerr.IO, err)
	}
	defer unlock()

	records, err := l.readLocked()
	if err != nil {
		return err
	}
	records = append(records, rec)
	return l.writeLocked(records)
}

func (l *Ledger) readLocked() ([]domain.BanRecord, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.New("banledger.read", pipeerr.IO, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, pipeerr.New("banledger.read", pipeerr.IO, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]domain.BanRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		banned, _ := time.Parse(timeLayout, row[2])
		expires, _ := time.Parse(timeLayout, row[3])
		out = append(out, domain.BanRecord{
			ProxyName:   row[0],
			ProxyHost:   row[1],
			BannedAt:    banned,
			ExpiresAt:   expires,
			Reason:      row[4],
			Description: row[5],
		})
	}
	return out, nil
}

func (l *Ledger) writeLocked(records []domain.BanRecord) error {
	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return pipeerr.New("banledger.write", pipeerr.IO, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return pipeerr.New("banledger.write", pipeerr.IO, err)
	}
	for _, r := range records {
		row := []string{
			r.ProxyName,
			r.ProxyHost,
			r.BannedAt.Format(timeLayout),
			r.ExpiresAt.Format(timeLayout),
			r.Reason,
			r.Description,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return pipeerr.New("banledger.write", pipeerr.IO, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return pipeerr.New("banledger.write", pipeerr.IO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pipeerr.New("banledger.write", pipeerr.IO, err)
	}
	if err := f.Close(); err != nil {
		return pipeerr.New("banledger.write", pipeerr.IO, err)
	}
	return os.Rename(tmp, l.path)
}
