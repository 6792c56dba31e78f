package banledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/opsmedia/catalogpipe/internal/domain"
)

func TestNew_MissingFileStartsEmpty(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "bans.csv"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	recs, err := l.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("All() = %+v, want empty", recs)
	}
}

func TestAppendAndAll_RoundTrips(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "bans.csv"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := domain.BanRecord{
		ProxyName: "proxy-a",
		ProxyHost: "10.0.0.1:8080",
		BannedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		Reason:    "cloudflare_challenge",
	}
	if err := l.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := l.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 1 || got[0].ProxyName != "proxy-a" || got[0].Reason != "cloudflare_challenge" {
		t.Fatalf("All() = %+v", got)
	}
}

func TestActive_FiltersExpiredRecords(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "bans.csv"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	expired := domain.BanRecord{ProxyName: "expired", ExpiresAt: now.Add(-time.Hour), BannedAt: now.Add(-48 * time.Hour)}
	active := domain.BanRecord{ProxyName: "active", ExpiresAt: now.Add(time.Hour), BannedAt: now.Add(-time.Hour)}
	if err := l.Append(expired); err != nil {
		t.Fatalf("Append(expired) error = %v", err)
	}
	if err := l.Append(active); err != nil {
		t.Fatalf("Append(active) error = %v", err)
	}

	got, err := l.Active(now)
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if len(got) != 1 || got[0].ProxyName != "active" {
		t.Fatalf("Active() = %+v, want only the active record", got)
	}
}

func TestAppend_MultipleCallsAccumulate(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "bans.csv"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Append(domain.BanRecord{ProxyName: "p"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	got, err := l.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("All() has %d records, want 3", len(got))
	}
}
