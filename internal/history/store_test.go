package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsmedia/catalogpipe/internal/domain"
)

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := s.Lookup("https://example.test/a"); got != nil {
		t.Fatalf("Lookup on empty store = %+v, want nil", got)
	}
}

func TestShouldProcess_NewEntryPhase1(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got := s.ShouldProcess("https://example.test/a", 1, Overrides{})
	if !got.Has(domain.HackedSubtitle) || !got.Has(domain.Subtitle) {
		t.Fatalf("phase 1 new entry should_process = %+v, want hacked_subtitle+subtitle", got)
	}
	if got.Has(domain.HackedNoSubtitle) || got.Has(domain.NoSubtitle) {
		t.Fatalf("phase 1 new entry should not request phase-2 buckets: %+v", got)
	}
}

func TestShouldProcess_NewEntryPhase2(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got := s.ShouldProcess("https://example.test/a", 2, Overrides{})
	if !got.Has(domain.HackedNoSubtitle) || len(got) != 1 {
		t.Fatalf("phase 2 new entry should_process = %+v, want only hacked_no_subtitle", got)
	}
}

func TestShouldProcess_IgnoreHistoryRequestsEverything(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	now := time.Now()
	s.Merge(domain.Entry{Href: "https://example.test/a", VideoCode: "ABC-1"}, 1,
		domain.NewTorrentTypeSet(domain.AllTorrentTypes...), now)

	got := s.ShouldProcess("https://example.test/a", 1, Overrides{IgnoreHistory: true})
	if len(got) != len(domain.AllTorrentTypes) {
		t.Fatalf("IgnoreHistory should_process = %+v, want all %d types", got, len(domain.AllTorrentTypes))
	}
}

func TestMerge_NeverOverwritesNonNullColumn(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	entry := domain.Entry{Href: "https://example.test/a", VideoCode: "ABC-1"}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Merge(entry, 1, domain.NewTorrentTypeSet(domain.Subtitle), first)
	s.Merge(entry, 1, domain.NewTorrentTypeSet(domain.Subtitle), second)

	rec := s.Lookup(entry.Href)
	if rec.Columns[domain.Subtitle] != first {
		t.Fatalf("Columns[Subtitle] = %v, want unchanged first timestamp %v", rec.Columns[domain.Subtitle], first)
	}
}

func TestShouldProcess_Phase2UpgradePath(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	entry := domain.Entry{Href: "https://example.test/a", VideoCode: "ABC-1"}
	s.Merge(entry, 2, domain.NewTorrentTypeSet(domain.NoSubtitle), time.Now())

	got := s.ShouldProcess(entry.Href, 2, Overrides{})
	if !got.Has(domain.HackedNoSubtitle) || len(got) != 1 {
		t.Fatalf("phase 2 upgrade path should_process = %+v, want only hacked_no_subtitle", got)
	}

	s.Merge(entry, 2, domain.NewTorrentTypeSet(domain.HackedNoSubtitle), time.Now())
	got = s.ShouldProcess(entry.Href, 2, Overrides{})
	if !got.Empty() {
		t.Fatalf("phase 2 after upgrade should_process = %+v, want empty", got)
	}
}

func TestFlushAndReopen_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := domain.Entry{Href: "https://example.test/a", VideoCode: "ABC-1"}
	s.Merge(entry, 1, domain.NewTorrentTypeSet(domain.Subtitle, domain.HackedSubtitle), ts)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after flush error = %v", err)
	}
	rec := reopened.Lookup(entry.Href)
	if rec == nil {
		t.Fatal("record missing after reopen")
	}
	if !rec.ColumnIsSet(domain.Subtitle) || !rec.ColumnIsSet(domain.HackedSubtitle) {
		t.Fatalf("reopened record columns = %+v, want subtitle+hacked_subtitle set", rec.Columns)
	}
	if rec.ColumnIsSet(domain.NoSubtitle) || rec.ColumnIsSet(domain.HackedNoSubtitle) {
		t.Fatalf("reopened record columns = %+v, want the other two unset", rec.Columns)
	}
}

func TestOpen_MigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	legacy := "href,phase,video_code,torrent_type,parsed_date\n" +
		"https://example.test/a,1,ABC-1,subtitle,2024-01-01T00:00:00Z\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rec := s.Lookup("https://example.test/a")
	if rec == nil {
		t.Fatal("legacy row was not migrated into a record")
	}
	if rec.ColumnIsSet(domain.Subtitle) {
		t.Fatal("legacy rows must carry no per-type timestamps after migration")
	}
	if rec.CreateDate.IsZero() {
		t.Fatal("legacy row's first-seen date must be preserved as CreateDate")
	}
}

func TestMarkDownloaded_PropagatesPhaseForANewRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	entry := domain.Entry{Href: "https://example.test/a", VideoCode: "ABC-1"}

	s.MarkDownloaded(entry, domain.HackedNoSubtitle.Phase(), domain.NewTorrentTypeSet(domain.HackedNoSubtitle), time.Now())

	rec := s.Lookup(entry.Href)
	if rec == nil {
		t.Fatal("MarkDownloaded should create a record for a new href")
	}
	if rec.Phase != 2 {
		t.Fatalf("Phase = %d, want 2 for an entry first recorded via a hacked_no_subtitle download", rec.Phase)
	}
}

func TestFlush_PreservesOriginalRowOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	unsorted := "href,phase,video_code,create_date,update_date,hacked_subtitle,hacked_no_subtitle,subtitle,no_subtitle\n" +
		"https://example.test/zeta,1,ZZZ-1,2024-01-01T00:00:00Z,2024-01-01T00:00:00Z,,,,\n" +
		"https://example.test/alpha,1,AAA-1,2024-01-02T00:00:00Z,2024-01-02T00:00:00Z,,,,\n" +
		"https://example.test/mid,1,MMM-1,2024-01-03T00:00:00Z,2024-01-03T00:00:00Z,,,,\n"
	if err := os.WriteFile(path, []byte(unsorted), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile() error = %v", err)
	}
	wantOrder := []string{"zeta", "alpha", "mid"}
	lastIdx := -1
	for _, name := range wantOrder {
		idx := indexOf(string(out), name)
		if idx < 0 {
			t.Fatalf("flushed file missing href containing %q:\n%s", name, out)
		}
		if idx < lastIdx {
			t.Fatalf("flushed file reordered rows; want original file order preserved:\n%s", out)
		}
		lastIdx = idx
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

