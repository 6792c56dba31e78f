package scraper

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/httpclient"
	"github.com/opsmedia/catalogpipe/internal/magnet"
	"github.com/opsmedia/catalogpipe/internal/report"
)

const testIndexHTML = `
<html><body>
<div class="movie-list">
  <div class="item">
    <a href="%s/v/abc-123"></a>
    <div class="video-title"><strong>ABC-123</strong> A Title</div>
    <div class="tags"><span class="tag">含中字磁鏈</span><span class="tag">今日新種</span></div>
  </div>
</div>
</body></html>`

const testDetailHTML = `
<html><body>
<div class="magnet-list">
  <div class="item">
    <a class="magnet-link" href="magnet:?xt=urn:btih:abc">x</a>
    <div class="magnet-name">ABC-123</div>
    <div class="magnet-size">3.0GB</div>
    <div class="magnet-tags"><span class="tag">字幕</span></div>
  </div>
</div>
</body></html>`

func TestEngine_Run_PhaseOneSelectsAndRecordsOneEntry(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page != "1" {
			w.Write([]byte(`<html><body><div class="movie-list"></div></body></html>`))
			return
		}
		fmt.Fprintf(w, testIndexHTML, srv.URL)
	})
	mux.HandleFunc("/v/abc-123", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDetailHTML))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	httpc := httpclient.New(config.BypassConfig{}, nil, httpclient.NewPacer(nil), zap.NewNop(), nil)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}

	cfg := config.Scraper{AllMode: true, StartPage: 1, DetailWorkers: 1}
	indexURLFor := func(page int) string { return fmt.Sprintf("%s/index?page=%d", srv.URL, page) }
	engine := New(httpc, hist, cfg, zap.NewNop(), nil, indexURLFor)

	writer, err := report.NewWriter(filepath.Join(t.TempDir(), "run.csv"))
	if err != nil {
		t.Fatalf("report.NewWriter() error = %v", err)
	}

	result, err := engine.Run(t.Context(), 1, writer, Overrides{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Exit != ExitSuccess {
		t.Fatalf("Run() exit = %v, want ExitSuccess", result.Exit)
	}
	if result.Counts.EntriesSelected != 1 {
		t.Fatalf("EntriesSelected = %d, want 1", result.Counts.EntriesSelected)
	}
	if result.Counts.EntriesDetailed != 1 {
		t.Fatalf("EntriesDetailed = %d, want 1", result.Counts.EntriesDetailed)
	}
	rows := writer.Rows()
	if len(rows) != 1 {
		t.Fatalf("writer buffered %d rows, want 1", len(rows))
	}
	if rows[0].VideoCode != "ABC-123" {
		t.Fatalf("row.VideoCode = %q", rows[0].VideoCode)
	}
}

func TestEngine_Run_NeverAdvancesHistoryItself(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page != "1" {
			w.Write([]byte(`<html><body><div class="movie-list"></div></body></html>`))
			return
		}
		fmt.Fprintf(w, testIndexHTML, srv.URL)
	})
	mux.HandleFunc("/v/abc-123", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDetailHTML))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	httpc := httpclient.New(config.BypassConfig{}, nil, httpclient.NewPacer(nil), zap.NewNop(), nil)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}

	cfg := config.Scraper{AllMode: true, StartPage: 1, DetailWorkers: 1}
	indexURLFor := func(page int) string { return fmt.Sprintf("%s/index?page=%d", srv.URL, page) }
	engine := New(httpc, hist, cfg, zap.NewNop(), nil, indexURLFor)

	writer, err := report.NewWriter(filepath.Join(t.TempDir(), "run.csv"))
	if err != nil {
		t.Fatalf("report.NewWriter() error = %v", err)
	}

	if _, err := engine.Run(t.Context(), 1, writer, Overrides{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// A magnet was classified and written to the report, but only the
	// uploader (C7) may advance history after a real client.Add succeeds
	// (distilled §2's data flow, IP4/IP5, RT1) — the scraper must leave
	// history untouched even though it saw the magnet.
	if rec := hist.Lookup(srv.URL + "/v/abc-123"); rec != nil {
		t.Fatalf("history record = %+v, want scraper.Run to never write to history", rec)
	}
	rows := writer.Rows()
	if len(rows) != 1 || rows[0].CellFor(domain.HackedSubtitle).Magnet == "" && rows[0].CellFor(domain.Subtitle).Magnet == "" {
		t.Fatalf("expected a report row carrying the classified magnet even though history was not touched, got %+v", rows)
	}
}

func TestEngine_Run_EmptyIndexPageTerminatesAllMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="movie-list"></div></body></html>`))
	}))
	defer srv.Close()

	httpc := httpclient.New(config.BypassConfig{}, nil, httpclient.NewPacer(nil), zap.NewNop(), nil)
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	cfg := config.Scraper{AllMode: true, StartPage: 1, DetailWorkers: 1}
	engine := New(httpc, hist, cfg, zap.NewNop(), nil, func(page int) string { return srv.URL })

	writer, err := report.NewWriter(filepath.Join(t.TempDir(), "run.csv"))
	if err != nil {
		t.Fatalf("report.NewWriter() error = %v", err)
	}

	result, err := engine.Run(t.Context(), 1, writer, Overrides{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Exit != ExitSuccess {
		t.Fatalf("Run() exit = %v, want ExitSuccess", result.Exit)
	}
	if result.Counts.EntriesSelected != 0 {
		t.Fatalf("EntriesSelected = %d, want 0", result.Counts.EntriesSelected)
	}
}

func TestEngine_Record_CarriesPreExistingDownloadedMarksOutsideWant(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.csv"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}

	entry := domain.Entry{Href: "https://example.test/v/abc-123", VideoCode: "ABC-123"}
	hist.Merge(entry, 1, domain.NewTorrentTypeSet(domain.Subtitle), time.Now())

	engine := New(nil, hist, config.Scraper{}, zap.NewNop(), nil, nil)
	oc := detailOutcome{
		entry: entry,
		want:  domain.NewTorrentTypeSet(domain.HackedSubtitle),
		buckets: map[domain.TorrentType]magnet.Bucket{
			domain.HackedSubtitle: {Found: true, Magnet: domain.Magnet{URI: "magnet:?xt=urn:btih:abc", SizeText: "3.0GB"}},
		},
	}

	row := engine.record(oc)

	hacked := row.CellFor(domain.HackedSubtitle)
	if hacked.Magnet != "magnet:?xt=urn:btih:abc" || hacked.AlreadyMarked {
		t.Fatalf("hacked_subtitle cell = %+v, want the freshly fetched magnet", hacked)
	}

	sub := row.CellFor(domain.Subtitle)
	if !sub.AlreadyMarked || sub.Magnet != domain.DownloadedPrefix {
		t.Fatalf("subtitle cell = %+v, want a marker-only DOWNLOADED cell carried from history", sub)
	}

	noSub := row.CellFor(domain.NoSubtitle)
	if noSub.Magnet != "" || noSub.AlreadyMarked {
		t.Fatalf("no_subtitle cell = %+v, want an empty cell (never downloaded)", noSub)
	}
}
