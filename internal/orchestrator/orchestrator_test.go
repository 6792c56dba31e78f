package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/httpclient"
	"github.com/opsmedia/catalogpipe/internal/torrentclient"
	"github.com/opsmedia/catalogpipe/internal/uploader"
)

const orchIndexHTML = `
<html><body>
<div class="movie-list">
  <div class="item">
    <a href="%s/v/abc-123"></a>
    <div class="video-title"><strong>ABC-123</strong> A Title</div>
    <div class="tags"><span class="tag">含中字磁鏈</span><span class="tag">今日新種</span></div>
  </div>
</div>
</body></html>`

const orchDetailHTML = `
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

type fakeTorrentClient struct {
	loginCalls int
	addCalls   int
}

func (f *fakeTorrentClient) Login(ctx context.Context) error {
	f.loginCalls++
	return nil
}

func (f *fakeTorrentClient) Add(ctx context.Context, magnet, category, savePath string, autoStart, skipChecking bool) (torrentclient.AddResult, error) {
	f.addCalls++
	return torrentclient.AddOK, nil
}

func newTestDeps(t *testing.T, baseURL string, client uploader.Client) Deps {
	t.Helper()
	dir := t.TempDir()

	httpc := httpclient.New(config.BypassConfig{}, nil, httpclient.NewPacer(nil), zap.NewNop(), nil)
	hist, err := history.Open(filepath.Join(dir, "history.csv"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}

	up := uploader.New(client, hist, config.TorrentClientConfig{CategoryDaily: "daily"}, zap.NewNop(), nil)

	cfg := &config.Config{
		ReportsDir: filepath.Join(dir, "reports"),
		Scraper: config.Scraper{
			AllMode:       true,
			StartPage:     1,
			DetailWorkers: 1,
			BaseURL:       baseURL,
		},
	}

	return Deps{
		Config:     cfg,
		Logger:     zap.NewNop(),
		HTTPClient: httpc,
		History:    hist,
		Uploader:   up,
		Pusher:     NoopPusher{},
		Notifier:   NoopNotifier{},
	}
}

func TestOrchestrator_Run_SuccessSelectsAndUploadsOneEntry(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`<html><body><div class="movie-list"></div></body></html>`))
			return
		}
		fmt.Fprintf(w, orchIndexHTML, srv.URL)
	})
	mux.HandleFunc("/v/abc-123", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(orchDetailHTML))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := &fakeTorrentClient{}
	deps := newTestDeps(t, srv.URL+"/index", client)
	orch := New(deps)

	status := orch.Run(t.Context(), "test-run", Args{Phase: "1", AllMode: true})

	if status.Status != domain.StatusSuccess {
		t.Fatalf("status = %+v", status)
	}
	if status.Counts.EntriesSelected != 1 {
		t.Fatalf("EntriesSelected = %d, want 1", status.Counts.EntriesSelected)
	}
	if status.Counts.AddsSucceeded != 1 {
		t.Fatalf("AddsSucceeded = %d, want 1", status.Counts.AddsSucceeded)
	}
	if client.loginCalls != 1 {
		t.Fatalf("loginCalls = %d, want 1", client.loginCalls)
	}
}

func TestOrchestrator_Run_AllPagesFailingIsCriticalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &fakeTorrentClient{}
	deps := newTestDeps(t, srv.URL+"/index", client)
	orch := New(deps)

	status := orch.Run(t.Context(), "test-run-fail", Args{Phase: "1", AllMode: true})

	if status.Status != domain.StatusFailedCritical {
		t.Fatalf("status = %+v, want StatusFailedCritical", status)
	}
	if client.loginCalls != 0 {
		t.Fatalf("uploader should never run after a critical scraper failure, loginCalls = %d", client.loginCalls)
	}
}
