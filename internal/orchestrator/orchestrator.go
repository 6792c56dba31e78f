// Package orchestrator implements the pipeline orchestrator (C8): it
// sequences the scraper engine, an intermediate-artifact push, the
// uploader, and the deep-storage bridge step, then classifies the run's
// outcome per distilled §4.8's error table and emits exactly one
// RunStatus. Grounded in the teacher's cmd/crawler/main.go wiring order
// (store → crawler → API), generalized from a start/stop daemon into a
// single synchronous Run call the CLI entrypoint and [OPSAPI] both drive.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/banledger"
	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/deepstorage"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/httpclient"
	"github.com/opsmedia/catalogpipe/internal/proxy"
	"github.com/opsmedia/catalogpipe/internal/report"
	"github.com/opsmedia/catalogpipe/internal/scraper"
	"github.com/opsmedia/catalogpipe/internal/telemetry"
	"github.com/opsmedia/catalogpipe/internal/torrentclient"
	"github.com/opsmedia/catalogpipe/internal/uploader"
)

// ArtifactPusher is the external version-control collaborator distilled
// §4.8 step 3 names: "commit-and-push intermediate artifacts ... so
// operators can observe progress mid-run." Git plumbing itself is out of
// scope for the core; only this operation is.
type ArtifactPusher interface {
	CommitAndPush(ctx context.Context, message string) error
}

// Notifier is the external email-transport collaborator that receives the
// final RunStatus unchanged; SMTP itself is out of scope for the core.
type Notifier interface {
	Notify(ctx context.Context, status domain.RunStatus) error
}

// DeepStorage is the subset of deepstorage.Bridge the orchestrator
// depends on (distilled §6's bridge interface).
type DeepStorage interface {
	Login(ctx context.Context) error
	SubmitBatch(ctx context.Context, magnets []string) (deepstorage.BatchResult, error)
}

// TorrentLister is the torrent-client operation the deep-storage step uses
// to find candidates older than N days.
type TorrentLister interface {
	ListRecent(ctx context.Context, since time.Time, categories []string) ([]torrentclient.RecentTorrent, error)
}

// NoopPusher and NoopNotifier are the defaults wired by cmd/pipeline when
// no concrete collaborator is configured — they log instead of acting,
// which is correct behavior for operations the core only specifies the
// interface of.
type NoopPusher struct{ Logger *zap.Logger }

func (p NoopPusher) CommitAndPush(_ context.Context, message string) error {
	if p.Logger != nil {
		p.Logger.Info("artifact push skipped (no collaborator configured)", zap.String("message", message))
	}
	return nil
}

type NoopNotifier struct{ Logger *zap.Logger }

func (n NoopNotifier) Notify(_ context.Context, status domain.RunStatus) error {
	if n.Logger != nil {
		n.Logger.Info("run status",
			zap.String("run_id", status.RunID),
			zap.String("status", string(status.Status)),
			zap.Int("adds_succeeded", status.Counts.AddsSucceeded))
	}
	return nil
}

// Args mirrors the CLI surface distilled §6 names, propagated verbatim
// into the orchestrator.
type Args struct {
	Phase             string // "1", "2", "all"
	StartPage         int
	EndPage           int
	AllMode           bool
	URL               string // non-empty switches to ad-hoc mode
	IgnoreHistory     bool
	IgnoreReleaseDate bool
	UseProxy          bool
	UseBypass         bool
	DryRun            bool
	OutputFile        string
	UploadMode        string // "daily" or "adhoc"
}

// Deps bundles every collaborator the orchestrator sequences.
type Deps struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
	ProxyPool   *proxy.Pool
	BanLedger   *banledger.Ledger
	HTTPClient  *httpclient.Client
	History     *history.Store
	Uploader    *uploader.Uploader
	DeepStorage DeepStorage
	Lister      TorrentLister
	Pusher      ArtifactPusher
	Notifier    Notifier
}

// Orchestrator runs the whole pipeline end to end (C8).
type Orchestrator struct {
	deps Deps
}

// New builds an Orchestrator from deps.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Run drives C6 → artifact push → C7 → deep-storage bridge and returns the
// single RunStatus the whole invocation produces.
func (o *Orchestrator) Run(ctx context.Context, runID string, args Args) domain.RunStatus {
	started := time.Now()
	status := domain.RunStatus{RunID: runID, Started: started}

	mode := report.ModeDaily
	if args.URL != "" || args.UploadMode == "adhoc" {
		mode = report.ModeAdHoc
	}
	reportPath := args.OutputFile
	if reportPath == "" {
		reportPath = report.PathFor(o.deps.Config.ReportsDir, mode, runID, started)
	}

	writer, err := report.NewWriter(reportPath)
	if err != nil {
		return o.fail(status, "scraper.newWriter", err)
	}

	var counts domain.RunCounts
	phases := phasesFor(args.Phase)
	indexURLFor := indexURLBuilder(args, o.deps.Config.Scraper.BaseURL)

	scraperCfg := o.deps.Config.Scraper
	scraperCfg.AllMode = args.AllMode
	scraperCfg.StartPage = valueOr(args.StartPage, scraperCfg.StartPage)
	scraperCfg.EndPage = valueOr(args.EndPage, scraperCfg.EndPage)

	engine := scraper.New(o.deps.HTTPClient, o.deps.History, scraperCfg, o.deps.Logger, o.deps.Metrics, indexURLFor)

	for _, phase := range phases {
		result, err := engine.Run(ctx, phase, writer, scraper.Overrides{
			IgnoreHistory:     args.IgnoreHistory,
			IgnoreReleaseDate: args.IgnoreReleaseDate,
			DryRun:            args.DryRun,
			UseProxy:          args.UseProxy || o.deps.Config.Proxy.UseProxy,
			UseBypass:         args.UseBypass,
		})
		if err != nil {
			return o.fail(status, "scraper.Run", err)
		}
		accumulate(&counts, result.Counts)
		if result.Exit == scraper.ExitProxyBanned {
			status.Status = domain.StatusFailedBanned
			status.Counts = counts
			status.BanDelta = snapshotBans(o.deps.BanLedger)
			status.Finished = time.Now()
			o.notify(ctx, status)
			if o.deps.Metrics != nil {
				o.deps.Metrics.RunOutcomesTotal.WithLabelValues(string(status.Status)).Inc()
			}
			return status
		}
		if result.Exit == scraper.ExitCriticalFailure {
			return o.fail(status, "scraper.Run", fmt.Errorf("all %d attempted pages failed", counts.PagesFailed))
		}
	}

	if !args.DryRun {
		if err := writer.Flush(); err != nil {
			return o.fail(status, "report.Flush", err)
		}
		if err := o.deps.History.Flush(); err != nil {
			return o.fail(status, "history.Flush", err)
		}
	}

	if o.deps.Pusher != nil {
		if err := o.deps.Pusher.CommitAndPush(ctx, fmt.Sprintf("run %s: %d entries selected", runID, counts.EntriesSelected)); err != nil {
			o.deps.Logger.Warn("artifact push failed (non-critical)", zap.Error(err))
		}
	}

	uploadMode := uploader.ModeDaily
	if mode == report.ModeAdHoc {
		uploadMode = uploader.ModeAdHoc
	}
	upCounts, err := o.deps.Uploader.Run(ctx, reportPath, uploadMode, args.DryRun)
	counts.AddsAttempted += upCounts.AddsAttempted
	counts.AddsSucceeded += upCounts.AddsSucceeded
	counts.AddsRejected += upCounts.AddsRejected
	if err != nil {
		return o.fail(status, "uploader.Run", err)
	}
	if upCounts.AddsAttempted > 0 && upCounts.AddsSucceeded == 0 {
		return o.fail(status, "uploader.Run", fmt.Errorf("all %d torrent adds failed", upCounts.AddsAttempted))
	}

	if !args.DryRun {
		o.runDeepStorageBridge(ctx)
	}

	status.Counts = counts
	status.Finished = time.Now()
	if counts.AddsSucceeded == 0 && counts.EntriesSelected == 0 {
		status.Status = domain.StatusSuccessEmpty
	} else {
		status.Status = domain.StatusSuccess
	}
	if o.deps.ProxyPool != nil {
		o.deps.Logger.Debug("proxy pool available at run end", zap.Int("available", o.deps.ProxyPool.Available()))
		if o.deps.Metrics != nil {
			o.deps.Metrics.ProxiesAvailable.Set(float64(o.deps.ProxyPool.Available()))
		}
	}
	o.notify(ctx, status)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunOutcomesTotal.WithLabelValues(string(status.Status)).Inc()
	}
	return status
}

// runDeepStorageBridge submits torrents added more than 30 days ago to the
// bridge. Every failure, including a bridge that cannot be reached at all,
// is logged as a warning and leaves the run's status unchanged.
func (o *Orchestrator) runDeepStorageBridge(ctx context.Context) {
	if o.deps.DeepStorage == nil || o.deps.Lister == nil {
		return
	}
	if err := o.deps.DeepStorage.Login(ctx); err != nil {
		o.deps.Logger.Warn("deep storage login failed (non-critical)", zap.Error(err))
		return
	}
	cutoff := time.Now().AddDate(0, 0, -30)
	torrents, err := o.deps.Lister.ListRecent(ctx, time.Time{}, nil)
	if err != nil {
		o.deps.Logger.Warn("deep storage candidate listing failed (non-critical)", zap.Error(err))
		return
	}
	var handles []string
	for _, t := range torrents {
		if t.AddedOn.Before(cutoff) {
			handles = append(handles, t.Hash)
		}
	}
	if len(handles) == 0 {
		return
	}
	if _, err := o.deps.DeepStorage.SubmitBatch(ctx, handles); err != nil {
		o.deps.Logger.Warn("deep storage submit failed (non-critical)", zap.Error(err))
	}
}

func (o *Orchestrator) fail(status domain.RunStatus, op string, err error) domain.RunStatus {
	status.Status = domain.StatusFailedCritical
	status.FailureOp = op
	status.Err = err
	status.Finished = time.Now()
	o.deps.Logger.Error("run failed critically", zap.String("op", op), zap.Error(err))
	o.notify(context.Background(), status)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunOutcomesTotal.WithLabelValues(string(status.Status)).Inc()
	}
	return status
}

func (o *Orchestrator) notify(ctx context.Context, status domain.RunStatus) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, status); err != nil {
		o.deps.Logger.Warn("notification delivery failed", zap.Error(err))
	}
}

func phasesFor(phase string) []int {
	switch phase {
	case "1":
		return []int{1}
	case "2":
		return []int{2}
	default:
		return []int{1, 2}
	}
}

func indexURLBuilder(args Args, baseURL string) func(page int) string {
	base := baseURL
	if args.URL != "" {
		base = args.URL
	}
	return func(page int) string {
		return fmt.Sprintf("%s?page=%d", base, page)
	}
}

func valueOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func accumulate(dst *domain.RunCounts, src scraper.Counts) {
	dst.PagesAttempted += src.PagesAttempted
	dst.PagesFailed += src.PagesFailed
	dst.EntriesSelected += src.EntriesSelected
	dst.EntriesDetailed += src.EntriesDetailed
	dst.EntriesFailed += src.EntriesFailed
	dst.BanEvents += src.BanEvents
}

func snapshotBans(ledger *banledger.Ledger) []domain.BanRecord {
	if ledger == nil {
		return nil
	}
	recs, err := ledger.Active(time.Now())
	if err != nil {
		return nil
	}
	return recs
}
