// Package scraper implements the scraper engine (C6): the two-phase,
// paginated crawl state machine described in the distilled spec's §4.6.
// Page fetching is paced and proxied via httpclient.Client; the bounded
// detail-fetch worker pool below is generalized from the teacher's
// channel-plus-WaitGroup Crawler.worker pattern
// (go-crawler/internal/crawler/crawler.go), narrowed from whole-page
// crawling to per-entry detail fetches within a single page.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/httpclient"
	"github.com/opsmedia/catalogpipe/internal/magnet"
	"github.com/opsmedia/catalogpipe/internal/parser"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
	"github.com/opsmedia/catalogpipe/internal/report"
	"github.com/opsmedia/catalogpipe/internal/telemetry"
)

// ExitCode mirrors distilled §4.6's three-valued exit status: 0 success, 1
// generic critical failure, 2 proxy-ban outage.
type ExitCode int

const (
	ExitSuccess         ExitCode = 0
	ExitCriticalFailure ExitCode = 1
	ExitProxyBanned      ExitCode = 2
)

// Overrides carries the CLI-level gates distilled §6 names for the
// scraper: ignore_history, ignore_release_date, and the per-run
// use_proxy/use_bypass toggles for C1/C2.
type Overrides struct {
	IgnoreHistory     bool
	IgnoreReleaseDate bool
	DryRun            bool
	UseProxy          bool
	UseBypass         bool
}

// Counts mirrors distilled §4.6's per-run error accounting.
type Counts struct {
	PagesAttempted  int
	PagesFailed     int
	EntriesSelected int
	EntriesDetailed int
	EntriesFailed   int
	BanEvents       int
}

// Result is what Engine.Run returns.
type Result struct {
	Exit        ExitCode
	Counts      Counts
	ReportPath  string
	DeadlineHit bool
}

// Engine drives the state machine FETCH_INDEX → PARSE_INDEX → FILTER →
// DECIDE → FETCH_DETAIL → CLASSIFY → RECORD → NEXT_PAGE.
type Engine struct {
	http    *httpclient.Client
	history *history.Store
	cfg     config.Scraper
	logger  *zap.Logger
	mx      *telemetry.Metrics

	indexURLFor func(page int) string

	// useProxy/useBypass are set for the duration of one Run call from its
	// Overrides and read by the fetch helpers below; Run's phases execute
	// sequentially and detail workers only read these, never write them, so
	// no additional locking is needed.
	useProxy  bool
	useBypass bool
}

// New builds an Engine. indexURLFor renders the page URL for daily mode
// (base catalog URL) or ad hoc mode (custom starting URL) — the caller
// picks which per distilled §4.6's run-mode selection.
func New(httpc *httpclient.Client, hist *history.Store, cfg config.Scraper, logger *zap.Logger, mx *telemetry.Metrics, indexURLFor func(page int) string) *Engine {
	return &Engine{http: httpc, history: hist, cfg: cfg, logger: logger, mx: mx, indexURLFor: indexURLFor}
}

type detailJob struct {
	entry domain.Entry
	want  domain.TorrentTypeSet
}

type detailOutcome struct {
	entry   domain.Entry
	buckets map[domain.TorrentType]magnet.Bucket
	want    domain.TorrentTypeSet
	failed  bool
}

// Run executes phase (1 or 2) against writer, honoring overrides and the
// soft wall-clock deadline. A run-wide context carries the deadline so the
// scraper stops at the next page boundary, never mid-entry (distilled §5).
func (e *Engine) Run(ctx context.Context, phase int, writer *report.Writer, ov Overrides) (Result, error) {
	var counts Counts
	e.useProxy = ov.UseProxy
	e.useBypass = ov.UseBypass
	page := e.cfg.StartPage
	if page == 0 {
		page = 1
	}

	for {
		select {
		case <-ctx.Done():
			return Result{Exit: ExitSuccess, Counts: counts, DeadlineHit: true}, nil
		default:
		}

		if !e.cfg.AllMode && e.cfg.EndPage > 0 && page > e.cfg.EndPage {
			break
		}

		counts.PagesAttempted++
		entries, err := e.fetchIndex(ctx, page, phase, &counts)
		if err != nil {
			if pipeerr.Is(err, pipeerr.Ban) {
				return Result{Exit: ExitProxyBanned, Counts: counts}, nil
			}
			counts.PagesFailed++
			page++
			if e.cfg.AllMode && counts.PagesFailed >= 3 && counts.PagesFailed == counts.PagesAttempted {
				// total outage: stop retrying indefinitely in "all" mode so the
				// run can still report a critical exit rather than spin.
				break
			}
			continue
		}

		if len(entries) == 0 {
			if e.cfg.AllMode {
				break // empty index page is the legal terminal condition for "all" mode
			}
			page++
			continue
		}

		admitted := e.filter(entries, phase, ov)
		counts.EntriesSelected += len(admitted)
		if e.mx != nil {
			e.mx.EntriesSelectedTotal.WithLabelValues(phaseLabel(phase)).Add(float64(len(admitted)))
		}

		outcomes := e.processEntries(ctx, admitted, phase, ov, &counts)
		for _, oc := range outcomes {
			row := e.record(oc)
			if !ov.DryRun {
				writer.Add(row)
			}
		}

		time.Sleep(e.cfg.PageSleep)
		page++
	}

	if counts.PagesAttempted > 0 && counts.PagesFailed == counts.PagesAttempted {
		return Result{Exit: ExitCriticalFailure, Counts: counts}, nil
	}
	return Result{Exit: ExitSuccess, Counts: counts}, nil
}

func (e *Engine) fetchIndex(ctx context.Context, page, phase int, counts *Counts) ([]domain.Entry, error) {
	url := e.indexURLFor(page)
	result, err := e.http.Do(ctx, httpclient.Request{
		Method:    "GET",
		URL:       url,
		Module:    "spider_index",
		PaceClass: "index",
		UseProxy:  e.useProxy,
		UseBypass: e.useBypass,
	})
	if err != nil {
		if e.mx != nil {
			e.mx.PagesFetchedTotal.WithLabelValues(phaseLabel(phase), "failed").Inc()
			if pipeerr.Is(err, pipeerr.Ban) {
				e.mx.BanEventsTotal.Inc()
			}
		}
		if pipeerr.Is(err, pipeerr.Ban) {
			counts.BanEvents++
		}
		return nil, err
	}
	if e.mx != nil {
		e.mx.PagesFetchedTotal.WithLabelValues(phaseLabel(phase), "ok").Inc()
	}
	entries, warnings, err := parser.ParseIndexPage(string(result.Body), page)
	for _, w := range warnings {
		e.logger.Warn("index parse warning", zap.String("href", w.Href), zap.String("msg", w.Msg))
	}
	return entries, err
}

func (e *Engine) filter(entries []domain.Entry, phase int, ov Overrides) []domain.Entry {
	var out []domain.Entry
	for _, entry := range entries {
		switch phase {
		case 1:
			if parser.ShouldAdmitPhase1(entry, ov.IgnoreReleaseDate) {
				out = append(out, entry)
			}
		case 2:
			if parser.ShouldAdmitPhase2(entry, e.cfg.Phase2MinRate, e.cfg.Phase2MinComments, ov.IgnoreReleaseDate) {
				out = append(out, entry)
			}
		}
	}
	return out
}

// processEntries runs DECIDE → FETCH_DETAIL → CLASSIFY for admitted
// entries, using a bounded worker pool (default K=1) for detail fetches.
func (e *Engine) processEntries(ctx context.Context, entries []domain.Entry, phase int, ov Overrides, counts *Counts) []detailOutcome {
	k := e.cfg.DetailWorkers
	if k <= 0 {
		k = 1
	}

	jobs := make(chan detailJob, len(entries))
	results := make(chan detailOutcome, len(entries))
	var wg sync.WaitGroup

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- e.fetchAndClassify(ctx, job, counts)
				time.Sleep(e.cfg.EntrySleep)
			}
		}()
	}

	skipped := make([]detailOutcome, 0)
	for _, entry := range entries {
		want := e.history.ShouldProcess(entry.Href, phase, history.Overrides{IgnoreHistory: ov.IgnoreHistory})
		if want.Empty() {
			skipped = append(skipped, detailOutcome{entry: entry, want: want})
			continue
		}
		jobs <- detailJob{entry: entry, want: want}
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]detailOutcome, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for oc := range results {
		outcomes = append(outcomes, oc)
		seen[oc.entry.Href] = true
	}
	// Preserve discovery order: skipped-without-fetch entries interleave
	// with fetched ones at their original position (distilled §5).
	ordered := make([]detailOutcome, 0, len(entries))
	byHref := make(map[string]detailOutcome, len(outcomes))
	for _, oc := range outcomes {
		byHref[oc.entry.Href] = oc
	}
	for _, sk := range skipped {
		byHref[sk.entry.Href] = sk
	}
	for _, entry := range entries {
		ordered = append(ordered, byHref[entry.Href])
	}
	return ordered
}

func (e *Engine) fetchAndClassify(ctx context.Context, job detailJob, counts *Counts) detailOutcome {
	result, err := e.http.Do(ctx, httpclient.Request{
		Method:    "GET",
		URL:       job.entry.Href,
		Module:    "spider_detail",
		PaceClass: "detail",
		UseProxy:  e.useProxy,
		UseBypass: e.useBypass,
	})
	if err != nil {
		counts.EntriesFailed++
		if pipeerr.Is(err, pipeerr.Ban) {
			counts.BanEvents++
		}
		e.logger.Warn("detail fetch failed", zap.String("href", job.entry.Href), zap.Error(err))
		return detailOutcome{entry: job.entry, want: job.want, failed: true}
	}
	counts.EntriesDetailed++

	detail, warnings, err := parser.ParseDetailPage(string(result.Body))
	for _, w := range warnings {
		e.logger.Warn("detail parse warning", zap.String("msg", w.Msg))
	}
	if err != nil {
		return detailOutcome{entry: job.entry, want: job.want, failed: true}
	}

	entry := job.entry
	if detail.ActorUpdate != "" {
		entry.Actor = detail.ActorUpdate
	}
	if detail.HasRatingUpdate {
		entry.Rating = detail.RatingUpdate
		entry.HasRating = true
	}
	if detail.HasCommentsUpdate {
		entry.Comments = detail.CommentsUpdate
		entry.HasComments = true
	}

	buckets := magnet.Classify(detail.Magnets)
	return detailOutcome{entry: entry, buckets: buckets, want: job.want}
}

// record builds the ReportRow for one processed entry. Columns in oc.want
// carry whatever was just fetched; every other column still gets a
// marker-only cell when history already has it downloaded, so a row's
// DOWNLOADED marks always reflect the full history record (IP4), not just
// the types this run pursued (distilled §4.6's RECORD step, E2).
func (e *Engine) record(oc detailOutcome) domain.ReportRow {
	row := domain.ReportRow{
		Href:      oc.entry.Href,
		VideoCode: oc.entry.VideoCode,
		Title:     oc.entry.Title,
		Page:      oc.entry.Page,
		Actor:     oc.entry.Actor,
		Rating:    oc.entry.Rating,
		Comments:  oc.entry.Comments,
	}
	for _, t := range oc.want.Slice() {
		bucket, ok := oc.buckets[t]
		if !ok || !bucket.Found {
			continue
		}
		row.SetCell(t, domain.ReportCell{Magnet: bucket.Magnet.URI, SizeText: bucket.Magnet.SizeText})
	}
	for _, t := range domain.AllTorrentTypes {
		if oc.want.Has(t) {
			continue
		}
		if e.history.IsDownloaded(oc.entry.Href, t) {
			row.SetCell(t, domain.ReportCell{Magnet: domain.DownloadedPrefix, AlreadyMarked: true})
		}
	}
	return row
}

func phaseLabel(phase int) string {
	return fmt.Sprintf("%d", phase)
}
