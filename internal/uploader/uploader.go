// Package uploader implements the uploader (C7): reads a run-scoped
// report, logs into the torrent client once, adds every not-yet-downloaded
// magnet, and rewrites the report with [DOWNLOADED] markers so a rerun is
// a no-op (RT1). Grounded in the same sequential, paced call pattern
// httpclient.Client uses for politeness, since distilled §5 requires the
// uploader be strictly sequential (torrent clients are sensitive to burst
// add rates).
package uploader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
	"github.com/opsmedia/catalogpipe/internal/report"
	"github.com/opsmedia/catalogpipe/internal/telemetry"
	"github.com/opsmedia/catalogpipe/internal/torrentclient"
)

// Client is the subset of torrentclient.Client the uploader depends on —
// named here so tests can substitute a fake without a real HTTP server.
type Client interface {
	Login(ctx context.Context) error
	Add(ctx context.Context, magnet, category, savePath string, autoStart, skipChecking bool) (torrentclient.AddResult, error)
}

// Mode selects the daily vs ad-hoc category, mirroring report.Mode.
type Mode = report.Mode

const (
	ModeDaily = report.ModeDaily
	ModeAdHoc = report.ModeAdHoc
)

// Counts is the per-run tally the orchestrator (C8) inspects to classify
// AUTH_FAILED vs REJECTED outcomes.
type Counts struct {
	AddsAttempted int
	AddsSucceeded int
	AddsRejected  int
}

// Uploader drives C7's algorithm against one report path.
type Uploader struct {
	client  Client
	history *history.Store
	cfg     config.TorrentClientConfig
	logger  *zap.Logger
	mx      *telemetry.Metrics
}

// New builds an Uploader.
func New(client Client, hist *history.Store, cfg config.TorrentClientConfig, logger *zap.Logger, mx *telemetry.Metrics) *Uploader {
	return &Uploader{client: client, history: hist, cfg: cfg, logger: logger, mx: mx}
}

// Run executes distilled §4.7's algorithm against the report at path,
// using category/savePath for newly added torrents. dryRun suppresses both
// the client Add call and history.MarkDownloaded, per distilled §6.
func (u *Uploader) Run(ctx context.Context, path string, mode Mode, dryRun bool) (Counts, error) {
	rows, err := report.Read(path)
	if err != nil {
		return Counts{}, err
	}
	if len(rows) == 0 {
		return Counts{}, nil
	}

	category := u.cfg.CategoryDaily
	if mode == ModeAdHoc {
		category = u.cfg.CategoryAdHoc
	}

	var counts Counts
	loggedIn := false

	for i := range rows {
		row := &rows[i]
		entry := domain.Entry{Href: row.Href, VideoCode: row.VideoCode}

		for _, t := range domain.AllTorrentTypes {
			cell := row.CellFor(t)
			if cell.Magnet == "" || cell.AlreadyMarked {
				continue
			}

			if u.history.IsDownloaded(row.Href, t) {
				row.SetCell(t, domain.ReportCell{
					Magnet:        domain.DownloadedPrefix + cell.Magnet,
					SizeText:      cell.SizeText,
					AlreadyMarked: true,
				})
				continue
			}

			if dryRun {
				continue
			}

			if !loggedIn {
				if err := u.client.Login(ctx); err != nil {
					return counts, err // AUTH is fatal to the uploader (distilled §4.7/§7)
				}
				loggedIn = true
			}

			counts.AddsAttempted++
			result, err := u.client.Add(ctx, cell.Magnet, category, u.cfg.SavePath, u.cfg.AutoStart, u.cfg.SkipChecking)
			if err != nil && pipeerr.Is(err, pipeerr.Auth) {
				return counts, err
			}
			if err != nil || result != torrentclient.AddOK {
				counts.AddsRejected++
				if u.mx != nil {
					u.mx.MagnetsRejectedTotal.WithLabelValues(category).Inc()
				}
				u.logger.Warn("torrent add rejected", zap.String("href", row.Href), zap.String("type", string(t)))
				continue
			}

			counts.AddsSucceeded++
			if u.mx != nil {
				u.mx.MagnetsAddedTotal.WithLabelValues(category).Inc()
			}

			now := time.Now()
			u.history.MarkDownloaded(entry, t.Phase(), domain.NewTorrentTypeSet(t), now)
			row.SetCell(t, domain.ReportCell{
				Magnet:        domain.DownloadedPrefix + cell.Magnet,
				SizeText:      cell.SizeText,
				AlreadyMarked: true,
			})

			time.Sleep(u.cfg.InterAddDelay)
		}
	}

	if !dryRun {
		if err := report.WriteAll(path, rows); err != nil {
			return counts, err
		}
		if err := u.history.Flush(); err != nil {
			return counts, err
		}
	}
	return counts, nil
}
