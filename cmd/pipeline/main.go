// Command pipeline is the CLI entrypoint for the catalog ingestion
// pipeline (C8). Flag parsing here is intentionally minimal — the
// distilled spec treats argument parsing as an external collaborator and
// only the resulting semantics (orchestrator.Args) are specified.
// Grounded in the teacher's cmd/crawler/main.go wiring order: load config,
// build storage/proxy/metrics, build the core driver, start an optional
// HTTP surface, wait for a signal, shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/banledger"
	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/deepstorage"
	"github.com/opsmedia/catalogpipe/internal/history"
	"github.com/opsmedia/catalogpipe/internal/httpclient"
	"github.com/opsmedia/catalogpipe/internal/logging"
	"github.com/opsmedia/catalogpipe/internal/opsapi"
	"github.com/opsmedia/catalogpipe/internal/orchestrator"
	"github.com/opsmedia/catalogpipe/internal/proxy"
	"github.com/opsmedia/catalogpipe/internal/telemetry"
	"github.com/opsmedia/catalogpipe/internal/torrentclient"
	"github.com/opsmedia/catalogpipe/internal/uploader"
)

func main() {
	args, serveOnly := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not load config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	mx := telemetry.New(prometheus.DefaultRegisterer)

	ledger, err := banledger.New(historyDir(cfg) + "/proxy_bans.csv")
	if err != nil {
		logger.Fatal("could not open ban ledger", zap.Error(err))
	}
	pool, err := proxy.New(cfg.Proxy, ledger, logger.Named("proxy"))
	if err != nil {
		logger.Fatal("could not build proxy pool", zap.Error(err))
	}

	pacer := httpclient.NewPacer(map[string]time.Duration{
		"index":  cfg.Scraper.PageSleep,
		"detail": cfg.Scraper.DetailSleep,
	})
	httpc := httpclient.New(cfg.Bypass, pool, pacer, logger.Named("http"), mx)

	hist, err := history.Open(cfg.History.FilePath)
	if err != nil {
		logger.Fatal("could not open history store", zap.Error(err))
	}

	torrentC := torrentclient.New(cfg.TorrentClient)
	up := uploader.New(torrentC, hist, cfg.TorrentClient, logger.Named("uploader"), mx)

	bridge := deepstorage.New(cfg.DeepStorage, cfg.DeepStorage.BaseURL)

	orch := orchestrator.New(orchestrator.Deps{
		Config:      cfg,
		Logger:      logger.Named("orchestrator"),
		Metrics:     mx,
		ProxyPool:   pool,
		BanLedger:   ledger,
		HTTPClient:  httpc,
		History:     hist,
		Uploader:    up,
		DeepStorage: bridge,
		Lister:      torrentC,
		Pusher:      orchestrator.NoopPusher{Logger: logger},
		Notifier:    orchestrator.NoopNotifier{Logger: logger},
	})

	var opsServer *opsapi.Server
	if cfg.OpsAPI.Enabled {
		opsServer = opsapi.New(cfg.OpsAPI, orch, logger.Named("opsapi"))
		go func() {
			if err := opsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("ops API server failed", zap.Error(err))
			}
		}()
		logger.Info("ops API listening", zap.String("addr", cfg.OpsAPI.Addr))
	}

	if serveOnly {
		waitForSignal()
		shutdown(opsServer, logger)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitForSignal()
		cancel()
	}()

	runID := fmt.Sprintf("run-%d", time.Now().Unix())
	status := orch.Run(ctx, runID, args)

	if opsServer != nil {
		shutdown(opsServer, logger)
	}

	logger.Info("run finished", zap.String("status", string(status.Status)), zap.String("run_id", runID))
	os.Exit(status.Status.ExitCode())
}

func parseFlags() (orchestrator.Args, bool) {
	phase := flag.String("phase", "all", "1, 2, or all")
	startPage := flag.Int("start", 0, "start page")
	endPage := flag.Int("end", 0, "end page (0 with -all means unbounded)")
	all := flag.Bool("all", true, "crawl until an empty index page")
	url := flag.String("url", "", "override base URL; switches to ad-hoc mode")
	ignoreHistory := flag.Bool("ignore-history", false, "reprocess entries regardless of history")
	ignoreReleaseDate := flag.Bool("ignore-release-date", false, "suppress the release-date tag gate")
	useProxy := flag.Bool("use-proxy", false, "route requests through the proxy pool")
	useBypass := flag.Bool("use-bypass", false, "route requests through the challenge-bypass service")
	dryRun := flag.Bool("dry-run", false, "process without committing report rows or history")
	outputFile := flag.String("output-file", "", "override the report path")
	uploadMode := flag.String("mode", "daily", "daily or adhoc")
	serveOnly := flag.Bool("serve", false, "start the ops API and wait, without running immediately")
	flag.Parse()

	return orchestrator.Args{
		Phase:             *phase,
		StartPage:         *startPage,
		EndPage:           *endPage,
		AllMode:           *all,
		URL:               *url,
		IgnoreHistory:     *ignoreHistory,
		IgnoreReleaseDate: *ignoreReleaseDate,
		UseProxy:          *useProxy,
		UseBypass:         *useBypass,
		DryRun:            *dryRun,
		OutputFile:        *outputFile,
		UploadMode:        *uploadMode,
	}, *serveOnly
}

func historyDir(cfg *config.Config) string {
	return cfg.ReportsDir
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func shutdown(s *opsapi.Server, logger *zap.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("ops API shutdown error", zap.Error(err))
	}
}
