// Package proxy implements the proxy pool (C1): proxy selection, failure
// tracking, cooldown enforcement and ban-ledger persistence. It is
// generalized from the teacher's round-robin proxy.Manager into a
// mutex-guarded pool that tolerates transient failures and honors bans
// recorded in a durable ledger.
package proxy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/banledger"
	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

// FailureKind tells report_failure why the caller is reporting.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureBan
)

// Pool selects and tracks the health of a set of configured proxies.
type Pool struct {
	mu sync.Mutex

	mode        config.ProxyMode
	proxies     []*domain.ProxyEntry
	maxFailures int
	cooldown    time.Duration
	modules     map[string]struct{}
	ledger      *banledger.Ledger
	logger      *zap.Logger

	rrCursor int
}

// New constructs a Pool from cfg, loading any still-active bans from the
// ledger so a restarted process respects cooldowns set by a previous run.
func New(cfg config.ProxyConfig, ledger *banledger.Ledger, logger *zap.Logger) (*Pool, error) {
	p := &Pool{
		mode:        cfg.Mode,
		maxFailures: cfg.MaxFailures,
		cooldown:    time.Duration(cfg.CooldownSecs) * time.Second,
		modules:     make(map[string]struct{}, len(cfg.Modules)),
		ledger:      ledger,
		logger:      logger,
	}
	for _, m := range cfg.Modules {
		p.modules[m] = struct{}{}
	}
	for _, pc := range cfg.Pool {
		p.proxies = append(p.proxies, &domain.ProxyEntry{Name: pc.Name, URL: pc.URL})
	}

	now := time.Now()
	records, err := ledger.Active(now)
	if err != nil {
		return nil, pipeerr.New("proxy.New", pipeerr.IO, err)
	}
	banned := make(map[string]domain.BanRecord, len(records))
	for _, r := range records {
		banned[r.ProxyName] = r
	}
	for _, pe := range p.proxies {
		if r, ok := banned[pe.Name]; ok {
			pe.Banned = true
			pe.CooldownExpiry = r.ExpiresAt
		}
	}
	return p, nil
}

// UsesModule reports whether module should request a proxy from this pool
// rather than connecting directly.
func (p *Pool) UsesModule(module string) bool {
	if _, all := p.modules["all"]; all {
		return true
	}
	_, ok := p.modules[module]
	return ok
}

// ErrNoProxyAvailable is returned by Select when no candidate proxy is
// usable — the caller must surface this as FAILED_PROXY_BANNED.
var ErrNoProxyAvailable = pipeerr.New("proxy.Select", pipeerr.Ban, nil)

// Select returns the next proxy to use for a request.
func (p *Pool) Select() (*domain.ProxyEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if len(p.proxies) == 0 {
		return nil, ErrNoProxyAvailable
	}

	if p.mode == config.ProxyModeSingle {
		first := p.proxies[0]
		if first.IsCoolingDown(now) {
			return nil, ErrNoProxyAvailable
		}
		first.LastUsedAt = now
		return first, nil
	}

	// Pool mode: first non-banned, non-cooling entry, round-robining on
	// ties by last-use time so load spreads across the healthy set.
	n := len(p.proxies)
	var candidate *domain.ProxyEntry
	for i := 0; i < n; i++ {
		idx := (p.rrCursor + i) % n
		pe := p.proxies[idx]
		if pe.IsCoolingDown(now) {
			continue
		}
		if candidate == nil || pe.LastUsedAt.Before(candidate.LastUsedAt) {
			candidate = pe
		}
	}
	if candidate == nil {
		return nil, ErrNoProxyAvailable
	}
	candidate.LastUsedAt = now
	p.rrCursor = (p.rrCursor + 1) % n
	return candidate, nil
}

// ReportSuccess resets p's failure streak and records the success.
func (p *Pool) ReportSuccess(pe *domain.ProxyEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pe.ConsecutiveFailures = 0
	pe.LastSuccess = time.Now()
	pe.TotalSuccess++
}

// ReportFailure records a failure against pe. A BAN kind — or crossing
// max_failures — places pe on cooldown and appends a BanRecord to the
// ledger. Repeated BAN reports for an already-banned proxy are a no-op
// beyond bumping counters, keeping the operation idempotent.
func (p *Pool) ReportFailure(pe *domain.ProxyEntry, kind FailureKind, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pe.ConsecutiveFailures++
	pe.LastFailure = time.Now()
	pe.TotalFailure++

	shouldBan := kind == FailureBan || pe.ConsecutiveFailures >= p.maxFailures
	if !shouldBan || pe.IsCoolingDown(pe.LastFailure) {
		return nil
	}

	now := time.Now()
	expiry := now.Add(p.cooldown)
	pe.Banned = true
	pe.CooldownExpiry = expiry

	rec := domain.BanRecord{
		ProxyName:   pe.Name,
		ProxyHost:   hostOf(pe.URL),
		BannedAt:    now,
		ExpiresAt:   expiry,
		Reason:      string(banReasonFor(kind)),
		Description: reason,
	}
	if err := p.ledger.Append(rec); err != nil {
		return pipeerr.New("proxy.ReportFailure", pipeerr.IO, err)
	}
	if p.logger != nil {
		p.logger.Warn("proxy banned",
			zap.String("proxy", pe.Name),
			zap.Time("cooldown_expiry", expiry),
			zap.String("reason", reason))
	}
	return nil
}

type banReason string

const (
	banReasonExplicit  banReason = "BAN"
	banReasonMaxFailed banReason = "MAX_FAILURES"
)

func banReasonFor(kind FailureKind) banReason {
	if kind == FailureBan {
		return banReasonExplicit
	}
	return banReasonMaxFailed
}

// Snapshot returns a per-proxy statistics view for inclusion in a RunStatus.
func (p *Pool) Snapshot() []domain.ProxySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.ProxySnapshot, 0, len(p.proxies))
	for _, pe := range p.proxies {
		out = append(out, domain.ProxySnapshot{
			Name:                pe.Name,
			Banned:              pe.Banned && pe.IsCoolingDown(time.Now()),
			CooldownExpiry:      pe.CooldownExpiry,
			ConsecutiveFailures: pe.ConsecutiveFailures,
			TotalSuccess:        pe.TotalSuccess,
			TotalFailure:        pe.TotalFailure,
		})
	}
	return out
}

// Available returns the count of proxies not currently cooling down.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	n := 0
	for _, pe := range p.proxies {
		if !pe.IsCoolingDown(now) {
			n++
		}
	}
	return n
}

func hostOf(rawURL string) string {
	// Best-effort host extraction without importing net/url at call sites
	// that only want a ledger-friendly label.
	u, err := parseHost(rawURL)
	if err != nil {
		return rawURL
	}
	return u
}
