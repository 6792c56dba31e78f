// Package httpclient wraps outbound HTTP with proxy selection, optional
// challenge-bypass rewriting, retry/backoff and ban classification (C2).
// It is grounded in the resty-based client pattern the pack uses for its
// outbound API clients (internal/emby.Client), generalized with a proxy
// pool, a per-host rate limiter and the pipeline's error taxonomy.
package httpclient

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
	"github.com/opsmedia/catalogpipe/internal/proxy"
	"github.com/opsmedia/catalogpipe/internal/telemetry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Classification is the outcome C2 assigns to a completed request.
type Classification string

const (
	ClassOK        Classification = "OK"
	ClassTransient Classification = "TRANSIENT"
	ClassBan       Classification = "BAN"
	ClassNetwork   Classification = "NETWORK"
	ClassAuth      Classification = "AUTH"
)

// Result is what a Client.Do call returns.
type Result struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Body       []byte
	Class      Classification
}

// Pacer rate-limits outbound requests per host class ("index", "detail").
type Pacer struct {
	limiters map[string]*rate.Limiter
}

// NewPacer builds a Pacer where each named class is paced at one request
// per `interval` with a burst of 1 — a token bucket, not a sleep, so it
// composes with parallel detail workers.
func NewPacer(intervals map[string]time.Duration) *Pacer {
	p := &Pacer{limiters: make(map[string]*rate.Limiter, len(intervals))}
	for class, interval := range intervals {
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.limiters[class] = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

func (p *Pacer) wait(ctx context.Context, class string) error {
	l, ok := p.limiters[class]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}

// Client is the pipeline's sole outbound HTTP surface.
type Client struct {
	pool   *proxy.Pool
	pacer  *Pacer
	bypass config.BypassConfig
	logger *zap.Logger
	mx     *telemetry.Metrics

	sessionCookie string

	clientsMu sync.Mutex
	clients   map[string]*resty.Client // proxyURL (or "" for direct) -> client
}

// New builds a Client. pool may be nil when no module uses proxying.
func New(bypass config.BypassConfig, pool *proxy.Pool, pacer *Pacer, logger *zap.Logger, mx *telemetry.Metrics) *Client {
	return &Client{
		pool:    pool,
		pacer:   pacer,
		bypass:  bypass,
		logger:  logger,
		mx:      mx,
		clients: make(map[string]*resty.Client),
	}
}

// restyFor returns (creating once) the resty.Client dedicated to proxyURL —
// one client per distinct proxy so concurrent detail-fetch workers never
// race over a shared transport's proxy setting.
func (c *Client) restyFor(proxyURL string) *resty.Client {
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	if rc, ok := c.clients[proxyURL]; ok {
		return rc
	}
	rc := resty.New()
	rc.SetTimeout(20 * time.Second)
	rc.SetHeader("User-Agent", defaultUserAgent)
	rc.SetHeader("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	if proxyURL != "" {
		rc.SetProxy(proxyURL)
	}
	c.clients[proxyURL] = rc
	return rc
}

// SetSessionCookie sets the session cookie forwarded with every request —
// the one piece of catalog auth state this client is handed by the
// out-of-scope login helper.
func (c *Client) SetSessionCookie(cookie string) {
	c.sessionCookie = cookie
}

// Request describes one outbound call.
type Request struct {
	Method    string
	URL       string
	Headers   map[string]string
	Form      map[string]string
	Body      []byte
	Module    string // module tag used for proxy-pool membership and pacing class
	PaceClass string
	Timeout   time.Duration

	// UseProxy and UseBypass are the caller's per-run C1/C2 toggles
	// (distilled §6's use_proxy/use_bypass CLI/API flags). They gate
	// whether this request may use the pool/bypass service at all; the
	// pool's own module membership and cfg.Bypass.Enabled still decide
	// whether that capability is actually configured.
	UseProxy  bool
	UseBypass bool
}

const maxRetries = 2

// forbiddenBanStreak is how many consecutive 403s against the same proxy
// turn an otherwise-TRANSIENT classification into a BAN — "sustained",
// per distilled §4.1's ban definition, not a single 403.
const forbiddenBanStreak = 3

// Do performs req, retrying transient/network failures with jittered
// exponential backoff and reporting the outcome to the proxy pool.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	if c.pacer != nil {
		if err := c.pacer.wait(ctx, req.PaceClass); err != nil {
			return nil, pipeerr.New("httpclient.Do", pipeerr.Network, err)
		}
	}

	var selected *domain.ProxyEntry
	if req.UseProxy && c.pool != nil && c.pool.UsesModule(req.Module) {
		pe, err := c.pool.Select()
		if err != nil {
			return nil, err
		}
		selected = pe
	}

	var lastErr error
	forbiddenStreak := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := c.doOnce(ctx, req, selected)
		if err == nil {
			c.report(selected, ClassOK, "")
			return result, nil
		}

		cls := classify(err, result)
		// A CloudFlare interstitial seen through the bypass service is retried;
		// it counts as a ban only when the last attempt still shows it.
		if cls == ClassBan && attempt < maxRetries && req.UseBypass && c.bypass.Enabled &&
			result != nil && containsCloudflareMarker(result.Body) {
			cls = ClassTransient
		}
		if result != nil && result.StatusCode == http.StatusForbidden {
			forbiddenStreak++
			if cls == ClassTransient && forbiddenStreak >= forbiddenBanStreak {
				cls = ClassBan
			}
		} else {
			forbiddenStreak = 0
		}
		c.report(selected, cls, err.Error())

		if cls != ClassTransient && cls != ClassNetwork {
			return result, toTaxonomy(cls, err)
		}
		lastErr = toTaxonomy(cls, err)
		if attempt == maxRetries {
			break
		}
		if sleepErr := backoffSleep(ctx, attempt); sleepErr != nil {
			return nil, pipeerr.New("httpclient.Do", pipeerr.Network, sleepErr)
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, req Request, selected *domain.ProxyEntry) (*Result, error) {
	target := req.URL
	headers := map[string]string{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.UseBypass && c.bypass.Enabled {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, err
		}
		headers["x-hostname"] = u.Host
		target = fmt.Sprintf("http://%s:%d%s", c.bypass.ServiceHost, c.bypass.ServicePort, pathAndQuery(u))
	}
	if c.sessionCookie != "" {
		headers["Cookie"] = c.sessionCookie
	}

	proxyURL := ""
	if selected != nil {
		proxyURL = selected.URL
	}
	rc := c.restyFor(proxyURL)
	if req.Timeout > 0 {
		rc.SetTimeout(req.Timeout)
	}

	r := rc.R().SetContext(ctx).SetHeaders(headers)
	if len(req.Form) > 0 {
		r.SetFormData(req.Form)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	start := time.Now()
	var resp *resty.Response
	var err error
	switch strings.ToUpper(req.Method) {
	case http.MethodPost:
		resp, err = r.Post(target)
	default:
		resp, err = r.Get(target)
	}
	if c.mx != nil {
		c.mx.HTTPRequestDuration.WithLabelValues(req.Module).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		StatusCode: resp.StatusCode(),
		FinalURL:   resp.Request.URL,
		Header:     resp.Header(),
		Body:       resp.Body(),
	}
	result.Class = classifyResponse(result, c.sessionCookie != "")
	if result.Class != ClassOK {
		return result, fmt.Errorf("http classified as %s (status %d)", result.Class, result.StatusCode)
	}
	return result, nil
}

func (c *Client) report(pe *domain.ProxyEntry, cls Classification, reason string) {
	if c.pool == nil || pe == nil {
		return
	}
	switch cls {
	case ClassOK:
		c.pool.ReportSuccess(pe)
	case ClassBan:
		_ = c.pool.ReportFailure(pe, proxy.FailureBan, reason)
	default:
		_ = c.pool.ReportFailure(pe, proxy.FailureTransient, reason)
	}
}

func pathAndQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

func backoffSleep(ctx context.Context, attempt int) error {
	base := time.Second * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(base)))
	wait := base + jitter
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toTaxonomy(cls Classification, err error) error {
	switch cls {
	case ClassBan:
		return pipeerr.New("httpclient", pipeerr.Ban, err)
	case ClassAuth:
		return pipeerr.New("httpclient", pipeerr.Auth, err)
	case ClassNetwork:
		return pipeerr.New("httpclient", pipeerr.Network, err)
	default:
		return pipeerr.New("httpclient", pipeerr.TransientHTTP, err)
	}
}
