// Package torrentclient implements the abstract torrent-client contract
// the uploader (C7) depends on: login, add, list_recent, delete, against a
// Web-UI-style HTTP API (distilled §6). Grounded in the same
// resty.Client-per-endpoint pattern httpclient.Client uses, since the wire
// format is implementation-defined and qBittorrent's Web API is the
// concrete instance named throughout the retrieved reference material.
package torrentclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

// AddResult is the per-torrent outcome of Client.Add.
type AddResult string

const (
	AddOK           AddResult = "OK"
	AddRejected     AddResult = "REJECTED"
	AddNetworkError AddResult = "NETWORK_ERROR"
)

// RecentTorrent is one row returned by ListRecent.
type RecentTorrent struct {
	Hash     string
	Name     string
	Category string
	AddedOn  time.Time
}

// Client is the uploader's sole dependency on the torrent client's Web UI.
type Client struct {
	rc       *resty.Client
	cfg      config.TorrentClientConfig
	cookie   string
}

// New builds a Client targeting cfg.Host:cfg.Port.
func New(cfg config.TorrentClientConfig) *Client {
	rc := resty.New()
	rc.SetBaseURL(fmt.Sprintf("http://%s:%d/api/v2", cfg.Host, cfg.Port))
	rc.SetTimeout(cfg.RequestTimeout)
	return &Client{rc: rc, cfg: cfg}
}

// Login authenticates and caches the session cookie for subsequent calls.
// AUTH-kind failures are fatal to the uploader per distilled §4.7.
func (c *Client) Login(ctx context.Context) error {
	resp, err := c.rc.R().SetContext(ctx).
		SetFormData(map[string]string{"username": c.cfg.User, "password": c.cfg.Pass}).
		Post("/auth/login")
	if err != nil {
		return pipeerr.New("torrentclient.Login", pipeerr.Network, err)
	}
	if resp.StatusCode() != 200 || string(resp.Body()) != "Ok." {
		return pipeerr.New("torrentclient.Login", pipeerr.Auth, fmt.Errorf("unexpected login response: %d %q", resp.StatusCode(), resp.Body()))
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "SID" {
			c.cookie = ck.String()
		}
	}
	return nil
}

// Add submits magnet for download with the given category, save path and
// flags. REJECTED is per-torrent and non-critical; NETWORK_ERROR sustained
// across a run is critical (distilled §4.7's client contract).
func (c *Client) Add(ctx context.Context, magnet, category, savePath string, autoStart, skipChecking bool) (AddResult, error) {
	r := c.rc.R().SetContext(ctx).SetHeader("Cookie", c.cookie).SetFormData(map[string]string{
		"urls":         magnet,
		"category":     category,
		"savepath":     savePath,
		"paused":       boolToPaused(autoStart),
		"skip_checking": boolToQbit(skipChecking),
	})
	resp, err := r.Post("/torrents/add")
	if err != nil {
		return AddNetworkError, pipeerr.New("torrentclient.Add", pipeerr.Network, err)
	}
	switch resp.StatusCode() {
	case 200:
		return AddOK, nil
	case 403:
		return AddRejected, pipeerr.New("torrentclient.Add", pipeerr.Auth, fmt.Errorf("add rejected: not logged in"))
	case 415:
		return AddRejected, nil
	default:
		return AddRejected, nil
	}
}

// ListRecent returns torrents added since since, filtered to categories
// when non-empty. Used by the deep-storage bridge step to select torrents
// older than N days for migration.
func (c *Client) ListRecent(ctx context.Context, since time.Time, categories []string) ([]RecentTorrent, error) {
	q := map[string]string{"sort": "added_on", "reverse": "true"}
	if len(categories) == 1 {
		q["category"] = categories[0]
	}
	resp, err := c.rc.R().SetContext(ctx).SetHeader("Cookie", c.cookie).SetQueryParams(q).Get("/torrents/info")
	if err != nil {
		return nil, pipeerr.New("torrentclient.ListRecent", pipeerr.Network, err)
	}
	if resp.StatusCode() != 200 {
		return nil, pipeerr.New("torrentclient.ListRecent", pipeerr.TransientHTTP, fmt.Errorf("status %d", resp.StatusCode()))
	}
	torrents, err := parseRecentTorrents(resp.Body(), since)
	if err != nil || len(categories) <= 1 {
		return torrents, err
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	out := torrents[:0]
	for _, t := range torrents {
		if want[t.Category] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Delete removes the torrent identified by hash, optionally deleting its
// downloaded files.
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	resp, err := c.rc.R().SetContext(ctx).SetHeader("Cookie", c.cookie).SetFormData(map[string]string{
		"hashes":      hash,
		"deleteFiles": boolToQbit(deleteFiles),
	}).Post("/torrents/delete")
	if err != nil {
		return pipeerr.New("torrentclient.Delete", pipeerr.Network, err)
	}
	if resp.StatusCode() != 200 {
		return pipeerr.New("torrentclient.Delete", pipeerr.TransientHTTP, fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}

func boolToQbit(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func boolToPaused(autoStart bool) string {
	// qBittorrent's Web API takes "paused", the inverse of auto_start.
	return boolToQbit(!autoStart)
}
