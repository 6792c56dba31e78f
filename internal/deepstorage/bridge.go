// Package deepstorage implements the deep-storage bridge interface the
// pipeline orchestrator (C8) invokes after the uploader: login,
// submit_batch, status, with a request-delay floor to avoid rate limits
// (distilled §6). The wire format is implementation-defined; only the
// operations are specified, so this mirrors torrentclient's resty-backed
// shape rather than a concrete third-party SDK.
package deepstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsmedia/catalogpipe/internal/config"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

// MagnetStatus is the per-magnet outcome a Status call reports.
type MagnetStatus string

const (
	StatusOK      MagnetStatus = "OK"
	StatusPending MagnetStatus = "PENDING"
	StatusFailed  MagnetStatus = "FAILED"
)

// Bridge is the pipeline's sole dependency on the deep-storage service.
type Bridge struct {
	rc        *resty.Client
	cfg       config.DeepStorageConfig
	token     string
	lastCall  time.Time
}

// New builds a Bridge using cfg's credentials and pacing floor.
func New(cfg config.DeepStorageConfig, baseURL string) *Bridge {
	rc := resty.New()
	rc.SetBaseURL(baseURL)
	return &Bridge{rc: rc, cfg: cfg}
}

func (b *Bridge) pace(ctx context.Context) error {
	if b.cfg.RequestDelay <= 0 {
		return nil
	}
	wait := b.cfg.RequestDelay - time.Since(b.lastCall)
	if wait <= 0 {
		b.lastCall = time.Now()
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	b.lastCall = time.Now()
	return nil
}

// Login authenticates against the bridge. A 401 is an AUTH error and an
// unreachable service a NETWORK error; the orchestrator logs either one and
// does not fail the run.
func (b *Bridge) Login(ctx context.Context) error {
	if err := b.pace(ctx); err != nil {
		return pipeerr.New("deepstorage.Login", pipeerr.Network, err)
	}
	resp, err := b.rc.R().SetContext(ctx).SetFormData(map[string]string{
		"email":    b.cfg.Email,
		"password": b.cfg.Pass,
	}).Post("/auth/login")
	if err != nil {
		return pipeerr.New("deepstorage.Login", pipeerr.Network, err)
	}
	if resp.StatusCode() == 401 {
		return pipeerr.New("deepstorage.Login", pipeerr.Auth, fmt.Errorf("deep storage credentials rejected"))
	}
	if resp.StatusCode() != 200 {
		return pipeerr.New("deepstorage.Login", pipeerr.TransientHTTP, fmt.Errorf("status %d", resp.StatusCode()))
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		b.token = body.Token
	}
	return nil
}

// BatchResult is SubmitBatch's outcome.
type BatchResult struct {
	BatchID string
}

// SubmitBatch hands magnets to the bridge for ingestion and returns a
// batch identifier Status can later be polled with.
func (b *Bridge) SubmitBatch(ctx context.Context, magnets []string) (BatchResult, error) {
	if err := b.pace(ctx); err != nil {
		return BatchResult{}, pipeerr.New("deepstorage.SubmitBatch", pipeerr.Network, err)
	}
	resp, err := b.rc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+b.token).
		SetBody(map[string]any{"magnets": magnets}).Post("/batches")
	if err != nil {
		return BatchResult{}, pipeerr.New("deepstorage.SubmitBatch", pipeerr.Network, err)
	}
	if resp.StatusCode() != 201 && resp.StatusCode() != 200 {
		return BatchResult{}, pipeerr.New("deepstorage.SubmitBatch", pipeerr.TransientHTTP, fmt.Errorf("status %d", resp.StatusCode()))
	}
	var body struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return BatchResult{}, pipeerr.New("deepstorage.SubmitBatch", pipeerr.Parse, err)
	}
	return BatchResult{BatchID: body.BatchID}, nil
}

// Status returns the per-magnet outcome for a previously submitted batch.
func (b *Bridge) Status(ctx context.Context, batchID string) (map[string]MagnetStatus, error) {
	if err := b.pace(ctx); err != nil {
		return nil, pipeerr.New("deepstorage.Status", pipeerr.Network, err)
	}
	resp, err := b.rc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+b.token).
		Get("/batches/" + batchID)
	if err != nil {
		return nil, pipeerr.New("deepstorage.Status", pipeerr.Network, err)
	}
	if resp.StatusCode() != 200 {
		return nil, pipeerr.New("deepstorage.Status", pipeerr.TransientHTTP, fmt.Errorf("status %d", resp.StatusCode()))
	}
	var body struct {
		Results map[string]string `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, pipeerr.New("deepstorage.Status", pipeerr.Parse, err)
	}
	out := make(map[string]MagnetStatus, len(body.Results))
	for k, v := range body.Results {
		out[k] = MagnetStatus(v)
	}
	return out, nil
}
