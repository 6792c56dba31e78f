package httpclient

import (
	"bytes"
	"net"
	"strings"
)

// cloudflareMarkers is the unified table of CloudFlare interstitial body
// fingerprints the pipeline treats as a BAN signal when the bypass layer
// fails to clear them on retry. Centralizing this list here — rather than
// scattering substring checks across call sites — is what C2's BAN
// classification is meant to replace.
var cloudflareMarkers = [][]byte{
	[]byte("Checking your browser before accessing"),
	[]byte("cf-browser-verification"),
	[]byte("Attention Required! | Cloudflare"),
	[]byte("__cf_chl_"),
}

// classify determines a Classification from a transport-level error when no
// HTTP response was received at all.
func classify(err error, result *Result) Classification {
	if result != nil {
		return result.Class
	}
	if err == nil {
		return ClassOK
	}
	if isNetworkError(err) {
		return ClassNetwork
	}
	return ClassTransient
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
	}
	if netErr != nil {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "no such host", "i/o timeout", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyResponse implements C2's ban-classification decision function
// over (status, final URL, body fingerprint), keeping the proxy pool
// policy-free per the distilled spec's design note. A lone 403 is
// TRANSIENT, not BAN — it only becomes a ban signal once Client.Do has
// seen it repeat on consecutive attempts against the same proxy; see
// forbiddenStreak there.
func classifyResponse(r *Result, hasSessionCookie bool) Classification {
	switch {
	case r.StatusCode == 401:
		return ClassAuth
	case r.StatusCode == 429 || r.StatusCode >= 500:
		return ClassTransient
	case r.StatusCode >= 300 && r.StatusCode < 400:
		if hasSessionCookie && looksLikeLoginOrAgeGate(r.FinalURL) {
			return ClassBan
		}
		return ClassOK
	case r.StatusCode >= 400:
		return ClassTransient
	}
	if containsCloudflareMarker(r.Body) {
		return ClassBan
	}
	return ClassOK
}

func looksLikeLoginOrAgeGate(finalURL string) bool {
	lower := strings.ToLower(finalURL)
	return strings.Contains(lower, "/login") || strings.Contains(lower, "/users/sign_in") || strings.Contains(lower, "age_check") || strings.Contains(lower, "age-gate")
}

func containsCloudflareMarker(body []byte) bool {
	for _, marker := range cloudflareMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}
