package httpclient

import (
	"errors"
	"testing"
)

func TestClassifyResponse_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		r    *Result
		want Classification
	}{
		{"lone forbidden is transient, not ban", &Result{StatusCode: 403}, ClassTransient},
		{"unauthorized is auth", &Result{StatusCode: 401}, ClassAuth},
		{"rate limited is transient", &Result{StatusCode: 429}, ClassTransient},
		{"server error is transient", &Result{StatusCode: 503}, ClassTransient},
		{"not found is transient", &Result{StatusCode: 404}, ClassTransient},
		{"ok with clean body", &Result{StatusCode: 200, Body: []byte("<html>hi</html>")}, ClassOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyResponse(tt.r, false); got != tt.want {
				t.Errorf("classifyResponse(%+v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestClassifyResponse_CloudflareBodyMarkerIsBan(t *testing.T) {
	r := &Result{StatusCode: 200, Body: []byte("Checking your browser before accessing example.test")}
	if got := classifyResponse(r, false); got != ClassBan {
		t.Fatalf("classifyResponse() = %v, want %v", got, ClassBan)
	}
}

func TestClassifyResponse_RedirectToLoginWithSessionCookieIsBan(t *testing.T) {
	r := &Result{StatusCode: 302, FinalURL: "https://example.test/users/sign_in"}
	if got := classifyResponse(r, true); got != ClassBan {
		t.Fatalf("classifyResponse() with session cookie = %v, want %v", got, ClassBan)
	}
	if got := classifyResponse(r, false); got != ClassOK {
		t.Fatalf("classifyResponse() without session cookie = %v, want %v", got, ClassOK)
	}
}

func TestClassify_TransportErrorWithoutResult(t *testing.T) {
	if got := classify(errors.New("connection refused"), nil); got != ClassNetwork {
		t.Fatalf("classify(connection refused) = %v, want %v", got, ClassNetwork)
	}
	if got := classify(errors.New("unexpected EOF"), nil); got != ClassNetwork {
		t.Fatalf("classify(EOF) = %v, want %v", got, ClassNetwork)
	}
	if got := classify(nil, nil); got != ClassOK {
		t.Fatalf("classify(nil, nil) = %v, want %v", got, ClassOK)
	}
}
