package pipeerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	base := New("http.Do", Ban, errors.New("cloudflare challenge"))
	wrapped := fmt.Errorf("client: %w", base)

	if got := KindOf(wrapped); got != Ban {
		t.Fatalf("KindOf(wrapped) = %v, want %v", got, Ban)
	}
	if !Is(wrapped, Ban) {
		t.Fatal("Is(wrapped, Ban) = false, want true")
	}
}

func TestKindOf_NonTaxonomyErrorIsUnknown(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != Unknown {
		t.Fatalf("KindOf(plain) = %v, want %v", got, Unknown)
	}
	if got := KindOf(nil); got != Unknown {
		t.Fatalf("KindOf(nil) = %v, want %v", got, Unknown)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		k    Kind
		want bool
	}{
		{Network, true},
		{TransientHTTP, true},
		{Ban, false},
		{Auth, false},
		{Parse, false},
		{LogicGuard, false},
		{IO, false},
	}
	for _, tt := range tests {
		err := New("op", tt.k, nil)
		if got := Retryable(err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		k    Kind
		want bool
	}{
		{Auth, true},
		{IO, true},
		{LogicGuard, true},
		{Network, false},
		{TransientHTTP, false},
		{Ban, false},
		{Parse, false},
	}
	for _, tt := range tests {
		err := New("op", tt.k, nil)
		if got := Fatal(err); got != tt.want {
			t.Errorf("Fatal(%v) = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestError_MessageWithAndWithoutWrapped(t *testing.T) {
	withWrapped := New("scraper.Run", Parse, errors.New("missing video code"))
	if got := withWrapped.Error(); got != "scraper.Run: PARSE: missing video code" {
		t.Fatalf("Error() = %q", got)
	}

	bare := New("scraper.Run", Parse, nil)
	if got := bare.Error(); got != "scraper.Run: PARSE" {
		t.Fatalf("Error() = %q", got)
	}
}
