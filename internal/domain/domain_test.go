package domain

import (
	"testing"
	"time"
)

func TestStatus_ExitCode(t *testing.T) {
	tests := []struct {
		s    Status
		want int
	}{
		{StatusSuccess, 0},
		{StatusSuccessEmpty, 0},
		{StatusFailedBanned, 2},
		{StatusFailedCritical, 1},
		{Status("UNKNOWN"), 1},
	}
	for _, tt := range tests {
		if got := tt.s.ExitCode(); got != tt.want {
			t.Errorf("%s.ExitCode() = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestTorrentTypeSet(t *testing.T) {
	s := NewTorrentTypeSet(Subtitle, HackedSubtitle)
	if !s.Has(Subtitle) || !s.Has(HackedSubtitle) {
		t.Fatalf("set %+v missing expected members", s)
	}
	if s.Has(NoSubtitle) {
		t.Fatal("set should not contain NoSubtitle")
	}
	if s.Empty() {
		t.Fatal("non-empty set reported Empty() == true")
	}

	empty := NewTorrentTypeSet()
	if !empty.Empty() {
		t.Fatal("NewTorrentTypeSet() with no args should be Empty()")
	}

	empty.Add(NoSubtitle)
	if !empty.Has(NoSubtitle) {
		t.Fatal("Add() did not register the member")
	}
}

func TestTorrentType_Phase(t *testing.T) {
	tests := []struct {
		tt   TorrentType
		want int
	}{
		{HackedSubtitle, 1},
		{Subtitle, 1},
		{HackedNoSubtitle, 2},
		{NoSubtitle, 2},
	}
	for _, tt := range tests {
		if got := tt.tt.Phase(); got != tt.want {
			t.Errorf("%s.Phase() = %d, want %d", tt.tt, got, tt.want)
		}
	}
}

func TestMagnet_ValidAndHasTag(t *testing.T) {
	valid := Magnet{URI: "magnet:?xt=urn:btih:abc", Tags: []string{"字幕"}}
	if !valid.Valid() {
		t.Fatal("Valid() = false for a well-formed magnet URI")
	}
	if !valid.HasTag("字幕") {
		t.Fatal("HasTag() case-fold match failed")
	}

	invalid := Magnet{URI: "https://example.test/not-a-magnet"}
	if invalid.Valid() {
		t.Fatal("Valid() = true for a non-magnet URI")
	}
}

func TestHistoryRecord_ColumnIsSet(t *testing.T) {
	rec := NewHistoryRecord("https://example.test/a", 1, "ABC-1", time.Now())
	if rec.ColumnIsSet(Subtitle) {
		t.Fatal("freshly created record should have no columns set")
	}
	rec.Columns[Subtitle] = time.Now()
	if !rec.ColumnIsSet(Subtitle) {
		t.Fatal("ColumnIsSet() should report true once a non-zero timestamp is stored")
	}

	var nilRec *HistoryRecord
	if nilRec.ColumnIsSet(Subtitle) {
		t.Fatal("ColumnIsSet() on a nil receiver must report false, not panic")
	}
}

func TestProxyEntry_IsCoolingDown(t *testing.T) {
	now := time.Now()
	pe := &ProxyEntry{Banned: true, CooldownExpiry: now.Add(time.Hour)}
	if !pe.IsCoolingDown(now) {
		t.Fatal("entry with a future cooldown expiry should be cooling down")
	}

	expired := &ProxyEntry{Banned: true, CooldownExpiry: now.Add(-time.Hour)}
	if expired.IsCoolingDown(now) {
		t.Fatal("entry with an expired cooldown should not be cooling down")
	}

	notBanned := &ProxyEntry{Banned: false, CooldownExpiry: now.Add(time.Hour)}
	if notBanned.IsCoolingDown(now) {
		t.Fatal("a never-banned entry is never cooling down")
	}
}
