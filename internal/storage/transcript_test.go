package storage

import (
	"testing"
	"time"
)

func TestTranscriptKey(t *testing.T) {
	at := time.Date(2026, 3, 2, 17, 45, 0, 0, time.UTC)

	got := TranscriptKey("proj-1", "run-9", "run", at)
	want := "transcripts/proj-1/2026/03/02/run-9/run.json"
	if got != want {
		t.Errorf("key %q, want %q", got, want)
	}
}

func TestTranscriptKey_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	at := time.Date(2026, 3, 3, 1, 0, 0, 0, loc) // 2026-03-02 16:00 UTC

	got := TranscriptKey("proj-1", "run-9", "item-1", at)
	want := "transcripts/proj-1/2026/03/02/run-9/item-1.json"
	if got != want {
		t.Errorf("key %q, want %q", got, want)
	}
}
