package cli

import (
	"testing"

	"github.com/vietddude/faceguard/internal/offline"
)

func TestReplaySummary(t *testing.T) {
	res := offline.ReplayResult{
		Succeeded:    []string{"01J0A", "01J0B", "01J0C"},
		DeadLettered: []string{"01J0D"},
	}

	got := replaySummary(res, 2)
	want := "succeeded: 3, dead-lettered: 1, still pending: 2"
	if got != want {
		t.Errorf("replaySummary = %q, want %q", got, want)
	}

	if got := replaySummary(offline.ReplayResult{}, 0); got != "succeeded: 0, dead-lettered: 0, still pending: 0" {
		t.Errorf("empty replaySummary = %q", got)
	}
}
