package enums

import "testing"

func TestAlertStatusTransitionsForwardOnly(t *testing.T) {
	allowed := map[AlertStatus][]AlertStatus{
		AlertStatusPending:    {AlertStatusInProgress, AlertStatusFailed},
		AlertStatusInProgress: {AlertStatusSent, AlertStatusFailed, AlertStatusPartiallySent},
	}

	for _, from := range validAlertStatuses {
		for _, to := range validAlertStatuses {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("transition %s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	for _, terminal := range []AlertStatus{AlertStatusSent, AlertStatusFailed, AlertStatusPartiallySent} {
		if !terminal.IsTerminal() {
			t.Fatalf("%s should be terminal", terminal)
		}
		for _, next := range validAlertStatuses {
			if terminal.CanTransitionTo(next) {
				t.Fatalf("terminal status %s must not transition to %s", terminal, next)
			}
		}
	}
	if AlertStatusPending.IsTerminal() || AlertStatusInProgress.IsTerminal() {
		t.Fatal("pending/in_progress must not be terminal")
	}
}

func TestParseAlertStatus(t *testing.T) {
	status, err := ParseAlertStatus("partially_sent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != AlertStatusPartiallySent {
		t.Fatalf("unexpected status %q", status)
	}
	if _, err := ParseAlertStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
