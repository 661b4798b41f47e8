package monitor

import (
	"testing"

	"ivsentinel/internal/models"
)

func TestAdvanceTracker_AlertLifecycle(t *testing.T) {
	var st models.TrackerState

	// First qualifying observation alerts and anchors both levels.
	action, st := advanceTracker(st, 46.2, 1.0)
	if action != trackerFirstAlert {
		t.Fatalf("first observation: action = %v, want trackerFirstAlert", action)
	}
	if st.LastAlertIV != 46.2 || st.InitialAlertIV != 46.2 {
		t.Fatalf("state after first alert = %+v", st)
	}

	// +0.6 is under the 1.0 increase threshold: stay quiet.
	action, st = advanceTracker(st, 46.8, 1.0)
	if action != trackerHold {
		t.Fatalf("small rise: action = %v, want trackerHold", action)
	}
	if st.LastAlertIV != 46.2 {
		t.Fatalf("hold must not move the last alert level, got %+v", st)
	}

	// +1.3 over the last alert fires again; the initial anchor is kept.
	action, st = advanceTracker(st, 47.5, 1.0)
	if action != trackerRisingAlert {
		t.Fatalf("rise: action = %v, want trackerRisingAlert", action)
	}
	if st.LastAlertIV != 47.5 || st.InitialAlertIV != 46.2 {
		t.Fatalf("state after rising alert = %+v", st)
	}
}

func TestAdvanceTracker_RisingBoundary(t *testing.T) {
	st := models.TrackerState{LastAlertIV: 46.2, InitialAlertIV: 46.2}

	// Exactly last + increase fires.
	action, _ := advanceTracker(st, 47.2, 1.0)
	if action != trackerRisingAlert {
		t.Errorf("exact increase: action = %v, want trackerRisingAlert", action)
	}

	action, _ = advanceTracker(st, 47.1999, 1.0)
	if action != trackerHold {
		t.Errorf("just under increase: action = %v, want trackerHold", action)
	}
}

func TestAdvanceTracker_ResetAfterDrop(t *testing.T) {
	var st models.TrackerState

	action, st := advanceTracker(st, 58.0, 1.0)
	if action != trackerFirstAlert {
		t.Fatalf("action = %v, want trackerFirstAlert", action)
	}

	// 55.5 < 58.0 - 2.0 clears the tracker without alerting.
	action, st = advanceTracker(st, 55.5, 1.0)
	if action != trackerReset {
		t.Fatalf("deep drop: action = %v, want trackerReset", action)
	}
	if st.Armed() {
		t.Fatalf("reset must clear the state, got %+v", st)
	}

	// The next qualifying observation is a fresh first alert.
	action, st = advanceTracker(st, 46.5, 1.0)
	if action != trackerFirstAlert {
		t.Fatalf("after reset: action = %v, want trackerFirstAlert", action)
	}
	if st.InitialAlertIV != 46.5 {
		t.Fatalf("state after re-arm = %+v", st)
	}
}

func TestAdvanceTracker_DropBoundaryHolds(t *testing.T) {
	st := models.TrackerState{LastAlertIV: 58.0, InitialAlertIV: 58.0}

	// Exactly initial - 2.0 is not below it: no reset, no alert.
	action, st := advanceTracker(st, 56.0, 1.0)
	if action != trackerHold {
		t.Errorf("at the drop boundary: action = %v, want trackerHold", action)
	}
	if st.InitialAlertIV != 58.0 {
		t.Errorf("boundary hold must keep state, got %+v", st)
	}
}

func TestAdvanceTracker_FreshStateNeverResets(t *testing.T) {
	// A zero tracker has no initial level; even a tiny IV is a first alert,
	// not a reset.
	action, st := advanceTracker(models.TrackerState{}, 0.5, 1.0)
	if action != trackerFirstAlert {
		t.Errorf("action = %v, want trackerFirstAlert", action)
	}
	if st.LastAlertIV != 0.5 {
		t.Errorf("state = %+v", st)
	}
}
