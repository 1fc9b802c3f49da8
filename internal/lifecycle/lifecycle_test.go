package lifecycle

import (
	"testing"

	"github.com/trainwell/scheduling-engine/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{model.StatusBooked, model.StatusConfirmed, true},
		{model.StatusBooked, model.StatusArrived, true},
		{model.StatusConfirmed, model.StatusArrived, true},
		{model.StatusArrived, model.StatusCompleted, true},
		{model.StatusBooked, model.StatusCompleted, true},
		{model.StatusConfirmed, model.StatusNoShow, true},
		{model.StatusArrived, model.StatusNoShow, true},
		{model.StatusBooked, model.StatusLateCancel, true},

		// Terminal statuses never move again.
		{model.StatusCompleted, model.StatusNoShow, false},
		{model.StatusNoShow, model.StatusCompleted, false},
		{model.StatusEarlyCancel, model.StatusConfirmed, false},
		{model.StatusLateCancel, model.StatusCompleted, false},

		// No backwards edges.
		{model.StatusArrived, model.StatusConfirmed, false},
		{model.StatusConfirmed, model.StatusBooked, false},
		// Arrived clients are past the cancellation window.
		{model.StatusArrived, model.StatusLateCancel, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestAllowedFrom_UnknownTarget(t *testing.T) {
	if got := AllowedFrom("nonsense"); len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{model.StatusCompleted, model.StatusNoShow, model.StatusEarlyCancel, model.StatusLateCancel}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []string{model.StatusBooked, model.StatusConfirmed, model.StatusArrived} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
