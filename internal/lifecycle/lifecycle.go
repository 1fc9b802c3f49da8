// Package lifecycle defines the appointment status graph. Every transition is
// applied through a conditional write guarded on AllowedFrom, so a racing
// second writer loses silently instead of double-applying side effects.
package lifecycle

import "github.com/trainwell/scheduling-engine/internal/model"

var allowedFrom = map[string][]string{
	model.StatusConfirmed:   {model.StatusBooked},
	model.StatusArrived:     {model.StatusBooked, model.StatusConfirmed},
	model.StatusCompleted:   {model.StatusBooked, model.StatusConfirmed, model.StatusArrived},
	model.StatusNoShow:      {model.StatusBooked, model.StatusConfirmed, model.StatusArrived},
	model.StatusEarlyCancel: {model.StatusBooked, model.StatusConfirmed},
	model.StatusLateCancel:  {model.StatusBooked, model.StatusConfirmed},
}

// AllowedFrom returns the statuses an appointment may hold immediately before
// moving to target. Empty for unknown targets.
func AllowedFrom(target string) []string {
	from := allowedFrom[target]
	out := make([]string, len(from))
	copy(out, from)
	return out
}

func CanTransition(from, to string) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status can never be left.
func IsTerminal(status string) bool {
	switch status {
	case model.StatusCompleted, model.StatusNoShow, model.StatusEarlyCancel, model.StatusLateCancel:
		return true
	}
	return false
}

// IsCancelled reports the two client/trainer cancellation statuses. Cancelled
// appointments are excluded from slot math and scoring windows.
func IsCancelled(status string) bool {
	return status == model.StatusEarlyCancel || status == model.StatusLateCancel
}
