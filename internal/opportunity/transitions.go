// Package opportunity governs the lifecycle of a sales lead.
//
// Transitions are flat: any open state may move to any other open state or
// to lost. The only way into sold is CloseSale, which records the sale, marks
// the vehicle sold and marks the opportunity sold as one operation.
package opportunity

import (
	"fmt"

	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/models"
)

type edge struct {
	from, to models.OpportunityState
}

var transitions = buildTransitions()

func buildTransitions() map[edge]bool {
	t := make(map[edge]bool)
	for _, from := range models.OpportunityStates {
		if from.Terminal() {
			continue
		}
		for _, to := range models.OpportunityStates {
			if to == from || to == models.StateSold {
				continue
			}
			t[edge{from, to}] = true
		}
	}
	return t
}

// ReactivationTarget is where Reactivate sends a lost opportunity. Lost has
// no table transitions of its own.
const ReactivationTarget = models.StateNew

// CanTransition reports whether from -> to is a plain table transition.
func CanTransition(from, to models.OpportunityState) bool {
	return transitions[edge{from, to}]
}

// Targets lists the states reachable from from, in pipeline order.
func Targets(from models.OpportunityState) []models.OpportunityState {
	var out []models.OpportunityState
	for _, to := range models.OpportunityStates {
		if CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

// TransitionError is returned for a transition the table does not allow.
type TransitionError struct {
	From   models.OpportunityState
	To     models.OpportunityState
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Is(target error) bool { return target == apperr.ErrInvariant }
