package service

import (
	"fmt"
	"slices"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// transitions lists the allowed moves on the trip-planning path.
var transitions = map[domain.SessionState][]domain.SessionState{
	domain.StateAwaitingInput: {domain.StateExtracting},
	domain.StateExtracting:    {domain.StateAwaitingInput, domain.StateEnriching},
	domain.StateEnriching:     {domain.StateAssembling, domain.StateAwaitingInput},
	domain.StateAssembling:    {domain.StatePlanLinked, domain.StateAwaitingInput},
	domain.StatePlanLinked:    {domain.StateAwaitingInput},
}

func canTransition(from, to domain.SessionState) bool {
	return slices.Contains(transitions[from], to)
}

func transition(sc *domain.SessionContext, to domain.SessionState) error {
	if !canTransition(sc.State, to) {
		return fmt.Errorf("invalid session state transition %s -> %s", sc.State, to)
	}
	sc.State = to
	return nil
}
