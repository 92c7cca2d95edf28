package service

import (
	"fmt"

	"github.com/craftbase/content-api/internal/models"
)

// TransitionResult is the outcome of validating one workflow transition.
type TransitionResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateStatusTransition checks whether next is reachable from current in a
// sequential workflow. Reachable means: staying put, moving one step forward
// or backward, or resetting to the first status from anywhere.
func ValidateStatusTransition(workflow models.WorkflowConfig, current, next string) TransitionResult {
	currentIdx := workflow.IndexOf(current)
	nextIdx := workflow.IndexOf(next)

	if currentIdx == -1 || nextIdx == -1 {
		unknown := current
		if nextIdx == -1 {
			unknown = next
		}
		return TransitionResult{
			Valid:  false,
			Reason: fmt.Sprintf("cannot transition from %q to %q: status %q is not part of the workflow", current, next, unknown),
		}
	}

	if next == current {
		return TransitionResult{Valid: true}
	}
	if nextIdx == currentIdx+1 || nextIdx == currentIdx-1 {
		return TransitionResult{Valid: true}
	}
	if nextIdx == 0 {
		return TransitionResult{Valid: true}
	}

	return TransitionResult{
		Valid:  false,
		Reason: fmt.Sprintf("cannot transition from %q to %q: only adjacent statuses or a reset to %q are allowed", current, next, workflow.Statuses[0].Name),
	}
}

// AvailableTransitions enumerates the statuses reachable from current, in a
// fixed order: the first status, the adjacent previous status, the adjacent
// next status. The current status itself is never included. An unrecognized
// current status yields no transitions.
func AvailableTransitions(workflow models.WorkflowConfig, current string) []string {
	currentIdx := workflow.IndexOf(current)
	if currentIdx == -1 {
		return nil
	}

	transitions := make([]string, 0, 3)
	if currentIdx != 0 {
		transitions = append(transitions, workflow.Statuses[0].Name)
	}
	if currentIdx > 1 {
		transitions = append(transitions, workflow.Statuses[currentIdx-1].Name)
	}
	if currentIdx < len(workflow.Statuses)-1 {
		transitions = append(transitions, workflow.Statuses[currentIdx+1].Name)
	}
	return transitions
}
