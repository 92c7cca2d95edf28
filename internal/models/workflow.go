package models

import "fmt"

// Reserved workflow statuses. Every workflow carries these three, in this
// relative order, with custom statuses only between draft and published.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// WorkflowStatus is one named step of a sequential workflow.
type WorkflowStatus struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Verb  string `json:"verb,omitempty"`
}

// WorkflowConfig is the ordered status sequence for a collection.
type WorkflowConfig struct {
	Statuses      []WorkflowStatus `json:"statuses"`
	DefaultStatus string           `json:"defaultStatus,omitempty"`
}

// DefaultWorkflow returns the minimal draft/published/archived sequence.
func DefaultWorkflow() WorkflowConfig {
	return WorkflowConfig{
		Statuses: []WorkflowStatus{
			{Name: StatusDraft, Label: "Draft", Verb: "save"},
			{Name: StatusPublished, Label: "Published", Verb: "publish"},
			{Name: StatusArchived, Label: "Archived", Verb: "archive"},
		},
		DefaultStatus: StatusDraft,
	}
}

// IndexOf returns the position of a status in the sequence, or -1.
func (w WorkflowConfig) IndexOf(name string) int {
	for i, status := range w.Statuses {
		if status.Name == name {
			return i
		}
	}
	return -1
}

// Default returns the configured default status, falling back to the first
// status of the sequence.
func (w WorkflowConfig) Default() string {
	if w.DefaultStatus != "" {
		return w.DefaultStatus
	}
	if len(w.Statuses) > 0 {
		return w.Statuses[0].Name
	}
	return StatusDraft
}

// Validate enforces the reserved-status invariant: draft, published and
// archived all present in that relative order, custom statuses only between
// draft and published, and the default status part of the sequence.
func (w WorkflowConfig) Validate() error {
	draft := w.IndexOf(StatusDraft)
	published := w.IndexOf(StatusPublished)
	archived := w.IndexOf(StatusArchived)
	if draft == -1 || published == -1 || archived == -1 {
		return fmt.Errorf("workflow must contain %q, %q and %q", StatusDraft, StatusPublished, StatusArchived)
	}
	if draft != 0 {
		return fmt.Errorf("workflow must start with %q", StatusDraft)
	}
	if !(draft < published && published < archived) {
		return fmt.Errorf("workflow statuses %q, %q, %q must keep their relative order", StatusDraft, StatusPublished, StatusArchived)
	}
	if archived != len(w.Statuses)-1 {
		return fmt.Errorf("workflow must end with %q", StatusArchived)
	}
	if published != archived-1 {
		return fmt.Errorf("custom statuses are only allowed between %q and %q", StatusDraft, StatusPublished)
	}
	seen := make(map[string]struct{}, len(w.Statuses))
	for _, status := range w.Statuses {
		if status.Name == "" {
			return fmt.Errorf("workflow status requires a name")
		}
		if _, dup := seen[status.Name]; dup {
			return fmt.Errorf("duplicate workflow status %q", status.Name)
		}
		seen[status.Name] = struct{}{}
	}
	if w.DefaultStatus != "" && w.IndexOf(w.DefaultStatus) == -1 {
		return fmt.Errorf("default status %q is not part of the workflow", w.DefaultStatus)
	}
	return nil
}
