package models

import "context"

// CollectionDefinition is the declarative schema of one content collection.
// Definitions are loaded once at startup and never mutated afterwards.
type CollectionDefinition struct {
	Name       string         `json:"name"`
	Label      string         `json:"label,omitempty"`
	TitleField string         `json:"titleField,omitempty"`
	Fields     []Field        `json:"fields"`
	Workflow   WorkflowConfig `json:"workflow"`
	Upload     *UploadRules   `json:"upload,omitempty"`

	// Hooks are attached programmatically, not from schema files.
	Hooks Hooks `json:"-"`
}

// UploadRules marks a collection as file-backed: FileField names the scalar
// file field holding the primary upload, SizeNames the derived variants that
// must be cleaned up alongside it.
type UploadRules struct {
	Enabled   bool     `json:"enabled"`
	FileField string   `json:"fileField,omitempty"`
	SizeNames []string `json:"sizes,omitempty"`
}

// Title returns the configured title field name, defaulting to "title".
func (c *CollectionDefinition) Title() string {
	if c.TitleField != "" {
		return c.TitleField
	}
	return "title"
}

// HookContext is the mutable context threaded through a hook pipeline.
// Mutations of Data made by one hook are visible to the next hook and to
// persistence.
type HookContext struct {
	Collection *CollectionDefinition
	DocumentID string
	VersionID  string
	Locale     string
	Status     string
	NextStatus string
	Data       map[string]interface{}

	// Previous is the reconstructed content being replaced, set for the
	// full-replace update hooks.
	Previous *Document

	// ArchivedCount is set for the unpublish after-hooks.
	ArchivedCount int
}

// Hook is a single lifecycle callback. A returned error aborts the remaining
// pipeline and propagates to the caller unmodified.
type Hook func(ctx context.Context, hc *HookContext) error

// HookList is an ordered hook sequence, run strictly sequentially.
type HookList []Hook

// Run invokes each hook in order, stopping at the first error.
func (l HookList) Run(ctx context.Context, hc *HookContext) error {
	for _, hook := range l {
		if hook == nil {
			continue
		}
		if err := hook(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

// Hooks groups every lifecycle hook slot of a collection.
type Hooks struct {
	BeforeCreate       HookList
	AfterCreate        HookList
	BeforeUpdate       HookList
	AfterUpdate        HookList
	BeforeStatusChange HookList
	AfterStatusChange  HookList
	BeforeUnpublish    HookList
	AfterUnpublish     HookList
	BeforeDelete       HookList
	AfterDelete        HookList
}
