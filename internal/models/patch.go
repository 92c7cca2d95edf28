package models

// PatchKind identifies one incremental edit operation.
type PatchKind string

const (
	PatchFieldSet    PatchKind = "field.set"
	PatchArrayInsert PatchKind = "array.insert"
	PatchArrayRemove PatchKind = "array.remove"
	PatchArrayMove   PatchKind = "array.move"
)

// Patch is one edit operation against a reconstructed document. Array
// operations address items by stable item id, never by positional index.
type Patch struct {
	Kind   PatchKind   `json:"kind"`
	Path   string      `json:"path"`
	Value  interface{} `json:"value,omitempty"`
	ItemID string      `json:"itemId,omitempty"`
	// Index positions array.insert payloads; -1 or out-of-range appends.
	Index int `json:"index,omitempty"`
	// ToIndex is the target position of array.move.
	ToIndex int `json:"toIndex,omitempty"`
}
