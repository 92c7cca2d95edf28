package dto

import "github.com/craftbase/content-api/internal/models"

// CreateDocumentRequest carries the payload of a new document.
type CreateDocumentRequest struct {
	Data   map[string]interface{} `json:"data" validate:"required"`
	Locale string                 `json:"locale,omitempty"`
	Status string                 `json:"status,omitempty"`
	Path   string                 `json:"path,omitempty"`
}

// UpdateDocumentRequest fully replaces the content of a document.
type UpdateDocumentRequest struct {
	Data   map[string]interface{} `json:"data" validate:"required"`
	Locale string                 `json:"locale,omitempty"`
}

// PatchOp is one incremental edit operation of a patch request.
type PatchOp struct {
	Kind    string      `json:"kind" validate:"required,oneof=field.set array.insert array.remove array.move"`
	Path    string      `json:"path" validate:"required"`
	Value   interface{} `json:"value,omitempty"`
	ItemID  string      `json:"itemId,omitempty"`
	Index   *int        `json:"index,omitempty"`
	ToIndex int         `json:"toIndex,omitempty"`
}

// PatchDocumentRequest applies ordered patches under an optional optimistic
// concurrency guard.
type PatchDocumentRequest struct {
	Patches           []PatchOp `json:"patches" validate:"required,min=1,dive"`
	ExpectedVersionID string    `json:"expectedVersionId,omitempty"`
	Locale            string    `json:"locale,omitempty"`
}

// Model converts the wire operation into its domain form. A missing insert
// index means append.
func (p PatchOp) Model() models.Patch {
	index := -1
	if p.Index != nil {
		index = *p.Index
	}
	return models.Patch{
		Kind:    models.PatchKind(p.Kind),
		Path:    p.Path,
		Value:   p.Value,
		ItemID:  p.ItemID,
		Index:   index,
		ToIndex: p.ToIndex,
	}
}

// ChangeStatusRequest requests a workflow transition.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListDocumentsRequest narrows and pages a collection listing.
type ListDocumentsRequest struct {
	Status   string `form:"status"`
	Title    string `form:"title"`
	OrderBy  string `form:"order_by" validate:"omitempty,oneof=created_at path"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// DocumentResult identifies the document and version touched by a mutation.
type DocumentResult struct {
	DocumentID        string `json:"document_id"`
	DocumentVersionID string `json:"document_version_id"`
}

// StatusChangeResult reports the outcome of a status transition.
type StatusChangeResult struct {
	DocumentID        string `json:"document_id"`
	DocumentVersionID string `json:"document_version_id"`
	Status            string `json:"status"`
	ArchivedVersions  int64  `json:"archived_versions,omitempty"`
}

// UnpublishResult reports how many published versions were archived.
type UnpublishResult struct {
	DocumentID       string `json:"document_id"`
	ArchivedVersions int64  `json:"archived_versions"`
}

// TransitionsResponse lists the statuses reachable from the current one.
type TransitionsResponse struct {
	CurrentStatus string   `json:"current_status"`
	Available     []string `json:"available"`
}
