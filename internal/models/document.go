package models

import "time"

// EventType records what produced a document version.
type EventType string

const (
	EventTypeCreate EventType = "create"
	EventTypeUpdate EventType = "update"
)

// DocumentVersion is one immutable snapshot of a logical document. Content
// never changes in place; only status and the deletion flag are mutable.
type DocumentVersion struct {
	ID           string    `db:"id" json:"id"`
	DocumentID   string    `db:"document_id" json:"document_id"`
	CollectionID string    `db:"collection_id" json:"collection_id"`
	Path         string    `db:"path" json:"path"`
	Status       string    `db:"status" json:"status"`
	EventType    EventType `db:"event_type" json:"event_type"`
	IsDeleted    bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document is the reconstructed, schema-shaped view of a version.
type Document struct {
	ID           string                 `json:"id"`
	VersionID    string                 `json:"version_id"`
	CollectionID string                 `json:"collection_id"`
	Path         string                 `json:"path"`
	Status       string                 `json:"status"`
	EventType    EventType              `json:"event_type"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Data         map[string]interface{} `json:"data"`
}

// DocumentListItem is one row of a collection listing.
type DocumentListItem struct {
	DocumentVersion
	Title string `db:"title" json:"title"`
}

// DocumentFilter narrows and pages a collection listing.
type DocumentFilter struct {
	CollectionID string
	Status       string
	Title        string
	OrderBy      string // "created_at" (default) or "path"
	Page         int
	PageSize     int
}

// VersionWrite bundles everything persisted for one new version: the version
// row, its attribute rows and its meta rows, committed in one transaction.
type VersionWrite struct {
	Version DocumentVersion
	Rows    []FieldRow
	Meta    []MetaRecord
}

// Pagination carries paging metadata in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
