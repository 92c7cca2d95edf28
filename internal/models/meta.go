package models

import "encoding/json"

// MetaType distinguishes the two repeatable structural item kinds.
type MetaType string

const (
	MetaTypeBlock     MetaType = "block"
	MetaTypeArrayItem MetaType = "array_item"
)

// MetaRecord assigns a durable item id to a repeatable structural item of one
// version. Every version carries its own complete meta row set; item ids are
// carried forward from the preceding version when the same path exists there.
type MetaRecord struct {
	VersionID string          `db:"document_version_id" json:"document_version_id"`
	Type      MetaType        `db:"type" json:"type"`
	Path      string          `db:"path" json:"path"`
	ItemID    string          `db:"item_id" json:"item_id"`
	Meta      json.RawMessage `db:"meta" json:"meta,omitempty"`
}

// MetaKey addresses a meta record within one version.
type MetaKey struct {
	Type MetaType
	Path string
}

// MetaIndex builds a lookup of item ids by (type, path).
func MetaIndex(records []MetaRecord) map[MetaKey]string {
	index := make(map[MetaKey]string, len(records))
	for _, record := range records {
		index[MetaKey{Type: record.Type, Path: record.Path}] = record.ItemID
	}
	return index
}
