package models

import "fmt"

// LocaleAll is the stored locale of non-localized values: written once,
// served to every locale's reads.
const LocaleAll = "all"

// AllLocales is the read-side sentinel requesting rows in every locale.
const AllLocales = "*"

// FieldRow is one flat attribute row: a single scalar value of a document
// version, addressed by its structural path.
type FieldRow struct {
	VersionID    string      `json:"version_id"`
	CollectionID string      `json:"collection_id"`
	Path         string      `json:"path"`
	Name         string      `json:"name"`
	Type         FieldType   `json:"type"`
	Locale       string      `json:"locale"`
	ParentPath   string      `json:"parent_path"`
	Value        interface{} `json:"value"`
}

// FileValue is the typed payload of a file or image field.
type FileValue struct {
	FileID    string `json:"id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	URL       string `json:"url,omitempty"`
}

// AsMap renders the payload back into its document representation.
func (f FileValue) AsMap() map[string]interface{} {
	m := map[string]interface{}{}
	if f.FileID != "" {
		m["id"] = f.FileID
	}
	if f.Filename != "" {
		m["filename"] = f.Filename
	}
	if f.MimeType != "" {
		m["mimeType"] = f.MimeType
	}
	if f.SizeBytes != 0 {
		m["sizeBytes"] = f.SizeBytes
	}
	if f.URL != "" {
		m["url"] = f.URL
	}
	return m
}

// FileValueFrom coerces a document value into a FileValue.
func FileValueFrom(value interface{}) (FileValue, error) {
	switch v := value.(type) {
	case FileValue:
		return v, nil
	case map[string]interface{}:
		f := FileValue{}
		f.FileID, _ = v["id"].(string)
		f.Filename, _ = v["filename"].(string)
		f.MimeType, _ = v["mimeType"].(string)
		f.URL, _ = v["url"].(string)
		switch size := v["sizeBytes"].(type) {
		case float64:
			f.SizeBytes = int64(size)
		case int64:
			f.SizeBytes = size
		case int:
			f.SizeBytes = int64(size)
		}
		return f, nil
	case string:
		// Bare file id shorthand.
		return FileValue{FileID: v}, nil
	}
	return FileValue{}, fmt.Errorf("cannot read file payload from %T", value)
}

// RelationValue is the typed payload of a relation field.
type RelationValue struct {
	Collection string `json:"collection"`
	DocumentID string `json:"documentId"`
}

// AsMap renders the payload back into its document representation.
func (r RelationValue) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"collection": r.Collection,
		"documentId": r.DocumentID,
	}
}

// RelationValueFrom coerces a document value into a RelationValue.
func RelationValueFrom(value interface{}) (RelationValue, error) {
	switch v := value.(type) {
	case RelationValue:
		return v, nil
	case map[string]interface{}:
		r := RelationValue{}
		r.Collection, _ = v["collection"].(string)
		r.DocumentID, _ = v["documentId"].(string)
		if r.DocumentID == "" {
			return RelationValue{}, fmt.Errorf("relation payload requires documentId")
		}
		return r, nil
	case string:
		// Bare document id shorthand.
		return RelationValue{DocumentID: v}, nil
	}
	return RelationValue{}, fmt.Errorf("cannot read relation payload from %T", value)
}
