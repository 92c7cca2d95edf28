package models

import "fmt"

// FieldType identifies a schema field kind. Scalar kinds map 1:1 onto a
// physical value table; structural kinds carry nested child fields.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeRichText FieldType = "richtext"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeDecimal  FieldType = "decimal"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeFile     FieldType = "file"
	FieldTypeImage    FieldType = "image"
	FieldTypeRelation FieldType = "relation"
	FieldTypeJSON     FieldType = "json"

	FieldTypeArray  FieldType = "array"
	FieldTypeBlocks FieldType = "blocks"
)

// ValueBucket names one of the physical attribute tables.
type ValueBucket string

const (
	BucketText     ValueBucket = "text"
	BucketNumeric  ValueBucket = "numeric"
	BucketBoolean  ValueBucket = "boolean"
	BucketDatetime ValueBucket = "datetime"
	BucketFile     ValueBucket = "file"
	BucketRelation ValueBucket = "relation"
	BucketJSON     ValueBucket = "json"
)

// Buckets lists every physical value bucket in a stable order.
var Buckets = []ValueBucket{
	BucketText,
	BucketNumeric,
	BucketBoolean,
	BucketDatetime,
	BucketFile,
	BucketRelation,
	BucketJSON,
}

// Bucket maps a scalar field type onto its physical table. Every scalar kind
// must be matched explicitly; an unknown or structural kind is an error so a
// new kind cannot silently fall through.
func (t FieldType) Bucket() (ValueBucket, error) {
	switch t {
	case FieldTypeText:
		return BucketText, nil
	case FieldTypeInteger, FieldTypeDecimal, FieldTypeFloat:
		return BucketNumeric, nil
	case FieldTypeBoolean:
		return BucketBoolean, nil
	case FieldTypeDate, FieldTypeDateTime:
		return BucketDatetime, nil
	case FieldTypeFile, FieldTypeImage:
		return BucketFile, nil
	case FieldTypeRelation:
		return BucketRelation, nil
	case FieldTypeRichText, FieldTypeJSON:
		return BucketJSON, nil
	case FieldTypeArray, FieldTypeBlocks:
		return "", fmt.Errorf("field type %q is structural, not scalar", t)
	}
	return "", fmt.Errorf("unknown field type %q", t)
}

// Field is one node of a collection's field tree.
type Field struct {
	Name      string      `json:"name"`
	Label     string      `json:"label,omitempty"`
	Type      FieldType   `json:"type"`
	Localized bool        `json:"localized,omitempty"`
	Required  bool        `json:"required,omitempty"`
	Default   interface{} `json:"default,omitempty"`

	// Fields holds the children of an array field.
	Fields []Field `json:"fields,omitempty"`
	// Blocks holds the variants of a blocks field.
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is one named variant of a blocks field.
type Block struct {
	Name   string  `json:"name"`
	Label  string  `json:"label,omitempty"`
	Fields []Field `json:"fields"`
}

// FindField returns the field with the given name from a field list.
func FindField(fields []Field, name string) (*Field, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], true
		}
	}
	return nil, false
}

// FindBlock returns the block variant with the given name.
func FindBlock(blocks []Block, name string) (*Block, bool) {
	for i := range blocks {
		if blocks[i].Name == name {
			return &blocks[i], true
		}
	}
	return nil, false
}
