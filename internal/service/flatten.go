package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/craftbase/content-api/internal/models"
)

// blockTypeKey is the discriminator carried by block elements in the legacy
// document shape.
const blockTypeKey = "blockType"

// FlattenedRow is one attribute row produced by the flattener, before it is
// stamped with version and collection ids.
type FlattenedRow struct {
	Path       string
	Name       string
	Type       models.FieldType
	Locale     string
	ParentPath string
	Value      interface{}
}

// MetaEntry is the stable identity of one repeatable structural item,
// computed during the same traversal that flattens the values.
type MetaEntry struct {
	Type   models.MetaType
	Path   string
	ItemID string
	Meta   json.RawMessage
}

// FlattenResult bundles the attribute rows and meta entries of one document.
type FlattenResult struct {
	Rows []FlattenedRow
	Meta []MetaEntry
}

// FlattenFields walks the field tree and the document data in parallel,
// emitting one typed row per present scalar value and one meta entry per
// array item or block. Item ids are reused from previous (the preceding
// version's meta index) when the same structural path exists there; an id
// embedded in the incoming item takes precedence over both.
func FlattenFields(fields []models.Field, data map[string]interface{}, locale string, previous map[models.MetaKey]string) (*FlattenResult, error) {
	result := &FlattenResult{}
	if err := flattenInto(result, fields, data, "", locale, previous); err != nil {
		return nil, err
	}
	return result, nil
}

func flattenInto(result *FlattenResult, fields []models.Field, data map[string]interface{}, prefix, locale string, previous map[models.MetaKey]string) error {
	for _, field := range fields {
		value, present := data[field.Name]
		if !present || value == nil {
			// Absence, not null, is the stored representation of "no value".
			continue
		}
		path := joinPath(prefix, field.Name)

		switch field.Type {
		case models.FieldTypeArray:
			items, ok := value.([]interface{})
			if !ok {
				return fmt.Errorf("field %s expects an array, got %T", path, value)
			}
			for i, item := range items {
				elemPath := fmt.Sprintf("%s.%d", path, i)
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					return fmt.Errorf("array item %s expects an object, got %T", elemPath, item)
				}
				result.Meta = append(result.Meta, MetaEntry{
					Type:   models.MetaTypeArrayItem,
					Path:   elemPath,
					ItemID: resolveItemID(itemMap, "_id", models.MetaTypeArrayItem, elemPath, previous),
				})
				if err := flattenInto(result, field.Fields, itemMap, elemPath, locale, previous); err != nil {
					return err
				}
			}
		case models.FieldTypeBlocks:
			items, ok := value.([]interface{})
			if !ok {
				return fmt.Errorf("field %s expects an array of blocks, got %T", path, value)
			}
			for i, item := range items {
				elemPath := fmt.Sprintf("%s.%d", path, i)
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					return fmt.Errorf("block item %s expects an object, got %T", elemPath, item)
				}
				blockName, blockData, embeddedID, err := readBlockItem(itemMap)
				if err != nil {
					return fmt.Errorf("block item %s: %w", elemPath, err)
				}
				block, ok := models.FindBlock(field.Blocks, blockName)
				if !ok {
					return fmt.Errorf("block item %s references unknown block %q", elemPath, blockName)
				}
				blockPath := joinPath(elemPath, blockName)
				meta, _ := json.Marshal(map[string]string{blockTypeKey: blockName})
				itemID := embeddedID
				if itemID == "" {
					itemID = previousOrNew(models.MetaTypeBlock, blockPath, previous)
				}
				result.Meta = append(result.Meta, MetaEntry{
					Type:   models.MetaTypeBlock,
					Path:   blockPath,
					ItemID: itemID,
					Meta:   meta,
				})
				if err := flattenInto(result, block.Fields, blockData, blockPath, locale, previous); err != nil {
					return err
				}
			}
		default:
			if err := flattenScalar(result, field, path, prefix, locale, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func flattenScalar(result *FlattenResult, field models.Field, path, parentPath, locale string, value interface{}) error {
	if _, err := field.Type.Bucket(); err != nil {
		return fmt.Errorf("field %s: %w", path, err)
	}

	emit := func(rowLocale string, rowValue interface{}) {
		result.Rows = append(result.Rows, FlattenedRow{
			Path:       path,
			Name:       field.Name,
			Type:       field.Type,
			Locale:     rowLocale,
			ParentPath: parentPath,
			Value:      rowValue,
		})
	}

	if !field.Localized {
		// One write at 'all' serves every locale's reads.
		emit(models.LocaleAll, value)
		return nil
	}

	if byLocale, ok := value.(map[string]interface{}); ok && !looksLikePayload(field.Type, byLocale) {
		locales := make([]string, 0, len(byLocale))
		for loc := range byLocale {
			locales = append(locales, loc)
		}
		sort.Strings(locales)
		for _, loc := range locales {
			if byLocale[loc] == nil {
				continue
			}
			emit(loc, byLocale[loc])
		}
		return nil
	}

	// Plain value on a localized field: store it under the caller's locale.
	emit(locale, value)
	return nil
}

// looksLikePayload guards localized file/relation fields whose map value is
// the scalar payload itself, not a locale-keyed object.
func looksLikePayload(t models.FieldType, m map[string]interface{}) bool {
	switch t {
	case models.FieldTypeFile, models.FieldTypeImage:
		_, hasID := m["id"]
		_, hasFilename := m["filename"]
		return hasID || hasFilename
	case models.FieldTypeRelation:
		_, hasDoc := m["documentId"]
		return hasDoc
	}
	return false
}

// readBlockItem accepts both block shapes: the legacy flat shape carrying a
// blockType discriminator, and the wrapped shape produced by meta attachment
// ({id, type, name, fields, meta}).
func readBlockItem(item map[string]interface{}) (name string, data map[string]interface{}, embeddedID string, err error) {
	if typ, _ := item["type"].(string); typ == string(models.MetaTypeBlock) {
		name, _ = item["name"].(string)
		fields, ok := item["fields"].(map[string]interface{})
		if name == "" || !ok {
			return "", nil, "", fmt.Errorf("wrapped block requires name and fields")
		}
		embeddedID, _ = item["id"].(string)
		return name, fields, embeddedID, nil
	}

	name, _ = item[blockTypeKey].(string)
	if name == "" {
		return "", nil, "", fmt.Errorf("missing %s discriminator", blockTypeKey)
	}
	data = make(map[string]interface{}, len(item))
	for key, value := range item {
		if key == blockTypeKey || key == "id" || key == "_id" {
			continue
		}
		data[key] = value
	}
	embeddedID, _ = item["id"].(string)
	if embeddedID == "" {
		embeddedID, _ = item["_id"].(string)
	}
	return name, data, embeddedID, nil
}

func resolveItemID(item map[string]interface{}, idKey string, metaType models.MetaType, path string, previous map[models.MetaKey]string) string {
	if embedded, _ := item[idKey].(string); embedded != "" {
		return embedded
	}
	return previousOrNew(metaType, path, previous)
}

func previousOrNew(metaType models.MetaType, path string, previous map[models.MetaKey]string) string {
	if previous != nil {
		if id, ok := previous[models.MetaKey{Type: metaType, Path: path}]; ok && id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
