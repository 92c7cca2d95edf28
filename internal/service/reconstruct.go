package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/craftbase/content-api/internal/models"
)

// ReconstructFields rebuilds the nested document shape from flat attribute
// rows. Integer path segments resolve against arrays, other segments against
// objects. A path with rows in more than one locale reconstructs as a
// locale-keyed object regardless of the requested locale. Under the
// all-locales sentinel any localized row keeps its locale key, even when it
// is the only row at its path, so a re-flatten cannot relabel it.
func ReconstructFields(rows []models.FieldRow, locale string) (map[string]interface{}, error) {
	grouped := make(map[string][]models.FieldRow)
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, seen := grouped[row.Path]; !seen {
			order = append(order, row.Path)
		}
		grouped[row.Path] = append(grouped[row.Path], row)
	}

	root := map[string]interface{}{}
	for _, path := range order {
		group := grouped[path]
		value := pickValue(group, locale)
		if err := setAtPath(root, strings.Split(path, "."), value); err != nil {
			return nil, fmt.Errorf("path %s: %w", path, err)
		}
	}
	return root, nil
}

func pickValue(group []models.FieldRow, locale string) interface{} {
	if hasLocalizedRow(group) && (len(group) > 1 || locale == models.AllLocales) {
		byLocale := make(map[string]interface{}, len(group))
		for _, row := range group {
			byLocale[row.Locale] = row.Value
		}
		return byLocale
	}

	var fallback *models.FieldRow
	for i := range group {
		row := &group[i]
		if row.Locale == locale {
			return row.Value
		}
		if row.Locale == models.LocaleAll && fallback == nil {
			fallback = row
		}
	}
	if fallback != nil {
		return fallback.Value
	}
	return group[0].Value
}

func hasLocalizedRow(group []models.FieldRow) bool {
	for _, row := range group {
		if row.Locale != models.LocaleAll {
			return true
		}
	}
	return false
}

func setAtPath(root map[string]interface{}, segments []string, value interface{}) error {
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}
	child, err := assign(root[segments[0]], segments[1:], value)
	if err != nil {
		return err
	}
	root[segments[0]] = child
	return nil
}

// assign descends along the remaining segments, creating array slots and
// object keys on demand, and returns the (possibly new) node.
func assign(node interface{}, segments []string, value interface{}) (interface{}, error) {
	if len(segments) == 0 {
		return value, nil
	}
	segment := segments[0]

	if index, err := strconv.Atoi(segment); err == nil {
		arr, ok := node.([]interface{})
		if node != nil && !ok {
			return nil, fmt.Errorf("segment %q expects an array, found %T", segment, node)
		}
		for len(arr) <= index {
			arr = append(arr, nil)
		}
		child, err := assign(arr[index], segments[1:], value)
		if err != nil {
			return nil, err
		}
		arr[index] = child
		return arr, nil
	}

	m, ok := node.(map[string]interface{})
	if node == nil {
		m = map[string]interface{}{}
	} else if !ok {
		return nil, fmt.Errorf("segment %q expects an object, found %T", segment, node)
	}
	child, err := assign(m[segment], segments[1:], value)
	if err != nil {
		return nil, err
	}
	m[segment] = child
	return m, nil
}

// AttachMeta walks the reconstructed document and decorates repeatable items
// with their stable identities: array items get an "_id" key, block items are
// rewrapped as {id, type, name, fields, meta}.
func AttachMeta(fields []models.Field, data map[string]interface{}, records []models.MetaRecord) {
	index := make(map[models.MetaKey]models.MetaRecord, len(records))
	for _, record := range records {
		index[models.MetaKey{Type: record.Type, Path: record.Path}] = record
	}
	attachMetaInto(fields, data, "", index)
}

func attachMetaInto(fields []models.Field, data map[string]interface{}, prefix string, index map[models.MetaKey]models.MetaRecord) {
	for _, field := range fields {
		value, present := data[field.Name]
		if !present {
			continue
		}
		path := joinPath(prefix, field.Name)

		switch field.Type {
		case models.FieldTypeArray:
			items, ok := value.([]interface{})
			if !ok {
				continue
			}
			for i, item := range items {
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				elemPath := fmt.Sprintf("%s.%d", path, i)
				if record, ok := index[models.MetaKey{Type: models.MetaTypeArrayItem, Path: elemPath}]; ok {
					itemMap["_id"] = record.ItemID
				}
				attachMetaInto(field.Fields, itemMap, elemPath, index)
			}
		case models.FieldTypeBlocks:
			items, ok := value.([]interface{})
			if !ok {
				continue
			}
			for i, item := range items {
				itemMap, ok := item.(map[string]interface{})
				if !ok || len(itemMap) != 1 {
					continue
				}
				elemPath := fmt.Sprintf("%s.%d", path, i)
				for blockName, inner := range itemMap {
					block, ok := models.FindBlock(field.Blocks, blockName)
					if !ok {
						continue
					}
					innerMap, ok := inner.(map[string]interface{})
					if !ok {
						continue
					}
					blockPath := joinPath(elemPath, blockName)
					record := index[models.MetaKey{Type: models.MetaTypeBlock, Path: blockPath}]
					attachMetaInto(block.Fields, innerMap, blockPath, index)
					items[i] = map[string]interface{}{
						"id":     record.ItemID,
						"type":   string(models.MetaTypeBlock),
						"name":   blockName,
						"fields": innerMap,
						"meta":   decodeMeta(record.Meta),
					}
				}
			}
		}
	}
}

func decodeMeta(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}
