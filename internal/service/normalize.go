package service

import (
	"fmt"
	"time"

	"github.com/craftbase/content-api/internal/models"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// NormalizeDates coerces every date-shaped value in the document into
// time.Time before flattening, so the datetime table always receives proper
// timestamps. The data map is mutated in place.
func NormalizeDates(fields []models.Field, data map[string]interface{}) error {
	for _, field := range fields {
		value, present := data[field.Name]
		if !present || value == nil {
			continue
		}

		switch field.Type {
		case models.FieldTypeArray:
			items, ok := value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range items {
				if itemMap, ok := item.(map[string]interface{}); ok {
					if err := NormalizeDates(field.Fields, itemMap); err != nil {
						return err
					}
				}
			}
		case models.FieldTypeBlocks:
			items, ok := value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range items {
				itemMap, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				name, blockData, _, err := readBlockItem(itemMap)
				if err != nil {
					continue
				}
				block, ok := models.FindBlock(field.Blocks, name)
				if !ok {
					continue
				}
				if err := NormalizeDates(block.Fields, blockData); err != nil {
					return err
				}
				// blockData may be a copy of the flat shape; write the
				// normalized values back onto the original item.
				for key, normalized := range blockData {
					itemMap[key] = normalized
				}
			}
		case models.FieldTypeDate, models.FieldTypeDateTime:
			normalized, err := normalizeDateValue(field, value)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			data[field.Name] = normalized
		}
	}
	return nil
}

func normalizeDateValue(field models.Field, value interface{}) (interface{}, error) {
	if field.Localized {
		if byLocale, ok := value.(map[string]interface{}); ok {
			for locale, locValue := range byLocale {
				if locValue == nil {
					continue
				}
				parsed, err := parseDateScalar(locValue)
				if err != nil {
					return nil, fmt.Errorf("locale %s: %w", locale, err)
				}
				byLocale[locale] = parsed
			}
			return byLocale, nil
		}
	}
	return parseDateScalar(value)
}

func parseDateScalar(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", v)
	}
	return time.Time{}, fmt.Errorf("unsupported date value %T", value)
}
