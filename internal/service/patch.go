package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/craftbase/content-api/internal/models"
	appErrors "github.com/craftbase/content-api/pkg/errors"
)

// ApplyPatches applies each operation in order against the document data.
// Array operations resolve their target item by the stable id attached
// during reconstruction, never by positional index. A failing operation is
// recorded and processing continues; the caller decides whether any recorded
// error is fatal.
func ApplyPatches(data map[string]interface{}, patches []models.Patch) (map[string]interface{}, []appErrors.PatchOpError) {
	var opErrors []appErrors.PatchOpError

	fail := func(i int, patch models.Patch, message string) {
		opErrors = append(opErrors, appErrors.PatchOpError{
			Index:   i,
			Kind:    string(patch.Kind),
			Path:    patch.Path,
			Message: message,
		})
	}

	for i, patch := range patches {
		switch patch.Kind {
		case models.PatchFieldSet:
			if err := setAtPath(data, strings.Split(patch.Path, "."), patch.Value); err != nil {
				fail(i, patch, err.Error())
			}
		case models.PatchArrayInsert:
			arr, err := arrayAt(data, patch.Path, true)
			if err != nil {
				fail(i, patch, err.Error())
				continue
			}
			index := patch.Index
			if index < 0 || index > len(arr) {
				index = len(arr)
			}
			arr = append(arr, nil)
			copy(arr[index+1:], arr[index:])
			arr[index] = patch.Value
			if err := setAtPath(data, strings.Split(patch.Path, "."), arr); err != nil {
				fail(i, patch, err.Error())
			}
		case models.PatchArrayRemove:
			arr, err := arrayAt(data, patch.Path, false)
			if err != nil {
				fail(i, patch, err.Error())
				continue
			}
			index, found := indexOfItem(arr, patch.ItemID)
			if !found {
				fail(i, patch, fmt.Sprintf("item %q not found", patch.ItemID))
				continue
			}
			arr = append(arr[:index], arr[index+1:]...)
			if err := setAtPath(data, strings.Split(patch.Path, "."), arr); err != nil {
				fail(i, patch, err.Error())
			}
		case models.PatchArrayMove:
			arr, err := arrayAt(data, patch.Path, false)
			if err != nil {
				fail(i, patch, err.Error())
				continue
			}
			index, found := indexOfItem(arr, patch.ItemID)
			if !found {
				fail(i, patch, fmt.Sprintf("item %q not found", patch.ItemID))
				continue
			}
			target := patch.ToIndex
			if target < 0 {
				target = 0
			}
			if target >= len(arr) {
				target = len(arr) - 1
			}
			item := arr[index]
			arr = append(arr[:index], arr[index+1:]...)
			arr = append(arr, nil)
			copy(arr[target+1:], arr[target:])
			arr[target] = item
			if err := setAtPath(data, strings.Split(patch.Path, "."), arr); err != nil {
				fail(i, patch, err.Error())
			}
		default:
			fail(i, patch, fmt.Sprintf("unsupported patch kind %q", patch.Kind))
		}
	}

	return data, opErrors
}

// arrayAt resolves the dotted path to an array value. With allowMissing the
// absence of a value yields an empty array (array.insert bootstraps the
// field); any present non-array value is an error.
func arrayAt(data map[string]interface{}, path string, allowMissing bool) ([]interface{}, error) {
	node, found := valueAt(data, path)
	if !found || node == nil {
		if allowMissing {
			return []interface{}{}, nil
		}
		return nil, fmt.Errorf("path %s does not exist", path)
	}
	arr, ok := node.([]interface{})
	if !ok {
		return nil, fmt.Errorf("path %s is not an array (found %T)", path, node)
	}
	return arr, nil
}

func valueAt(data map[string]interface{}, path string) (interface{}, bool) {
	var node interface{} = data
	for _, segment := range strings.Split(path, ".") {
		switch current := node.(type) {
		case map[string]interface{}:
			child, ok := current[segment]
			if !ok {
				return nil, false
			}
			node = child
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(current) {
				return nil, false
			}
			node = current[index]
		default:
			return nil, false
		}
	}
	return node, true
}

// indexOfItem locates an array element by its stable identity, checking the
// "_id" attached to array items and the "id" of wrapped block items.
func indexOfItem(arr []interface{}, itemID string) (int, bool) {
	if itemID == "" {
		return 0, false
	}
	for i, item := range arr {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if id, _ := m["_id"].(string); id == itemID {
			return i, true
		}
		if id, _ := m["id"].(string); id == itemID {
			return i, true
		}
	}
	return 0, false
}
