package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/craftbase/content-api/internal/models"
)

// Registry holds every loaded collection definition. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	collections map[string]*models.CollectionDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{collections: map[string]*models.CollectionDefinition{}}
}

// Register validates and adds a collection definition. An empty workflow is
// replaced by the default draft/published/archived sequence.
func (r *Registry) Register(def *models.CollectionDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("collection definition requires a name")
	}
	if _, exists := r.collections[def.Name]; exists {
		return fmt.Errorf("collection %q already registered", def.Name)
	}
	if len(def.Workflow.Statuses) == 0 {
		def.Workflow = models.DefaultWorkflow()
	}
	if err := def.Workflow.Validate(); err != nil {
		return fmt.Errorf("collection %q: %w", def.Name, err)
	}
	if err := validateFields(def.Fields, map[string]struct{}{}); err != nil {
		return fmt.Errorf("collection %q: %w", def.Name, err)
	}
	if def.Upload != nil && def.Upload.Enabled {
		field, ok := models.FindField(def.Fields, def.Upload.FileField)
		if !ok {
			return fmt.Errorf("collection %q: upload field %q is not defined", def.Name, def.Upload.FileField)
		}
		if field.Type != models.FieldTypeFile && field.Type != models.FieldTypeImage {
			return fmt.Errorf("collection %q: upload field %q must be a file or image field", def.Name, def.Upload.FileField)
		}
	}
	r.collections[def.Name] = def
	return nil
}

// Get returns the definition of a collection.
func (r *Registry) Get(name string) (*models.CollectionDefinition, bool) {
	def, ok := r.collections[name]
	return def, ok
}

// Names lists registered collections in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AttachHooks binds lifecycle hooks to an already registered collection.
// Hooks are code, so they cannot come from the JSON definition files.
func (r *Registry) AttachHooks(name string, hooks models.Hooks) error {
	def, ok := r.collections[name]
	if !ok {
		return fmt.Errorf("collection %q is not registered", name)
	}
	def.Hooks = hooks
	return nil
}

// LoadDir reads every *.json collection definition under dir into a registry.
func LoadDir(dir string) (*Registry, error) {
	registry := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema file %s: %w", entry.Name(), err)
		}
		def := &models.CollectionDefinition{}
		if err := json.Unmarshal(raw, def); err != nil {
			return nil, fmt.Errorf("parse schema file %s: %w", entry.Name(), err)
		}
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func validateFields(fields []models.Field, seen map[string]struct{}) error {
	for _, field := range fields {
		if field.Name == "" {
			return fmt.Errorf("field requires a name")
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("duplicate field %q", field.Name)
		}
		seen[field.Name] = struct{}{}

		switch field.Type {
		case models.FieldTypeArray:
			if len(field.Fields) == 0 {
				return fmt.Errorf("array field %q requires child fields", field.Name)
			}
			if err := validateFields(field.Fields, map[string]struct{}{}); err != nil {
				return fmt.Errorf("array field %q: %w", field.Name, err)
			}
		case models.FieldTypeBlocks:
			if len(field.Blocks) == 0 {
				return fmt.Errorf("blocks field %q requires block variants", field.Name)
			}
			blockNames := map[string]struct{}{}
			for _, block := range field.Blocks {
				if block.Name == "" {
					return fmt.Errorf("blocks field %q: block requires a name", field.Name)
				}
				if _, dup := blockNames[block.Name]; dup {
					return fmt.Errorf("blocks field %q: duplicate block %q", field.Name, block.Name)
				}
				blockNames[block.Name] = struct{}{}
				if err := validateFields(block.Fields, map[string]struct{}{}); err != nil {
					return fmt.Errorf("block %q: %w", block.Name, err)
				}
			}
		default:
			if _, err := field.Type.Bucket(); err != nil {
				return fmt.Errorf("field %q: %w", field.Name, err)
			}
		}
	}
	return nil
}
