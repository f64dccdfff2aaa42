// Package schema maps spreadsheet rows to catalog packages using per-type
// mapping templates. Templates are consumed as given; generating them is out
// of scope.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema validates the schema mapping configuration document before any
// row is processed, so a broken deployment fails up front instead of half-way
// through an import.
const configSchema = `{
  "type": "object",
  "required": ["schema_mappings"],
  "properties": {
    "schema_mappings": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "organizations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "title"],
        "properties": {
          "name": {"type": "string"},
          "title": {"type": "string"}
        }
      }
    },
    "groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "title"],
        "properties": {
          "name": {"type": "string"},
          "title": {"type": "string"}
        }
      }
    }
  }
}`

// templateSchema validates an individual mapping template.
const templateSchema = `{
  "type": "object",
  "required": ["field_mappings"],
  "properties": {
    "field_mappings": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "multi_value_fields": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

// NameTitle is a named catalog entity (organization or group) with its
// display title.
type NameTitle struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Config is the schema mapping configuration: template paths per schema type
// plus the known organizations and groups for title resolution.
type Config struct {
	SchemaMappings map[string]string `json:"schema_mappings"`
	Organizations  []NameTitle       `json:"organizations"`
	Groups         []NameTitle       `json:"groups"`
}

// Template maps spreadsheet column headers to catalog field names.
// MultiValueFields are split on semicolons into lists.
type Template struct {
	FieldMappings    map[string]string `json:"field_mappings"`
	MultiValueFields []string          `json:"multi_value_fields"`
}

// Manager loads mapping templates lazily and builds catalog packages from
// spreadsheet rows.
type Manager struct {
	cfg     Config
	baseDir string
	loaded  map[string]*Template
}

// LoadManager reads and validates the schema mapping configuration. Template
// paths are resolved relative to the configuration file.
func LoadManager(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema config %s: %w", path, err)
	}

	if err := validateJSON(configSchema, data, "schema config"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing schema config %s: %w", path, err)
	}

	return &Manager{
		cfg:     cfg,
		baseDir: filepath.Dir(path),
		loaded:  make(map[string]*Template),
	}, nil
}

func validateJSON(schema string, data []byte, what string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validating %s: %w", what, err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid %s: %v", what, result.Errors())
	}
	return nil
}

// SchemaTypes returns the configured schema types in no particular order.
func (m *Manager) SchemaTypes() []string {
	types := make([]string, 0, len(m.cfg.SchemaMappings))
	for t := range m.cfg.SchemaMappings {
		types = append(types, t)
	}
	return types
}

// Template returns the mapping template for a schema type, loading and
// validating it on first use.
func (m *Manager) Template(schemaType string) (*Template, error) {
	if tpl, ok := m.loaded[schemaType]; ok {
		return tpl, nil
	}

	rel, ok := m.cfg.SchemaMappings[schemaType]
	if !ok {
		return nil, fmt.Errorf("no template configured for schema type %q", schemaType)
	}
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.baseDir, rel)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template for %q: %w", schemaType, err)
	}
	if err := validateJSON(templateSchema, data, "template "+schemaType); err != nil {
		return nil, err
	}

	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parsing template for %q: %w", schemaType, err)
	}
	m.loaded[schemaType] = &tpl
	return &tpl, nil
}

func (m *Manager) resolveOrganization(value string) (string, bool) {
	for _, org := range m.cfg.Organizations {
		if value == org.Title || value == org.Name {
			return org.Name, true
		}
	}
	return "", false
}

func (m *Manager) resolveGroup(value string) string {
	for _, g := range m.cfg.Groups {
		if value == g.Title || value == g.Name {
			return g.Name
		}
	}
	return value
}
