package table

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"daqbridge/internal/services"
)

// Catalog lists the tables the daemon exposes.
type Catalog struct {
	Tables []TableSpec `yaml:"tables"`
}

// TableSpec is the catalog entry for one table.
type TableSpec struct {
	Name        string      `yaml:"name"`
	RowWords    int         `yaml:"row_words"`
	Description string      `yaml:"description,omitempty"`
	Fields      []FieldSpec `yaml:"fields"`
}

// FieldSpec is the catalog entry for one field.
type FieldSpec struct {
	Name        string   `yaml:"name"`
	BitLow      int      `yaml:"bit_low"`
	BitHigh     int      `yaml:"bit_high"`
	Kind        string   `yaml:"kind,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// Schema validates the entry and builds its schema.
func (t TableSpec) Schema() (*Schema, error) {
	fields := make([]Field, 0, len(t.Fields))
	for _, fs := range t.Fields {
		kind, err := ParseKind(fs.Kind)
		if err != nil {
			return nil, fmt.Errorf("table %s field %s: %w", t.Name, fs.Name, err)
		}
		fields = append(fields, Field{
			Name:        fs.Name,
			BitLow:      fs.BitLow,
			BitHigh:     fs.BitHigh,
			Kind:        kind,
			Labels:      fs.Labels,
			Description: fs.Description,
		})
	}
	schema, err := NewSchema(t.RowWords, fields)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.Name, err)
	}
	return schema, nil
}

// ParseCatalog decodes catalog YAML and validates every table.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "table", "parse catalog", "invalid yaml", err)
	}
	seen := make(map[string]struct{}, len(catalog.Tables))
	for _, t := range catalog.Tables {
		if t.Name == "" {
			return nil, services.Wrap(services.ErrConfiguration, "table", "parse catalog", "table without name", nil)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "table", "parse catalog", "duplicate table "+t.Name, nil)
		}
		seen[t.Name] = struct{}{}
		if _, err := t.Schema(); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "table", "parse catalog", "invalid table "+t.Name, err)
		}
	}
	sort.Slice(catalog.Tables, func(i, j int) bool { return catalog.Tables[i].Name < catalog.Tables[j].Name })
	return &catalog, nil
}

// LoadCatalog reads a catalog file. A missing file yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "table", "load catalog", "read "+path, err)
	}
	return ParseCatalog(data)
}
