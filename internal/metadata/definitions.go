package metadata

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Definition mirrors Object for declarative configuration files. It decodes
// from YAML via mapstructure so the same shape loads from viper sub-trees.
type Definition struct {
	Name      string               `mapstructure:"name" yaml:"name"`
	Fields    []FieldDefinition    `mapstructure:"fields" yaml:"fields"`
	Relations []RelationDefinition `mapstructure:"relations" yaml:"relations"`
}

// FieldDefinition is the configuration shape of a Field.
type FieldDefinition struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Type       string `mapstructure:"type" yaml:"type"`
	Nullable   bool   `mapstructure:"nullable" yaml:"nullable"`
	Filterable bool   `mapstructure:"filterable" yaml:"filterable"`
	Sortable   bool   `mapstructure:"sortable" yaml:"sortable"`
}

// RelationDefinition is the configuration shape of a Relation.
type RelationDefinition struct {
	Name             string `mapstructure:"name" yaml:"name"`
	Target           string `mapstructure:"target" yaml:"target"`
	Cardinality      string `mapstructure:"cardinality" yaml:"cardinality"`
	Paging           string `mapstructure:"paging" yaml:"paging"`
	Nullable         bool   `mapstructure:"nullable" yaml:"nullable"`
	PersistedName    string `mapstructure:"persisted_name" yaml:"persisted_name"`
	EnableTotalCount bool   `mapstructure:"enable_total_count" yaml:"enable_total_count"`
	DisableRead      bool   `mapstructure:"disable_read" yaml:"disable_read"`
	DisableUpdate    bool   `mapstructure:"disable_update" yaml:"disable_update"`
	DisableRemove    bool   `mapstructure:"disable_remove" yaml:"disable_remove"`
}

type definitionFile struct {
	Objects []Definition `yaml:"objects"`
}

// Object converts a definition into registerable metadata.
func (d Definition) Object() (Object, error) {
	obj := Object{Name: d.Name}
	for _, f := range d.Fields {
		ft, err := parseFieldType(f.Type)
		if err != nil {
			return Object{}, fmt.Errorf("object %s field %s: %w", d.Name, f.Name, err)
		}
		obj.Fields = append(obj.Fields, Field{
			Name:       f.Name,
			Type:       ft,
			Nullable:   f.Nullable,
			Filterable: f.Filterable,
			Sortable:   f.Sortable,
		})
	}
	for _, r := range d.Relations {
		obj.Relations = append(obj.Relations, Relation{
			Name:             r.Name,
			Target:           r.Target,
			Cardinality:      Cardinality(r.Cardinality),
			Paging:           PagingStrategy(r.Paging),
			Nullable:         r.Nullable,
			PersistedName:    r.PersistedName,
			EnableTotalCount: r.EnableTotalCount,
			DisableRead:      r.DisableRead,
			DisableUpdate:    r.DisableUpdate,
			DisableRemove:    r.DisableRemove,
		})
	}
	return obj, nil
}

// RegistryFromDefinitions registers every definition and freezes the result.
func RegistryFromDefinitions(defs []Definition) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range defs {
		obj, err := def.Object()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(obj); err != nil {
			return nil, err
		}
	}
	return reg.Freeze()
}

// LoadDefinitions reads object definitions from a YAML file with a top-level
// "objects" list.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema definitions: %w", err)
	}
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema definitions: %w", err)
	}
	if len(file.Objects) == 0 {
		return nil, fmt.Errorf("schema definitions in %s declare no objects", path)
	}
	return file.Objects, nil
}

// DecodeDefinitions converts loosely-typed configuration values (for example
// a viper sub-tree) into definitions.
func DecodeDefinitions(raw []map[string]interface{}) ([]Definition, error) {
	defs := make([]Definition, 0, len(raw))
	for i, entry := range raw {
		var def Definition
		if err := mapstructure.Decode(entry, &def); err != nil {
			return nil, fmt.Errorf("invalid object definition at index %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseFieldType(raw string) (FieldType, error) {
	switch FieldType(raw) {
	case FieldTypeID, FieldTypeString, FieldTypeInt, FieldTypeFloat, FieldTypeBoolean:
		return FieldType(raw), nil
	}
	return "", fmt.Errorf("unsupported field type %q", raw)
}
