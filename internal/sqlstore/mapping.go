package sqlstore

import (
	"fmt"

	"metagql/internal/metadata"
	"metagql/internal/naming"
)

// ObjectMapping binds a domain object to its table and columns. Zero-value
// entries are filled from naming conventions (snake_case, pluralized table).
type ObjectMapping struct {
	Table    string            `mapstructure:"table"`
	IDColumn string            `mapstructure:"id_column"`
	Columns  map[string]string `mapstructure:"columns"`
}

// RelationMapping binds a relation to its join shape. Exactly one of three
// shapes applies:
//   - LocalColumn: FK on the parent table (one cardinality)
//   - RemoteColumn: FK on the target table (many cardinality)
//   - JunctionTable + junction columns: many-to-many
type RelationMapping struct {
	LocalColumn          string `mapstructure:"local_column"`
	RemoteColumn         string `mapstructure:"remote_column"`
	JunctionTable        string `mapstructure:"junction_table"`
	JunctionLocalColumn  string `mapstructure:"junction_local_column"`
	JunctionRemoteColumn string `mapstructure:"junction_remote_column"`
}

// Mapping is the full storage binding for a registry. Relations are keyed
// "Parent.relation" using the persisted relation name.
type Mapping struct {
	Objects   map[string]ObjectMapping   `mapstructure:"objects"`
	Relations map[string]RelationMapping `mapstructure:"relations"`
}

// DefaultMapping derives a conventional mapping for every object and relation
// in the registry: pluralized snake_case tables, snake_case columns, "_id"
// foreign keys. Explicit configuration overrides individual entries.
func DefaultMapping(reg *metadata.Registry) Mapping {
	m := Mapping{
		Objects:   make(map[string]ObjectMapping),
		Relations: make(map[string]RelationMapping),
	}
	for _, obj := range reg.Objects() {
		om := ObjectMapping{
			Table:    naming.TableName(obj.Name),
			IDColumn: "id",
			Columns:  make(map[string]string, len(obj.Fields)),
		}
		for _, f := range obj.Fields {
			om.Columns[f.Name] = naming.ColumnName(f.Name)
		}
		m.Objects[obj.Name] = om

		for _, rel := range obj.Relations {
			key := relationKey(obj.Name, rel.StorageName())
			if rel.Cardinality == metadata.CardinalityOne {
				m.Relations[key] = RelationMapping{
					LocalColumn: naming.ColumnName(rel.StorageName()) + "_id",
				}
			} else {
				m.Relations[key] = RelationMapping{
					RemoteColumn: naming.ToSnakeCase(obj.Name) + "_id",
				}
			}
		}
	}
	return m
}

// Merge overlays explicit mapping entries onto m, returning the result.
func (m Mapping) Merge(overrides Mapping) Mapping {
	for name, om := range overrides.Objects {
		base := m.Objects[name]
		if om.Table != "" {
			base.Table = om.Table
		}
		if om.IDColumn != "" {
			base.IDColumn = om.IDColumn
		}
		if base.Columns == nil {
			base.Columns = make(map[string]string)
		}
		for field, col := range om.Columns {
			base.Columns[field] = col
		}
		m.Objects[name] = base
	}
	for key, rm := range overrides.Relations {
		m.Relations[key] = rm
	}
	return m
}

func (m Mapping) object(name string) (ObjectMapping, error) {
	om, ok := m.Objects[name]
	if !ok {
		return ObjectMapping{}, fmt.Errorf("no storage mapping for object %s", name)
	}
	return om, nil
}

func (m Mapping) relation(parent, relation string) (RelationMapping, error) {
	rm, ok := m.Relations[relationKey(parent, relation)]
	if !ok {
		return RelationMapping{}, fmt.Errorf("no storage mapping for relation %s.%s", parent, relation)
	}
	return rm, nil
}

func relationKey(parent, relation string) string {
	return parent + "." + relation
}

// column resolves the storage column for a field, defaulting to snake_case.
func (om ObjectMapping) column(field string) string {
	if col, ok := om.Columns[field]; ok {
		return col
	}
	return naming.ColumnName(field)
}

// fieldOrder returns fields in metadata order with their columns, the scan
// contract for every query against the object's table.
func fieldOrder(obj metadata.Object, om ObjectMapping) (fields []string, columns []string) {
	fields = make([]string, 0, len(obj.Fields))
	columns = make([]string, 0, len(obj.Fields))
	for _, f := range obj.Fields {
		fields = append(fields, f.Name)
		columns = append(columns, om.column(f.Name))
	}
	return fields, columns
}
