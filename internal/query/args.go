package query

import (
	"fmt"
	"sort"

	"metagql/internal/metadata"
)

// BuildFilter parses a GraphQL filter argument map into a Filter tree,
// validating fields and operators against the object metadata. The generated
// input types only expose filterable fields, but the metadata is re-checked
// here so the store never sees an unvalidated shape.
func BuildFilter(obj metadata.Object, raw map[string]interface{}) (Filter, error) {
	if len(raw) == 0 {
		return Filter{}, nil
	}

	var filter Filter
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		switch key {
		case "and", "or":
			list, ok := value.([]interface{})
			if !ok {
				return Filter{}, fmt.Errorf("%s must be a list of %s filters", key, obj.Name)
			}
			for _, entry := range list {
				sub, ok := entry.(map[string]interface{})
				if !ok {
					return Filter{}, fmt.Errorf("%s entries must be %s filters", key, obj.Name)
				}
				parsed, err := BuildFilter(obj, sub)
				if err != nil {
					return Filter{}, err
				}
				if key == "and" {
					filter.And = append(filter.And, parsed)
				} else {
					filter.Or = append(filter.Or, parsed)
				}
			}
		default:
			field, ok := obj.FieldByName(key)
			if !ok {
				return Filter{}, fmt.Errorf("unknown filter field %s on %s", key, obj.Name)
			}
			if !field.Filterable {
				return Filter{}, fmt.Errorf("field %s on %s is not filterable", key, obj.Name)
			}
			comps, ok := value.(map[string]interface{})
			if !ok {
				return Filter{}, fmt.Errorf("filter for %s.%s must be a comparison object", obj.Name, key)
			}
			parsed, err := parseComparisons(key, comps)
			if err != nil {
				return Filter{}, err
			}
			filter.Comparisons = append(filter.Comparisons, parsed...)
		}
	}

	return filter, nil
}

func parseComparisons(field string, raw map[string]interface{}) ([]Comparison, error) {
	ops := make([]string, 0, len(raw))
	for op := range raw {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	comps := make([]Comparison, 0, len(ops))
	for _, op := range ops {
		if !validOperator(Operator(op)) {
			return nil, fmt.Errorf("unsupported filter operator %s on field %s", op, field)
		}
		comps = append(comps, Comparison{
			Field:    field,
			Operator: Operator(op),
			Value:    raw[op],
		})
	}
	return comps, nil
}

func validOperator(op Operator) bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// ParseSort parses a GraphQL sorting argument (a list of {field, direction}
// inputs) validated against the object's sortable fields.
func ParseSort(obj metadata.Object, raw interface{}) ([]SortField, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("sorting must be a list")
	}

	fields := make([]SortField, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("sorting entries must be objects")
		}
		name, _ := m["field"].(string)
		field, ok := obj.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown sort field %s on %s", name, obj.Name)
		}
		if !field.Sortable {
			return nil, fmt.Errorf("field %s on %s is not sortable", name, obj.Name)
		}
		direction := SortAsc
		if raw, ok := m["direction"].(string); ok && raw != "" {
			switch SortDirection(raw) {
			case SortAsc, SortDesc:
				direction = SortDirection(raw)
			default:
				return nil, fmt.Errorf("invalid sort direction %q", raw)
			}
		}
		fields = append(fields, SortField{Field: name, Direction: direction})
	}
	return fields, nil
}

// ParseLimitOffset parses a LimitOffsetPaging argument, applying the default
// limit when none was provided.
func ParseLimitOffset(raw interface{}, defaultLimit int) (Window, error) {
	window := Window{Limit: defaultLimit}
	if raw == nil {
		return window, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Window{}, fmt.Errorf("paging must be an object")
	}
	if v, ok := m["limit"]; ok && v != nil {
		limit, ok := v.(int)
		if !ok || limit < 0 {
			return Window{}, fmt.Errorf("paging limit must be a non-negative integer")
		}
		window.Limit = limit
	}
	if v, ok := m["offset"]; ok && v != nil {
		offset, ok := v.(int)
		if !ok || offset < 0 {
			return Window{}, fmt.Errorf("paging offset must be a non-negative integer")
		}
		window.Offset = offset
	}
	return window, nil
}

// CursorPaging is the raw cursor paging argument before cursor decoding.
type CursorPaging struct {
	First     int
	HasFirst  bool
	After     string
	HasAfter  bool
	Last      int
	HasLast   bool
	Before    string
	HasBefore bool
}

// ParseCursorPaging parses a CursorPaging argument. Forward (first/after) and
// backward (last/before) arguments are mutually exclusive.
func ParseCursorPaging(raw interface{}) (CursorPaging, error) {
	var paging CursorPaging
	if raw == nil {
		return paging, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return CursorPaging{}, fmt.Errorf("paging must be an object")
	}

	if v, ok := m["first"]; ok && v != nil {
		count, ok := v.(int)
		if !ok || count < 0 {
			return CursorPaging{}, fmt.Errorf("first must be a non-negative integer")
		}
		paging.First = count
		paging.HasFirst = true
	}
	if v, ok := m["after"]; ok && v != nil {
		cursorVal, ok := v.(string)
		if !ok {
			return CursorPaging{}, fmt.Errorf("after must be a cursor string")
		}
		paging.After = cursorVal
		paging.HasAfter = true
	}
	if v, ok := m["last"]; ok && v != nil {
		count, ok := v.(int)
		if !ok || count < 0 {
			return CursorPaging{}, fmt.Errorf("last must be a non-negative integer")
		}
		paging.Last = count
		paging.HasLast = true
	}
	if v, ok := m["before"]; ok && v != nil {
		cursorVal, ok := v.(string)
		if !ok {
			return CursorPaging{}, fmt.Errorf("before must be a cursor string")
		}
		paging.Before = cursorVal
		paging.HasBefore = true
	}

	forward := paging.HasFirst || paging.HasAfter
	backward := paging.HasLast || paging.HasBefore
	if forward && backward {
		return CursorPaging{}, fmt.Errorf("cannot mix first/after with last/before")
	}
	if paging.HasLast && !paging.HasBefore {
		return CursorPaging{}, fmt.Errorf("last requires before")
	}
	return paging, nil
}
