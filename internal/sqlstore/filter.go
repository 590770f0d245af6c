package sqlstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"metagql/internal/query"
)

// filterToSqlizer translates a filter tree into a squirrel condition. Column
// names are resolved through the object mapping; qualifier prefixes columns
// when the query joins multiple tables. Sibling comparisons and "and" entries
// conjoin; "or" entries disjoin with each other and conjoin with the rest.
func filterToSqlizer(om ObjectMapping, f query.Filter, qualifier string) (sq.Sqlizer, error) {
	if f.IsZero() {
		return nil, nil
	}

	conj := sq.And{}
	for _, c := range f.Comparisons {
		cond, err := comparisonToSqlizer(om, c, qualifier)
		if err != nil {
			return nil, err
		}
		conj = append(conj, cond)
	}
	for _, sub := range f.And {
		cond, err := filterToSqlizer(om, sub, qualifier)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			conj = append(conj, cond)
		}
	}
	if len(f.Or) > 0 {
		disj := sq.Or{}
		for _, sub := range f.Or {
			cond, err := filterToSqlizer(om, sub, qualifier)
			if err != nil {
				return nil, err
			}
			if cond != nil {
				disj = append(disj, cond)
			}
		}
		if len(disj) > 0 {
			conj = append(conj, disj)
		}
	}

	if len(conj) == 0 {
		return nil, nil
	}
	if len(conj) == 1 {
		return conj[0], nil
	}
	return conj, nil
}

func comparisonToSqlizer(om ObjectMapping, c query.Comparison, qualifier string) (sq.Sqlizer, error) {
	col := om.column(c.Field)
	if qualifier != "" {
		col = qualifier + "." + col
	}

	switch c.Operator {
	case query.OpEq, query.OpIs:
		return sq.Eq{col: c.Value}, nil
	case query.OpNeq, query.OpIsNot:
		return sq.NotEq{col: c.Value}, nil
	case query.OpGt:
		return sq.Gt{col: c.Value}, nil
	case query.OpGte:
		return sq.GtOrEq{col: c.Value}, nil
	case query.OpLt:
		return sq.Lt{col: c.Value}, nil
	case query.OpLte:
		return sq.LtOrEq{col: c.Value}, nil
	case query.OpLike:
		return sq.Like{col: c.Value}, nil
	case query.OpIn:
		return sq.Eq{col: c.Value}, nil
	case query.OpNotIn:
		return sq.NotEq{col: c.Value}, nil
	}
	return nil, fmt.Errorf("unsupported filter operator %s", c.Operator)
}

// orderByClauses renders sort fields as ORDER BY expressions, always ending
// with the id column so paging windows are stable under ties.
func orderByClauses(om ObjectMapping, sorts []query.SortField, qualifier string) []string {
	qualify := func(col string) string {
		if qualifier != "" {
			return qualifier + "." + col
		}
		return col
	}

	clauses := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		clauses = append(clauses, fmt.Sprintf("%s %s", qualify(om.column(s.Field)), s.Direction))
	}
	clauses = append(clauses, qualify(om.IDColumn)+" ASC")
	return clauses
}
