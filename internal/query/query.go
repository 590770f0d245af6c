// Package query defines the sub-query shape shared between the generated
// resolvers, the batched relation loader, and the store: filter trees, sort
// specifications, and paging windows. The shape is storage-agnostic; the
// store translates it to its own query language.
package query

import (
	"fmt"
	"sort"
	"strings"
)

// Operator is a single field comparison operator.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"
	OpIs    Operator = "is"
	OpIsNot Operator = "isNot"
)

// Operators lists every supported comparison operator in a stable order.
var Operators = []Operator{OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpIn, OpNotIn, OpIs, OpIsNot}

// Comparison is one operator applied to one field.
type Comparison struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Filter is a boolean-combinable filter tree. A filter with only Comparisons
// is the conjunction of them; And/Or nest further trees.
type Filter struct {
	Comparisons []Comparison
	And         []Filter
	Or          []Filter
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return len(f.Comparisons) == 0 && len(f.And) == 0 && len(f.Or) == 0
}

// SortDirection orders results ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// SortField orders results by one field.
type SortField struct {
	Field     string
	Direction SortDirection
}

// Window bounds the records returned per parent. Limit <= 0 means unbounded.
type Window struct {
	Limit  int
	Offset int
}

// SubQuery is the full shape of one relation (or root list) read.
type SubQuery struct {
	Filter Filter
	Sort   []SortField
	Window Window
}

// Key returns a stable string identity for the sub-query shape. Loads that
// share a key within one request are batched into a single fetch.
func (q SubQuery) Key() string {
	var b strings.Builder
	writeFilterKey(&b, q.Filter)
	b.WriteString("|sort:")
	for _, s := range q.Sort {
		fmt.Fprintf(&b, "%s.%s,", s.Field, s.Direction)
	}
	fmt.Fprintf(&b, "|win:%d.%d", q.Window.Limit, q.Window.Offset)
	return b.String()
}

func writeFilterKey(b *strings.Builder, f Filter) {
	comps := make([]string, 0, len(f.Comparisons))
	for _, c := range f.Comparisons {
		comps = append(comps, fmt.Sprintf("%s.%s=%v", c.Field, c.Operator, c.Value))
	}
	sort.Strings(comps)
	b.WriteString(strings.Join(comps, ";"))
	for _, sub := range f.And {
		b.WriteString("&(")
		writeFilterKey(b, sub)
		b.WriteString(")")
	}
	for _, sub := range f.Or {
		b.WriteString("|(")
		writeFilterKey(b, sub)
		b.WriteString(")")
	}
}
