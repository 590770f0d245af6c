// Package sqlstore implements the storage contract over a MySQL-compatible
// database. Queries are built with squirrel from the parsed sub-query shape;
// relation fetches group per parent in a single statement, windowed with
// ROW_NUMBER so per-parent paging does not fan out into per-parent queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"metagql/internal/metadata"
	"metagql/internal/query"
	"metagql/internal/storage"
)

const parentKeyColumn = "__parent"

// Store is the SQL-backed storage collaborator.
type Store struct {
	db       *sql.DB
	registry *metadata.Registry
	mapping  Mapping
}

// Open connects to the database with OpenTelemetry instrumentation and
// returns a store over it.
func Open(dsn string, registry *metadata.Registry, mapping Mapping) (*Store, error) {
	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db, registry, mapping), nil
}

// New wraps an existing connection pool. The mapping must cover every
// registered object; use DefaultMapping as the base.
func New(db *sql.DB, registry *metadata.Registry, mapping Mapping) *Store {
	return &Store{db: db, registry: registry, mapping: mapping}
}

// DB exposes the underlying pool for lifecycle management.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FetchOne(ctx context.Context, object string, id interface{}) (storage.Record, error) {
	obj, om, err := s.objectMapping(object)
	if err != nil {
		return nil, err
	}
	fields, columns := fieldOrder(obj, om)

	sqlStr, args, err := sq.Select(columns...).
		From(om.Table).
		Where(sq.Eq{om.IDColumn: id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows, fields)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *Store) FetchMany(ctx context.Context, object string, sub query.SubQuery) ([]storage.Record, error) {
	obj, om, err := s.objectMapping(object)
	if err != nil {
		return nil, err
	}
	fields, columns := fieldOrder(obj, om)

	builder := sq.Select(columns...).From(om.Table)
	cond, err := filterToSqlizer(om, sub.Filter, "")
	if err != nil {
		return nil, err
	}
	if cond != nil {
		builder = builder.Where(cond)
	}
	builder = builder.OrderBy(orderByClauses(om, sub.Sort, "")...)
	if sub.Window.Limit > 0 {
		builder = builder.Limit(uint64(sub.Window.Limit))
	}
	if sub.Window.Offset > 0 {
		builder = builder.Offset(uint64(sub.Window.Offset))
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows, fields)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []storage.Record{}
	}
	return records, nil
}

func (s *Store) CountMany(ctx context.Context, object string, sub query.SubQuery) (int, error) {
	_, om, err := s.objectMapping(object)
	if err != nil {
		return 0, err
	}

	builder := sq.Select("COUNT(*)").From(om.Table)
	cond, err := filterToSqlizer(om, sub.Filter, "")
	if err != nil {
		return 0, err
	}
	if cond != nil {
		builder = builder.Where(cond)
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, normalizeError(err)
	}
	return count, nil
}

func (s *Store) FetchRelated(ctx context.Context, parentIDs []interface{}, relation storage.RelationRef, sub query.SubQuery) (map[string][]storage.Record, error) {
	if len(parentIDs) == 0 {
		return map[string][]storage.Record{}, nil
	}
	target, tm, rm, err := s.relationMapping(relation)
	if err != nil {
		return nil, err
	}

	if relation.Cardinality == string(metadata.CardinalityOne) {
		return s.fetchRelatedOne(ctx, parentIDs, relation, target, tm, rm)
	}
	return s.fetchRelatedMany(ctx, parentIDs, target, tm, rm, sub)
}

// fetchRelatedOne joins the parent table to the target through the FK column
// on the parent. One row per parent at most; no window applies.
func (s *Store) fetchRelatedOne(ctx context.Context, parentIDs []interface{}, relation storage.RelationRef, target metadata.Object, tm ObjectMapping, rm RelationMapping) (map[string][]storage.Record, error) {
	if rm.LocalColumn == "" {
		return nil, fmt.Errorf("relation %s.%s: one-cardinality relations need a local FK column", relation.Parent, relation.Name)
	}
	_, pm, err := s.objectMapping(relation.Parent)
	if err != nil {
		return nil, err
	}
	fields, columns := fieldOrder(target, tm)

	selectCols := make([]string, 0, len(columns)+1)
	selectCols = append(selectCols, fmt.Sprintf("p.%s AS %s", pm.IDColumn, parentKeyColumn))
	for _, col := range columns {
		selectCols = append(selectCols, "t."+col)
	}

	sqlStr, args, err := sq.Select(selectCols...).
		From(pm.Table + " AS p").
		Join(fmt.Sprintf("%s AS t ON t.%s = p.%s", tm.Table, tm.IDColumn, rm.LocalColumn)).
		Where(sq.Eq{"p." + pm.IDColumn: parentIDs}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanGroupedRecords(rows, fields)
}

// fetchRelatedMany selects related rows for all parents at once. Windowed
// reads wrap the select in ROW_NUMBER() partitioned by parent so the limit
// and offset apply per parent rather than to the combined result.
func (s *Store) fetchRelatedMany(ctx context.Context, parentIDs []interface{}, target metadata.Object, tm ObjectMapping, rm RelationMapping, sub query.SubQuery) (map[string][]storage.Record, error) {
	fields, columns := fieldOrder(target, tm)

	parentExpr, from, joins, err := manyJoinShape(tm, rm)
	if err != nil {
		return nil, err
	}

	cond, err := filterToSqlizer(tm, sub.Filter, "t")
	if err != nil {
		return nil, err
	}
	order := orderByClauses(tm, sub.Sort, "t")

	inner := sq.Select(fmt.Sprintf("%s AS %s", parentExpr, parentKeyColumn)).From(from)
	for _, join := range joins {
		inner = inner.Join(join)
	}
	for _, col := range columns {
		inner = inner.Column("t." + col)
	}
	inner = inner.Where(sq.Eq{parentExpr: parentIDs})
	if cond != nil {
		inner = inner.Where(cond)
	}

	if sub.Window.Limit <= 0 {
		inner = inner.OrderBy(append([]string{parentKeyColumn}, order...)...)
		sqlStr, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, normalizeError(err)
		}
		defer func() { _ = rows.Close() }()
		return scanGroupedRecords(rows, fields)
	}

	inner = inner.Column(fmt.Sprintf(
		"ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS __rn",
		parentExpr, strings.Join(order, ", "),
	))

	outerCols := make([]string, 0, len(columns)+1)
	outerCols = append(outerCols, "w."+parentKeyColumn)
	for _, col := range columns {
		outerCols = append(outerCols, "w."+col)
	}
	outer := sq.Select(outerCols...).
		FromSelect(inner, "w").
		Where(sq.Gt{"w.__rn": sub.Window.Offset}).
		Where(sq.LtOrEq{"w.__rn": sub.Window.Offset + sub.Window.Limit}).
		OrderBy("w."+parentKeyColumn, "w.__rn")

	sqlStr, args, err := outer.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = rows.Close() }()
	return scanGroupedRecords(rows, fields)
}

func (s *Store) CountRelated(ctx context.Context, parentIDs []interface{}, relation storage.RelationRef, sub query.SubQuery) (map[string]int, error) {
	if len(parentIDs) == 0 {
		return map[string]int{}, nil
	}
	_, tm, rm, err := s.relationMapping(relation)
	if err != nil {
		return nil, err
	}
	parentExpr, from, joins, err := manyJoinShape(tm, rm)
	if err != nil {
		return nil, err
	}

	builder := sq.Select(fmt.Sprintf("%s AS %s", parentExpr, parentKeyColumn), "COUNT(*)").
		From(from).
		Where(sq.Eq{parentExpr: parentIDs}).
		GroupBy(parentExpr)
	for _, join := range joins {
		builder = builder.Join(join)
	}
	cond, err := filterToSqlizer(tm, sub.Filter, "t")
	if err != nil {
		return nil, err
	}
	if cond != nil {
		builder = builder.Where(cond)
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var key interface{}
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[fmt.Sprint(convertValue(key))] = count
	}
	return counts, rows.Err()
}

// manyJoinShape returns the parent-key expression, FROM clause, and joins for
// a many relation: either a direct FK on the target table or a junction hop.
func manyJoinShape(tm ObjectMapping, rm RelationMapping) (parentExpr, from string, joins []string, err error) {
	switch {
	case rm.JunctionTable != "":
		if rm.JunctionLocalColumn == "" || rm.JunctionRemoteColumn == "" {
			return "", "", nil, fmt.Errorf("junction mapping for %s needs local and remote columns", rm.JunctionTable)
		}
		return "j." + rm.JunctionLocalColumn,
			rm.JunctionTable + " AS j",
			[]string{fmt.Sprintf("%s AS t ON t.%s = j.%s", tm.Table, tm.IDColumn, rm.JunctionRemoteColumn)},
			nil
	case rm.RemoteColumn != "":
		return "t." + rm.RemoteColumn, tm.Table + " AS t", nil, nil
	}
	return "", "", nil, fmt.Errorf("many relation mapping needs a remote column or junction table")
}

func (s *Store) objectMapping(object string) (metadata.Object, ObjectMapping, error) {
	obj, err := s.registry.Resolve(object)
	if err != nil {
		return metadata.Object{}, ObjectMapping{}, err
	}
	om, err := s.mapping.object(object)
	if err != nil {
		return metadata.Object{}, ObjectMapping{}, err
	}
	return obj, om, nil
}

func (s *Store) relationMapping(relation storage.RelationRef) (metadata.Object, ObjectMapping, RelationMapping, error) {
	target, tm, err := s.objectMapping(relation.Target)
	if err != nil {
		return metadata.Object{}, ObjectMapping{}, RelationMapping{}, err
	}
	rm, err := s.mapping.relation(relation.Parent, relation.Name)
	if err != nil {
		return metadata.Object{}, ObjectMapping{}, RelationMapping{}, err
	}
	return target, tm, rm, nil
}

func scanRecords(rows *sql.Rows, fields []string) ([]storage.Record, error) {
	var records []storage.Record
	for rows.Next() {
		values := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(storage.Record, len(fields))
		for i, field := range fields {
			record[field] = convertValue(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// scanGroupedRecords scans rows whose first column is the parent key and
// groups the remaining record columns per parent.
func scanGroupedRecords(rows *sql.Rows, fields []string) (map[string][]storage.Record, error) {
	grouped := make(map[string][]storage.Record)
	for rows.Next() {
		values := make([]interface{}, len(fields)+1)
		ptrs := make([]interface{}, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		key := fmt.Sprint(convertValue(values[0]))
		record := make(storage.Record, len(fields))
		for i, field := range fields {
			record[field] = convertValue(values[i+1])
		}
		grouped[key] = append(grouped[key], record)
	}
	return grouped, rows.Err()
}

func convertValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// MySQL error codes surfaced as typed relation failures.
const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrFKConstraint   = 1452
)

func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrFKConstraint:
			return fmt.Errorf("related record does not exist: %w", err)
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("record already exists: %w", err)
		}
	}
	return err
}
