package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"metagql/internal/storage"
)

func (s *Store) WriteRelation(ctx context.Context, parentID interface{}, relation storage.RelationRef, relatedIDs []interface{}) error {
	_, tm, rm, err := s.relationMapping(relation)
	if err != nil {
		return err
	}
	_, pm, err := s.objectMapping(relation.Parent)
	if err != nil {
		return err
	}
	if len(relatedIDs) == 0 {
		return &storage.RelationWriteError{
			Parent:   relation.Parent,
			Relation: relation.Name,
			Reason:   "no related ids given",
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		// All related ids must exist before any association is written, so
		// a bad id fails the whole call instead of leaving a partial write.
		if err := s.requireAll(ctx, tx, tm, relatedIDs, relation); err != nil {
			return err
		}

		switch {
		case rm.LocalColumn != "":
			return s.writeLocal(ctx, tx, pm, rm, relation, parentID, relatedIDs)
		case rm.JunctionTable != "":
			return s.writeJunction(ctx, tx, rm, relation, parentID, relatedIDs)
		case rm.RemoteColumn != "":
			return s.writeRemote(ctx, tx, tm, rm, relation, parentID, relatedIDs)
		}
		return fmt.Errorf("relation %s.%s has no storage shape", relation.Parent, relation.Name)
	})
}

func (s *Store) ClearRelation(ctx context.Context, parentID interface{}, relation storage.RelationRef, relatedIDs []interface{}) error {
	_, tm, rm, err := s.relationMapping(relation)
	if err != nil {
		return err
	}
	_, pm, err := s.objectMapping(relation.Parent)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		switch {
		case rm.LocalColumn != "":
			sqlStr, args, err := sq.Update(pm.Table).
				Set(rm.LocalColumn, nil).
				Where(sq.Eq{pm.IDColumn: parentID}).
				ToSql()
			if err != nil {
				return err
			}
			// Clearing an already-null column affects zero rows; that is
			// still a successful clear.
			_, err = tx.ExecContext(ctx, sqlStr, args...)
			return relationErr(err, relation)
		case rm.JunctionTable != "":
			sqlStr, args, err := sq.Delete(rm.JunctionTable).
				Where(sq.Eq{rm.JunctionLocalColumn: parentID}).
				Where(sq.Eq{rm.JunctionRemoteColumn: relatedIDs}).
				ToSql()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, sqlStr, args...)
			return relationErr(err, relation)
		case rm.RemoteColumn != "":
			// Only rows actually associated with this parent are detached.
			sqlStr, args, err := sq.Update(tm.Table).
				Set(rm.RemoteColumn, nil).
				Where(sq.Eq{rm.RemoteColumn: parentID}).
				Where(sq.Eq{tm.IDColumn: relatedIDs}).
				ToSql()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, sqlStr, args...)
			return relationErr(err, relation)
		}
		return fmt.Errorf("relation %s.%s has no storage shape", relation.Parent, relation.Name)
	})
}

func (s *Store) CreateOne(ctx context.Context, object string, values storage.Record) (storage.Record, error) {
	obj, om, err := s.objectMapping(object)
	if err != nil {
		return nil, err
	}

	builder := sq.Insert(om.Table)
	columns := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))
	for _, f := range obj.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, om.column(f.Name))
		args = append(args, v)
	}
	sqlStr, sqlArgs, err := builder.Columns(columns...).Values(args...).ToSql()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, sqlStr, sqlArgs...)
	if err != nil {
		return nil, normalizeError(err)
	}

	idField, _ := obj.IDField()
	id, ok := values[idField.Name]
	if !ok {
		insertID, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		id = insertID
	}
	return s.FetchOne(ctx, object, id)
}

func (s *Store) UpdateOne(ctx context.Context, object string, id interface{}, values storage.Record) (storage.Record, error) {
	obj, om, err := s.objectMapping(object)
	if err != nil {
		return nil, err
	}

	builder := sq.Update(om.Table)
	idField, _ := obj.IDField()
	changed := false
	for _, f := range obj.Fields {
		if f.Name == idField.Name {
			continue
		}
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		builder = builder.Set(om.column(f.Name), v)
		changed = true
	}
	if changed {
		sqlStr, args, err := builder.Where(sq.Eq{om.IDColumn: id}).ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, normalizeError(err)
		}
	}

	record, err := s.FetchOne(ctx, object, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &storage.NotFoundError{Object: object, ID: id}
	}
	return record, nil
}

func (s *Store) DeleteOne(ctx context.Context, object string, id interface{}) (storage.Record, error) {
	_, om, err := s.objectMapping(object)
	if err != nil {
		return nil, err
	}

	record, err := s.FetchOne(ctx, object, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &storage.NotFoundError{Object: object, ID: id}
	}

	sqlStr, args, err := sq.Delete(om.Table).Where(sq.Eq{om.IDColumn: id}).ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, normalizeError(err)
	}
	return record, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// requireAll verifies every related id exists in the target table.
func (s *Store) requireAll(ctx context.Context, tx *sql.Tx, tm ObjectMapping, ids []interface{}, relation storage.RelationRef) error {
	sqlStr, args, err := sq.Select("COUNT(*)").
		From(tm.Table).
		Where(sq.Eq{tm.IDColumn: ids}).
		ToSql()
	if err != nil {
		return err
	}
	var count int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return relationErr(err, relation)
	}
	if count != len(ids) {
		return &storage.RelationWriteError{
			Parent:   relation.Parent,
			Relation: relation.Name,
			Reason:   fmt.Sprintf("%d of %d related records not found", len(ids)-count, len(ids)),
		}
	}
	return nil
}

func (s *Store) writeLocal(ctx context.Context, tx *sql.Tx, pm ObjectMapping, rm RelationMapping, relation storage.RelationRef, parentID interface{}, relatedIDs []interface{}) error {
	if len(relatedIDs) != 1 {
		return &storage.RelationWriteError{
			Parent:   relation.Parent,
			Relation: relation.Name,
			Reason:   "one-cardinality relation takes exactly one related id",
		}
	}
	if err := s.requireParent(ctx, tx, pm, parentID, relation); err != nil {
		return err
	}
	sqlStr, args, err := sq.Update(pm.Table).
		Set(rm.LocalColumn, relatedIDs[0]).
		Where(sq.Eq{pm.IDColumn: parentID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return relationErr(err, relation)
}

func (s *Store) writeRemote(ctx context.Context, tx *sql.Tx, tm ObjectMapping, rm RelationMapping, relation storage.RelationRef, parentID interface{}, relatedIDs []interface{}) error {
	sqlStr, args, err := sq.Update(tm.Table).
		Set(rm.RemoteColumn, parentID).
		Where(sq.Eq{tm.IDColumn: relatedIDs}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return relationErr(err, relation)
}

func (s *Store) writeJunction(ctx context.Context, tx *sql.Tx, rm RelationMapping, relation storage.RelationRef, parentID interface{}, relatedIDs []interface{}) error {
	builder := sq.Insert(rm.JunctionTable).
		Columns(rm.JunctionLocalColumn, rm.JunctionRemoteColumn)
	for _, id := range relatedIDs {
		builder = builder.Values(parentID, id)
	}
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return relationErr(err, relation)
}

// requireParent verifies the parent row exists. MySQL reports zero affected
// rows for no-op updates, so existence cannot be read off RowsAffected.
func (s *Store) requireParent(ctx context.Context, tx *sql.Tx, pm ObjectMapping, parentID interface{}, relation storage.RelationRef) error {
	sqlStr, args, err := sq.Select("COUNT(*)").
		From(pm.Table).
		Where(sq.Eq{pm.IDColumn: parentID}).
		ToSql()
	if err != nil {
		return err
	}
	var count int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return relationErr(err, relation)
	}
	if count == 0 {
		return &storage.RelationWriteError{
			Parent:   relation.Parent,
			Relation: relation.Name,
			Reason:   "parent record not found",
		}
	}
	return nil
}

func relationErr(err error, relation storage.RelationRef) error {
	if err == nil {
		return nil
	}
	return &storage.RelationWriteError{
		Parent:   relation.Parent,
		Relation: relation.Name,
		Err:      normalizeError(err),
	}
}
