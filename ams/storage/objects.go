// Package storage persists AMS objects, batches, admin data, workflow
// entities and users in the primary SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// Object is one row of the primary document store
type Object struct {
	ID        string
	Model     string
	ParentID  string
	Attrs     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the object's attributes into v
func (o *Object) Decode(v interface{}) error {
	if err := json.Unmarshal(o.Attrs, v); err != nil {
		return errors.Wrapf(err, "decode %s %s", o.Model, o.ID)
	}
	return nil
}

// DocumentStore is the primary store for assets and their owned children.
// Deletes are hard and leave a tombstone per removed object.
type DocumentStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewDocumentStore creates a document store on db
func NewDocumentStore(db *sql.DB, log *zap.SugaredLogger) *DocumentStore {
	return &DocumentStore{db: db, logger: logger.OrNop(log)}
}

// Create inserts a new object.
// Returns errors.ErrRecordExists when the id is taken and errors.ErrGone when it is tombstoned.
func (s *DocumentStore) Create(ctx context.Context, id, model, parentID string, attrs interface{}) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return errors.Wrapf(err, "encode %s %s", model, id)
	}

	if _, err := s.Tombstone(ctx, id); err == nil {
		return errors.WithHint(
			errors.Wrapf(errors.ErrGone, "%s %s was deleted", model, id),
			"eradicate the tombstone before re-using this id",
		)
	} else if !errors.IsNotFoundError(err) {
		return err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (id, model, parent_id, attrs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, model, nullString(parentID), string(payload), now, now)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s %s", model, id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrRecordExists, "%s %s", model, id)
	}
	return nil
}

// Update replaces the attributes of an existing object
func (s *DocumentStore) Update(ctx context.Context, id string, attrs interface{}) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return errors.Wrapf(err, "encode %s", id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET attrs = ?, updated_at = ? WHERE id = ?`,
		string(payload), time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("object %s", id)
	}
	return nil
}

// Find returns one object.
// A tombstoned id yields errors.ErrGone; an unknown id errors.ErrNotFound.
func (s *DocumentStore) Find(ctx context.Context, id string) (*Object, error) {
	obj, err := s.scanObject(s.db.QueryRowContext(ctx, objectSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		if ts, tsErr := s.Tombstone(ctx, id); tsErr == nil {
			return nil, errors.WithDetailf(
				errors.Wrapf(errors.ErrGone, "object %s", id),
				"deleted by %s at %s", ts.DeletedBy, ts.DeletedAt.Format(time.RFC3339),
			)
		}
		return nil, errors.NewNotFoundError("object %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find %s", id)
	}
	return obj, nil
}

// Children returns the direct children of parentID in insertion order,
// optionally restricted to the given models
func (s *DocumentStore) Children(ctx context.Context, parentID string, models ...string) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, objectSelect+` WHERE parent_id = ? ORDER BY rowid`, parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list children of %s", parentID)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		obj, err := s.scanObject(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan child of %s", parentID)
		}
		if len(models) == 0 || contains(models, obj.Model) {
			out = append(out, *obj)
		}
	}
	return out, rows.Err()
}

// Descendants returns every object owned (transitively) by id, nearest first.
// The root itself is not included.
func (s *DocumentStore) Descendants(ctx context.Context, id string) ([]Object, error) {
	tree, err := s.tree(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	var out []Object
	for i := len(tree) - 1; i >= 0; i-- {
		if tree[i].ID == id {
			continue
		}
		out = append(out, tree[i])
	}
	return out, nil
}

// Delete hard-deletes id and everything it owns, leaving tombstones.
// Returns the removed ids, deepest first.
func (s *DocumentStore) Delete(ctx context.Context, id, deletedBy string) ([]string, error) {
	return s.deleteTree(ctx, id, deletedBy, true)
}

// DeleteAllChildren hard-deletes everything id owns but leaves id itself.
// Returns the removed ids, deepest first.
func (s *DocumentStore) DeleteAllChildren(ctx context.Context, id, deletedBy string) ([]string, error) {
	return s.deleteTree(ctx, id, deletedBy, false)
}

func (s *DocumentStore) deleteTree(ctx context.Context, id, deletedBy string, includeRoot bool) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin delete")
	}
	defer tx.Rollback()

	tree, err := s.tree(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if len(tree) == 0 {
		return nil, errors.NewNotFoundError("object %s", id)
	}

	now := time.Now()
	var removed []string
	for _, obj := range tree {
		if obj.ID == id && !includeRoot {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tombstones (id, model, deleted_by, deleted_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET model = excluded.model, deleted_by = excluded.deleted_by, deleted_at = excluded.deleted_at
		`, obj.ID, obj.Model, nullString(deletedBy), now); err != nil {
			return nil, errors.Wrapf(err, "failed to tombstone %s", obj.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, obj.ID); err != nil {
			return nil, errors.Wrapf(err, "failed to delete %s", obj.ID)
		}
		removed = append(removed, obj.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit delete")
	}

	s.logger.Debugw("Deleted objects",
		logger.FieldID, id,
		logger.FieldCount, len(removed),
		logger.FieldActor, deletedBy,
	)
	return removed, nil
}

// Tombstone returns the tombstone for id, or errors.ErrNotFound
func (s *DocumentStore) Tombstone(ctx context.Context, id string) (*types.Tombstone, error) {
	var ts types.Tombstone
	var deletedBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, deleted_by, deleted_at FROM tombstones WHERE id = ?`, id,
	).Scan(&ts.ID, &ts.Model, &deletedBy, &ts.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("tombstone %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tombstone %s", id)
	}
	ts.DeletedBy = deletedBy.String
	return &ts, nil
}

// Eradicate removes the tombstone for id so the id may be reused
func (s *DocumentStore) Eradicate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to eradicate %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("tombstone %s", id)
	}
	return nil
}

// tree returns id and all its descendants, deepest first
func (s *DocumentStore) tree(ctx context.Context, q queryer, id string) ([]Object, error) {
	rows, err := q.QueryContext(ctx, `
		WITH RECURSIVE tree(id, depth) AS (
			SELECT id, 0 FROM objects WHERE id = ?
			UNION ALL
			SELECT o.id, t.depth + 1 FROM objects o JOIN tree t ON o.parent_id = t.id
		)
		SELECT o.id, o.model, o.parent_id, o.attrs, o.created_at, o.updated_at
		FROM tree JOIN objects o ON o.id = tree.id
		ORDER BY tree.depth DESC, o.rowid
	`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", id)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		obj, err := s.scanObject(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan tree of %s", id)
		}
		out = append(out, *obj)
	}
	return out, rows.Err()
}

const objectSelect = `SELECT id, model, parent_id, attrs, created_at, updated_at FROM objects`

type scanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *DocumentStore) scanObject(row scanner) (*Object, error) {
	var obj Object
	var parentID sql.NullString
	var attrs string
	if err := row.Scan(&obj.ID, &obj.Model, &parentID, &attrs, &obj.CreatedAt, &obj.UpdatedAt); err != nil {
		return nil, err
	}
	obj.ParentID = parentID.String
	obj.Attrs = json.RawMessage(attrs)
	return &obj, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
