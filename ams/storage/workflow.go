package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// DefaultWorkflowState is the state new workflow entities start in
const DefaultWorkflowState = "deposited"

// WorkflowStore persists workflow entities keyed by the global id they proxy for
type WorkflowStore struct {
	db *sql.DB
}

// NewWorkflowStore creates a workflow store on db
func NewWorkflowStore(db *sql.DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

// Create inserts a workflow entity for an object
func (s *WorkflowStore) Create(ctx context.Context, model, objectID string) (*types.WorkflowEntity, error) {
	e := &types.WorkflowEntity{
		ProxyForGlobalID: types.GlobalID(model, objectID),
		WorkflowState:    DefaultWorkflowState,
		CreatedAt:        time.Now(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_entities (proxy_for_global_id, workflow_state, created_at) VALUES (?, ?, ?)`,
		e.ProxyForGlobalID, e.WorkflowState, e.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create workflow entity for %s", e.ProxyForGlobalID)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read workflow entity id")
	}
	return e, nil
}

// FindForObject returns the single workflow entity whose global id ends in
// objectID as its last path segment, so cpb-aacip-12 never matches cpb-aacip-123.
// No match is errors.ErrNotFound; more than one is errors.ErrCorrelationAmbiguity.
func (s *WorkflowStore) FindForObject(ctx context.Context, objectID string) (*types.WorkflowEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proxy_for_global_id, workflow_state, created_at
		FROM workflow_entities WHERE instr(proxy_for_global_id, ?) > 0
		ORDER BY id
	`, objectID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up workflow entity for %s", objectID)
	}
	defer rows.Close()

	var matches []types.WorkflowEntity
	for rows.Next() {
		var e types.WorkflowEntity
		if err := rows.Scan(&e.ID, &e.ProxyForGlobalID, &e.WorkflowState, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan workflow entity")
		}
		if strings.HasSuffix(e.ProxyForGlobalID, "/"+objectID) {
			matches = append(matches, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read workflow entities")
	}

	switch len(matches) {
	case 0:
		return nil, errors.NewNotFoundError("workflow entity for %s", objectID)
	case 1:
		return &matches[0], nil
	default:
		err := errors.Wrapf(errors.ErrCorrelationAmbiguity, "%d workflow entities match %s", len(matches), objectID)
		for _, m := range matches {
			err = errors.WithDetailf(err, "candidate: %s", m.ProxyForGlobalID)
		}
		return nil, err
	}
}

// Delete removes a workflow entity by id
func (s *WorkflowStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_entities WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete workflow entity %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("workflow entity %d", id)
	}
	return nil
}

// DeleteForObject finds the workflow entity for objectID and deletes it
func (s *WorkflowStore) DeleteForObject(ctx context.Context, objectID string) error {
	e, err := s.FindForObject(ctx, objectID)
	if err != nil {
		return err
	}
	return s.Delete(ctx, e.ID)
}

// Count returns the number of workflow entities
func (s *WorkflowStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_entities`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count workflow entities")
	}
	return n, nil
}
