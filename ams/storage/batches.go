package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// Transition is one recorded status change of a batch item
type Transition struct {
	BatchItemID string
	From        types.BatchItemStatus
	To          types.BatchItemStatus
	At          time.Time
}

// BatchStore persists batches, batch items and their status history
type BatchStore struct {
	db *sql.DB
}

// NewBatchStore creates a batch store on db
func NewBatchStore(db *sql.DB) *BatchStore {
	return &BatchStore{db: db}
}

// CreateBatch inserts a batch, minting an id when empty
func (s *BatchStore) CreateBatch(ctx context.Context, batch *types.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, submitter_email, created_at) VALUES (?, ?, ?)`,
		batch.ID, batch.SubmitterEmail, batch.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to create batch %s", batch.ID)
	}
	return nil
}

// GetBatch returns a batch by id
func (s *BatchStore) GetBatch(ctx context.Context, id string) (*types.Batch, error) {
	var b types.Batch
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submitter_email, created_at FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.SubmitterEmail, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("batch %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get batch %s", id)
	}
	return &b, nil
}

// CreateItem inserts a batch item in status initialized, minting an id when empty
func (s *BatchStore) CreateItem(ctx context.Context, item *types.BatchItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = types.StatusInitialized
	}
	now := time.Now()
	item.CreatedAt, item.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_items (
			id, batch_id, id_within_batch, status,
			source_data, source_location, error, object_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.BatchID, item.IDWithinBatch, item.Status,
		nullString(item.SourceData), nullString(item.SourceLocation),
		nullString(item.Error), nullString(item.ObjectID),
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create batch item %s", item.ID)
	}
	return nil
}

// GetItem returns a batch item by id
func (s *BatchStore) GetItem(ctx context.Context, id string) (*types.BatchItem, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("batch item %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get batch item %s", id)
	}
	return item, nil
}

// ListItems returns the items of a batch in creation order
func (s *BatchStore) ListItems(ctx context.Context, batchID string) ([]types.BatchItem, error) {
	return s.queryItems(ctx, itemSelect+` WHERE batch_id = ? ORDER BY rowid`, batchID)
}

// ItemsByIDWithinBatch returns every item of a batch sharing one correlation key
func (s *BatchStore) ItemsByIDWithinBatch(ctx context.Context, batchID, idWithinBatch string) ([]types.BatchItem, error) {
	return s.queryItems(ctx, itemSelect+` WHERE batch_id = ? AND id_within_batch = ? ORDER BY rowid`, batchID, idWithinBatch)
}

// Transition moves item to status `to`, recording the change with a timestamp.
// errMsg is stored on the item (pass "" to clear). The item is updated in place.
func (s *BatchStore) Transition(ctx context.Context, item *types.BatchItem, to types.BatchItemStatus, errMsg string) error {
	if !types.CanTransition(item.Status, to) {
		return errors.Wrapf(errors.ErrInvalidTransition, "batch item %s: %s -> %s", item.ID, item.Status, to)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transition")
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE batch_items SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, nullString(errMsg), now, item.ID, item.Status)
	if err != nil {
		return errors.Wrapf(err, "failed to update batch item %s", item.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Someone else moved it, or it never existed
		return errors.Wrapf(errors.ErrInvalidTransition, "batch item %s is no longer %s", item.ID, item.Status)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batch_item_transitions (batch_item_id, from_status, to_status, transitioned_at) VALUES (?, ?, ?, ?)`,
		item.ID, item.Status, to, now); err != nil {
		return errors.Wrapf(err, "failed to record transition of %s", item.ID)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transition")
	}

	item.Status = to
	item.Error = errMsg
	item.UpdatedAt = now
	return nil
}

// SetObjectID records the id of the object an item produced
func (s *BatchStore) SetObjectID(ctx context.Context, item *types.BatchItem, objectID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE batch_items SET object_id = ?, updated_at = ? WHERE id = ?`,
		objectID, time.Now(), item.ID); err != nil {
		return errors.Wrapf(err, "failed to record object id for %s", item.ID)
	}
	item.ObjectID = objectID
	return nil
}

// Transitions returns the recorded status history of an item, oldest first
func (s *BatchStore) Transitions(ctx context.Context, itemID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_item_id, from_status, to_status, transitioned_at FROM batch_item_transitions WHERE batch_item_id = ? ORDER BY id`,
		itemID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list transitions of %s", itemID)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.BatchItemID, &t.From, &t.To, &t.At); err != nil {
			return nil, errors.Wrap(err, "failed to scan transition")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const itemSelect = `SELECT id, batch_id, id_within_batch, status,
	source_data, source_location, error, object_id,
	created_at, updated_at FROM batch_items`

func (s *BatchStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]types.BatchItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list batch items")
	}
	defer rows.Close()

	var out []types.BatchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan batch item")
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func scanItem(row scanner) (*types.BatchItem, error) {
	var item types.BatchItem
	var sourceData, sourceLocation, errMsg, objectID sql.NullString
	if err := row.Scan(
		&item.ID, &item.BatchID, &item.IDWithinBatch, &item.Status,
		&sourceData, &sourceLocation, &errMsg, &objectID,
		&item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.SourceData = sourceData.String
	item.SourceLocation = sourceLocation.String
	item.Error = errMsg.String
	item.ObjectID = objectID.String
	return &item, nil
}
