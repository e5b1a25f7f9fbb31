package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// AdminDataStore persists AdminData records and their annotations
type AdminDataStore struct {
	db *sql.DB
}

// NewAdminDataStore creates an admin data store on db
func NewAdminDataStore(db *sql.DB) *AdminDataStore {
	return &AdminDataStore{db: db}
}

// Create inserts admin data with its annotations and assigns ad.ID
func (s *AdminDataStore) Create(ctx context.Context, ad *types.AdminData) error {
	sonyci := ad.SonyCiIDs
	if sonyci == nil {
		sonyci = []string{}
	}
	sonyciJSON, err := json.Marshal(sonyci)
	if err != nil {
		return errors.Wrap(err, "failed to encode sonyci ids")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin admin data insert")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO admin_data (sonyci_ids, batch_id, last_pushed, last_updated, needs_update, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(sonyciJSON), nullString(ad.BatchID), ad.LastPushed, ad.LastUpdated, ad.NeedsUpdate, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to create admin data")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read admin data id")
	}

	for i := range ad.Annotations {
		a := &ad.Annotations[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO annotations (admin_data_id, type, value, ref, source, annotation, version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, a.Type, a.Value, nullString(a.Ref), nullString(a.Source), nullString(a.Annotation), nullString(a.Version))
		if err != nil {
			return errors.Wrapf(err, "failed to create %s annotation", a.Type)
		}
		a.ID, _ = res.LastInsertId()
		a.AdminDataID = id
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit admin data")
	}
	ad.ID = id
	return nil
}

// Get returns admin data with its annotations
func (s *AdminDataStore) Get(ctx context.Context, id int64) (*types.AdminData, error) {
	var ad types.AdminData
	var sonyci string
	var batchID sql.NullString
	var lastPushed, lastUpdated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sonyci_ids, batch_id, last_pushed, last_updated, needs_update
		FROM admin_data WHERE id = ?
	`, id).Scan(&ad.ID, &sonyci, &batchID, &lastPushed, &lastUpdated, &ad.NeedsUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("admin data %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get admin data %d", id)
	}
	if err := json.Unmarshal([]byte(sonyci), &ad.SonyCiIDs); err != nil {
		return nil, errors.Wrapf(err, "failed to decode sonyci ids of admin data %d", id)
	}
	ad.BatchID = batchID.String
	if lastPushed.Valid {
		ad.LastPushed = &lastPushed.Time
	}
	if lastUpdated.Valid {
		ad.LastUpdated = &lastUpdated.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, admin_data_id, type, value, ref, source, annotation, version
		FROM annotations WHERE admin_data_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list annotations of admin data %d", id)
	}
	defer rows.Close()

	for rows.Next() {
		var a types.Annotation
		var ref, source, annotation, version sql.NullString
		if err := rows.Scan(&a.ID, &a.AdminDataID, &a.Type, &a.Value, &ref, &source, &annotation, &version); err != nil {
			return nil, errors.Wrap(err, "failed to scan annotation")
		}
		a.Ref, a.Source, a.Annotation, a.Version = ref.String, source.String, annotation.String, version.String
		ad.Annotations = append(ad.Annotations, a)
	}
	return &ad, rows.Err()
}

// GetByGID resolves a gid like gid://ams/admindata/1
func (s *AdminDataStore) GetByGID(ctx context.Context, gid string) (*types.AdminData, error) {
	id, err := types.ParseAdminDataGID(gid)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
