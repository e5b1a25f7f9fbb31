package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// UserStore resolves identities by email
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store on db
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Save inserts or replaces a user and its roles
func (s *UserStore) Save(ctx context.Context, identity types.Identity) error {
	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return errors.Wrap(err, "failed to encode roles")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (email, roles, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET roles = excluded.roles
	`, identity.Email, string(rolesJSON), time.Now())
	if err != nil {
		return errors.Wrapf(err, "failed to save user %s", identity.Email)
	}
	return nil
}

// Get resolves the identity for email
func (s *UserStore) Get(ctx context.Context, email string) (types.Identity, error) {
	var rolesJSON string
	err := s.db.QueryRowContext(ctx, `SELECT roles FROM users WHERE email = ?`, email).Scan(&rolesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Identity{}, errors.NewNotFoundError("user %s", email)
	}
	if err != nil {
		return types.Identity{}, errors.Wrapf(err, "failed to get user %s", email)
	}

	identity := types.Identity{Email: email}
	if err := json.Unmarshal([]byte(rolesJSON), &identity.Roles); err != nil {
		return types.Identity{}, errors.Wrapf(err, "failed to decode roles of %s", email)
	}
	return identity, nil
}
