package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

const userColumns = `id, username, email, password_hash, role, api_key_hash, created_at, updated_at`

// CreateUser inserts a new user account.
func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	role := u.Role
	if role == "" {
		role = core.RoleStandard
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, api_key_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, nullStr(u.Email), u.PasswordHash, role,
		nullStr(u.APIKeyHash), u.CreatedAt.UTC(), nullTime(u.UpdatedAt),
	)
	return err
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// GetUserByAPIKeyHash resolves a key hash to its owner, consulting the
// api_keys table first and the legacy per-user hash column second.
func (s *Store) GetUserByAPIKeyHash(ctx context.Context, hash string) (*core.User, *core.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	key, err := scanAPIKey(row)
	switch {
	case err == nil:
		if key.RevokedAt != nil {
			return nil, nil, core.ErrKeyRevoked
		}
		if key.ExpiresAt != nil && !key.ExpiresAt.After(time.Now()) {
			return nil, nil, core.ErrKeyExpired
		}
		u, err := s.GetUserByID(ctx, key.UserID)
		if err != nil {
			return nil, nil, err
		}
		return u, key, nil
	case !errors.Is(err, core.ErrNotFound):
		return nil, nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_key_hash = $1`, hash)
	u, err := scanUser(row)
	if err != nil {
		return nil, nil, err
	}
	return u, nil, nil
}

func scanUser(sc scanner) (*core.User, error) {
	var u core.User
	var email, keyHash sql.NullString
	var updated sql.NullTime
	err := sc.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.Role, &keyHash, &u.CreatedAt, &updated)
	if err != nil {
		return nil, notFoundErr(err)
	}
	u.Email = email.String
	u.APIKeyHash = keyHash.String
	u.UpdatedAt = timePtr(updated)
	return &u, nil
}

const keyColumns = `id, user_id, key_hash, key_prefix, name, expires_at, created_at, revoked_at`

// CreateAPIKey inserts a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, k *core.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, expires_at, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		k.ID, k.UserID, k.KeyHash, k.KeyPrefix, nullStr(k.Name),
		nullTime(k.ExpiresAt), k.CreatedAt.UTC(), nullTime(k.RevokedAt),
	)
	return err
}

// RevokeAPIKey marks a key revoked at the given time. Revoking an already
// revoked key is a no-op, not an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM api_keys WHERE id = $1`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return core.ErrNotFound
		}
	}
	return nil
}

// ListAPIKeys returns a user's keys newest first, with hashes redacted to
// their first 8 characters.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*core.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*core.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		if len(k.KeyHash) > 8 {
			k.KeyHash = k.KeyHash[:8]
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanAPIKey(sc scanner) (*core.APIKey, error) {
	var k core.APIKey
	var name sql.NullString
	var expires, revoked sql.NullTime
	err := sc.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &name, &expires, &k.CreatedAt, &revoked)
	if err != nil {
		return nil, notFoundErr(err)
	}
	k.Name = name.String
	k.ExpiresAt = timePtr(expires)
	k.RevokedAt = timePtr(revoked)
	return &k, nil
}
