package providerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"channel-gateway/internal/vault"
	"channel-gateway/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: This store assumes the following table exists:
//
// CREATE TABLE channel_providers (
//   id               TEXT PRIMARY KEY,
//   workspace_id     TEXT NOT NULL,
//   code             TEXT NOT NULL,
//   name             TEXT NOT NULL,
//   encrypted_config TEXT NOT NULL,
//   enabled          BOOLEAN NOT NULL DEFAULT true,
//   created_at       TIMESTAMPTZ NOT NULL,
//   updated_at       TIMESTAMPTZ NOT NULL,
//   UNIQUE (workspace_id, code)
// );

var (
	ErrNotFound        = errors.New("providerstore: not found")
	ErrInvalidArgument = errors.New("providerstore: invalid argument")
)

// Provider is one configured vendor integration for a workspace. Credentials
// live only in EncryptedConfig; decrypted values never leave Credentials().
type Provider struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspace_id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	EncryptedConfig string    `json:"-"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProviderView is the display shape: config present but masked.
type ProviderView struct {
	Provider
	MaskedConfig map[string]any `json:"config"`
}

// Store persists channel provider records with vault-encrypted credentials.
type Store struct {
	db    *sql.DB
	vault *vault.Vault
	clock func() time.Time
}

func New(db *sql.DB, v *vault.Vault) *Store {
	return &Store{db: db, vault: v, clock: time.Now}
}

// Create encrypts config and inserts a new provider record.
func (s *Store) Create(ctx context.Context, workspaceID, code, name string, config map[string]any) (Provider, error) {
	if workspaceID == "" || code == "" {
		return Provider{}, ErrInvalidArgument
	}

	blob, err := s.vault.Encrypt(config)
	if err != nil {
		return Provider{}, err
	}

	now := s.clock().UTC()
	p := Provider{
		ID:              uuid.NewString(),
		WorkspaceID:     workspaceID,
		Code:            code,
		Name:            name,
		EncryptedConfig: blob,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	const q = `
INSERT INTO channel_providers (id, workspace_id, code, name, encrypted_config, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	if _, err := s.db.ExecContext(ctx, q,
		p.ID, p.WorkspaceID, p.Code, p.Name, p.EncryptedConfig, p.Enabled, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return Provider{}, fmt.Errorf("providerstore: insert: %w", err)
	}
	return p, nil
}

// GetByCode fetches the provider record for a workspace/vendor pair.
func (s *Store) GetByCode(ctx context.Context, workspaceID, code string) (Provider, error) {
	if workspaceID == "" || code == "" {
		return Provider{}, ErrInvalidArgument
	}

	const q = `
SELECT id, workspace_id, code, name, encrypted_config, enabled, created_at, updated_at
FROM channel_providers
WHERE workspace_id = $1 AND code = $2
`
	var p Provider
	if err := s.db.QueryRowContext(ctx, q, workspaceID, code).Scan(
		&p.ID, &p.WorkspaceID, &p.Code, &p.Name, &p.EncryptedConfig, &p.Enabled, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Provider{}, ErrNotFound
		}
		return Provider{}, err
	}
	return p, nil
}

// Credentials decrypts the provider's config on demand. Callers must not cache
// the result beyond the operation they are performing.
func (s *Store) Credentials(ctx context.Context, workspaceID, code string) (map[string]string, error) {
	p, err := s.GetByCode(ctx, workspaceID, code)
	if err != nil {
		return nil, err
	}
	config, err := s.vault.Decrypt(p.EncryptedConfig)
	if err != nil {
		return nil, err
	}

	creds := make(map[string]string, len(config))
	for k, v := range config {
		if str, ok := v.(string); ok {
			creds[k] = str
			continue
		}
		creds[k] = fmt.Sprint(v)
	}
	return creds, nil
}

// List returns all provider records for a workspace with masked configs.
func (s *Store) List(ctx context.Context, workspaceID string) ([]ProviderView, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}

	const q = `
SELECT id, workspace_id, code, name, encrypted_config, enabled, created_at, updated_at
FROM channel_providers
WHERE workspace_id = $1
ORDER BY created_at
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []ProviderView
	for rows.Next() {
		var p Provider
		if err := rows.Scan(
			&p.ID, &p.WorkspaceID, &p.Code, &p.Name, &p.EncryptedConfig, &p.Enabled, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		config, err := s.vault.Decrypt(p.EncryptedConfig)
		if err != nil {
			return nil, err
		}
		views = append(views, ProviderView{Provider: p, MaskedConfig: vault.MaskConfig(config)})
	}
	return views, rows.Err()
}

// UpdateCredentials merges updates into the stored config inside a transaction
// so concurrent merges do not lose fields. Nil values in updates are dropped
// before the merge (the vault merge treats present keys as winners).
func (s *Store) UpdateCredentials(ctx context.Context, id string, updates map[string]any) error {
	if id == "" {
		return ErrInvalidArgument
	}
	filtered := make(map[string]any, len(updates))
	for k, v := range updates {
		if v == nil {
			continue
		}
		filtered[k] = v
	}

	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `
SELECT encrypted_config
FROM channel_providers
WHERE id = $1
FOR UPDATE
`
		var existing string
		if err := tx.QueryRowContext(ctx, sel, id).Scan(&existing); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		blob, err := s.vault.UpdateEncryptedConfig(existing, filtered)
		if err != nil {
			return err
		}

		const upd = `
UPDATE channel_providers
SET encrypted_config = $1, updated_at = $2
WHERE id = $3
`
		_, err = tx.ExecContext(ctx, upd, blob, s.clock().UTC(), id)
		return err
	})
}

// SetEnabled toggles a provider record.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE channel_providers
SET enabled = $1, updated_at = $2
WHERE id = $3
`
	res, err := s.db.ExecContext(ctx, q, enabled, s.clock().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a provider record and its encrypted credentials.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_providers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
