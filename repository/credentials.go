package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	authclient "github.com/goliatone/go-auth-client"
)

// CredentialModel is the Bun model for persisted credentials.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials"`

	Name      string    `bun:"name,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// CredentialRepository implements authclient.CredentialStore using Bun.
type CredentialRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ authclient.CredentialStore = &CredentialRepository{}

// NewCredentialRepository creates a new repository. The schema must exist,
// see CreateSchema.
func NewCredentialRepository(db *bun.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

// Get implements authclient.CredentialStore.
func (r *CredentialRepository) Get(ctx context.Context, key string) (string, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Where("name = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authclient.ErrCredentialNotFound
		}
		return "", authclient.NewStorageError(err, "get")
	}
	return model.Value, nil
}

// Set implements authclient.CredentialStore.
func (r *CredentialRepository) Set(ctx context.Context, key, value string) error {
	model := &CredentialModel{
		Name:      key,
		Value:     value,
		UpdatedAt: r.now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return authclient.NewStorageError(err, "set")
	}
	return nil
}

// Remove implements authclient.CredentialStore. Missing keys are not an error.
func (r *CredentialRepository) Remove(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("name = ?", key).
		Exec(ctx)
	if err != nil {
		return authclient.NewStorageError(err, "remove")
	}
	return nil
}

// Clear implements authclient.CredentialStore.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	err := runInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*CredentialModel)(nil)).
			Where("1 = 1").
			Exec(ctx)
		return err
	})
	if err != nil {
		return authclient.NewStorageError(err, "clear")
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (r *CredentialRepository) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Column("updated_at").
		Where("name = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, authclient.ErrCredentialNotFound
		}
		return time.Time{}, authclient.NewStorageError(err, "get")
	}
	return model.UpdatedAt, nil
}
