package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultDSN keeps credentials in a file next to the working directory.
const DefaultDSN = "file:authclient.db?cache=shared"

// Open connects to the SQLite database at dsn and creates the schema.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultDSN
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open credential database")
	}
	// sqlite allows one writer at a time
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := CreateSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateSchema creates the credentials table if it does not exist.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return errors.New("repository db should be initialized")
	}
	_, err := db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create credentials table")
	}
	return nil
}

func runInTx(ctx context.Context, db *bun.DB, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return db.RunInTx(ctx, nil, f)
	}
}
