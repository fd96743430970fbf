package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

const (
	dbFile       = "yieldbridge.sqlite.db"
	migrationDir = "migration"
)

//go:embed migration/*
var migrations embed.FS

// OpenDb opens (and migrates) the sqlite database backing the sql stores.
func OpenDb(dir string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %s", err)
	}
	db.SetMaxOpenConns(1)

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to init migration driver: %s", err)
	}
	source, err := iofs.New(migrations, migrationDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %s", err)
	}
	migration, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to init migrations: %s", err)
	}
	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to run migrations: %s", err)
	}
	return db, nil
}

func execTx(ctx context.Context, db *sql.DB, txBody func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// nolint
	defer tx.Rollback()

	if err := txBody(tx); err != nil {
		return err
	}
	return tx.Commit()
}
