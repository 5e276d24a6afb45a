package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/stuffhappens/internal/client/migrations"
	"github.com/dmitrijs2005/stuffhappens/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/stuffhappens/internal/common"
	"github.com/dmitrijs2005/stuffhappens/internal/filex"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// InitDatabase opens (creating if needed) the local SQLite database and
// brings its schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Installation identifies this client installation to the backend in the
// X-Client-Info header.
type Installation struct {
	ID          string
	InstalledAt time.Time
}

// EnsureInstallation returns the stored installation record, creating one on
// first run.
func EnsureInstallation(ctx context.Context, repo metadata.Repository) (*Installation, error) {
	id, err := repo.Get(ctx, common.InstallationIDKey)
	if err != nil {
		return nil, err
	}
	at, err := repo.Get(ctx, common.InstalledAtKey)
	if err != nil {
		return nil, err
	}

	if id != nil && at != nil {
		t, err := time.Parse(time.RFC3339, string(at))
		if err == nil {
			return &Installation{ID: string(id), InstalledAt: t}, nil
		}
	}

	inst := &Installation{ID: uuid.NewString(), InstalledAt: time.Now().UTC().Truncate(time.Second)}
	err = repo.SetMany(ctx, map[string][]byte{
		common.InstallationIDKey: []byte(inst.ID),
		common.InstalledAtKey:    []byte(inst.InstalledAt.Format(time.RFC3339)),
	})
	if err != nil {
		return nil, fmt.Errorf("save installation: %w", err)
	}
	return inst, nil
}
