package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// NewMigrator builds a migrator reading SQL files from dir.
func NewMigrator(dir, dsn string) (*migrate.Migrate, error) {
	source := dir
	if !strings.HasPrefix(source, "file://") {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		source = "file://" + filepath.ToSlash(abs)
	}

	migrator, err := migrate.New(source, dsn)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}

// MigrateUp applies every pending up migration.
func MigrateUp(dir, dsn string) error {
	migrator, err := NewMigrator(dir, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}
