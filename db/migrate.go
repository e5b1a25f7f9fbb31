package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded schema file, identified by its numeric prefix
type migration struct {
	version string
	file    string
}

func embeddedMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, _ := strings.Cut(name, "_")
		out = append(out, migration{version: version, file: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].file < out[j].file })
	return out, nil
}

// Migrate applies every embedded migration not yet recorded in schema_migrations.
// A nil logger migrates silently.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)

	all, err := embeddedMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		done, err := isApplied(db, m)
		if err != nil {
			return err
		}
		if done {
			log.Debugw("Migration already applied", logger.FieldFile, m.file)
			continue
		}
		log.Infow("Applying migration", logger.FieldFile, m.file)
		if err := apply(db, m); err != nil {
			return err
		}
		applied++
	}

	log.Infow("Migrations complete", logger.FieldCount, applied, logger.FieldTotalCount, len(all))
	return nil
}

// AppliedVersions lists the recorded migration versions in order
func AppliedVersions(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func isApplied(db *sql.DB, m migration) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, m.version).Scan(&exists)
	if err == nil {
		return exists, nil
	}
	if IsDatabaseClosed(err) {
		return false, errors.Wrap(err, "check migrations")
	}
	// 000 is what creates schema_migrations
	if m.version == "000" {
		return false, nil
	}
	return false, errors.Newf("schema_migrations missing before %s", m.file)
}

func apply(db *sql.DB, m migration) error {
	stmts, err := migrations.ReadFile(path.Join(migrationsDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", m.file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(stmts)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.file)
}
