package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/AMS/errors"
	"github.com/teranos/AMS/logger"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// connectionPragmas run in order on every new database handle
var connectionPragmas = []struct {
	stmt string
	what string
}{
	{"PRAGMA journal_mode = WAL", "enable WAL mode"},
	{"PRAGMA foreign_keys = ON", "enable foreign keys"},
	{fmt.Sprintf("PRAGMA busy_timeout = %d", SQLiteBusyTimeoutMS), "set busy timeout"},
}

// Open opens the SQLite database at path and applies the connection pragmas.
// A nil log keeps it silent.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	log.Debugw("Opening database", logger.FieldPath, path)

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	for _, p := range connectionPragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to %s on %s", p.what, path)
		}
	}

	log.Infow("Database ready", logger.FieldPath, path, "pragmas", len(connectionPragmas))
	return conn, nil
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn, log); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return conn, nil
}
