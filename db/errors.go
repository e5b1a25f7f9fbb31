package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/AMS/errors"
)

// ErrDatabaseClosed marks work attempted after the database was closed
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is gone.
// go-sqlite3 reports a closed handle only in the message text.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.IsAny(err, ErrDatabaseClosed, sql.ErrConnDone):
		return true
	default:
		return strings.Contains(err.Error(), "database is closed")
	}
}
