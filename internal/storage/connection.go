package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agilecore/boardsyncd/internal/errs"
	"github.com/agilecore/boardsyncd/internal/logging"
)

const (
	// SQLiteBusyTimeoutMS bounds how long a writer waits for another
	// writer's lock before surfacing SQLITE_BUSY.
	SQLiteBusyTimeoutMS = 5000
)

// open opens a per-tenant SQLite file with WAL mode, foreign keys, and a
// busy timeout, creating parent directories as needed. The pragmas are
// carried in the DSN rather than run once via Exec, so every connection
// go-sqlite3 opens into the pool (up to poolMax) gets them, not just
// whichever connection happens to run the first query.
func open(path string, poolMax int) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrapf(err, "create tenant storage directory %s", dir)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d&_journal_mode=WAL", path, SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.Wrapf(err, "open tenant database %s", path)
	}

	if poolMax > 0 {
		db.SetMaxOpenConns(poolMax)
	}

	logging.Named("storage").Debugw("opened tenant database", "path", path)
	return db, nil
}

// tenantFilePath derives the storage filename for a tenant from the
// configured root.
func tenantFilePath(root, tenantID string) string {
	return filepath.Join(root, tenantID+".db")
}
