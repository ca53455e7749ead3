package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteMode selects how a SQLite pool is configured.
type SQLiteMode string

const (
	// SQLiteWrite is a single-connection pool that begins transactions
	// IMMEDIATE, so writers are serialised by SQLite itself.
	SQLiteWrite SQLiteMode = "write"
	// SQLiteRead is a multi-connection pool for queries. Under WAL its
	// connections read the last committed state without waiting on the
	// writer.
	SQLiteRead SQLiteMode = "read"
)

const defaultReadConns = 4

// OpenSQLite opens a pool for path in the given mode. maxOpen sizes a read
// pool and is ignored for writes; 0 means the default.
func OpenSQLite(ctx context.Context, path string, mode SQLiteMode, maxOpen int) (*sql.DB, error) {
	if mode != SQLiteRead && mode != SQLiteWrite {
		return nil, fmt.Errorf("invalid sqlite mode %q", mode)
	}

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	if mode == SQLiteWrite {
		params.Set("_txlock", "immediate")
	}

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}
	switch mode {
	case SQLiteWrite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case SQLiteRead:
		if maxOpen <= 0 {
			maxOpen = defaultReadConns
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

// OpenSQLitePair opens the write pool and a read pool over the same file.
// The write pool is opened first so it creates the file and switches it to
// WAL before any reader attaches.
func OpenSQLitePair(ctx context.Context, path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(ctx, path, SQLiteWrite, 0)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = OpenSQLite(ctx, path, SQLiteRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}
