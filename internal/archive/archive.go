// Package archive reads receipts out of a Receipt Library bundle. The
// bundle is a directory containing a Core Data SQLite store plus the
// receipt files themselves; everything here is strictly read-only.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Veraticus/receipt-flow/internal/common"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const databaseName = "DocumentWallet.documentwalletsql"

// Archive provides read access to a receipt library.
type Archive struct {
	db          *sql.DB
	libraryPath string
}

// Open opens the receipt library rooted at libraryPath.
func Open(libraryPath string) (*Archive, error) {
	dbPath := filepath.Join(libraryPath, databaseName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrArchiveNotFound, dbPath, err)
	}

	// mode=ro keeps the migration from ever touching the source store.
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping receipt database: %w", err)
	}

	return &Archive{
		db:          db,
		libraryPath: libraryPath,
	}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// DocumentPath resolves a library-relative receipt path to an absolute
// path on disk.
func (a *Archive) DocumentPath(relative string) string {
	return filepath.Join(a.libraryPath, relative)
}

// CountReceipts returns the total number of receipts in the library.
func (a *Archive) CountReceipts(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ZRECEIPT`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count receipts: %w", err)
	}
	return count, nil
}
