// Package historyindex implements hammer.HistoryIndex as a disposable
// SQLite projection of on-disk deployment metadata, grounded on the
// teacher repo's internal/database package. It is never a source of
// truth: Rebuild is handed the authoritative set read from meta.json
// files, and the database exists only to let the Query Surface order and
// filter that set with SQL instead of hand-rolled sort code.
package historyindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
	"github.com/HackerOS-Linux-System/hammer/internal/historyindex/migrations"
)

// Index is a SQLite-backed, in-memory projection of deployment history.
type Index struct {
	db *sql.DB
}

var _ hammer.HistoryIndex = (*Index)(nil)

// New opens a fresh in-memory SQLite database and applies its schema.
// The index is empty until Rebuild populates it.
func New() (*Index, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening deployment index: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying deployment index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Rebuild replaces the index contents with entries.
func (idx *Index) Rebuild(entries []*hammer.HistoryEntry) error {
	ctx := context.Background()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting deployment index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM deployments"); err != nil {
		return fmt.Errorf("clearing deployment index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deployments (id, name, created_at, action, status, parent, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing deployment index insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		isCurrent := 0
		if e.IsCurrent {
			isCurrent = 1
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), e.Name,
			e.Created.UTC().Format(time.RFC3339Nano), e.Action, string(e.Status), e.Parent, isCurrent); err != nil {
			return fmt.Errorf("indexing deployment %s: %w", e.Name, err)
		}
	}

	return tx.Commit()
}

// Newest returns all entries ordered by Created descending.
func (idx *Index) Newest() ([]*hammer.HistoryEntry, error) {
	rows, err := idx.db.QueryContext(context.Background(), `
		SELECT name, created_at, action, status, parent, is_current
		FROM deployments
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying deployment index: %w", err)
	}
	defer rows.Close()

	var out []*hammer.HistoryEntry
	for rows.Next() {
		var (
			name, createdAt, action, status, parent string
			isCurrent                                int
		)
		if err := rows.Scan(&name, &createdAt, &action, &status, &parent, &isCurrent); err != nil {
			return nil, fmt.Errorf("scanning deployment index row: %w", err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			created, err = time.Parse(time.RFC3339, createdAt)
			if err != nil {
				return nil, fmt.Errorf("parsing indexed timestamp for %s: %w", name, err)
			}
		}
		out = append(out, &hammer.HistoryEntry{
			Name:      name,
			Created:   created,
			Action:    action,
			Status:    hammer.Status(status),
			Parent:    parent,
			IsCurrent: isCurrent != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployment index rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying SQLite connection.
func (idx *Index) Close() error {
	if idx.db == nil {
		return nil
	}
	return idx.db.Close()
}
