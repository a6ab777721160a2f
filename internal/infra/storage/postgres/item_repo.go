package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/storage"
)

const (
	selectItemsQuery = `SELECT id, input, checks, created_at, updated_at FROM work_items WHERE kind = $1 ORDER BY position`
	deleteItemsQuery = `DELETE FROM work_items WHERE kind = $1`
	insertItemQuery  = `INSERT INTO work_items (kind, id, position, input, checks, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type itemRow struct {
	ID        int       `db:"id"`
	Input     string    `db:"input"`
	Checks    []byte    `db:"checks"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ItemRepo implements storage.ItemRepository for one item kind.
type ItemRepo struct {
	db   *DB
	kind domain.ItemKind
}

// NewItemRepo creates a PostgreSQL work-item repository scoped to kind.
func NewItemRepo(db *DB, kind domain.ItemKind) *ItemRepo {
	return &ItemRepo{db: db, kind: kind}
}

// Load returns the items of this kind in stored order.
func (r *ItemRepo) Load(ctx context.Context) ([]domain.WorkItem, error) {
	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, selectItemsQuery, string(r.kind)); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	items := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		item := domain.WorkItem{
			ID:        row.ID,
			Input:     row.Input,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if err := json.Unmarshal(row.Checks, &item.Checks); err != nil {
			return nil, fmt.Errorf("%w: item %d checks: %v", storage.ErrCorrupt, row.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Save replaces every item of this kind inside one transaction.
func (r *ItemRepo) Save(ctx context.Context, items []domain.WorkItem) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, deleteItemsQuery, string(r.kind)); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	for pos, item := range items {
		checks, err := json.Marshal(item.Checks)
		if err != nil {
			return fmt.Errorf("failed to encode item %d: %w", item.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertItemQuery,
			string(r.kind), item.ID, pos, item.Input, checks, item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert item %d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}
