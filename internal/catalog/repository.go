package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/brewtab/brewtab/internal/domain"
)

// Repository resolves line-item references to authoritative price, stock and
// points data. It is read-only; stock is mutated only inside settlement
// transactions.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, category, kind, price, points_per_unit, in_stock, stock_quantity, size_prices
		FROM items
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if items == nil {
		items = []domain.CatalogItem{}
	}
	return items, nil
}

func (r *Repository) Resolve(ctx context.Context, itemID string) (*domain.CatalogItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, kind, price, points_per_unit, in_stock, stock_quantity, size_prices
		FROM items
		WHERE id = $1
	`, itemID)

	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}

	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.CatalogItem, error) {
	item := &domain.CatalogItem{}
	var sizePrices []byte

	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Kind,
		&item.Price, &item.PointsPerUnit, &item.InStock, &item.StockQuantity, &sizePrices)
	if err != nil {
		return nil, err
	}

	if len(sizePrices) > 0 {
		if err := json.Unmarshal(sizePrices, &item.SizePrices); err != nil {
			return nil, err
		}
	}

	return item, nil
}
