package domain

// CatalogItem is the authoritative record a line-item reference resolves to.
// Price and SizePrices are cents. StockQuantity is only ever mutated through
// guarded decrements inside settlement transactions.
type CatalogItem struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	Kind          LineKind         `json:"kind"`
	Price         int64            `json:"price"`
	PointsPerUnit int64            `json:"points_per_unit"`
	InStock       bool             `json:"in_stock"`
	StockQuantity int              `json:"stock_quantity"`
	SizePrices    map[string]int64 `json:"size_prices,omitempty"`
}
