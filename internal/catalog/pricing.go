package catalog

import "github.com/brewtab/brewtab/internal/domain"

// PriceWithCustomizations computes a line's unit price in cents. A size that
// matches one of the item's known tiers replaces the base price; an unknown
// size leaves it unchanged. Extras are summed on top either way.
func PriceWithCustomizations(item *domain.CatalogItem, cust *domain.Customizations) int64 {
	price := item.Price
	if cust == nil {
		return price
	}

	if cust.Size != "" {
		if tier, ok := item.SizePrices[cust.Size]; ok {
			price = tier
		}
	}

	for _, extra := range cust.Extras {
		price += extra.Price
	}

	return price
}
