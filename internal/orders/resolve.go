package orders

import (
	"sort"

	"github.com/google/uuid"
)

// ResolveCart turns cart entries into canonical order lines against the
// live catalog. An entry that carries a product id is resolved by id, and
// that id must exist; any other entry is matched by exact product name.
// Lines come back sorted by cart name. Unit prices are taken from the
// catalog, not from the cart.
func ResolveCart(cart Cart, catalog []Product) ([]OrderLine, error) {
	byID := make(map[uuid.UUID]Product, len(catalog))
	byName := make(map[string]Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
		byName[p.Name] = p
	}

	names := make([]string, 0, len(cart))
	for name := range cart {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]OrderLine, 0, len(names))
	for _, name := range names {
		entry := cart[name]
		p, ok := resolveEntry(name, entry, byID, byName)
		if !ok {
			return nil, newError(KindUnresolvedProduct, "product '%s' not found", name)
		}
		lines = append(lines, OrderLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    entry.Quantity,
			UnitPrice:   p.Price,
		})
	}
	return lines, nil
}

func resolveEntry(name string, e CartEntry, byID map[uuid.UUID]Product, byName map[string]Product) (Product, bool) {
	if e.ProductID != "" {
		id, err := uuid.Parse(e.ProductID)
		if err != nil {
			return Product{}, false
		}
		p, ok := byID[id]
		return p, ok
	}
	p, ok := byName[name]
	return p, ok
}
