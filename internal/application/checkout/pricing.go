package checkout

import (
	"github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/domain/order"
)

// priceLines derives the trusted lines and total strictly from catalog data.
// A client-claimed price is accepted only as a confirmation: any disagreement
// with the catalog fails the settlement. Quantities are assumed normalized.
func priceLines(lines []CartLine, products map[string]*catalog.Product) ([]order.Line, int64, error) {
	priced := make([]order.Line, 0, len(lines))
	var total int64

	for _, l := range lines {
		product, ok := products[l.ProductID]
		if !ok || product == nil {
			return nil, 0, &catalog.NotFoundError{ProductID: l.ProductID}
		}
		if product.PriceCents < 0 {
			return nil, 0, &InvalidCatalogPriceError{ProductID: l.ProductID}
		}
		if l.ClaimedPriceCents != nil && *l.ClaimedPriceCents != product.PriceCents {
			return nil, 0, &PriceMismatchError{
				ProductID:     l.ProductID,
				ExpectedCents: product.PriceCents,
				ReceivedCents: *l.ClaimedPriceCents,
			}
		}

		line := order.Line{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       l.Quantity,
		}
		priced = append(priced, line)
		total += line.SubtotalCents()
	}

	if total == 0 {
		return nil, 0, ErrZeroAmount
	}
	return priced, total, nil
}

// precheckStock verifies requested quantities against on-hand stock. It is a
// fast-fail gate that spares the gateway an obviously doomed charge; the
// conditional decrement at commit time remains the only authoritative guard.
func precheckStock(lines []order.Line, products map[string]*catalog.Product) error {
	requested := make(map[string]int, len(lines))
	for _, l := range lines {
		requested[l.ProductID] += l.Quantity
	}
	for _, l := range lines {
		product := products[l.ProductID]
		if product == nil {
			return &catalog.NotFoundError{ProductID: l.ProductID}
		}
		if want := requested[l.ProductID]; product.QuantityOnHand < want {
			return &catalog.InsufficientStockError{
				ProductID: l.ProductID,
				Available: product.QuantityOnHand,
				Requested: want,
			}
		}
	}
	return nil
}
