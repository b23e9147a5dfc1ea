package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/observability/logctx"
)

const (
	taxRatePercent = 15
	// Orders strictly above this subtotal ship free; everything else pays the
	// flat rate. Amounts are in the smallest currency unit.
	freeShippingAbove = 100_00
	flatShippingFee   = 10_00
)

// ItemInput is one (product, quantity) pair of a submitted cart.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ItemSnapshot is the per-item view of a validated cart: the product as it
// stood at validation time.
type ItemSnapshot struct {
	ProductID      string              `json:"productId"`
	Name           string              `json:"name"`
	Category       domcatalog.Category `json:"category"`
	UnitPrice      int64               `json:"unitPrice"`
	Quantity       int                 `json:"quantity"`
	AvailableStock int                 `json:"availableStock"`
	LineTotal      int64               `json:"lineTotal"`
}

type Summary struct {
	Subtotal   int64 `json:"subtotal"`
	Tax        int64 `json:"tax"`
	Shipping   int64 `json:"shipping"`
	Total      int64 `json:"total"`
	TotalItems int   `json:"totalItems"`
}

type ValidatedCart struct {
	Items   []ItemSnapshot `json:"items"`
	Summary Summary        `json:"summary"`
}

// Service validates and prices carts against current catalog state. It reads
// but never mutates stock: the result is advisory, and final authority over
// stock rests with the order engine's own in-transaction check.
type Service struct {
	catalog domcatalog.Repository
	log     observability.Logger
}

func NewService(catalog domcatalog.Repository, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		catalog: catalog,
		log:     tel.Logger().With(observability.F("component", "cart_validator")),
	}
}

// Validate checks each item against the live catalog and prices the cart.
// The same invalid cart always yields the same rejection code.
func (s *Service) Validate(ctx context.Context, items []ItemInput) (*ValidatedCart, error) {
	if len(items) == 0 {
		return nil, reject.EmptyCart()
	}

	out := &ValidatedCart{Items: make([]ItemSnapshot, 0, len(items))}
	for i, in := range items {
		if strings.TrimSpace(in.ProductID) == "" {
			return nil, reject.InvalidItem(i, "product id is required")
		}
		if in.Quantity < 1 {
			return nil, reject.InvalidItem(i, "quantity must be at least 1")
		}

		p, err := s.catalog.FindByID(ctx, in.ProductID)
		if errors.Is(err, domcatalog.ErrNotFound) {
			return nil, reject.ProductNotFound(in.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("cart: read product %s: %w", in.ProductID, err)
		}
		if !p.Available {
			return nil, reject.ProductUnavailable(p.Name)
		}
		if p.Stock < in.Quantity {
			return nil, reject.InsufficientStock(p.Name, p.Stock, in.Quantity)
		}

		line := p.Price * int64(in.Quantity)
		out.Items = append(out.Items, ItemSnapshot{
			ProductID:      p.ID,
			Name:           p.Name,
			Category:       p.Category,
			UnitPrice:      p.Price,
			Quantity:       in.Quantity,
			AvailableStock: p.Stock,
			LineTotal:      line,
		})
		out.Summary.Subtotal += line
		out.Summary.TotalItems += in.Quantity
	}

	out.Summary.Tax = out.Summary.Subtotal * taxRatePercent / 100
	if out.Summary.Subtotal <= freeShippingAbove {
		out.Summary.Shipping = flatShippingFee
	}
	out.Summary.Total = out.Summary.Subtotal + out.Summary.Tax + out.Summary.Shipping

	logctx.FromOr(ctx, s.log).Debug("cart_validated",
		observability.F("items", len(out.Items)),
		observability.F("total", out.Summary.Total),
	)
	return out, nil
}
