package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrInvalidPrice      = errors.New("catalog: price must be zero or greater")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")

	// ErrTxTimeout marks an atomic unit that exceeded its deadline. It is a
	// transient failure: nothing was applied and the caller may retry the
	// identical request.
	ErrTxTimeout = errors.New("catalog: transaction timed out")
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryFood        Category = "food"
	CategoryBeverages   Category = "beverages"
	CategoryHousehold   Category = "household"
	CategoryOther       Category = "other"
)

// Product is a sellable catalog entry. Price is in the smallest currency
// unit. Stock never goes negative; only the store's atomic operations may
// change it once the product is saved.
type Product struct {
	ID        string
	Name      string
	Category  Category
	Price     int64
	Stock     int
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, name string, category Category, price int64, stock int) (*Product, error) {
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidQuantity
	}
	if category == "" {
		category = CategoryOther
	}
	now := time.Now().UTC()
	return &Product{
		ID:        id,
		Name:      name,
		Category:  category,
		Price:     price,
		Stock:     stock,
		Available: true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) Touch() {
	p.UpdatedAt = time.Now().UTC()
}
