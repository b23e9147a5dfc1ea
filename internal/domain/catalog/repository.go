package catalog

import "context"

// Repository is the plain read/write surface of the catalog store.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Save(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

// Tx is the view of the catalog inside one atomic unit. Stock can only be
// moved through the increment/decrement operations; callers never hold a raw
// read-then-write window on the stock counter.
type Tx interface {
	// Product returns the product as seen by this unit, including any
	// mutations it has already staged.
	Product(id string) (*Product, error)
	// DecrementStock stages a stock decrement, failing with
	// ErrInsufficientStock when the staged stock would go negative.
	DecrementStock(id string, qty int) error
	// IncrementStock stages a stock restore.
	IncrementStock(id string, qty int) error
	// Mutate stages fn's changes to the product's descriptive fields. The
	// staged stock is preserved regardless of what fn does to it; stock
	// moves only through the increment and decrement operations.
	Mutate(id string, fn func(p *Product)) error
}

// TxRunner executes fn as one atomic unit over the products named by ids.
// Staged mutations apply only when fn returns nil; any error from fn
// discards them entirely. A deadline expiring before fn runs aborts the
// unit with ErrTxTimeout and nothing is applied; once fn has returned nil
// the unit always commits, so writes fn made to other stores commit with
// it. Two units touching a common product are serialized: neither can
// observe the other's partial state.
type TxRunner interface {
	InTx(ctx context.Context, ids []string, fn func(tx Tx) error) error
}
