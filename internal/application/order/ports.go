package order

type IDGenerator interface {
	NewID() string
}

// StockPolicy selects the single point where an order's stock deduction
// happens. It is fixed at build time and applied uniformly: a system never
// mixes both, so "pending" always means the same thing for inventory.
type StockPolicy string

const (
	// PolicyDeductOnCheckout deducts stock when the order is created and
	// restores it when a pending order is cancelled or deleted. Delivery is
	// a plain status change.
	PolicyDeductOnCheckout StockPolicy = "deduct_on_checkout"
	// PolicyDeductOnDelivery only checks stock at checkout; the deduction
	// happens atomically when the order transitions into delivered.
	PolicyDeductOnDelivery StockPolicy = "deduct_on_delivery"
)

func ParseStockPolicy(s string) (StockPolicy, bool) {
	switch StockPolicy(s) {
	case "":
		return PolicyDeductOnCheckout, true
	case PolicyDeductOnCheckout, PolicyDeductOnDelivery:
		return StockPolicy(s), true
	}
	return "", false
}

const RoleAdmin = "admin"

// Actor is the resolved caller identity, supplied by the authentication
// layer. The engine trusts it as given.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
