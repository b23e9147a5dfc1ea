package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orderware/wholesale/internal/domain/reject"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: already exists")
)

const DefaultPaymentMethod = "cash_on_delivery"

// Address is the delivery destination. All fields are required.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Validate reports the first missing field as a rejection so the caller
// knows exactly what to fix.
func (a Address) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
		{"country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return reject.MissingAddressField(f.name)
		}
	}
	return nil
}

// LineItem freezes the product snapshot at order time. UnitPrice never
// changes afterwards, whatever happens to the live catalog price.
type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type Order struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Items           []LineItem `json:"items"`
	TotalAmount     int64      `json:"totalAmount"`
	Status          Status     `json:"status"`
	PaymentMethod   string     `json:"paymentMethod"`
	DeliveryAddress Address    `json:"deliveryAddress"`
	OrderDate       time.Time  `json:"orderDate"`
	DeliveryDate    *time.Time `json:"deliveryDate,omitempty"`
	UpdatedAt       time.Time  `json:"-"`
}

// New builds a pending order. TotalAmount is computed once here from the
// frozen line items and never recomputed.
func New(id, userID string, items []LineItem, addr Address, paymentMethod string) (*Order, error) {
	if id == "" {
		return nil, fmt.Errorf("order: id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("order: user id is required")
	}
	if len(items) == 0 {
		return nil, reject.EmptyCart()
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	var total int64
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("order: line item quantity must be at least 1")
		}
		total += it.UnitPrice * int64(it.Quantity)
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           append([]LineItem(nil), items...),
		TotalAmount:     total,
		Status:          StatusPending,
		PaymentMethod:   paymentMethod,
		DeliveryAddress: addr,
		OrderDate:       now,
		UpdatedAt:       now,
	}, nil
}

// Number derives the human-readable order number from the id: its last six
// hex characters, upper-cased, with a fixed prefix.
func (o *Order) Number() string {
	hex := strings.ReplaceAll(o.ID, "-", "")
	if len(hex) > 6 {
		hex = hex[len(hex)-6:]
	}
	return "ORD-" + strings.ToUpper(hex)
}

func (o *Order) MarkDelivered(at time.Time) {
	at = at.UTC()
	o.Status = StatusDelivered
	o.DeliveryDate = &at
	o.touch()
}

func (o *Order) MarkCancelled() {
	o.Status = StatusCancelled
	o.touch()
}

func (o *Order) SetStatus(s Status) {
	o.Status = s
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		clone.DeliveryDate = &d
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
