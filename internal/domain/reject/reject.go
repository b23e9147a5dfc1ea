// Package reject defines the structured rejection errors returned to callers
// when an operation fails a validation, referential, business-rule, or
// authorization check. Every rejection carries a machine-readable code and
// enough detail for the client to react; none are retried automatically.
package reject

import (
	"errors"
	"fmt"
)

const (
	CodeEmptyCart           = "EMPTY_CART"
	CodeInvalidItem         = "INVALID_ITEM"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeProductUnavailable  = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeMissingAddress      = "MISSING_ADDRESS"
	CodeMissingAddressField = "MISSING_ADDRESS_FIELD"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeCannotCancel        = "CANNOT_CANCEL"
	CodeCannotDelete        = "CANNOT_DELETE"
	CodeAlreadyDelivered    = "ORDER_ALREADY_DELIVERED"
	CodeOrderCancelled      = "ORDER_CANCELLED"
	CodeAccessDenied        = "ACCESS_DENIED"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
)

// Rejection is a deterministic, caller-facing failure. It is a value, not an
// infrastructure error: the operation it aborted left no side effects behind.
type Rejection struct {
	Code    string
	Message string
	Details map[string]any
}

func (r *Rejection) Error() string { return r.Message }

// As unwraps err into a Rejection when it is one.
func As(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Is reports whether err is a rejection carrying the given code.
func Is(err error, code string) bool {
	r, ok := As(err)
	return ok && r.Code == code
}

func EmptyCart() *Rejection {
	return &Rejection{Code: CodeEmptyCart, Message: "cart is empty"}
}

func InvalidItem(index int, reason string) *Rejection {
	return &Rejection{
		Code:    CodeInvalidItem,
		Message: fmt.Sprintf("invalid cart item at position %d: %s", index, reason),
		Details: map[string]any{"index": index},
	}
}

func ProductNotFound(productID string) *Rejection {
	return &Rejection{
		Code:    CodeProductNotFound,
		Message: fmt.Sprintf("product %s not found", productID),
		Details: map[string]any{"productId": productID},
	}
}

func ProductUnavailable(name string) *Rejection {
	return &Rejection{
		Code:    CodeProductUnavailable,
		Message: fmt.Sprintf("product %q is not available", name),
		Details: map[string]any{"product": name},
	}
}

func InsufficientStock(name string, available, requested int) *Rejection {
	return &Rejection{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %q: %d available, %d requested", name, available, requested),
		Details: map[string]any{"product": name, "available": available, "requested": requested},
	}
}

func MissingAddress() *Rejection {
	return &Rejection{Code: CodeMissingAddress, Message: "shipping address is required"}
}

func MissingAddressField(field string) *Rejection {
	return &Rejection{
		Code:    CodeMissingAddressField,
		Message: fmt.Sprintf("shipping address field %q is required", field),
		Details: map[string]any{"field": field},
	}
}

func InvalidStatus(value string) *Rejection {
	return &Rejection{
		Code:    CodeInvalidStatus,
		Message: fmt.Sprintf("invalid order status %q", value),
		Details: map[string]any{"status": value},
	}
}

func CannotCancel(status string) *Rejection {
	return &Rejection{
		Code:    CodeCannotCancel,
		Message: fmt.Sprintf("order in status %q cannot be cancelled", status),
		Details: map[string]any{"status": status},
	}
}

func CannotDelete(status string) *Rejection {
	return &Rejection{
		Code:    CodeCannotDelete,
		Message: fmt.Sprintf("order in status %q cannot be deleted", status),
		Details: map[string]any{"status": status},
	}
}

func AlreadyDelivered() *Rejection {
	return &Rejection{Code: CodeAlreadyDelivered, Message: "order was already delivered"}
}

func OrderCancelled() *Rejection {
	return &Rejection{Code: CodeOrderCancelled, Message: "order was cancelled"}
}

func AccessDenied() *Rejection {
	return &Rejection{Code: CodeAccessDenied, Message: "not allowed to act on this order"}
}

func OrderNotFound(orderID string) *Rejection {
	return &Rejection{
		Code:    CodeOrderNotFound,
		Message: fmt.Sprintf("order %s not found", orderID),
		Details: map[string]any{"orderId": orderID},
	}
}
