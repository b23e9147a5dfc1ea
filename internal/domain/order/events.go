package order

import "time"

// PlacedEvent is emitted after a checkout commits. Downstream consumers
// (reporting, dashboards) react to it; the committed order does not depend
// on their success.
type PlacedEvent struct {
	OrderID     string
	UserID      string
	Items       []LineItem
	TotalAmount int64
	OccurredAt  time.Time
}

func (PlacedEvent) EventName() string { return "order.placed" }

func NewPlacedEvent(o *Order) PlacedEvent {
	return PlacedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       append([]LineItem(nil), o.Items...),
		TotalAmount: o.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}

type DeliveredEvent struct {
	OrderID     string
	TotalAmount int64
	OccurredAt  time.Time
}

func (DeliveredEvent) EventName() string { return "order.delivered" }

func NewDeliveredEvent(o *Order) DeliveredEvent {
	return DeliveredEvent{
		OrderID:     o.ID,
		TotalAmount: o.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}

type CancelledEvent struct {
	OrderID    string
	OccurredAt time.Time
}

func (CancelledEvent) EventName() string { return "order.cancelled" }

func NewCancelledEvent(o *Order) CancelledEvent {
	return CancelledEvent{
		OrderID:    o.ID,
		OccurredAt: time.Now().UTC(),
	}
}
