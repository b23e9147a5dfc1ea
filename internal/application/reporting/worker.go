package reporting

import (
	"context"

	domorder "github.com/orderware/wholesale/internal/domain/order"
	domoutbox "github.com/orderware/wholesale/internal/domain/outbox"
)

// Worker subscribes the reporting service to order lifecycle events.
type Worker struct {
	subscriber domoutbox.Subscriber
	service    *Service
}

func NewWorker(subscriber domoutbox.Subscriber, service *Service) *Worker {
	return &Worker{subscriber: subscriber, service: service}
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(domorder.PlacedEvent{}.EventName(), w.handlePlaced)
	w.subscriber.Subscribe(domorder.DeliveredEvent{}.EventName(), w.handleDelivered)
	w.subscriber.Subscribe(domorder.CancelledEvent{}.EventName(), w.handleCancelled)
}

func (w *Worker) handlePlaced(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.PlacedEvent)
	if !ok {
		return nil
	}
	return w.service.OnOrderPlaced(ctx, evt)
}

func (w *Worker) handleDelivered(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.DeliveredEvent)
	if !ok {
		return nil
	}
	return w.service.OnOrderDelivered(ctx, evt)
}

func (w *Worker) handleCancelled(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.CancelledEvent)
	if !ok {
		return nil
	}
	return w.service.OnOrderCancelled(ctx, evt)
}
