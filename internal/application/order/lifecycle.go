package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	domain "github.com/orderware/wholesale/internal/domain/order"
	domoutbox "github.com/orderware/wholesale/internal/domain/outbox"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/observability/logctx"
)

const (
	useCaseGetOrder     = "order.get"
	useCaseListOrders   = "order.list"
	useCaseCancelOrder  = "order.cancel"
	useCaseDeliverOrder = "order.deliver"
	useCaseUpdateStatus = "order.update_status"
	useCaseDeleteOrder  = "order.delete"
)

// Lifecycle transitions existing orders through their status changes and
// applies the stock side effects the configured policy attaches to them.
type Lifecycle struct {
	orders    domain.Repository
	tx        domcatalog.TxRunner
	publisher domoutbox.Publisher
	policy    StockPolicy
	now       func() time.Time
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewLifecycle(
	orders domain.Repository,
	tx domcatalog.TxRunner,
	publisher domoutbox.Publisher,
	policy StockPolicy,
	tel observability.Observability,
) *Lifecycle {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Lifecycle{
		orders:       orders,
		tx:           tx,
		publisher:    publisher,
		policy:       policy,
		now:          time.Now,
		tel:          tel,
		log:          tel.Logger().With(observability.F("component", "order_lifecycle")),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

// begin opens the use case span and returns a finish func recording the
// outcome on the span and the RED metrics.
func (l *Lifecycle) begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := l.tel.Tracer().Start(ctx, spanName, attrs...)
	start := time.Now()
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, rejectionCode(err))
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
		l.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		l.durHistogram.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCase),
		)
	}
}

// Get returns the order to its owner or an admin.
func (l *Lifecycle) Get(ctx context.Context, actor Actor, orderID string) (_ *domain.Order, err error) {
	ctx, done := l.begin(ctx, useCaseGetOrder, "UC.GetOrder",
		attribute.String("order.id", orderID))
	defer func() { done(err) }()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && o.UserID != actor.ID {
		return nil, reject.AccessDenied()
	}
	return o, nil
}

func (l *Lifecycle) ListByUser(ctx context.Context, userID string) (_ []*domain.Order, err error) {
	ctx, done := l.begin(ctx, useCaseListOrders, "UC.ListOrders",
		attribute.String("order.user_id", userID))
	defer func() { done(err) }()

	return l.orders.ListByUser(ctx, userID)
}

// Cancel moves a pending order to cancelled. Only the owning user or an
// admin may cancel. Under deduct-on-checkout the order's stock is restored
// in the same atomic unit as the status change.
func (l *Lifecycle) Cancel(ctx context.Context, actor Actor, orderID string) (_ *domain.Order, err error) {
	ctx, done := l.begin(ctx, useCaseCancelOrder, "UC.CancelOrder",
		attribute.String("order.id", orderID))
	defer func() { done(err) }()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && o.UserID != actor.ID {
		return nil, reject.AccessDenied()
	}
	if o.Status != domain.StatusPending {
		return nil, reject.CannotCancel(string(o.Status))
	}

	if l.policy == PolicyDeductOnCheckout {
		err = l.tx.InTx(ctx, productIDs(o), func(tx domcatalog.Tx) error {
			for _, it := range o.Items {
				if ierr := tx.IncrementStock(it.ProductID, it.Quantity); ierr != nil {
					// The product may have been removed from the catalog
					// since the order was placed; its stock no longer exists
					// to restore.
					if errors.Is(ierr, domcatalog.ErrNotFound) {
						continue
					}
					return fmt.Errorf("cancel: restore stock for %s: %w", it.ProductID, ierr)
				}
			}
			o.MarkCancelled()
			return l.orders.Update(ctx, o)
		})
	} else {
		o.MarkCancelled()
		err = l.orders.Update(ctx, o)
	}
	if err != nil {
		return nil, err
	}

	logctx.FromOr(ctx, l.log).Info("order_cancelled",
		observability.F("order_id", o.ID),
		observability.F("actor", actor.ID),
	)
	l.publish(ctx, domain.NewCancelledEvent(o))
	return o, nil
}

// MarkDelivered finalizes an order. Admin only; delivered and cancelled are
// terminal. Under deduct-on-delivery this is the point where goods leave
// inventory, so stock is re-checked and decremented atomically here, since
// other orders may have consumed it since checkout.
func (l *Lifecycle) MarkDelivered(ctx context.Context, actor Actor, orderID string) (_ *domain.Order, err error) {
	ctx, done := l.begin(ctx, useCaseDeliverOrder, "UC.MarkDelivered",
		attribute.String("order.id", orderID))
	defer func() { done(err) }()

	if !actor.IsAdmin() {
		return nil, reject.AccessDenied()
	}
	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return l.deliver(ctx, o)
}

// UpdateStatus accepts the extended status vocabulary. Only the transition
// into delivered carries a stock side effect; everything else is a plain
// field write. Terminal orders reject any further change.
func (l *Lifecycle) UpdateStatus(ctx context.Context, actor Actor, orderID, newStatus string) (_ *domain.Order, err error) {
	ctx, done := l.begin(ctx, useCaseUpdateStatus, "UC.UpdateOrderStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.status", newStatus))
	defer func() { done(err) }()

	if !actor.IsAdmin() {
		return nil, reject.AccessDenied()
	}
	status, ok := domain.ParseStatus(newStatus)
	if !ok {
		return nil, reject.InvalidStatus(newStatus)
	}
	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if status == domain.StatusDelivered {
		return l.deliver(ctx, o)
	}
	if o.Status == domain.StatusDelivered {
		return nil, reject.AlreadyDelivered()
	}
	if o.Status == domain.StatusCancelled {
		return nil, reject.OrderCancelled()
	}

	o.SetStatus(status)
	if err := l.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	logctx.FromOr(ctx, l.log).Info("order_status_updated",
		observability.F("order_id", o.ID),
		observability.F("status", string(status)),
	)
	return o, nil
}

// Delete removes an order record. Only pending and cancelled orders may be
// deleted; delivered orders are kept as the audit trail of fulfilled,
// stock-affecting orders. Deleting a pending order behaves like cancelling
// it first, so deducted stock is not leaked.
func (l *Lifecycle) Delete(ctx context.Context, actor Actor, orderID string) (err error) {
	ctx, done := l.begin(ctx, useCaseDeleteOrder, "UC.DeleteOrder",
		attribute.String("order.id", orderID))
	defer func() { done(err) }()

	if !actor.IsAdmin() {
		return reject.AccessDenied()
	}
	o, err := l.load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusPending && o.Status != domain.StatusCancelled {
		return reject.CannotDelete(string(o.Status))
	}

	if o.Status == domain.StatusPending && l.policy == PolicyDeductOnCheckout {
		err = l.tx.InTx(ctx, productIDs(o), func(tx domcatalog.Tx) error {
			for _, it := range o.Items {
				if ierr := tx.IncrementStock(it.ProductID, it.Quantity); ierr != nil {
					if errors.Is(ierr, domcatalog.ErrNotFound) {
						continue
					}
					return fmt.Errorf("delete: restore stock for %s: %w", it.ProductID, ierr)
				}
			}
			return l.orders.Delete(ctx, o.ID)
		})
	} else {
		err = l.orders.Delete(ctx, o.ID)
	}
	if err != nil {
		return err
	}

	logctx.FromOr(ctx, l.log).Info("order_deleted",
		observability.F("order_id", o.ID),
		observability.F("actor", actor.ID),
	)
	return nil
}

func (l *Lifecycle) deliver(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	switch o.Status {
	case domain.StatusDelivered:
		return nil, reject.AlreadyDelivered()
	case domain.StatusCancelled:
		return nil, reject.OrderCancelled()
	}

	var err error
	if l.policy == PolicyDeductOnDelivery {
		err = l.tx.InTx(ctx, productIDs(o), func(tx domcatalog.Tx) error {
			for _, it := range o.Items {
				p, perr := tx.Product(it.ProductID)
				if errors.Is(perr, domcatalog.ErrNotFound) {
					return reject.ProductNotFound(it.ProductID)
				}
				if perr != nil {
					return fmt.Errorf("deliver: read product %s: %w", it.ProductID, perr)
				}
				if p.Stock < it.Quantity {
					return reject.InsufficientStock(p.Name, p.Stock, it.Quantity)
				}
				if derr := tx.DecrementStock(it.ProductID, it.Quantity); derr != nil {
					return fmt.Errorf("deliver: decrement %s: %w", it.ProductID, derr)
				}
			}
			o.MarkDelivered(l.now())
			return l.orders.Update(ctx, o)
		})
	} else {
		o.MarkDelivered(l.now())
		err = l.orders.Update(ctx, o)
	}
	if err != nil {
		return nil, err
	}

	logctx.FromOr(ctx, l.log).Info("order_delivered",
		observability.F("order_id", o.ID),
	)
	l.publish(ctx, domain.NewDeliveredEvent(o))
	return o, nil
}

func (l *Lifecycle) load(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := l.orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, reject.OrderNotFound(orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("order: load %s: %w", orderID, err)
	}
	return o, nil
}

func (l *Lifecycle) publish(ctx context.Context, evt domoutbox.Event) {
	if l.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := l.publisher.Publish(pubCtx, evt); err != nil {
		logctx.FromOr(ctx, l.log).Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func productIDs(o *domain.Order) []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
