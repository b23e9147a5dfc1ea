package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/orderware/wholesale/internal/application/cart"
	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	domain "github.com/orderware/wholesale/internal/domain/order"
	domoutbox "github.com/orderware/wholesale/internal/domain/outbox"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/observability/logctx"
)

const (
	useCaseCheckout = "order.checkout"
	publishTimeout  = 300 * time.Millisecond
)

// Engine turns a submitted cart into a durable order. All catalog reads,
// stock checks, the stock deduction, and the order insert execute inside one
// atomic unit: they succeed together or none take effect.
type Engine struct {
	orders    domain.Repository
	tx        domcatalog.TxRunner
	ids       IDGenerator
	publisher domoutbox.Publisher
	policy    StockPolicy
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	stockRejects observability.Counter
	pubFailures  observability.Counter
}

func NewEngine(
	orders domain.Repository,
	tx domcatalog.TxRunner,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	policy StockPolicy,
	tel observability.Observability,
) *Engine {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Engine{
		orders:       orders,
		tx:           tx,
		ids:          ids,
		publisher:    publisher,
		policy:       policy,
		tel:          tel,
		log:          tel.Logger().With(observability.F("component", "order_engine")),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		stockRejects: m.Counter(observability.MCheckoutStockRejects),
		pubFailures:  m.Counter(observability.MEventPublishFailures),
	}
}

type CheckoutInput struct {
	UserID          string
	Items           []cart.ItemInput
	ShippingAddress *domain.Address
	PaymentMethod   string
}

// Receipt is the checkout result handed back to the transport layer.
type Receipt struct {
	Order       *domain.Order
	OrderNumber string
}

// Checkout validates the request, then re-checks every product inside the
// atomic unit. The in-transaction check is authoritative: an earlier
// validate-cart pass may be stale by the time the order commits, and two
// racing checkouts for the last unit must not both succeed.
func (e *Engine) Checkout(ctx context.Context, input CheckoutInput) (_ *Receipt, err error) {
	logger := logctx.FromOr(ctx, e.log).With(observability.F("use_case", useCaseCheckout))

	ctx, span := e.tel.Tracer().Start(ctx, "UC.Checkout",
		attribute.String("use_case", useCaseCheckout),
		attribute.String("order.user_id", input.UserID),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, rejectionCode(err))
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
		e.reqCounter.Add(1,
			observability.L("use_case", useCaseCheckout),
			observability.L("outcome", outcome),
		)
		e.durHistogram.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCaseCheckout),
		)
	}()

	if input.UserID == "" {
		return nil, fmt.Errorf("checkout: user id is required")
	}
	if len(input.Items) == 0 {
		return nil, reject.EmptyCart()
	}
	for i, it := range input.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, reject.InvalidItem(i, "product id is required")
		}
		if it.Quantity < 1 {
			return nil, reject.InvalidItem(i, "quantity must be at least 1")
		}
	}
	// Address problems must surface before any catalog access so a bad
	// address can never touch stock.
	if input.ShippingAddress == nil {
		return nil, reject.MissingAddress()
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(input.Items))
	for _, it := range input.Items {
		ids = append(ids, it.ProductID)
	}

	var created *domain.Order
	err = e.tx.InTx(ctx, ids, func(tx domcatalog.Tx) error {
		items := make([]domain.LineItem, 0, len(input.Items))
		for _, in := range input.Items {
			p, perr := tx.Product(in.ProductID)
			if errors.Is(perr, domcatalog.ErrNotFound) {
				return reject.ProductNotFound(in.ProductID)
			}
			if perr != nil {
				return fmt.Errorf("checkout: read product %s: %w", in.ProductID, perr)
			}
			if !p.Available {
				return reject.ProductUnavailable(p.Name)
			}
			if p.Stock < in.Quantity {
				e.stockRejects.Add(1)
				return reject.InsufficientStock(p.Name, p.Stock, in.Quantity)
			}
			if e.policy == PolicyDeductOnCheckout {
				if derr := tx.DecrementStock(p.ID, in.Quantity); derr != nil {
					// The availability check above makes this unreachable
					// within the same unit; surface it as-is if it happens.
					return fmt.Errorf("checkout: decrement %s: %w", p.ID, derr)
				}
			}
			items = append(items, domain.LineItem{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  in.Quantity,
				UnitPrice: p.Price,
			})
		}

		o, oerr := domain.New(e.ids.NewID(), input.UserID, items, *input.ShippingAddress, input.PaymentMethod)
		if oerr != nil {
			return oerr
		}
		if ierr := e.orders.Insert(ctx, o); ierr != nil {
			return fmt.Errorf("checkout: insert order: %w", ierr)
		}
		created = o
		return nil
	})
	if err != nil {
		logger.Info("checkout_rejected",
			observability.F("code", rejectionCode(err)),
			observability.F("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", created.ID))
	logger.Info("order_placed",
		observability.F("order_id", created.ID),
		observability.F("total_amount", created.TotalAmount),
		observability.F("items", len(created.Items)),
	)
	e.publish(ctx, domain.NewPlacedEvent(created))

	return &Receipt{Order: created, OrderNumber: created.Number()}, nil
}

// publish emits a domain event best-effort. The order is already committed;
// a publish failure is logged and counted, never returned.
func (e *Engine) publish(ctx context.Context, evt domoutbox.Event) {
	if e.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, evt); err != nil {
		e.pubFailures.Add(1, observability.L("event", evt.EventName()))
		logctx.FromOr(ctx, e.log).Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func rejectionCode(err error) string {
	if r, ok := reject.As(err); ok {
		return r.Code
	}
	if errors.Is(err, domcatalog.ErrTxTimeout) {
		return "TX_TIMEOUT"
	}
	return "INTERNAL"
}
