package reporting

import (
	"context"
	"sync"

	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	domorder "github.com/orderware/wholesale/internal/domain/order"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/observability/logctx"
)

const lowStockThreshold = 5

// Service maintains the running sales counters behind the admin dashboard.
// It is a downstream consumer of order events: losing an event skews a
// counter but never affects the committed order.
type Service struct {
	mu sync.Mutex

	ordersPlaced     int
	ordersDelivered  int
	ordersCancelled  int
	unitsSold        int
	revenueDelivered int64

	catalog domcatalog.Repository
	log     observability.Logger
}

func NewService(catalog domcatalog.Repository, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		catalog: catalog,
		log:     tel.Logger().With(observability.F("component", "reporting")),
	}
}

type Snapshot struct {
	OrdersPlaced     int   `json:"ordersPlaced"`
	OrdersDelivered  int   `json:"ordersDelivered"`
	OrdersCancelled  int   `json:"ordersCancelled"`
	UnitsSold        int   `json:"unitsSold"`
	RevenueDelivered int64 `json:"revenueDelivered"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		OrdersPlaced:     s.ordersPlaced,
		OrdersDelivered:  s.ordersDelivered,
		OrdersCancelled:  s.ordersCancelled,
		UnitsSold:        s.unitsSold,
		RevenueDelivered: s.revenueDelivered,
	}
}

// OnOrderPlaced counts the order and warns when any ordered product has
// dropped to a low stock level.
func (s *Service) OnOrderPlaced(ctx context.Context, e domorder.PlacedEvent) error {
	s.mu.Lock()
	s.ordersPlaced++
	for _, it := range e.Items {
		s.unitsSold += it.Quantity
	}
	s.mu.Unlock()

	logger := logctx.FromOr(ctx, s.log)
	for _, it := range e.Items {
		p, err := s.catalog.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		if p.Stock <= lowStockThreshold {
			logger.Warn("low_stock",
				observability.F("product_id", p.ID),
				observability.F("name", p.Name),
				observability.F("stock", p.Stock),
			)
		}
	}
	return nil
}

func (s *Service) OnOrderDelivered(_ context.Context, e domorder.DeliveredEvent) error {
	s.mu.Lock()
	s.ordersDelivered++
	s.revenueDelivered += e.TotalAmount
	s.mu.Unlock()
	return nil
}

func (s *Service) OnOrderCancelled(_ context.Context, _ domorder.CancelledEvent) error {
	s.mu.Lock()
	s.ordersCancelled++
	s.mu.Unlock()
	return nil
}
