package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/orderware/wholesale/internal/domain/catalog"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/observability/logctx"
)

type IDGenerator interface {
	NewID() string
}

// Service manages the product catalog. Creation seeds the starting stock;
// every later write, including the admin's, goes through the store's atomic
// unit so it cannot clobber a concurrently committed stock movement.
type Service struct {
	repo domain.Repository
	tx   domain.TxRunner
	ids  IDGenerator
	log  observability.Logger
}

func NewService(repo domain.Repository, tx domain.TxRunner, ids IDGenerator, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		repo: repo,
		tx:   tx,
		ids:  ids,
		log:  tel.Logger().With(observability.F("component", "catalog_service")),
	}
}

type CreateProductInput struct {
	Name     string          `json:"name"`
	Category domain.Category `json:"category"`
	Price    int64           `json:"price"`
	Stock    int             `json:"stock"`
}

func (s *Service) Create(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("catalog: product name is required")
	}
	p, err := domain.New(s.ids.NewID(), input.Name, input.Category, input.Price, input.Stock)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("catalog: save product: %w", err)
	}
	logctx.FromOr(ctx, s.log).Info("product_created",
		observability.F("product_id", p.ID),
		observability.F("name", p.Name),
	)
	return p, nil
}

type UpdateProductInput struct {
	Name      *string          `json:"name,omitempty"`
	Category  *domain.Category `json:"category,omitempty"`
	Price     *int64           `json:"price,omitempty"`
	Stock     *int             `json:"stock,omitempty"`
	Available *bool            `json:"available,omitempty"`
}

// Update applies the given fields inside one atomic unit. An absolute stock
// value is turned into a delta against the stock as it stands under the
// unit's lock, so a checkout committing just before the update is never
// silently overwritten by a stale snapshot.
func (s *Service) Update(ctx context.Context, id string, input UpdateProductInput) (*domain.Product, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, errors.New("catalog: product name is required")
	}
	if input.Price != nil && *input.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if input.Stock != nil && *input.Stock < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var out *domain.Product
	err := s.tx.InTx(ctx, []string{id}, func(tx domain.Tx) error {
		if input.Stock != nil {
			cur, err := tx.Product(id)
			if err != nil {
				return err
			}
			switch delta := *input.Stock - cur.Stock; {
			case delta > 0:
				if err := tx.IncrementStock(id, delta); err != nil {
					return err
				}
			case delta < 0:
				if err := tx.DecrementStock(id, -delta); err != nil {
					return err
				}
			}
		}
		if err := tx.Mutate(id, func(p *domain.Product) {
			if input.Name != nil {
				p.Name = *input.Name
			}
			if input.Category != nil {
				p.Category = *input.Category
			}
			if input.Price != nil {
				p.Price = *input.Price
			}
			if input.Available != nil {
				p.Available = *input.Available
			}
		}); err != nil {
			return err
		}
		updated, err := tx.Product(id)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logctx.FromOr(ctx, s.log).Info("product_deleted", observability.F("product_id", id))
	return nil
}
