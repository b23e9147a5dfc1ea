package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/orderware/wholesale/internal/domain/catalog"
)

// CatalogRepository is an in-memory catalog store with per-product locking.
// Atomic units (InTx) stage their writes locally and apply them only on a
// clean return, so a failed checkout leaves every stock counter untouched.
type CatalogRepository struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	txTimeout time.Duration
}

// entry wraps a product with its own mutex. Entries are never replaced once
// created; only entry.p is swapped under entry.mu. That keeps lock identity
// stable for concurrent atomic units.
type entry struct {
	mu sync.Mutex
	p  *domain.Product
}

type Option func(*CatalogRepository)

// WithTxTimeout bounds every atomic unit. Expiry aborts the unit with
// domain.ErrTxTimeout before anything is applied.
func WithTxTimeout(d time.Duration) Option {
	return func(r *CatalogRepository) { r.txTimeout = d }
}

func NewCatalogRepository(opts ...Option) *CatalogRepository {
	r := &CatalogRepository{
		entries:   make(map[string]*entry),
		txTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CatalogRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p == nil {
		return nil, domain.ErrNotFound
	}
	return e.p.Clone(), nil
}

func (r *CatalogRepository) List(ctx context.Context) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Product, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.p != nil {
			out = append(out, e.p.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CatalogRepository) Save(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("catalog repository: id is required")
	}
	if p.Stock < 0 {
		return domain.ErrInvalidQuantity
	}

	e := r.entry(p.ID)
	e.mu.Lock()
	e.p = p.Clone()
	e.mu.Unlock()
	return nil
}

func (r *CatalogRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	// An in-flight atomic unit may still hold the old entry; its writes land
	// on the detached copy and are dropped with it.
	e.mu.Lock()
	e.p = nil
	e.mu.Unlock()
	return nil
}

// InTx runs fn as one atomic unit over the products named by ids. Locks are
// acquired in sorted id order so two overlapping units can never deadlock,
// and the unit holding the locks is the only writer of those stock counters
// until it finishes: racing decrements serialize instead of overselling.
//
// The deadline bounds how long a unit may wait to start, which is where
// contended units spend their time. Once fn has returned nil the unit
// commits unconditionally: fn may have written to other stores (the order
// record), and aborting after the fact would tear those writes from the
// staged stock.
func (r *CatalogRepository) InTx(ctx context.Context, ids []string, fn func(tx domain.Tx) error) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	sorted := uniqueSorted(ids)

	r.mu.RLock()
	locked := make([]*entry, 0, len(sorted))
	for _, id := range sorted {
		if e, ok := r.entries[id]; ok {
			locked = append(locked, e)
		}
	}
	r.mu.RUnlock()

	for _, e := range locked {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTxTimeout, err)
	}

	tx := &catalogTx{held: locked, staged: make(map[string]*domain.Product)}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit: swap staged products into the held entries.
	for _, e := range tx.held {
		if e.p == nil {
			continue
		}
		if staged, ok := tx.staged[e.p.ID]; ok {
			e.p = staged
		}
	}
	return nil
}

// catalogTx is the unit's private view: reads see staged writes, and nothing
// escapes until InTx commits.
type catalogTx struct {
	held   []*entry
	staged map[string]*domain.Product
}

func (tx *catalogTx) Product(id string) (*domain.Product, error) {
	if p, ok := tx.staged[id]; ok {
		return p.Clone(), nil
	}
	for _, e := range tx.held {
		if e.p != nil && e.p.ID == id {
			return e.p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (tx *catalogTx) DecrementStock(id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	p, err := tx.working(id)
	if err != nil {
		return err
	}
	if p.Stock < qty {
		return domain.ErrInsufficientStock
	}
	p.Stock -= qty
	p.Touch()
	tx.staged[id] = p
	return nil
}

func (tx *catalogTx) IncrementStock(id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	p, err := tx.working(id)
	if err != nil {
		return err
	}
	p.Stock += qty
	p.Touch()
	tx.staged[id] = p
	return nil
}

func (tx *catalogTx) Mutate(id string, fn func(p *domain.Product)) error {
	p, err := tx.working(id)
	if err != nil {
		return err
	}
	stock := p.Stock
	fn(p)
	p.Stock = stock
	p.Touch()
	tx.staged[id] = p
	return nil
}

func (tx *catalogTx) working(id string) (*domain.Product, error) {
	if p, ok := tx.staged[id]; ok {
		return p, nil
	}
	for _, e := range tx.held {
		if e.p != nil && e.p.ID == id {
			return e.p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *CatalogRepository) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &entry{}
	r.entries[id] = e
	return e
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
