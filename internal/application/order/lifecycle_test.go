package order

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderware/wholesale/internal/application/cart"
	domain "github.com/orderware/wholesale/internal/domain/order"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/observability"
)

var (
	owner = Actor{ID: "u1", Role: "user"}
	other = Actor{ID: "u2", Role: "user"}
	admin = Actor{ID: "boss", Role: RoleAdmin}
)

func newLifecycleFixture(t *testing.T, policy StockPolicy) (*fixture, *Lifecycle) {
	t.Helper()
	f := newFixture(t, policy)
	return f, NewLifecycle(f.orders, f.catalog, f.pub, policy, nil)
}

func placeOrder(t *testing.T, f *fixture, userID string, items ...cart.ItemInput) *domain.Order {
	t.Helper()
	got, err := f.engine.Checkout(context.Background(), CheckoutInput{
		UserID:          userID,
		Items:           items,
		ShippingAddress: validAddress(),
	})
	require.NoError(t, err)
	return got.Order
}

func TestLifecycle_GetEnforcesOwnership(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	got, err := lc.Get(context.Background(), owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = lc.Get(context.Background(), other, o.ID)
	assert.True(t, reject.Is(err, reject.CodeAccessDenied))

	_, err = lc.Get(context.Background(), admin, o.ID)
	assert.NoError(t, err)

	_, err = lc.Get(context.Background(), admin, "missing")
	assert.True(t, reject.Is(err, reject.CodeOrderNotFound))
}

func TestLifecycle_CancelRestoresStock(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 4})
	require.Equal(t, 6, f.stock(t, "p1"))

	got, err := lc.Cancel(context.Background(), owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Contains(t, f.pub.names(), "order.cancelled")
}

func TestLifecycle_CancelByStranger(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := lc.Cancel(context.Background(), other, o.ID)
	assert.True(t, reject.Is(err, reject.CodeAccessDenied))
	assert.Equal(t, 9, f.stock(t, "p1"))
}

func TestLifecycle_CancelNonPending(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 2})

	_, err := lc.UpdateStatus(context.Background(), admin, o.ID, "shipped")
	require.NoError(t, err)

	_, err = lc.Cancel(context.Background(), owner, o.ID)
	require.Error(t, err)
	r, ok := reject.As(err)
	require.True(t, ok)
	assert.Equal(t, reject.CodeCannotCancel, r.Code)
	// Stock stays deducted: the order is still on its way.
	assert.Equal(t, 8, f.stock(t, "p1"))
}

func TestLifecycle_MarkDeliveredAdminOnly(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := lc.MarkDelivered(context.Background(), owner, o.ID)
	assert.True(t, reject.Is(err, reject.CodeAccessDenied))

	got, err := lc.MarkDelivered(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveryDate)
	assert.Contains(t, f.pub.names(), "order.delivered")

	// Delivery under deduct-on-checkout is a plain status change.
	assert.Equal(t, 9, f.stock(t, "p1"))
}

func TestLifecycle_DeliveredIsTerminal(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := lc.MarkDelivered(context.Background(), admin, o.ID)
	require.NoError(t, err)

	_, err = lc.MarkDelivered(context.Background(), admin, o.ID)
	assert.True(t, reject.Is(err, reject.CodeAlreadyDelivered))

	_, err = lc.UpdateStatus(context.Background(), admin, o.ID, "processing")
	assert.True(t, reject.Is(err, reject.CodeAlreadyDelivered))

	_, err = lc.Cancel(context.Background(), admin, o.ID)
	assert.True(t, reject.Is(err, reject.CodeCannotCancel))
}

func TestLifecycle_CancelledIsTerminal(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := lc.Cancel(context.Background(), owner, o.ID)
	require.NoError(t, err)

	_, err = lc.MarkDelivered(context.Background(), admin, o.ID)
	assert.True(t, reject.Is(err, reject.CodeOrderCancelled))

	_, err = lc.UpdateStatus(context.Background(), admin, o.ID, "shipped")
	assert.True(t, reject.Is(err, reject.CodeOrderCancelled))
}

func TestLifecycle_UpdateStatus(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := lc.UpdateStatus(context.Background(), owner, o.ID, "shipped")
	assert.True(t, reject.Is(err, reject.CodeAccessDenied))

	_, err = lc.UpdateStatus(context.Background(), admin, o.ID, "teleported")
	assert.True(t, reject.Is(err, reject.CodeInvalidStatus))

	for _, status := range []string{"processing", "shipped"} {
		got, uerr := lc.UpdateStatus(context.Background(), admin, o.ID, status)
		require.NoError(t, uerr)
		assert.Equal(t, domain.Status(status), got.Status)
	}

	got, err := lc.UpdateStatus(context.Background(), admin, o.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveryDate)
}

func TestLifecycle_DeleteRules(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)

	pending := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 2})
	delivered := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})
	_, err := lc.MarkDelivered(context.Background(), admin, delivered.ID)
	require.NoError(t, err)

	err = lc.Delete(context.Background(), owner, pending.ID)
	assert.True(t, reject.Is(err, reject.CodeAccessDenied))

	err = lc.Delete(context.Background(), admin, delivered.ID)
	assert.True(t, reject.Is(err, reject.CodeCannotDelete))

	// Deleting a pending order hands its stock back.
	require.Equal(t, 7, f.stock(t, "p1"))
	err = lc.Delete(context.Background(), admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, "p1"))

	_, err = lc.Get(context.Background(), admin, pending.ID)
	assert.True(t, reject.Is(err, reject.CodeOrderNotFound))
}

func TestLifecycle_DeleteCancelledDoesNotRestoreTwice(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnCheckout)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 3})

	_, err := lc.Cancel(context.Background(), owner, o.ID)
	require.NoError(t, err)
	require.Equal(t, 10, f.stock(t, "p1"))

	require.NoError(t, lc.Delete(context.Background(), admin, o.ID))
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestLifecycle_DeliverUnderDeductOnDelivery(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnDelivery)
	f.seed(t, "p1", 10_00, 5, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 3})
	require.Equal(t, 5, f.stock(t, "p1"))

	got, err := lc.MarkDelivered(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	assert.Equal(t, 2, f.stock(t, "p1"))
}

func TestLifecycle_DeliverAbortsWhenStockRanOut(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnDelivery)
	f.seed(t, "p1", 10_00, 5, true)
	first := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 3})
	second := placeOrder(t, f, "u2", cart.ItemInput{ProductID: "p1", Quantity: 3})

	_, err := lc.MarkDelivered(context.Background(), admin, first.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, "p1"))

	_, err = lc.MarkDelivered(context.Background(), admin, second.ID)
	assert.True(t, reject.Is(err, reject.CodeInsufficientStock))
	assert.Equal(t, 2, f.stock(t, "p1"))

	// The failed delivery must not have flipped the order's status.
	got, err := lc.Get(context.Background(), admin, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

// recordingTel counts use case invocations by their use_case metric label.
type recordingTel struct {
	mu    sync.Mutex
	cases map[string]int
}

func newRecordingTel() *recordingTel { return &recordingTel{cases: make(map[string]int)} }

func (r *recordingTel) Tracer() observability.Tracer   { return observability.NopTracer() }
func (r *recordingTel) Logger() observability.Logger   { return observability.NopLogger() }
func (r *recordingTel) Metrics() observability.Metrics { return r }

func (r *recordingTel) Counter(observability.MetricKey) observability.Counter { return r }

func (r *recordingTel) Histogram(k observability.MetricKey) observability.Histogram {
	return observability.NopMetrics().Histogram(k)
}

func (r *recordingTel) Add(_ float64, labels ...observability.Label) {
	for _, l := range labels {
		if l.Key == "use_case" {
			r.mu.Lock()
			r.cases[l.Value]++
			r.mu.Unlock()
		}
	}
}

func (r *recordingTel) count(useCase string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cases[useCase]
}

func TestLifecycle_OperationsRecordUsecaseMetrics(t *testing.T) {
	tel := newRecordingTel()
	f := newFixture(t, PolicyDeductOnCheckout)
	lc := NewLifecycle(f.orders, f.catalog, f.pub, PolicyDeductOnCheckout, tel)
	f.seed(t, "p1", 10_00, 10, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 1})
	ctx := context.Background()

	_, err := lc.Get(ctx, owner, o.ID)
	require.NoError(t, err)
	_, err = lc.ListByUser(ctx, "u1")
	require.NoError(t, err)
	_, err = lc.UpdateStatus(ctx, admin, o.ID, "processing")
	require.NoError(t, err)
	_, err = lc.MarkDelivered(ctx, admin, o.ID)
	require.NoError(t, err)

	// Failed operations count too, labelled by outcome elsewhere.
	_, err = lc.Cancel(ctx, owner, o.ID)
	require.Error(t, err)
	err = lc.Delete(ctx, owner, o.ID)
	require.Error(t, err)

	for _, useCase := range []string{
		"order.get", "order.list", "order.update_status",
		"order.deliver", "order.cancel", "order.delete",
	} {
		assert.Equal(t, 1, tel.count(useCase), "use case %s", useCase)
	}
}

func TestLifecycle_CancelUnderDeductOnDelivery(t *testing.T) {
	f, lc := newLifecycleFixture(t, PolicyDeductOnDelivery)
	f.seed(t, "p1", 10_00, 5, true)
	o := placeOrder(t, f, "u1", cart.ItemInput{ProductID: "p1", Quantity: 3})

	got, err := lc.Cancel(context.Background(), owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	// Nothing was deducted, so nothing comes back.
	assert.Equal(t, 5, f.stock(t, "p1"))
}
