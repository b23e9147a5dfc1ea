package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcart "github.com/orderware/wholesale/internal/application/cart"
	appcatalog "github.com/orderware/wholesale/internal/application/catalog"
	apporder "github.com/orderware/wholesale/internal/application/order"
	"github.com/orderware/wholesale/internal/application/reporting"
	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/infrastructure/id"
	"github.com/orderware/wholesale/internal/infrastructure/memory"
)

const testSecret = "test-secret"

type testServer struct {
	catalog *memory.CatalogRepository
	orders  *memory.OrderRepository
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	catalogRepo := memory.NewCatalogRepository()
	orderRepo := memory.NewOrderRepository()
	ids := id.NewUUIDGenerator()

	cartSvc := appcart.NewService(catalogRepo, nil)
	engine := apporder.NewEngine(orderRepo, catalogRepo, ids, nil, apporder.PolicyDeductOnCheckout, nil)
	lifecycle := apporder.NewLifecycle(orderRepo, catalogRepo, nil, apporder.PolicyDeductOnCheckout, nil)
	catalogSvc := appcatalog.NewService(catalogRepo, catalogRepo, ids, nil)
	reports := reporting.NewService(catalogRepo, nil)

	h := NewHandler(cartSvc, engine, lifecycle, catalogSvc, reports, nil, nil, testSecret)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testServer{catalog: catalogRepo, orders: orderRepo, srv: srv}
}

func (ts *testServer) seed(t *testing.T, id string, price int64, stock int) {
	t.Helper()
	p, err := domcatalog.New(id, "product-"+id, domcatalog.CategoryHousehold, price, stock)
	require.NoError(t, err)
	require.NoError(t, ts.catalog.Save(context.Background(), p))
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestOrdersRequireAuthentication(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/orders/checkout", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestForgedTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "intruder"},
	})
	forged, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	resp := ts.do(t, http.MethodGet, "/orders/", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidateCartEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 10)
	token := signToken(t, "u1", "user")

	resp := ts.do(t, http.MethodPost, "/orders/validate-cart", token, map[string]any{
		"items": []map[string]any{{"productId": "p1", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Summary struct {
			Subtotal int64 `json:"subtotal"`
			Tax      int64 `json:"tax"`
			Shipping int64 `json:"shipping"`
			Total    int64 `json:"total"`
		} `json:"summary"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, int64(60_00), body.Summary.Subtotal)
	assert.Equal(t, int64(9_00), body.Summary.Tax)
	assert.Equal(t, int64(10_00), body.Summary.Shipping)
	assert.Equal(t, int64(79_00), body.Summary.Total)
}

func TestValidateCartRejectionPayload(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 1)
	token := signToken(t, "u1", "user")

	resp := ts.do(t, http.MethodPost, "/orders/validate-cart", token, map[string]any{
		"items": []map[string]any{{"productId": "p1", "quantity": 5}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, reject.CodeInsufficientStock, body.Code)
	assert.NotEmpty(t, body.Error)
	assert.EqualValues(t, 1, body.Details["available"])
	assert.EqualValues(t, 5, body.Details["requested"])
}

func TestCheckoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 10)
	token := signToken(t, "u1", "user")

	resp := ts.do(t, http.MethodPost, "/orders/checkout", token, map[string]any{
		"items":           []map[string]any{{"productId": "p1", "quantity": 2}},
		"shippingAddress": map[string]string{"street": "1 Quay", "city": "Hull", "state": "YK", "zipCode": "HU1", "country": "UK"},
		"paymentMethod":   "card",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Message     string `json:"message"`
		OrderNumber string `json:"orderNumber"`
		Order       struct {
			ID            string `json:"id"`
			UserID        string `json:"userId"`
			Status        string `json:"status"`
			TotalAmount   int64  `json:"totalAmount"`
			PaymentMethod string `json:"paymentMethod"`
		} `json:"order"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "order placed", body.Message)
	assert.Regexp(t, `^ORD-[0-9A-F]{6}$`, body.OrderNumber)
	assert.Equal(t, "u1", body.Order.UserID)
	assert.Equal(t, "pending", body.Order.Status)
	assert.Equal(t, int64(60_00), body.Order.TotalAmount)
	assert.Equal(t, "card", body.Order.PaymentMethod)

	p, err := ts.catalog.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)
}

func TestCheckoutAcceptsStructuredPaymentMethod(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 10)
	token := signToken(t, "u1", "user")

	resp := ts.do(t, http.MethodPost, "/orders/checkout", token, map[string]any{
		"items":           []map[string]any{{"productId": "p1", "quantity": 1}},
		"shippingAddress": map[string]string{"street": "1 Quay", "city": "Hull", "state": "YK", "zipCode": "HU1", "country": "UK"},
		"paymentMethod":   map[string]string{"method": "bank_transfer"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Order struct {
			PaymentMethod string `json:"paymentMethod"`
		} `json:"order"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "bank_transfer", body.Order.PaymentMethod)
}

func TestGetOrderOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 10)
	ownerToken := signToken(t, "u1", "user")
	otherToken := signToken(t, "u2", "user")

	resp := ts.do(t, http.MethodPost, "/orders/checkout", ownerToken, map[string]any{
		"items":           []map[string]any{{"productId": "p1", "quantity": 1}},
		"shippingAddress": map[string]string{"street": "1 Quay", "city": "Hull", "state": "YK", "zipCode": "HU1", "country": "UK"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var placed struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	decodeBody(t, resp, &placed)

	resp = ts.do(t, http.MethodGet, "/orders/"+placed.Order.ID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/orders/"+placed.Order.ID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/orders/nope", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeliverRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "p1", 30_00, 10)
	userToken := signToken(t, "u1", "user")
	adminToken := signToken(t, "boss", "admin")

	resp := ts.do(t, http.MethodPost, "/orders/checkout", userToken, map[string]any{
		"items":           []map[string]any{{"productId": "p1", "quantity": 1}},
		"shippingAddress": map[string]string{"street": "1 Quay", "city": "Hull", "state": "YK", "zipCode": "HU1", "country": "UK"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var placed struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	decodeBody(t, resp, &placed)

	resp = ts.do(t, http.MethodPatch, "/orders/"+placed.Order.ID+"/deliver", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/orders/"+placed.Order.ID+"/deliver", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second delivery hits the terminal-state guard.
	resp = ts.do(t, http.MethodPatch, "/orders/"+placed.Order.ID+"/deliver", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, reject.CodeAlreadyDelivered, body.Code)
}

func TestProductEndpoints(t *testing.T) {
	ts := newTestServer(t)
	userToken := signToken(t, "u1", "user")
	adminToken := signToken(t, "boss", "admin")

	// Listing is public.
	resp := ts.do(t, http.MethodGet, "/products/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Creation is admin only.
	create := map[string]any{"name": "Crate of apples", "category": "food", "price": 12_50, "stock": 40}
	resp = ts.do(t, http.MethodPost, "/products/", userToken, create)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/products/", adminToken, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"ID"`
	}
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = ts.do(t, http.MethodGet, "/products/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/products/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/products/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
