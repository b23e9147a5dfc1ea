package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	appcart "github.com/orderware/wholesale/internal/application/cart"
	appcatalog "github.com/orderware/wholesale/internal/application/catalog"
	apporder "github.com/orderware/wholesale/internal/application/order"
	"github.com/orderware/wholesale/internal/application/reporting"
	domcatalog "github.com/orderware/wholesale/internal/domain/catalog"
	domorder "github.com/orderware/wholesale/internal/domain/order"
	"github.com/orderware/wholesale/internal/domain/reject"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/pkg/cache"
)

const orderCacheTTL = 30 * time.Second

type Handler struct {
	cartSvc    *appcart.Service
	engine     *apporder.Engine
	lifecycle  *apporder.Lifecycle
	catalogSvc *appcatalog.Service
	reports    *reporting.Service
	cache      cache.Cache
	tel        observability.Observability
	jwtSecret  string
}

func NewHandler(
	cartSvc *appcart.Service,
	engine *apporder.Engine,
	lifecycle *apporder.Lifecycle,
	catalogSvc *appcatalog.Service,
	reports *reporting.Service,
	orderCache cache.Cache,
	tel observability.Observability,
	jwtSecret string,
) *Handler {
	if orderCache == nil {
		orderCache = cache.Noop()
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		cartSvc:    cartSvc,
		engine:     engine,
		lifecycle:  lifecycle,
		catalogSvc: catalogSvc,
		reports:    reports,
		cache:      orderCache,
		tel:        tel,
		jwtSecret:  jwtSecret,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(Observe(h.tel))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.handleListProducts)
		r.Get("/{id}", h.handleGetProduct)
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(h.jwtSecret))
			r.Post("/", h.handleCreateProduct)
			r.Put("/{id}", h.handleUpdateProduct)
			r.Delete("/{id}", h.handleDeleteProduct)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(Authenticate(h.jwtSecret))
		r.Post("/validate-cart", h.handleValidateCart)
		r.Post("/checkout", h.handleCheckout)
		r.Get("/", h.handleListOrders)
		r.Get("/{id}", h.handleGetOrder)
		r.Patch("/{id}/deliver", h.handleDeliver)
		r.Patch("/{id}/status", h.handleUpdateStatus)
		r.Patch("/{id}/cancel", h.handleCancel)
		r.Delete("/{id}", h.handleDeleteOrder)
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.jwtSecret))
		r.Get("/reports/summary", h.handleReportSummary)
	})

	return r
}

type validateCartRequest struct {
	Items []appcart.ItemInput `json:"items"`
}

func (h *Handler) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	var req validateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST", nil)
		return
	}

	validated, err := h.cartSvc.Validate(r.Context(), req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validated)
}

// paymentMethod accepts either a plain string or a structured object whose
// method field names the label, matching what clients historically sent.
type paymentMethod string

func (p *paymentMethod) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = paymentMethod(s)
		return nil
	}
	var obj struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*p = paymentMethod(obj.Method)
		return nil
	}
	// Unrecognized shapes fall back to the default label.
	*p = ""
	return nil
}

type checkoutRequest struct {
	Items           []appcart.ItemInput `json:"items"`
	ShippingAddress *domorder.Address   `json:"shippingAddress"`
	PaymentMethod   paymentMethod       `json:"paymentMethod"`
}

type checkoutResponse struct {
	Message     string          `json:"message"`
	Order       *domorder.Order `json:"order"`
	OrderNumber string          `json:"orderNumber"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity", "UNAUTHORIZED", nil)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST", nil)
		return
	}

	receipt, err := h.engine.Checkout(r.Context(), apporder.CheckoutInput{
		UserID:          actor.ID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   string(req.PaymentMethod),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Message:     "order placed",
		Order:       receipt.Order,
		OrderNumber: receipt.OrderNumber,
	})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orders, err := h.lifecycle.ListByUser(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	key := h.cache.GenerateKey("order", orderID)
	if cached, err := h.cache.Get(r.Context(), key); err == nil && cached != "" {
		var o domorder.Order
		if json.Unmarshal([]byte(cached), &o) == nil && (actor.IsAdmin() || o.UserID == actor.ID) {
			writeJSON(w, http.StatusOK, &o)
			return
		}
	}

	o, err := h.lifecycle.Get(r.Context(), actor, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if body, err := json.Marshal(o); err == nil {
		_ = h.cache.Set(r.Context(), key, string(body), orderCacheTTL)
	}
	writeJSON(w, http.StatusOK, o)
}

type orderResponse struct {
	Message string          `json:"message"`
	Order   *domorder.Order `json:"order"`
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	o, err := h.lifecycle.MarkDelivered(r.Context(), actor, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r.Context(), orderID)
	writeJSON(w, http.StatusOK, orderResponse{Message: "order delivered", Order: o})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST", nil)
		return
	}

	o, err := h.lifecycle.UpdateStatus(r.Context(), actor, orderID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r.Context(), orderID)
	writeJSON(w, http.StatusOK, orderResponse{Message: "order status updated", Order: o})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	o, err := h.lifecycle.Cancel(r.Context(), actor, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r.Context(), orderID)
	writeJSON(w, http.StatusOK, orderResponse{Message: "order cancelled", Order: o})
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	if err := h.lifecycle.Delete(r.Context(), actor, orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r.Context(), orderID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogSvc.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalogSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domcatalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found", reject.CodeProductNotFound, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req appcatalog.CreateProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST", nil)
		return
	}
	p, err := h.catalogSvc.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req appcatalog.UpdateProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST", nil)
		return
	}
	p, err := h.catalogSvc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if errors.Is(err, domcatalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found", reject.CodeProductNotFound, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	err := h.catalogSvc.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domcatalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found", reject.CodeProductNotFound, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *Handler) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.reports.Snapshot())
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFrom(r.Context())
	if !ok || !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required", reject.CodeAccessDenied, nil)
		return false
	}
	return true
}

func (h *Handler) invalidateOrder(ctx context.Context, orderID string) {
	_ = h.cache.Del(ctx, h.cache.GenerateKey("order", orderID))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, code string, details map[string]any) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, Details: details})
}

// writeDomainError maps rejections and infrastructure failures onto the
// uniform error payload. Transient failures are distinguishable from
// rejections so the caller knows a retry of the identical request is safe.
func writeDomainError(w http.ResponseWriter, err error) {
	if r, ok := reject.As(err); ok {
		status := http.StatusBadRequest
		switch r.Code {
		case reject.CodeAccessDenied:
			status = http.StatusForbidden
		case reject.CodeOrderNotFound:
			status = http.StatusNotFound
		}
		writeError(w, status, r.Message, r.Code, r.Details)
		return
	}
	if errors.Is(err, domcatalog.ErrTxTimeout) {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "TX_TIMEOUT", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL", nil)
}
