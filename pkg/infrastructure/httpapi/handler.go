package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/order"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
)

const (
	statsCacheKey = "outbox:stats"
	statsCacheTTL = 30 * time.Second
)

type createOrderRequest struct {
	CustomerName string  `json:"customerName"`
	Amount       float64 `json:"amount"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customerName"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

type statsResponse struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

type requeueResponse struct {
	Requeued int64 `json:"requeued"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Amount:       o.Amount,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
}

// NewHandler routes the order API and the outbox operator endpoints.
func NewHandler(service *order.Service, store outbox.Store, c cache.Cache, logger logging.Logger) http.Handler {
	api := &apiHandler{
		service: service,
		store:   store,
		cache:   c,
		logger:  logger.WithField("component", "http_api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", api.createOrder)
	mux.HandleFunc("GET /orders", api.listOrders)
	mux.HandleFunc("GET /orders/{id}", api.getOrder)
	mux.HandleFunc("PUT /orders/{id}/status", api.updateOrderStatus)
	mux.HandleFunc("DELETE /orders/{id}", api.deleteOrder)
	mux.HandleFunc("GET /outbox/stats", api.outboxStats)
	mux.HandleFunc("POST /outbox/requeue-failed", api.requeueFailed)
	return mux
}

type apiHandler struct {
	service *order.Service
	store   outbox.Store
	cache   cache.Cache
	logger  logging.Logger
}

func (h *apiHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var request createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if request.CustomerName == "" {
		h.writeError(w, http.StatusBadRequest, "customerName is required")
		return
	}
	if request.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	id, err := h.service.Create(r.Context(), request.CustomerName, request.Amount)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createOrderResponse{ID: id})
}

func (h *apiHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, order.ErrOrderNotFound) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *apiHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerName := r.URL.Query().Get("customer")
	if customerName == "" {
		h.writeError(w, http.StatusBadRequest, "customer query parameter is required")
		return
	}

	listed, err := h.service.ListByCustomer(r.Context(), customerName)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lo.Map(listed, func(o *order.Order, _ int) orderResponse {
		return toOrderResponse(o)
	}))
}

func (h *apiHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var request updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := order.ParseStatus(request.Status)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if errors.Is(err, order.ErrOrderNotFound) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, order.ErrOrderNotFound) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// outboxStats serves counters through a short-lived cache entry, so
// dashboards polling aggressively do not hammer the table scan.
func (h *apiHandler) outboxStats(w http.ResponseWriter, r *http.Request) {
	value, err := h.cache.GetOrCreate(r.Context(), statsCacheKey, statsCacheTTL, func(ctx context.Context) (interface{}, error) {
		return h.store.Stats(ctx)
	})
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	stats, ok := value.(outbox.Stats)
	if !ok {
		stats, err = h.store.Stats(r.Context())
		if err != nil {
			h.writeInternalError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, statsResponse{Pending: stats.Pending, Failed: stats.Failed})
}

func (h *apiHandler) requeueFailed(w http.ResponseWriter, r *http.Request) {
	requeued, err := h.store.RequeueFailed(r.Context())
	if err != nil {
		h.writeInternalError(w, err)
		return
	}
	if requeued > 0 {
		h.logger.WithField("requeued", requeued).Info("failed outbox records requeued")
	}
	h.writeJSON(w, http.StatusOK, requeueResponse{Requeued: requeued})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error(errors.WithStack(err), "failed to write response")
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Message: message})
}

func (h *apiHandler) writeInternalError(w http.ResponseWriter, err error) {
	h.logger.Error(err, "request failed")
	h.writeError(w, http.StatusInternalServerError, "internal error")
}
