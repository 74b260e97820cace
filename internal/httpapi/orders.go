package httpapi

import (
	"context"
	"net/http"
	"strings"

	"smartseller/backend/internal/domain"
)

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	orders, err := a.service.ListOrders(r.Context(), status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	order, err := a.service.GetOrder(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	var req domain.OrderStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleMarkDebtPaid(w http.ResponseWriter, r *http.Request) {
	a.settleOrder(w, r, a.service.MarkDebtPaid)
}

func (a *API) handleMarkCreditPaid(w http.ResponseWriter, r *http.Request) {
	a.settleOrder(w, r, a.service.MarkCreditPaid)
}

func (a *API) settleOrder(w http.ResponseWriter, r *http.Request, settle func(ctx context.Context, id int64) (domain.Order, error)) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	order, err := settle(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if err := a.service.DeleteOrder(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
