package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/internal/services"
)

// OrderHandler exposes the purchase order workflow.
type OrderHandler struct {
	orders *services.Workflow
	log    *slog.Logger
}

func NewOrderHandler(orders *services.Workflow, log *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// Register mounts the purchase order routes on mux.
func (h *OrderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/purchase-orders", h.List)
	mux.HandleFunc("POST /api/purchase-orders", h.Create)
	mux.HandleFunc("GET /api/purchase-orders/{id}", h.Get)
	mux.HandleFunc("DELETE /api/purchase-orders/{id}", h.Delete)
	mux.HandleFunc("POST /api/purchase-orders/{id}/submit", h.Submit)
	mux.HandleFunc("POST /api/purchase-orders/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/purchase-orders/{id}/validate", h.Validate)
	mux.HandleFunc("POST /api/purchase-orders/{id}/commit", h.Commit)
	mux.HandleFunc("POST /api/purchase-orders/{id}/reverse", h.Reverse)
	mux.HandleFunc("POST /api/purchase-orders/{id}/settle", h.Settle)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	f := services.POFilter{Status: models.POStatus(r.URL.Query().Get("status"))}
	for name, dst := range map[string]*uint{
		"budget_line_id": &f.BudgetLineID,
		"contract_id":    &f.ContractID,
		"project_id":     &f.ProjectID,
		"supplier_id":    &f.SupplierID,
	} {
		v, err := httpx.QueryUint(r, name)
		if err != nil {
			badRequest(w, err)
			return
		}
		*dst = v
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.PurchaseOrderInput
	if !decode(w, r, &in) {
		return
	}
	po, err := h.orders.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.orders.Submit(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type validateRequest struct {
	ValidatorID string `json:"validator_id"`
}

func (h *OrderHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in validateRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := h.orders.Validate(r.Context(), id, in.ValidatorID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var opts services.CommitOptions
	if !decode(w, r, &opts) {
		return
	}
	res, err := h.orders.Commit(r.Context(), id, opts)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var opts services.ReverseOptions
	if !decode(w, r, &opts) {
		return
	}
	res, err := h.orders.ReverseCommitment(r.Context(), id, opts)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var opts services.SettleOptions
	if !decode(w, r, &opts) {
		return
	}
	res, err := h.orders.Settle(r.Context(), id, opts)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
