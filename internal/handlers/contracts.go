package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/internal/services"
	"github.com/shopspring/decimal"
)

// ContractHandler exposes contracts, ceiling checks and renewals.
type ContractHandler struct {
	contracts *services.ContractTracker
	log       *slog.Logger
}

func NewContractHandler(contracts *services.ContractTracker, log *slog.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, log: log}
}

// Register mounts the contract routes on mux.
func (h *ContractHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/contracts", h.List)
	mux.HandleFunc("POST /api/contracts", h.Create)
	mux.HandleFunc("GET /api/contracts/{id}", h.Get)
	mux.HandleFunc("DELETE /api/contracts/{id}", h.Delete)
	mux.HandleFunc("POST /api/contracts/{id}/ceiling-check", h.CheckCeiling)
	mux.HandleFunc("POST /api/contracts/{id}/renew", h.Renew)
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	entityID, err := httpx.QueryUint(r, "entity_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	supplierID, err := httpx.QueryUint(r, "supplier_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	contracts, err := h.contracts.ListContracts(r.Context(), services.ContractFilter{
		EntityID:   entityID,
		SupplierID: supplierID,
		Status:     models.ContractStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contracts)
}

func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ContractInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.contracts.CreateContract(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.contracts.DeleteContract(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ceilingRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ExcludePOID uint            `json:"exclude_po_id,omitempty"`
}

// CheckCeiling answers 200 with the verdict; a refused amount is not an HTTP error.
func (h *ContractHandler) CheckCeiling(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in ceilingRequest
	if !decode(w, r, &in) {
		return
	}
	chk, err := h.contracts.CheckCeiling(r.Context(), id, in.Amount, in.ExcludePOID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, chk)
}

func (h *ContractHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.contracts.Renew(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
