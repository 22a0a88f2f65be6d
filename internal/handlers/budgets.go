package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/internal/services"
)

// BudgetHandler exposes entities, annual budgets and budget lines.
type BudgetHandler struct {
	store *services.BudgetStore
	log   *slog.Logger
}

func NewBudgetHandler(store *services.BudgetStore, log *slog.Logger) *BudgetHandler {
	return &BudgetHandler{store: store, log: log}
}

// Register mounts the budget routes on mux.
func (h *BudgetHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entities", h.ListEntities)
	mux.HandleFunc("POST /api/entities", h.CreateEntity)
	mux.HandleFunc("PATCH /api/entities/{id}", h.UpdateEntity)
	mux.HandleFunc("DELETE /api/entities/{id}", h.DeleteEntity)

	mux.HandleFunc("GET /api/budgets", h.ListBudgets)
	mux.HandleFunc("POST /api/budgets", h.CreateBudget)
	mux.HandleFunc("GET /api/budgets/{id}", h.GetBudget)
	mux.HandleFunc("PATCH /api/budgets/{id}", h.UpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", h.DeleteBudget)
	mux.HandleFunc("POST /api/budgets/{id}/vote", h.Vote)
	mux.HandleFunc("POST /api/budgets/{id}/status", h.SetStatus)
	mux.HandleFunc("POST /api/budgets/{id}/recalculate", h.Recalculate)
	mux.HandleFunc("GET /api/budgets/{id}/lines", h.ListLines)
	mux.HandleFunc("POST /api/budgets/{id}/lines", h.CreateLine)

	mux.HandleFunc("GET /api/lines/{id}", h.GetLine)
	mux.HandleFunc("PATCH /api/lines/{id}", h.UpdateLine)
	mux.HandleFunc("DELETE /api/lines/{id}", h.DeleteLine)
}

func (h *BudgetHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.store.ListEntities(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entities)
}

func (h *BudgetHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var in services.EntityInput
	if !decode(w, r, &in) {
		return
	}
	entity, err := h.store.CreateEntity(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entity)
}

func (h *BudgetHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.EntityUpdate
	if !decode(w, r, &in) {
		return
	}
	entity, err := h.store.UpdateEntity(r.Context(), id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entity)
}

func (h *BudgetHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteEntity(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BudgetHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	entityID, err := httpx.QueryUint(r, "entity_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	exercise, err := httpx.QueryInt(r, "exercise", 0)
	if err != nil {
		badRequest(w, err)
		return
	}
	budgets, err := h.store.ListBudgets(r.Context(), services.BudgetFilter{
		EntityID: entityID,
		Exercise: exercise,
		Nature:   models.Nature(r.URL.Query().Get("nature")),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budgets)
}

func (h *BudgetHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var in services.BudgetInput
	if !decode(w, r, &in) {
		return
	}
	budget, err := h.store.CreateBudget(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, budget)
}

func (h *BudgetHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	budget, err := h.store.GetBudget(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budget)
}

func (h *BudgetHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.BudgetUpdate
	if !decode(w, r, &in) {
		return
	}
	budget, err := h.store.UpdateBudget(r.Context(), id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budget)
}

func (h *BudgetHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteBudget(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BudgetHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.VoteInput
	if !decode(w, r, &in) {
		return
	}
	budget, err := h.store.VoteBudget(r.Context(), id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budget)
}

type statusRequest struct {
	Status models.BudgetStatus `json:"status"`
}

func (h *BudgetHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in statusRequest
	if !decode(w, r, &in) {
		return
	}
	budget, err := h.store.SetBudgetStatus(r.Context(), id, in.Status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budget)
}

func (h *BudgetHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	budget, err := h.store.RecalcBudgetFromLines(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, budget)
}

func (h *BudgetHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lines, err := h.store.ListLines(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *BudgetHandler) CreateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.LineInput
	if !decode(w, r, &in) {
		return
	}
	line, err := h.store.CreateLine(r.Context(), id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *BudgetHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	line, err := h.store.GetLine(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *BudgetHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.LineUpdate
	if !decode(w, r, &in) {
		return
	}
	line, err := h.store.UpdateLine(r.Context(), id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *BudgetHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteLine(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
