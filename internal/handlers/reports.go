package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/services"
)

// ReportHandler serves the read side: integrity checks, the audit trail,
// alerts and the budget synthesis.
type ReportHandler struct {
	guard  *services.Guard
	audit  *services.AuditLog
	alerts *services.AlertService
	log    *slog.Logger
}

func NewReportHandler(guard *services.Guard, audit *services.AuditLog, alerts *services.AlertService, log *slog.Logger) *ReportHandler {
	return &ReportHandler{guard: guard, audit: audit, alerts: alerts, log: log}
}

// Register mounts the report routes on mux.
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/integrity/{kind}/{id}", h.CanDelete)
	mux.HandleFunc("GET /api/audit", h.Audit)
	mux.HandleFunc("GET /api/alerts/contracts", h.ContractAlerts)
	mux.HandleFunc("GET /api/alerts/lines", h.LineAlerts)
	mux.HandleFunc("GET /api/synthesis", h.Synthesis)
}

func (h *ReportHandler) CanDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dec, err := h.guard.CanDelete(r.Context(), services.Target(r.PathValue("kind")), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dec)
}

func (h *ReportHandler) Audit(w http.ResponseWriter, r *http.Request) {
	objectID, err := httpx.QueryUint(r, "object_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		badRequest(w, err)
		return
	}
	q := r.URL.Query()
	entries, err := h.audit.List(r.Context(), services.AuditFilter{
		ObjectType:  q.Get("object_type"),
		ObjectID:    objectID,
		OperationID: q.Get("operation_id"),
		Limit:       limit,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *ReportHandler) ContractAlerts(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "days", services.DefaultAlertWindow)
	if err != nil {
		badRequest(w, err)
		return
	}
	alerts, err := h.alerts.ContractAlerts(r.Context(), days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *ReportHandler) LineAlerts(w http.ResponseWriter, r *http.Request) {
	budgetID, err := httpx.QueryUint(r, "budget_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	alerts, err := h.alerts.LineAlerts(r.Context(), budgetID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *ReportHandler) Synthesis(w http.ResponseWriter, r *http.Request) {
	exercise, err := httpx.QueryInt(r, "exercise", 0)
	if err != nil {
		badRequest(w, err)
		return
	}
	entityID, err := httpx.QueryUint(r, "entity_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	summary, err := h.alerts.Synthesis(r.Context(), exercise, entityID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
