package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/services"
)

// ReferenceHandler exposes suppliers, applications, projects and next-year preparation.
type ReferenceHandler struct {
	ref      *services.ReferenceService
	forecast *services.ForecastGenerator
	log      *slog.Logger
}

func NewReferenceHandler(ref *services.ReferenceService, forecast *services.ForecastGenerator, log *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{ref: ref, forecast: forecast, log: log}
}

// Register mounts the reference data and forecast routes on mux.
func (h *ReferenceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/suppliers", h.ListSuppliers)
	mux.HandleFunc("POST /api/suppliers", h.CreateSupplier)
	mux.HandleFunc("DELETE /api/suppliers/{id}", h.DeleteSupplier)
	mux.HandleFunc("POST /api/applications", h.CreateApplication)
	mux.HandleFunc("DELETE /api/applications/{id}", h.DeleteApplication)
	mux.HandleFunc("GET /api/projects", h.ListProjects)
	mux.HandleFunc("POST /api/projects", h.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", h.GetProject)

	mux.HandleFunc("POST /api/forecast/next-year", h.PrepareNextYear)
	mux.HandleFunc("POST /api/forecast/next-year/preview", h.PreviewNextYear)
}

func (h *ReferenceHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.ref.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *ReferenceHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var in services.SupplierInput
	if !decode(w, r, &in) {
		return
	}
	s, err := h.ref.CreateSupplier(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *ReferenceHandler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.ref.DeleteSupplier(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReferenceHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var in services.ApplicationInput
	if !decode(w, r, &in) {
		return
	}
	app, err := h.ref.CreateApplication(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, app)
}

func (h *ReferenceHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.ref.DeleteApplication(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReferenceHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.ref.ListProjects(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projects)
}

func (h *ReferenceHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in services.ProjectInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.ref.CreateProject(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *ReferenceHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.ref.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *ReferenceHandler) PrepareNextYear(w http.ResponseWriter, r *http.Request) {
	var in services.PrepareInput
	if !decode(w, r, &in) {
		return
	}
	n, err := h.forecast.PrepareNextYear(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"lines_created": n})
}

func (h *ReferenceHandler) PreviewNextYear(w http.ResponseWriter, r *http.Request) {
	var in services.PrepareInput
	if !decode(w, r, &in) {
		return
	}
	proposals, err := h.forecast.PreviewNextYear(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposals)
}
