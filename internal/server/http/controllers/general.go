package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robindai518/libiec61850/internal/runtime"
)

// GeneralController handles endpoints that are not tied to one log.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes.
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/storage", c.handleStorage)
	r.Get("/v1/catalog", c.handleCatalog)
}

// handleHealth returns 200 OK with {"status": "ok"} if healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStorage returns cumulative storage counters.
func (c *GeneralController) handleStorage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.rt.StorageStats())
}

// handleCatalog lists every log ever bound in the data directory.
func (c *GeneralController) handleCatalog(w http.ResponseWriter, r *http.Request) {
	known, err := c.rt.KnownLogs()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, catalogResp{Logs: known})
}
