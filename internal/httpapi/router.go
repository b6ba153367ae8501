package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router on the standard library ServeMux (method and wildcard patterns)
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (metrics and similar)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDiscoveryRoutes search and popular localities
func (r *Router) RegisterDiscoveryRoutes(h *DiscoveryHandler) {
	r.Handle("GET /api/v1/listings/search", h.Search)
	r.Handle("GET /api/v1/localities/popular", h.PopularLocalities)
}

// RegisterListingRoutes listing CRUD and photo slots
func (r *Router) RegisterListingRoutes(h *ListingHandler) {
	r.Handle("POST /api/v1/listings", h.Create)
	r.Handle("GET /api/v1/listings", h.ListMine)
	r.Handle("GET /api/v1/listings/{id}", h.Get)
	r.Handle("PATCH /api/v1/listings/{id}", h.Update)
	r.Handle("DELETE /api/v1/listings/{id}", h.Delete)
	r.Handle("GET /api/v1/listings/{id}/availability", h.CheckAvailable)
	r.Handle("PUT /api/v1/listings/{id}/photos/{position}", h.SetPhoto)
	r.Handle("DELETE /api/v1/listings/{id}/photos/{position}", h.ClearPhoto)
}

// RegisterHealthRoutes liveness probe
func (r *Router) RegisterHealthRoutes() {
	r.Handle("GET /health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
