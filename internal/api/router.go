// Package api wires the HTTP surface: streaming, resolution queries,
// repair control and index diagnostics.
package api

import (
	"log/slog"
	"net/http"

	"github.com/neuralpositive/trackgate/internal/api/middleware"
	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/index"
	"github.com/neuralpositive/trackgate/internal/repair"
	"github.com/neuralpositive/trackgate/internal/resolver"
	"github.com/neuralpositive/trackgate/internal/storage"
	"github.com/neuralpositive/trackgate/internal/stream"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Catalog       *catalog.Store
	Proxy         *stream.Proxy
	RepairService *repair.Service
	Resolver      *resolver.Resolver
	Index         *index.Cache
	URLs          storage.URLProvider
	Logger        *slog.Logger
	BasePath      string
	Bucket        string
	PublicBucket  bool
	SignedTTL     int
	StreamFloor   float64
	CORSOrigins   []string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	catalog       *catalog.Store
	proxy         *stream.Proxy
	repairService *repair.Service
	resolver      *resolver.Resolver
	index         *index.Cache
	urls          storage.URLProvider
	logger        *slog.Logger
	basePath      string
	bucket        string
	publicBucket  bool
	signedTTL     int
	streamFloor   float64
	corsOrigins   []string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		catalog:       deps.Catalog,
		proxy:         deps.Proxy,
		repairService: deps.RepairService,
		resolver:      deps.Resolver,
		index:         deps.Index,
		urls:          deps.URLs,
		logger:        deps.Logger,
		basePath:      deps.BasePath,
		bucket:        deps.Bucket,
		publicBucket:  deps.PublicBucket,
		signedTTL:     deps.SignedTTL,
		streamFloor:   deps.StreamFloor,
		corsOrigins:   deps.CORSOrigins,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	mux.HandleFunc("GET "+bp+"/stream/{id}", r.handleStream)
	mux.HandleFunc("HEAD "+bp+"/stream/{id}", r.handleStream)

	mux.HandleFunc("POST "+bp+"/api/v1/resolve", r.handleResolve)

	mux.HandleFunc("GET "+bp+"/api/v1/tracks/{id}", r.handleGetTrack)
	mux.HandleFunc("POST "+bp+"/api/v1/tracks", r.handleCreateTrack)

	mux.HandleFunc("POST "+bp+"/api/v1/repair/run", r.handleRepairRun)
	mux.HandleFunc("GET "+bp+"/api/v1/repair/status", r.handleRepairStatus)

	mux.HandleFunc("POST "+bp+"/api/v1/index/rebuild", r.handleIndexRebuild)
	mux.HandleFunc("GET "+bp+"/api/v1/index/stats", r.handleIndexStats)

	limiter := middleware.NewAPIRateLimiter()
	handler := limiter.Middleware(mux)
	handler = middleware.CORS(r.corsOrigins)(handler)
	return middleware.Logging(r.logger)(handler)
}
