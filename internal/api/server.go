// Package api is the HTTP facade: request validation, tenant resolution,
// and translation of internal errors into the shared apierrors envelope.
// Grounded on internal/api/server.go's router-plus-CORS-middleware shape
// and internal/middleware/tenant.go's API-key-or-header resolution,
// generalized from a handful of ad hoc JSON endpoints to the full surface
// spec.md §6 names.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/events"
	"github.com/shadowatlas/discovery-core/internal/middleware"
	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/internal/orchestrator"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/internal/risk"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

var validate = validator.New()

// OAuthStateStore issues and consumes the opaque state parameter threaded
// through the OAuth handshake, preventing CSRF on the callback.
type OAuthStateStore interface {
	Issue(organizationID string, platform connector.Platform) (state string)
	Consume(state string) (organizationID string, platform connector.Platform, ok bool)
}

// Server wires the Repository Layer, Connector Framework, Job
// Orchestrator, Crypto Vault, and Event Bus behind the HTTP surface.
type Server struct {
	repo        repository.Repository
	connectors  *connector.Registry
	discovery   *orchestrator.Queue
	vault       *vault.Vault
	hub         *events.Hub
	bus         events.Bus
	orgManager  *multitenancy.OrganizationManager
	rateLimiter *middleware.RateLimiter
	states      OAuthStateStore
	oauthConfig map[connector.Platform]*oauth2.Config
	riskWeights risk.Weights
	logger      *log.Logger
}

// Deps bundles Server's constructor dependencies.
type Deps struct {
	Repo        repository.Repository
	Connectors  *connector.Registry
	Discovery   *orchestrator.Queue
	Vault       *vault.Vault
	Hub         *events.Hub
	Bus         events.Bus
	OrgManager  *multitenancy.OrganizationManager
	RateLimiter *middleware.RateLimiter
	States      OAuthStateStore
	OAuthConfig map[connector.Platform]*oauth2.Config
	RiskWeights risk.Weights
	Logger      *log.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[API] ", log.LstdFlags)
	}
	return &Server{
		repo:        d.Repo,
		connectors:  d.Connectors,
		discovery:   d.Discovery,
		vault:       d.Vault,
		hub:         d.Hub,
		bus:         d.Bus,
		orgManager:  d.OrgManager,
		rateLimiter: d.RateLimiter,
		states:      d.States,
		oauthConfig: d.OAuthConfig,
		riskWeights: d.RiskWeights,
		logger:      logger,
	}
}

// Router builds the full route table behind the CORS, rate-limiting, and
// organization-resolution middleware chain.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	r.HandleFunc("/connections", s.withOrg(s.handleCreateConnection)).Methods(http.MethodPost)
	r.HandleFunc("/connections/{id}/callback", s.handleOAuthCallback).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id}", s.withOrg(s.handleDisconnect)).Methods(http.MethodDelete)
	r.HandleFunc("/connections/{id}/discover", s.withOrg(s.handleEnqueueDiscovery)).Methods(http.MethodPost)

	r.HandleFunc("/automations", s.withOrg(s.handleListAutomations)).Methods(http.MethodGet)
	r.HandleFunc("/automations/{id}", s.withOrg(s.handleGetAutomation)).Methods(http.MethodGet)

	r.HandleFunc("/feedback", s.withOrg(s.handleCreateFeedback)).Methods(http.MethodPost)
	r.HandleFunc("/feedback/ml-training-batch", s.withOrg(s.handleMLTrainingBatch)).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.withOrg(s.handleWebsocket)).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// withOrg wraps a handler with organization resolution. /connections/{id}/callback
// is deliberately left outside this chain: the caller has no API key yet at
// that point in the OAuth flow, and authenticates instead by possession of
// the opaque state parameter minted in handleCreateConnection.
func (s *Server) withOrg(next http.HandlerFunc) http.HandlerFunc {
	return middleware.OrganizationMiddleware(s.orgManager, next)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Organization-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve starts the HTTP server with a bounded read/write/idle timeout,
// shutting down gracefully when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string, readTimeout, writeTimeout, idleTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	}
}
