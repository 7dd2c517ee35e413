// Package api is the HTTP surface. Routes are declared in one policy
// table; every handler receives an authenticated identity from the
// middleware except the two public auth endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/avatar"
	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/middleware"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/product"
	"github.com/loomworks/loom/pkg/storage"
	"github.com/loomworks/loom/pkg/user"
)

// Deps bundles what the server needs. Cache may be nil.
type Deps struct {
	Tokens   *auth.Service
	Users    *user.Store
	Products *product.Store
	Avatars  *avatar.Coordinator
	Cache    *storage.Cache
	Metrics  *observability.Metrics
	Logger   *observability.Logger

	// LoginLimiter throttles credential endpoints; nil disables throttling
	LoginLimiter middleware.Limiter

	// CORSOrigins lists allowed origins; empty disables CORS headers
	CORSOrigins []string
}

// Server is the API server
type Server struct {
	router        *mux.Router
	handler       http.Handler
	authenticator *middleware.Authenticator

	tokens   *auth.Service
	users    *user.Store
	products *product.Store
	avatars  *avatar.Coordinator
	cache    *storage.Cache
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// route binds one endpoint to its access policy
type route struct {
	path     string
	methods  []string
	policy   middleware.Policy
	handler  http.HandlerFunc
	throttle bool
}

// NewServer creates the API server and wires all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		authenticator: middleware.NewAuthenticator(deps.Tokens, deps.Metrics),
		tokens:        deps.Tokens,
		users:         deps.Users,
		products:      deps.Products,
		avatars:       deps.Avatars,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}

	for _, rt := range s.routes() {
		handler := rt.handler
		if rt.throttle && deps.LoginLimiter != nil {
			handler = middleware.Throttle(deps.LoginLimiter, middleware.LoginThrottleConfig(), deps.Logger)(handler)
		}
		var h http.Handler = handler
		h = rt.policy.Enforce(h)
		if !rt.policy.Public {
			h = s.authenticator.Handler(h)
		}
		s.router.Handle(rt.path, h).Methods(rt.methods...)
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route")
	})

	// Outermost first: request ID, logging, recovery, CORS, metrics
	var h http.Handler = s.router
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	h = otelhttp.NewHandler(h, "loom-api")
	if len(deps.CORSOrigins) > 0 {
		h = httputil.CORSMiddleware(deps.CORSOrigins)(h)
	}
	h = httputil.RecoveryMiddleware(s.logger)(h)
	h = httputil.LoggingMiddleware(s.logger)(h)
	h = httputil.RequestIDMiddleware(h)
	s.handler = h

	return s
}

// routes is the policy table: every endpoint, its methods, and who may
// call it, in one place.
func (s *Server) routes() []route {
	return []route{
		{"/api/auth/register", []string{"POST"}, middleware.Policy{Public: true}, s.register, true},
		{"/api/auth/login", []string{"POST"}, middleware.Policy{Public: true}, s.login, true},
		{"/api/auth/logout", []string{"POST"}, middleware.PolicyAuthenticated, s.logout, false},
		{"/api/auth/me", []string{"GET"}, middleware.PolicyAuthenticated, s.me, false},

		{"/api/users", []string{"GET"}, middleware.PolicyAuthenticated, s.listUsers, false},
		{"/api/users/{id:[0-9]+}", []string{"GET"}, middleware.PolicyAuthenticated, s.getUser, false},
		{"/api/users/{id:[0-9]+}", []string{"PUT"}, middleware.PolicySelfOrAdmin, s.updateUser, false},
		{"/api/users/{id:[0-9]+}", []string{"DELETE"}, middleware.PolicyAdmin, s.deleteUser, false},
		{"/api/users/{id:[0-9]+}/tier", []string{"PUT"}, middleware.PolicyAdmin, s.setUserTier, false},
		{"/api/users/{id:[0-9]+}/avatar", []string{"POST"}, middleware.PolicySelfOrAdmin, s.uploadAvatar, false},

		{"/api/products", []string{"GET"}, middleware.PolicyAuthenticated, s.listProducts, false},
		{"/api/products", []string{"POST"}, middleware.PolicyAdmin, s.createProduct, false},
		{"/api/products/{id:[0-9]+}", []string{"GET"}, middleware.PolicyAuthenticated, s.getProduct, false},
		{"/api/products/{id:[0-9]+}", []string{"PUT"}, middleware.PolicyAdmin, s.updateProduct, false},
		{"/api/products/{id:[0-9]+}", []string{"DELETE"}, middleware.PolicyAdmin, s.deleteProduct, false},

		{"/api/dashboard/stats", []string{"GET"}, middleware.PolicyAuthenticated, s.dashboardStats, false},
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
