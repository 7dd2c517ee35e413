package api

import (
	"net/http"
	"time"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/middleware"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/user"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// register handles POST /api/auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := user.ValidateEmail(req.Email); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		httputil.WriteValidationError(w, "password is too short")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	// Everyone registers standard; only an admin can raise a tier
	created, err := s.users.Create(r.Context(), req.Email, hash, auth.TierStandard)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dashboardCacheKey)
	observability.FromContext(r.Context()).WithField("user_id", created.ID).Info("user registered")
	httputil.WriteCreated(w, created)
}

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	logger := observability.FromContext(r.Context())

	u, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			// Burn a hash comparison so unknown and known addresses
			// take the same time
			auth.CheckPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", req.Password)
			httputil.WriteAppError(w, apperr.Authentication())
			return
		}
		httputil.WriteAppError(w, err)
		return
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		logger.WithField("user_id", u.ID).Debug("login rejected: bad password")
		httputil.WriteAppError(w, apperr.Authentication())
		return
	}

	token, sess, err := s.tokens.Issue(r.Context(), u.ID)
	if err != nil {
		httputil.WriteAppError(w, apperr.Dependency("could not create session", err))
		return
	}

	if s.metrics != nil {
		s.metrics.SessionsIssuedTotal.Inc()
	}
	logger.WithField("user_id", u.ID).Info("user logged in")
	httputil.WriteSuccess(w, loginResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      u,
	})
}

// logout handles POST /api/auth/logout. Revokes exactly the presented
// token; other sessions of the same user stay valid.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	if err := s.tokens.Revoke(r.Context(), token); err != nil {
		httputil.WriteAppError(w, apperr.Dependency("could not revoke session", err))
		return
	}

	if s.metrics != nil {
		s.metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	}
	httputil.WriteNoContent(w)
}

// me handles GET /api/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w)
		return
	}

	u, err := s.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}
