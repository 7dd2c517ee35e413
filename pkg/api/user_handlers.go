package api

import (
	"net/http"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/user"
)

// maxMultipartMemory bounds in-memory parsing of avatar uploads
const maxMultipartMemory = 8 << 20

// listUsers handles GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := httputil.ParseQueryInt(r, "limit", 100)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)

	users, err := s.users.List(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	httputil.WriteSuccess(w, users)
}

// getUser handles GET /api/users/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	u, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

type updateUserRequest struct {
	Email string `json:"email"`
}

// updateUser handles PUT /api/users/{id}. Tier changes go through the
// dedicated tier endpoint, never this one.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := user.ValidateEmail(req.Email); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	u, err := s.users.UpdateEmail(r.Context(), id, req.Email)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// deleteUser handles DELETE /api/users/{id}. Sessions die with the
// account via the foreign key cascade, and the watermark path covers
// the Redis backend.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.tokens.RevokeAll(r.Context(), id); err != nil {
		httputil.WriteAppError(w, apperr.Dependency("could not revoke sessions", err))
		return
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dashboardCacheKey)
	observability.FromContext(r.Context()).WithField("user_id", id).Info("user deleted")
	httputil.WriteNoContent(w)
}

type setTierRequest struct {
	Tier auth.Tier `json:"tier"`
}

// setUserTier handles PUT /api/users/{id}/tier. The tier change revokes
// every session of the target user, so the old privilege level cannot
// outlive the change on any outstanding token.
func (s *Server) setUserTier(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req setTierRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Tier.Valid() {
		httputil.WriteValidationError(w, "unknown tier")
		return
	}

	u, err := s.users.UpdateTier(r.Context(), id, req.Tier)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := s.tokens.RevokeAll(r.Context(), id); err != nil {
		// The tier is updated but stale sessions survive; surface the
		// failure so the caller retries rather than assuming success
		httputil.WriteAppError(w, apperr.Dependency("tier updated but session revocation failed", err))
		return
	}

	if s.metrics != nil {
		s.metrics.SessionsRevokedTotal.WithLabelValues("tier_change").Inc()
	}
	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"user_id": id,
		"tier":    req.Tier,
	}).Info("user tier changed")
	httputil.WriteSuccess(w, u)
}

// uploadAvatar handles POST /api/users/{id}/avatar (multipart, field
// "avatar")
func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httputil.WriteValidationError(w, "expected multipart form upload")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		httputil.WriteValidationError(w, "missing avatar file field")
		return
	}
	defer file.Close()

	u, err := s.avatars.Upload(r.Context(), id, file, header.Header.Get("Content-Type"))
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}
