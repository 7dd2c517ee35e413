package middleware

import (
	"net/http"

	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/httputil"
)

// Policy declares who may reach an endpoint. The zero value admits any
// authenticated identity. Authentication itself is the Authenticator's
// job; a policy only decides privilege, so its failures are 403.
type Policy struct {
	// Public endpoints skip authentication entirely
	Public bool

	// MinTier is the lowest tier admitted; empty admits all tiers
	MinTier auth.Tier

	// SelfOrAdmin admits the account owner named by the {id} path
	// variable, or any admin
	SelfOrAdmin bool
}

// PolicyAuthenticated admits any authenticated identity
var PolicyAuthenticated = Policy{}

// PolicyAdmin admits admins only
var PolicyAdmin = Policy{MinTier: auth.TierAdmin}

// PolicySelfOrAdmin admits the account owner or an admin
var PolicySelfOrAdmin = Policy{SelfOrAdmin: true}

// Enforce wraps a handler with the policy check. It assumes the
// Authenticator already ran for non-public routes; a request that
// somehow arrives without an identity is rejected 401, everything the
// identity is not entitled to is rejected 403.
func (p Policy) Enforce(next http.Handler) http.Handler {
	if p.Public {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromRequest(r)
		if !ok {
			httputil.WriteUnauthorized(w)
			return
		}

		if p.MinTier != "" && !identity.Tier.AtLeast(p.MinTier) {
			httputil.WriteForbidden(w)
			return
		}

		if p.SelfOrAdmin && !identity.IsAdmin() {
			targetID, err := httputil.ParsePathInt64(r, "id")
			if err != nil || targetID != identity.UserID {
				httputil.WriteForbidden(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// RequireTier returns middleware admitting identities at or above min
func RequireTier(min auth.Tier) func(http.Handler) http.Handler {
	return Policy{MinTier: min}.Enforce
}

// RequireAdmin returns middleware admitting admins only
func RequireAdmin() func(http.Handler) http.Handler {
	return PolicyAdmin.Enforce
}

// RequireSelfOrAdmin returns middleware admitting the account owner
// named by the {id} path variable, or any admin
func RequireSelfOrAdmin() func(http.Handler) http.Handler {
	return PolicySelfOrAdmin.Enforce
}
