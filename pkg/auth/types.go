package auth

// Tier is the coarse role classification controlling access to privileged
// operations.
type Tier string

const (
	// TierStandard is the default tier assigned at registration.
	TierStandard Tier = "standard"
	// TierAdmin grants access to privileged operations such as tier
	// changes and product management.
	TierAdmin Tier = "admin"
)

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	return t == TierStandard || t == TierAdmin
}

// AtLeast reports whether the tier satisfies the given minimum. Admin
// satisfies every requirement; standard satisfies only standard.
func (t Tier) AtLeast(min Tier) bool {
	if t == TierAdmin {
		return true
	}
	return t == min
}

// Identity is the resolved result of a successful token validation,
// attached to the request context by the authorization middleware.
type Identity struct {
	UserID int64 `json:"user_id"`
	Tier   Tier  `json:"tier"`
}

// IsAdmin reports whether the identity holds the admin tier.
func (id Identity) IsAdmin() bool {
	return id.Tier == TierAdmin
}
