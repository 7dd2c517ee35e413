// Package middleware provides the HTTP authorization layer.
//
// Authenticator resolves the bearer token to an identity and injects it
// into the request context. The policy helpers enforce route access
// rules on top of that identity: minimum tier and ownership. The two
// failure modes stay distinct end to end: a request without a usable
// identity is rejected 401, a request with an identity that lacks
// privilege is rejected 403, and neither response says more than that.
package middleware
