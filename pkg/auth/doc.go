// Package auth implements the token service: issuing, validating, and
// revoking the opaque bearer tokens that prove an authenticated session.
//
// Tokens are random, not signed. The client holds the only copy of the
// token; the session store persists its SHA-256 hash alongside expiry and
// revocation state, so logout is observable on the very next validation.
// Password hashing (bcrypt) also lives here so no other package ever
// touches raw credentials.
package auth
