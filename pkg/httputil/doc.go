// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
//
// Handlers return errors from the apperr taxonomy; WriteAppError maps them
// to status codes so authentication (401) and authorization (403) failures
// stay distinguishable while both remain non-enumerable.
package httputil
