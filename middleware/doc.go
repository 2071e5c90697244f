// Package middleware provides net/http middleware over an authcore
// Engine: bearer-token authentication and per-action authorization.
//
// Authenticate validates the Authorization header on every request and
// injects the [authcore.AuthResult] into the request context; handlers
// read it back with [FromContext]. RequireAction layers an authorization
// check on top. Both reject with JSON error bodies and never leak why a
// token was rejected beyond the status code.
package middleware
