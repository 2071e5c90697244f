// Package token issues and verifies the signed access tokens used by
// authcore.
//
// Access tokens are self-contained: identity, role snapshot, session ID,
// issued-at, expiry, and a unique token ID travel inside the signed
// payload, so verification needs no storage lookup. Validity is proven by
// signature and expiry alone; the short lifetime is the revocation bound.
//
// Parse classifies failures into [ErrExpired], [ErrSignatureInvalid], and
// [ErrMalformed] so the engine can report distinct failure kinds without
// leaking golang-jwt internals to hosts.
package token
