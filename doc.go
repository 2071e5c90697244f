// Package authcore provides the credential-verification and session/token
// management core for an application backend: argon2id password hashing,
// JWT access tokens, rotating opaque refresh tokens, a Redis-backed session
// registry, role-based authorization, and a failed-attempt lockout guard.
//
// The package is designed for concurrent request handlers: Engine methods are
// safe to call from multiple goroutines once the Engine has been built via
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (AuthResult, UserRecord). Orchestration lives here; token
// signing, password hashing, session persistence, and policy evaluation live
// in the token/, password/, session/, and policy/ sub-packages. Rate
// limiting, audit dispatch, and metric storage live under internal/ and are
// never exported directly.
//
// The HTTP layer, the user database, and input validation are external
// collaborators. The host supplies a [CredentialStore]; authcore never
// stores plaintext credentials and never writes user records except through
// the optional [CredentialWriter] seam.
//
// # Staleness bound
//
// Access tokens carry a role snapshot taken at issuance. Role changes take
// effect at the next refresh, and never later than Token.AccessTTL after the
// change. This is a deliberate trade for storage-free access validation;
// hosts that need immediate revocation must shorten AccessTTL.
//
// # Performance contract
//
// ValidateAccess is the hot path: pure signature+expiry verification with no
// Redis round-trip. Login and Refresh are allowed a small constant number of
// Redis commands; argon2 hashing is CPU-bound and is never performed while
// holding a lock, and never before the lockout guard has been consulted.
package authcore
