// Package password implements credential hashing for authcore using
// argon2id.
//
// Hashes are encoded in PHC string format, so every stored record carries
// its own algorithm tag, salt, and cost parameters. Cost tuning therefore
// never invalidates already-stored hashes: Verify recomputes with the
// record's parameters, and NeedsUpgrade tells callers when a record is
// weaker than the active configuration.
//
// Verify compares in constant time and fails closed: any malformed record
// yields (false, error) with the error wrapping [ErrMalformedRecord] so
// operators can distinguish data corruption from a plain mismatch.
//
// The [Hasher] interface is the seam for future credential back-ends; the
// engine depends on it, not on [Argon2] directly.
package password
