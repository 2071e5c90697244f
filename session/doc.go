// Package session implements the Redis-backed session registry for
// authcore.
//
// Each session row holds the identity, the SHA-256 hash of the refresh
// secret currently bound to the session, a revocation flag, and lifetime
// timestamps. Rows are stored as compact binary blobs with the fixed-size
// fields (flag, hash, timestamps) at the front, so the rotation script can
// operate on fixed offsets without walking variable-length fields.
//
// Refresh rotation is a single Lua compare-and-swap: the script compares
// the presented hash against the stored one and swaps in the next hash in
// one atomic step. Under concurrent refresh exactly one caller wins; the
// losers observe a mismatch, which the engine treats as token replay. A
// replayed or logged-out session is tombstoned rather than deleted: the
// row stays behind with its revoked flag set for a bounded period so later
// refresh attempts can be answered with "revoked" instead of "not found".
//
// A per-identity index set tracks live session IDs to support revoke-all
// and sweeping.
package session
