// Package rate implements the failed-attempt lockout guard: fixed-window
// counters in Redis keyed per identifier and per origin.
//
// The guard is consulted before any password hashing so an attacker cannot
// use repeated failures to burn CPU on argon2 work. Counters use a fixed
// window (TTL set on the first increment); crossing the threshold restarts
// the key TTL at the configured cooldown, which is also what Check reports
// as the retry-after duration.
//
// # What this package must NOT do
//
//   - Know about identities or sessions beyond opaque key strings.
//   - Import the authcore root package.
package rate
