// Package policy implements authcore's authorization engine: a static
// action registry compiled into per-role bitmasks.
//
// Actions register once at startup and map to bit positions in a
// [Mask64], so a policy domain holds at most 64 actions. Role definitions
// compile into a read-only snapshot of role name to mask; Authorize is a
// map lookup plus a bitwise AND, with no locks on the hot path.
//
// Grants are union-of-allow. There are no deny rules: adding a role to an
// identity can only widen what it may do, which keeps authorization
// decisions monotonic and cheap to reason about.
//
// Reload swaps in a freshly compiled snapshot atomically. In-flight
// Authorize calls finish against the snapshot they started with.
package policy
