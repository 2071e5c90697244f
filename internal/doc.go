// Package internal holds shared primitives used by the authcore root
// package: session ID and refresh-secret generation, and the opaque
// refresh-token wire codec.
//
// # What this package must NOT do
//
//   - Perform any I/O (all randomness comes from crypto/rand).
//   - Import the authcore root package or any sibling package.
package internal
