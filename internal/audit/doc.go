// Package audit provides the asynchronous audit event pipeline for
// authcore: an event model, pluggable sinks, and a buffered dispatcher.
//
// Events are emitted off the request path through a worker goroutine.
// When the buffer fills, events are either dropped (with a counter) or the
// emitter blocks, depending on configuration. Replay detections are emitted
// as their own event type so hosts can alert on them separately from
// ordinary authentication failures.
//
// # What this package must NOT do
//
//   - Record plaintext credentials or token material in events.
//   - Import the authcore root package.
package audit
