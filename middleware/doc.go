// Package middleware provides composable middleware for strategy execution.
//
// A [Middleware] is a function that wraps a strategy invocation. Middleware
// are composed into a chain using [Chain] and applied by the supervisor
// around every job execution. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → strategy
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs job kind, id, duration, and outcome at each execution
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the execution context after a fixed duration
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-kind duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
