// Package errors provides the classified error primitives used across edgebundle.
//
// Every failure the build pipeline can produce maps onto one ErrorCategory:
//   - config: malformed or unsupported intermediate build configuration
//   - function: a function that cannot run on the edge runtime (recoverable)
//   - chunk_integrity: hash collisions or dangling chunk references
//   - asset_collision: two static assets resolving to one routing path
//   - assembly: failures while emitting the worker bundle
//   - filesystem: read/write failures, surfaced without retry
//
// Example usage:
//
//	err := errors.ConfigError("unsupported schema version").
//		WithContext("version", v).
//		Build()
package errors
