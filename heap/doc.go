// Package heap implements a pluggable object memory model for a
// managed-object runtime.
//
// This package contains:
//   - NaN-boxed slot value representation
//   - Uniform object layout (GcHeader + type pointer prefix)
//   - Type descriptors with a per-type visitor capability
//   - Idempotent boxing of value types
//   - Generic typed allocation, including dynamic-type overrides
//   - Interchangeable collection strategies: refcount, external-root
//     (CPython-style) and tracing mark/sweep
package heap
