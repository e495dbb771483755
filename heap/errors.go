package heap

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned when the arena cannot satisfy an allocation.
// It is never retried internally, except for the single automatic
// collect-then-retry step performed by the tracing strategy.
var ErrOutOfMemory = errors.New("heap: out of memory")

// ErrCollectUnsupported is returned by Collect under strategies that have
// no collection pass of their own (the counting variants).
var ErrCollectUnsupported = errors.New("heap: strategy has no collector")

// LayoutError reports a malformed type layout: a GC base field that is not
// at offset 0, a flexible array member that is not the last field, boxing a
// reference-shaped type, and similar declaration mistakes.
type LayoutError struct {
	Type   string
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("heap: invalid layout for %s: %s", e.Type, e.Reason)
}

// TypeMismatchError reports an allocation with incompatible type arguments,
// e.g. a dynamic-type override whose declared referent does not fit the
// storage shape, or a direct allocation of a synthesized Box type.
type TypeMismatchError struct {
	Storage string
	Dynamic string
	Reason  string
}

func (e *TypeMismatchError) Error() string {
	if e.Dynamic == "" {
		return fmt.Sprintf("heap: cannot allocate %s: %s", e.Storage, e.Reason)
	}
	return fmt.Sprintf("heap: cannot allocate %s as %s: %s", e.Storage, e.Dynamic, e.Reason)
}

// StrategyMismatchError reports a handle that belongs to a different heap
// instance than the one it was passed to. Mixing objects from two
// differently-configured heaps is a programming error, not undefined
// behavior.
type StrategyMismatchError struct {
	Want string // ID of the heap the operation was invoked on
	Got  string // ID of the heap the handle belongs to
}

func (e *StrategyMismatchError) Error() string {
	return fmt.Sprintf("heap: handle belongs to heap %s, not %s", e.Got, e.Want)
}

// UseAfterFreeError reports an operation on a handle whose target has been
// reclaimed. Detection relies on the poisoned header the arena leaves behind
// until the cell is reused, so it is best-effort and intended for debugging.
type UseAfterFreeError struct {
	Addr Addr
}

func (e *UseAfterFreeError) Error() string {
	return fmt.Sprintf("heap: use after free at address %d", e.Addr)
}
