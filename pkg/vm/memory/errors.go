package memory

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrFrozen is returned by Insert once the memory has been frozen.
var ErrFrozen = errors.New("memory is frozen: write-once memory cannot be modified")

// ErrAlreadyFrozen is returned by RelocateMemory when called after Freeze:
// relocation must run before the memory is frozen, not after.
var ErrAlreadyFrozen = errors.New("relocate_memory called on already-frozen memory")

// ErrUnknownMemory is returned by Get when the address was never written.
type ErrUnknownMemory struct {
	Addr Relocatable
}

func (e *ErrUnknownMemory) Error() string {
	return fmt.Sprintf("unknown memory cell at %s", e.Addr)
}

// ErrInconsistentMemory is returned by Insert when a write-once cell would
// be overwritten with a different value.
type ErrInconsistentMemory struct {
	Addr     Relocatable
	Current  MaybeRelocatable
	Proposed MaybeRelocatable
}

func (e *ErrInconsistentMemory) Error() string {
	return fmt.Sprintf(
		"inconsistent memory assignment at %s: %s != %s",
		e.Addr, e.Current, e.Proposed,
	)
}

// ErrUnallocatedSegment is returned when an operation references a segment
// that has not been allocated yet.
type ErrUnallocatedSegment struct {
	SegmentIndex int64
}

func (e *ErrUnallocatedSegment) Error() string {
	return fmt.Sprintf("unallocated segment at index %d", e.SegmentIndex)
}

// ErrRelocationCycle is returned by RelocateMemory when the relocation
// rules contain a cycle.
type ErrRelocationCycle struct {
	SegmentIndex int64
}

func (e *ErrRelocationCycle) Error() string {
	return fmt.Sprintf("cyclic relocation rule detected for segment %d", e.SegmentIndex)
}

// ErrInsufficientAllocatedCells describes a shortfall of unused
// memory/range-check/diluted-check units. Nothing in this module returns
// it; the runner's CheckMemoryUsage reports a shortfall with a formatted
// error instead.
type ErrInsufficientAllocatedCells struct {
	Available uint64
	Needed    uint64
}

func (e *ErrInsufficientAllocatedCells) Error() string {
	return fmt.Sprintf(
		"insufficient allocated cells: available %d, needed %d",
		e.Available, e.Needed,
	)
}
