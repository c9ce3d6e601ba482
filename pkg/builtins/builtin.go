// Package builtins implements the memory-segment/validation/stop-pointer
// protocol every Cairo builtin must satisfy. It deliberately does not
// implement the cryptography (Pedersen hashing, ECDSA verification,
// Keccak/Poseidon permutations) a production prover would need — that is
// an explicit non-goal shared with the VM core; only the contract a
// builtin presents to the Runner and VM is implemented here.
package builtins

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// ErrUninitializedBase is returned when a builtin method that requires a
// segment (FinalStack, GetUsedCells, ...) is called before
// InitializeSegments.
var ErrUninitializedBase = errors.New("builtin segment not yet initialized")

// ErrInvalidStopPointer is raised by FinalStack when a builtin's declared
// stop pointer does not match base + used_cells.
type ErrInvalidStopPointer struct {
	BuiltinName string
	Expected    memory.Relocatable
	Found       memory.Relocatable
}

func (e *ErrInvalidStopPointer) Error() string {
	return fmt.Sprintf(
		"invalid stop pointer for %s builtin: expected %s, found %s",
		e.BuiltinName, e.Expected, e.Found,
	)
}

// ErrInsufficientAllocation is raised when a builtin's used-cell count
// exceeds what its ratio would have allocated for the run's step count.
type ErrInsufficientAllocation struct {
	BuiltinName string
	Used        int64
	Allocated   int64
}

func (e *ErrInsufficientAllocation) Error() string {
	return fmt.Sprintf(
		"%s builtin used %d cells but only %d were allocated for this run length",
		e.BuiltinName, e.Used, e.Allocated,
	)
}

// Runner is the contract every builtin runner satisfies, per spec.md
// §4.5's BuiltinRunner contract.
type Runner interface {
	// Name is the builtin's canonical program-declared name, e.g. "pedersen".
	Name() string

	// Included reports whether the layout actually instantiated this
	// builtin (as opposed to it being allowed-but-missing).
	Included() bool

	// InitializeSegments allocates this builtin's segment(s) and records
	// their base address(es).
	InitializeSegments(sm *memory.SegmentManager)

	// Base returns this builtin's segment base address; valid only after
	// InitializeSegments.
	Base() memory.Relocatable

	// InitialStack returns [base] if the builtin is included, else nil.
	InitialStack() []memory.MaybeRelocatable

	// AddValidationRule attaches this builtin's per-cell validation (if
	// any) to the given validated memory.
	AddValidationRule(vmem *memory.ValidatedMemory)

	// AddAutoDeductionRule attaches this builtin's auto-deduction rule (if
	// any) to the owning VM.
	AddAutoDeductionRule(v *vm.VirtualMachine)

	// FinalStack reads this builtin's stop pointer from memory[ptr-1],
	// validates it, and returns ptr-1.
	FinalStack(v *vm.VirtualMachine, ptr memory.Relocatable) (memory.Relocatable, error)

	// GetUsedCells returns the segment's used size (one past the highest
	// written offset, as computed by ComputeEffectiveSizes).
	GetUsedCells(sm *memory.SegmentManager) (int64, error)

	// GetUsedCellsAndAllocatedSize returns (used, allocated) where
	// allocated is derived from the builtin's ratio and the run's current
	// step count; it errors if used exceeds allocated.
	GetUsedCellsAndAllocatedSize(sm *memory.SegmentManager, currentStep uint64) (int64, int64, error)
}

// CanonicalOrder is the fixed declaration order spec.md §4.5 requires
// Program.builtins to be a subsequence of.
var CanonicalOrder = []string{
	"output",
	"pedersen",
	"range_check",
	"ecdsa",
	"bitwise",
	"ec_op",
	"keccak",
	"poseidon",
	"segment_arena",
}

// IsSubsequence reports whether names appears, in order, within
// CanonicalOrder (spec.md's BuiltinsNotSubsequence check).
func IsSubsequence(names []string) bool {
	i := 0
	for _, want := range CanonicalOrder {
		if i == len(names) {
			return true
		}
		if names[i] == want {
			i++
		}
	}
	return i == len(names)
}
