package builtins

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// CellsPerRangeCheck is the number of memory cells one range-check
// instance occupies. Grounded on
// original_source/src/cairo/lang/builtins/range_check/instance_def.rs's
// CELLS_PER_RANGE_CHECK constant.
const CellsPerRangeCheck = 1

// ErrOutOfRange is returned by the range-check validation rule when a
// written value exceeds the builtin's configured bound.
var ErrOutOfRange = errors.New("value exceeds range-check bound")

// RangeCheckRunner implements the "range_check" builtin: every cell
// written to its segment must be a field element in [0, 2^(16*n_parts)).
// NParts mirrors RangeCheckInstanceDef.n_parts — e.g. n_parts=8 bounds
// values to [0, 2^128).
type RangeCheckRunner struct {
	included bool
	ratio    *uint64
	nParts   uint32

	base    memory.Relocatable
	hasBase bool
	bound   *big.Int
}

// NewRangeCheckRunner builds the "range_check" builtin.
func NewRangeCheckRunner(included bool, ratio *uint64, nParts uint32) *RangeCheckRunner {
	bound := new(big.Int).Lsh(big.NewInt(1), uint(16*nParts))
	return &RangeCheckRunner{included: included, ratio: ratio, nParts: nParts, bound: bound}
}

func (r *RangeCheckRunner) Name() string { return "range_check" }

func (r *RangeCheckRunner) Included() bool { return r.included }

func (r *RangeCheckRunner) InitializeSegments(sm *memory.SegmentManager) {
	r.base = sm.Add()
	r.hasBase = true
}

func (r *RangeCheckRunner) Base() memory.Relocatable { return r.base }

func (r *RangeCheckRunner) InitialStack() []memory.MaybeRelocatable {
	if !r.included {
		return nil
	}
	return []memory.MaybeRelocatable{memory.NewFromRelocatable(r.base)}
}

func (r *RangeCheckRunner) AddValidationRule(vmem *memory.ValidatedMemory) {
	if !r.included {
		return
	}
	bound := r.bound
	vmem.AddValidationRule(r.base.SegmentIndex, func(_ *memory.ValidatedMemory, addr memory.Relocatable, value memory.MaybeRelocatable) error {
		f, ok := value.GetFelt()
		if !ok {
			return errors.Wrapf(memory.ErrPureValue, "range_check cell at %s must be a field element", addr)
		}
		if f.BigInt().Cmp(bound) >= 0 {
			return errors.Wrapf(ErrOutOfRange, "range_check cell at %s holds %s, bound is %s", addr, f, bound)
		}
		return nil
	})
}

// AddAutoDeductionRule is a no-op: range-check cells are always supplied
// by the program, never deduced.
func (r *RangeCheckRunner) AddAutoDeductionRule(*vm.VirtualMachine) {}

func (r *RangeCheckRunner) FinalStack(v *vm.VirtualMachine, ptr memory.Relocatable) (memory.Relocatable, error) {
	if !r.included {
		return ptr, nil
	}
	if !r.hasBase {
		return memory.Relocatable{}, ErrUninitializedBase
	}
	prev := ptr.AddOffset(-1)
	cell, err := v.Memory.Get(prev)
	if err != nil {
		return memory.Relocatable{}, err
	}
	stopPtr, ok := cell.GetRelocatable()
	if !ok {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: r.Name(), Expected: r.base, Found: memory.Relocatable{}}
	}
	used, err := r.GetUsedCells(v.Segments)
	if err != nil {
		return memory.Relocatable{}, err
	}
	expected := r.base.AddOffset(used)
	if stopPtr != expected {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: r.Name(), Expected: expected, Found: stopPtr}
	}
	return prev, nil
}

func (r *RangeCheckRunner) GetUsedCells(sm *memory.SegmentManager) (int64, error) {
	if !r.hasBase {
		return 0, ErrUninitializedBase
	}
	size, _ := sm.GetSegmentUsedSize(r.base.SegmentIndex)
	return size, nil
}

func (r *RangeCheckRunner) GetUsedCellsAndAllocatedSize(sm *memory.SegmentManager, currentStep uint64) (int64, int64, error) {
	used, err := r.GetUsedCells(sm)
	if err != nil {
		return 0, 0, err
	}
	if r.ratio == nil {
		return used, used, nil
	}
	instances := currentStep / *r.ratio
	allocated := int64(instances) * CellsPerRangeCheck
	if used > allocated {
		return used, allocated, &ErrInsufficientAllocation{BuiltinName: r.Name(), Used: used, Allocated: allocated}
	}
	return used, allocated, nil
}

var _ Runner = (*RangeCheckRunner)(nil)
