package builtins

import (
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// PublicMemoryPage names a contiguous run of the output segment that a
// program attributed to a given page id (via the `add_page` hint
// protocol in the original implementation; that protocol itself is a
// hint and out of scope here — pages are exposed for a future hint
// executor to populate).
type PublicMemoryPage struct {
	Start int64
	Size  int64
}

// OutputRunner implements the "output" builtin: a single segment with no
// validation or auto-deduction, whose only job is to expose its written
// range as public memory. Grounded on
// original_source/src/cairo/lang/vm/output_builtin_runner.rs.
type OutputRunner struct {
	included bool
	pages    map[int64]PublicMemoryPage

	base    memory.Relocatable
	hasBase bool
}

// NewOutputRunner builds the "output" builtin.
func NewOutputRunner(included bool) *OutputRunner {
	return &OutputRunner{included: included, pages: make(map[int64]PublicMemoryPage)}
}

func (o *OutputRunner) Name() string { return "output" }

func (o *OutputRunner) Included() bool { return o.included }

func (o *OutputRunner) InitializeSegments(sm *memory.SegmentManager) {
	o.base = sm.Add()
	o.hasBase = true
}

func (o *OutputRunner) Base() memory.Relocatable { return o.base }

func (o *OutputRunner) InitialStack() []memory.MaybeRelocatable {
	if !o.included {
		return nil
	}
	return []memory.MaybeRelocatable{memory.NewFromRelocatable(o.base)}
}

func (o *OutputRunner) AddValidationRule(*memory.ValidatedMemory) {}

func (o *OutputRunner) AddAutoDeductionRule(*vm.VirtualMachine) {}

// AddPage records that [start, start+size) belongs to page id. Mirrors
// the original builtin's add_page, invoked by the (out-of-scope) hint
// that implements the `%{ ... %}` output-page pragma.
func (o *OutputRunner) AddPage(id int64, start int64, size int64) {
	o.pages[id] = PublicMemoryPage{Start: start, Size: size}
}

func (o *OutputRunner) FinalStack(v *vm.VirtualMachine, ptr memory.Relocatable) (memory.Relocatable, error) {
	if !o.included {
		return ptr, nil
	}
	if !o.hasBase {
		return memory.Relocatable{}, ErrUninitializedBase
	}
	prev := ptr.AddOffset(-1)
	cell, err := v.Memory.Get(prev)
	if err != nil {
		return memory.Relocatable{}, err
	}
	stopPtr, ok := cell.GetRelocatable()
	if !ok {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: o.Name(), Expected: o.base, Found: memory.Relocatable{}}
	}
	used, err := o.GetUsedCells(v.Segments)
	if err != nil {
		return memory.Relocatable{}, err
	}
	expected := o.base.AddOffset(used)
	if stopPtr != expected {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: o.Name(), Expected: expected, Found: stopPtr}
	}
	return prev, nil
}

func (o *OutputRunner) GetUsedCells(sm *memory.SegmentManager) (int64, error) {
	if !o.hasBase {
		return 0, ErrUninitializedBase
	}
	size, _ := sm.GetSegmentUsedSize(o.base.SegmentIndex)
	return size, nil
}

// GetUsedCellsAndAllocatedSize has no ratio for output: it is never
// over-allocated, so allocated always equals used.
func (o *OutputRunner) GetUsedCellsAndAllocatedSize(sm *memory.SegmentManager, _ uint64) (int64, int64, error) {
	used, err := o.GetUsedCells(sm)
	return used, used, err
}

// Values reads back every cell this builtin's segment holds, in
// address order, for `--print-output`.
func (o *OutputRunner) Values(v *vm.VirtualMachine) ([]memory.MaybeRelocatable, error) {
	if !o.hasBase {
		return nil, ErrUninitializedBase
	}
	used, err := o.GetUsedCells(v.Segments)
	if err != nil {
		return nil, err
	}
	values := make([]memory.MaybeRelocatable, used)
	for i := int64(0); i < used; i++ {
		cell, err := v.Memory.Get(o.base.AddOffset(i))
		if err != nil {
			return nil, err
		}
		values[i] = cell
	}
	return values, nil
}

var _ Runner = (*OutputRunner)(nil)
