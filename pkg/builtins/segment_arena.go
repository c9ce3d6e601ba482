package builtins

import (
	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// segmentArenaCellsPerInstance: each segment_arena instance is a 3-word
// record {info_ptr, n_segments, n_finalized}, where info_ptr points into a
// separate info segment holding one 3-word {segment_start, segment_end,
// squashed} record per Cairo dict segment ever allocated. Not present in
// original_source (it predates the Starknet dict-manager builtin); sized
// per the public Starknet builtin convention referenced in the spec's
// glossary entry for segment_arena as a dict-segment bookkeeping
// co-processor.
const segmentArenaCellsPerInstance = 3

// SegmentArenaRunner implements the "segment_arena" builtin: it hands out
// a fresh temp segment each time a Cairo program opens a new dict and
// records {start, end, squashed} for each one in an auxiliary info
// segment. The actual dict-squashing logic that fills in `squashed` is a
// hint concern and out of scope here; this runner only owns segment
// bookkeeping and stack protocol.
type SegmentArenaRunner struct {
	included bool

	base        memory.Relocatable
	hasBase     bool
	infoBase    memory.Relocatable
	hasInfoBase bool

	nSegments int64
}

// NewSegmentArenaRunner builds the "segment_arena" builtin.
func NewSegmentArenaRunner(included bool) *SegmentArenaRunner {
	return &SegmentArenaRunner{included: included}
}

func (s *SegmentArenaRunner) Name() string { return "segment_arena" }

func (s *SegmentArenaRunner) Included() bool { return s.included }

func (s *SegmentArenaRunner) InitializeSegments(sm *memory.SegmentManager) {
	s.base = sm.Add()
	s.hasBase = true
	s.infoBase = sm.Add()
	s.hasInfoBase = true
}

func (s *SegmentArenaRunner) Base() memory.Relocatable { return s.base }

// InfoBase returns the base of the auxiliary {start,end,squashed} info
// segment. A dict-manager hint executor writes to it through AllocDictSegment.
func (s *SegmentArenaRunner) InfoBase() memory.Relocatable { return s.infoBase }

func (s *SegmentArenaRunner) InitialStack() []memory.MaybeRelocatable {
	if !s.included {
		return nil
	}
	return []memory.MaybeRelocatable{memory.NewFromRelocatable(s.base)}
}

// AllocDictSegment hands out a fresh temp segment for a new Cairo dict and
// appends its {start,end=start,squashed=0} record to the info segment.
func (s *SegmentArenaRunner) AllocDictSegment(sm *memory.SegmentManager) (memory.Relocatable, error) {
	seg := sm.AddTempSegment()
	infoAddr := s.infoBase.AddOffset(s.nSegments * segmentArenaCellsPerInstance)
	if _, err := sm.LoadData(infoAddr, []memory.MaybeRelocatable{
		memory.NewFromRelocatable(seg),
		memory.NewFromRelocatable(seg),
		memory.NewFromFelt(felt.Zero()),
	}); err != nil {
		return memory.Relocatable{}, err
	}
	s.nSegments++
	return seg, nil
}

// AddValidationRule is a no-op: dict-segment bookkeeping has no per-cell
// invariant a validation rule could check independent of the squashing
// hint logic.
func (s *SegmentArenaRunner) AddValidationRule(*memory.ValidatedMemory) {}

// AddAutoDeductionRule is a no-op: every cell of this builtin's segments is
// written explicitly by AllocDictSegment or by the (out-of-scope) squashing
// hint, never deduced from a read.
func (s *SegmentArenaRunner) AddAutoDeductionRule(*vm.VirtualMachine) {}

func (s *SegmentArenaRunner) FinalStack(v *vm.VirtualMachine, ptr memory.Relocatable) (memory.Relocatable, error) {
	if !s.included {
		return ptr, nil
	}
	if !s.hasBase {
		return memory.Relocatable{}, ErrUninitializedBase
	}
	prev := ptr.AddOffset(-1)
	cell, err := v.Memory.Get(prev)
	if err != nil {
		return memory.Relocatable{}, err
	}
	stopPtr, ok := cell.GetRelocatable()
	if !ok {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: s.Name(), Expected: s.base, Found: memory.Relocatable{}}
	}
	used, err := s.GetUsedCells(v.Segments)
	if err != nil {
		return memory.Relocatable{}, err
	}
	expected := s.base.AddOffset(used)
	if stopPtr != expected {
		return memory.Relocatable{}, &ErrInvalidStopPointer{BuiltinName: s.Name(), Expected: expected, Found: stopPtr}
	}
	return prev, nil
}

func (s *SegmentArenaRunner) GetUsedCells(sm *memory.SegmentManager) (int64, error) {
	if !s.hasBase {
		return 0, ErrUninitializedBase
	}
	size, _ := sm.GetSegmentUsedSize(s.base.SegmentIndex)
	return size, nil
}

// GetUsedCellsAndAllocatedSize: segment_arena is never laid out with a
// ratio, it always allocates exactly what was used.
func (s *SegmentArenaRunner) GetUsedCellsAndAllocatedSize(sm *memory.SegmentManager, _ uint64) (int64, int64, error) {
	used, err := s.GetUsedCells(sm)
	return used, used, err
}

var _ Runner = (*SegmentArenaRunner)(nil)
