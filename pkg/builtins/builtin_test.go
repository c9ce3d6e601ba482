package builtins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/builtins"
	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

func newTestVM(t *testing.T) *vm.VirtualMachine {
	t.Helper()
	raw := memory.NewMemory()
	validated := memory.NewValidatedMemory(raw)
	segments := memory.NewSegmentManager(validated)
	execBase := segments.Add()
	return vm.NewVirtualMachine(vm.RunContext{Pc: execBase, Ap: execBase, Fp: execBase}, validated, segments)
}

func one(ratio uint64) *uint64 { return &ratio }

func TestCanonicalOrderIsSubsequence(t *testing.T) {
	assert.True(t, builtins.IsSubsequence([]string{"output", "pedersen", "range_check"}))
	assert.True(t, builtins.IsSubsequence([]string{"pedersen", "bitwise", "poseidon"}))
	assert.False(t, builtins.IsSubsequence([]string{"range_check", "pedersen"}))
	assert.False(t, builtins.IsSubsequence([]string{"not_a_builtin"}))
}

func TestOutputRunnerStackProtocol(t *testing.T) {
	m := newTestVM(t)
	out := builtins.NewOutputRunner(true)
	out.InitializeSegments(m.Segments)

	stack := out.InitialStack()
	require.Len(t, stack, 1)
	addr, ok := stack[0].GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, out.Base(), addr)

	require.NoError(t, m.Memory.Insert(out.Base(), memory.NewFromFelt(felt.FromUint64(7))))
	require.NoError(t, m.Memory.Insert(out.Base().AddOffset(1), memory.NewFromFelt(felt.FromUint64(8))))
	m.Segments.ComputeEffectiveSizes()

	stopPtr := out.Base().AddOffset(2)
	ptrSlot := out.Base().AddOffset(100)
	require.NoError(t, m.Memory.Insert(ptrSlot, memory.NewFromRelocatable(stopPtr)))

	next, err := out.FinalStack(m, ptrSlot.AddOffset(1))
	require.NoError(t, err)
	assert.Equal(t, ptrSlot, next)

	used, err := out.GetUsedCells(m.Segments)
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)
}

func TestOutputRunnerFinalStackRejectsWrongStopPointer(t *testing.T) {
	m := newTestVM(t)
	out := builtins.NewOutputRunner(true)
	out.InitializeSegments(m.Segments)

	require.NoError(t, m.Memory.Insert(out.Base(), memory.NewFromFelt(felt.FromUint64(1))))
	m.Segments.ComputeEffectiveSizes()

	ptrSlot := out.Base().AddOffset(50)
	wrongStop := out.Base().AddOffset(999)
	require.NoError(t, m.Memory.Insert(ptrSlot, memory.NewFromRelocatable(wrongStop)))

	_, err := out.FinalStack(m, ptrSlot.AddOffset(1))
	require.Error(t, err)
}

func TestExcludedBuiltinHasEmptyStack(t *testing.T) {
	out := builtins.NewOutputRunner(false)
	assert.Nil(t, out.InitialStack())

	ptr := memory.Relocatable{SegmentIndex: 3, Offset: 0}
	m := newTestVM(t)
	next, err := out.FinalStack(m, ptr)
	require.NoError(t, err)
	assert.Equal(t, ptr, next)
}

func TestRatioBuiltinAllocationTracksRatio(t *testing.T) {
	m := newTestVM(t)
	pedersen := builtins.NewPedersenRunner(true, one(4))
	pedersen.InitializeSegments(m.Segments)

	for i := int64(0); i < 6; i++ {
		require.NoError(t, m.Memory.Insert(pedersen.Base().AddOffset(i), memory.NewFromFelt(felt.FromUint64(uint64(i)))))
	}
	m.Segments.ComputeEffectiveSizes()

	used, allocated, err := pedersen.GetUsedCellsAndAllocatedSize(m.Segments, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(6), used)
	assert.Equal(t, int64(6), allocated) // 8/4 = 2 instances * 3 cells/instance = 6

	_, _, err = pedersen.GetUsedCellsAndAllocatedSize(m.Segments, 4)
	assert.Error(t, err) // 4/4 = 1 instance * 3 cells = 3 < 6 used
}

func TestRatioBuiltinDynamicLayoutNeverOverAllocates(t *testing.T) {
	m := newTestVM(t)
	bitwise := builtins.NewBitwiseRunner(true, nil)
	bitwise.InitializeSegments(m.Segments)

	require.NoError(t, m.Memory.Insert(bitwise.Base(), memory.NewFromFelt(felt.FromUint64(1))))
	m.Segments.ComputeEffectiveSizes()

	used, allocated, err := bitwise.GetUsedCellsAndAllocatedSize(m.Segments, 1000)
	require.NoError(t, err)
	assert.Equal(t, used, allocated)
}

func TestRangeCheckValidationRejectsOutOfBound(t *testing.T) {
	m := newTestVM(t)
	rc := builtins.NewRangeCheckRunner(true, one(8), 1) // bound = 2^16
	rc.InitializeSegments(m.Segments)
	rc.AddValidationRule(m.Memory)

	require.NoError(t, m.Memory.Insert(rc.Base(), memory.NewFromFelt(felt.FromUint64(65535))))
	err := m.Memory.Insert(rc.Base().AddOffset(1), memory.NewFromFelt(felt.FromUint64(65536)))
	require.Error(t, err)
}

func TestSegmentArenaAllocatesDistinctSegments(t *testing.T) {
	m := newTestVM(t)
	arena := builtins.NewSegmentArenaRunner(true)
	arena.InitializeSegments(m.Segments)

	seg1, err := arena.AllocDictSegment(m.Segments)
	require.NoError(t, err)
	seg2, err := arena.AllocDictSegment(m.Segments)
	require.NoError(t, err)
	assert.NotEqual(t, seg1.SegmentIndex, seg2.SegmentIndex)

	info0, err := m.Memory.Get(arena.InfoBase())
	require.NoError(t, err)
	addr, ok := info0.GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, seg1, addr)

	info1, err := m.Memory.Get(arena.InfoBase().AddOffset(3))
	require.NoError(t, err)
	addr, ok = info1.GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, seg2, addr)
}
