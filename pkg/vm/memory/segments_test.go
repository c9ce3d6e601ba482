package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

func TestLoadDataAndEffectiveSizes(t *testing.T) {
	vm := memory.NewValidatedMemory(memory.NewMemory())
	sm := memory.NewSegmentManager(vm)

	base := sm.Add()
	end, err := sm.LoadFelts(base, []felt.Felt{felt.FromUint64(1), felt.FromUint64(2), felt.FromUint64(3)})
	require.NoError(t, err)
	assert.Equal(t, base.AddOffset(3), end)

	sm.ComputeEffectiveSizes()
	size, ok := sm.GetSegmentUsedSize(base.SegmentIndex)
	require.True(t, ok)
	assert.Equal(t, int64(3), size)
}

func TestGetMemoryHolesCountsUnaccessedCells(t *testing.T) {
	vm := memory.NewValidatedMemory(memory.NewMemory())
	sm := memory.NewSegmentManager(vm)

	base := sm.Add()
	_, err := sm.LoadFelts(base, []felt.Felt{felt.FromUint64(1), felt.FromUint64(2), felt.FromUint64(3)})
	require.NoError(t, err)
	sm.ComputeEffectiveSizes()

	accessed := map[memory.Relocatable]bool{
		base.AddOffset(0): true,
		base.AddOffset(2): true,
	}
	holes := sm.GetMemoryHoles(accessed, nil)
	assert.Equal(t, int64(1), holes)
}

func TestFinalizeExtendsUsedSize(t *testing.T) {
	vm := memory.NewValidatedMemory(memory.NewMemory())
	sm := memory.NewSegmentManager(vm)

	base := sm.Add()
	_, err := sm.LoadFelts(base, []felt.Felt{felt.FromUint64(1)})
	require.NoError(t, err)
	sm.ComputeEffectiveSizes()

	sm.Finalize(base.SegmentIndex, 10)
	size, ok := sm.GetSegmentUsedSize(base.SegmentIndex)
	require.True(t, ok)
	assert.Equal(t, int64(10), size)
}
