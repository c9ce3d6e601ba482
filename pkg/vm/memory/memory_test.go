package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

func TestInsertAndGet(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()

	addr := base.AddOffset(3)
	value := memory.NewFromFelt(felt.FromUint64(7))
	require.NoError(t, m.Insert(addr, value))

	got, err := m.Get(addr)
	require.NoError(t, err)
	assert.True(t, got.Equal(value))
}

func TestRewritingSameValueSucceeds(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()
	addr := base.AddOffset(0)
	value := memory.NewFromFelt(felt.FromUint64(9))

	require.NoError(t, m.Insert(addr, value))
	require.NoError(t, m.Insert(addr, value))
}

func TestRewritingDifferentValueFails(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()
	addr := base.AddOffset(0)

	require.NoError(t, m.Insert(addr, memory.NewFromFelt(felt.FromUint64(1))))
	err := m.Insert(addr, memory.NewFromFelt(felt.FromUint64(2)))
	assert.Error(t, err)
	var inconsistent *memory.ErrInconsistentMemory
	assert.ErrorAs(t, err, &inconsistent)
}

func TestGetUnknownCell(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()

	_, err := m.Get(base.AddOffset(0))
	var unknown *memory.ErrUnknownMemory
	assert.ErrorAs(t, err, &unknown)
}

func TestFreezeRejectsWrites(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()
	m.Freeze()

	err := m.Insert(base.AddOffset(0), memory.NewFromFelt(felt.Zero()))
	assert.ErrorIs(t, err, memory.ErrFrozen)
}

func TestFreezeAllowsRewritingIdenticalValue(t *testing.T) {
	m := memory.NewMemory()
	base := m.AllocateSegment()
	addr := base.AddOffset(0)
	value := memory.NewFromFelt(felt.FromUint64(5))

	require.NoError(t, m.Insert(addr, value))
	m.Freeze()

	require.NoError(t, m.Insert(addr, value))
}

func TestRelocateMemoryRejectsAlreadyFrozenMemory(t *testing.T) {
	m := memory.NewMemory()
	tempBase := m.AllocateTempSegment()
	execBase := m.AllocateSegment()
	require.NoError(t, m.AddRelocationRule(tempBase.SegmentIndex, execBase))

	m.Freeze()

	err := m.RelocateMemory()
	assert.ErrorIs(t, err, memory.ErrAlreadyFrozen)
}

func TestRelocateMemoryRewritesTempAddressesAndValues(t *testing.T) {
	m := memory.NewMemory()
	execBase := m.AllocateSegment() // segment 0
	tempBase := m.AllocateTempSegment()

	// A cell in the temp segment holding a felt.
	require.NoError(t, m.Insert(tempBase.AddOffset(0), memory.NewFromFelt(felt.FromUint64(42))))
	// A cell in the permanent segment pointing into the temp segment.
	require.NoError(t, m.Insert(execBase.AddOffset(0), memory.NewFromRelocatable(tempBase.AddOffset(1))))

	// Relocate the temp segment onto the end of the permanent segment, at
	// offset 10.
	dst := execBase.AddOffset(10)
	require.NoError(t, m.AddRelocationRule(tempBase.SegmentIndex, dst))
	require.NoError(t, m.RelocateMemory())

	relocatedCell, err := m.Get(dst)
	require.NoError(t, err)
	f, ok := relocatedCell.GetFelt()
	require.True(t, ok)
	assert.True(t, f.Equal(felt.FromUint64(42)))

	pointerCell, err := m.Get(execBase.AddOffset(0))
	require.NoError(t, err)
	relocatedAddr, ok := pointerCell.GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, dst.AddOffset(1), relocatedAddr)
}

func TestRelocateAddressFollowsRule(t *testing.T) {
	m := memory.NewMemory()
	execBase := m.AllocateSegment()
	tempBase := m.AllocateTempSegment()

	dst := execBase.AddOffset(10)
	require.NoError(t, m.AddRelocationRule(tempBase.SegmentIndex, dst))

	relocated, err := m.RelocateAddress(tempBase.AddOffset(3))
	require.NoError(t, err)
	assert.Equal(t, dst.AddOffset(3), relocated)

	permanent, err := m.RelocateAddress(execBase.AddOffset(1))
	require.NoError(t, err)
	assert.Equal(t, execBase.AddOffset(1), permanent)
}
