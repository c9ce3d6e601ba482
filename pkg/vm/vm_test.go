package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

func newTestVM(t *testing.T) (*vm.VirtualMachine, memory.Relocatable) {
	t.Helper()
	raw := memory.NewMemory()
	validated := memory.NewValidatedMemory(raw)
	segments := memory.NewSegmentManager(validated)
	execBase := segments.Add()
	return vm.NewVirtualMachine(vm.RunContext{
		Pc: execBase,
		Ap: execBase.AddOffset(10),
		Fp: execBase.AddOffset(10),
	}, validated, segments), execBase
}

// assertEqAddImmediate builds a single ASSERT_EQ instruction of the shape
// `[ap] = [fp - 1] + 5` i.e. dst = ap+0, op0 = fp-1, op1 = imm(5), res = ADD.
func assertEqAddImmediate(dstOff, op0Off int16) vm.Instruction {
	return vm.Instruction{
		Off0: dstOff, Off1: op0Off, Off2: 1,
		DstRegister: vm.RegisterAP, Op0Register: vm.RegisterFP,
		Op1Src: vm.Op1SrcImm, Res: vm.ResAdd,
		PcUpdate: vm.PcUpdateRegular, ApUpdate: vm.ApUpdateRegular,
		FpUpdate: vm.FpUpdateRegular, Opcode: vm.OpcodeAssertEq,
	}
}

func TestStepAssertEqAddWithImmediate(t *testing.T) {
	m, base := newTestVM(t)

	instr := assertEqAddImmediate(0, -1)
	encoded := vm.EncodeInstruction(instr)

	// Program: pc holds the encoded instruction, pc+1 holds the immediate.
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc, memory.NewFromFelt(felt.FromUint64(encoded))))
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc.AddOffset(1), memory.NewFromFelt(felt.FromUint64(5))))
	// fp - 1 holds the known operand.
	require.NoError(t, m.Memory.Insert(m.RunContext.Fp.AddOffset(-1), memory.NewFromFelt(felt.FromUint64(37))))

	require.NoError(t, m.Step(nil))

	written, err := m.Memory.Get(base.AddOffset(10)) // original ap (dst addr = ap + 0 before update)
	require.NoError(t, err)
	f, ok := written.GetFelt()
	require.True(t, ok)
	assert.True(t, f.Equal(felt.FromUint64(42)))

	// pc advances by 2 (instruction carried an immediate).
	assert.Equal(t, base.AddOffset(2), m.RunContext.Pc)
	assert.Equal(t, uint64(1), m.CurrentStep)
}

func TestStepCall(t *testing.T) {
	m, base := newTestVM(t)

	// CALL instruction at pc with op1 an immediate at pc+1. JUMP_REL/ABS are
	// not exercised here; PcUpdateRegular keeps the test focused on CALL's
	// dst/op0 writes and fp_update/ap_update.
	call := vm.Instruction{
		Off0: 0, Off1: 1, Off2: 1,
		DstRegister: vm.RegisterAP, Op0Register: vm.RegisterAP,
		Op1Src: vm.Op1SrcImm, Res: vm.ResOp1,
		PcUpdate: vm.PcUpdateRegular, ApUpdate: vm.ApUpdateAdd2,
		FpUpdate: vm.FpUpdateApPlus2, Opcode: vm.OpcodeCall,
	}
	encoded := vm.EncodeInstruction(call)
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc, memory.NewFromFelt(felt.FromUint64(encoded))))
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc.AddOffset(1), memory.NewFromFelt(felt.FromUint64(99))))

	oldAp, oldFp, oldPc := m.RunContext.Ap, m.RunContext.Fp, m.RunContext.Pc

	require.NoError(t, m.Step(nil))

	// [ap] must hold the old fp (CALL's return-fp slot).
	savedFp, err := m.Memory.Get(oldAp)
	require.NoError(t, err)
	addr, ok := savedFp.GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, oldFp, addr)

	// [ap+1] must hold the return pc (pc + instruction size).
	savedPc, err := m.Memory.Get(oldAp.AddOffset(1))
	require.NoError(t, err)
	addr, ok = savedPc.GetRelocatable()
	require.True(t, ok)
	assert.Equal(t, oldPc.AddOffset(2), addr)

	assert.Equal(t, oldAp.AddOffset(2), m.RunContext.Ap)
	assert.Equal(t, oldAp.AddOffset(2), m.RunContext.Fp)
	_ = base
}

func TestStepAssertEqFailureMismatch(t *testing.T) {
	m, _ := newTestVM(t)

	instr := assertEqAddImmediate(0, -1)
	encoded := vm.EncodeInstruction(instr)
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc, memory.NewFromFelt(felt.FromUint64(encoded))))
	require.NoError(t, m.Memory.Insert(m.RunContext.Pc.AddOffset(1), memory.NewFromFelt(felt.FromUint64(5))))
	require.NoError(t, m.Memory.Insert(m.RunContext.Fp.AddOffset(-1), memory.NewFromFelt(felt.FromUint64(37))))
	// Pre-write a conflicting dst so the assertion must fail.
	require.NoError(t, m.Memory.Insert(m.RunContext.Ap, memory.NewFromFelt(felt.FromUint64(1))))

	err := m.Step(nil)
	require.Error(t, err)
}

func TestAutoDeductionVerifiedAtEndRun(t *testing.T) {
	m, base := newTestVM(t)

	rule := func(_ *vm.VirtualMachine, addr memory.Relocatable) (memory.MaybeRelocatable, bool, error) {
		return memory.NewFromFelt(felt.FromUint64(uint64(addr.Offset) * 2)), true, nil
	}
	m.AddAutoDeductionRule(base.SegmentIndex, rule)

	require.NoError(t, m.Memory.Insert(base.AddOffset(4), memory.NewFromFelt(felt.FromUint64(8))))
	require.NoError(t, m.EndRun())

	require.NoError(t, m.Memory.Insert(base.AddOffset(5), memory.NewFromFelt(felt.FromUint64(999))))
	err := m.VerifyAutoDeductions()
	assert.Error(t, err)
}
