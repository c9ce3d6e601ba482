package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/vm"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []vm.Instruction{
		{
			Off0: -1, Off1: -1, Off2: 1,
			DstRegister: vm.RegisterAP, Op0Register: vm.RegisterFP,
			Op1Src: vm.Op1SrcImm, Res: vm.ResAdd,
			PcUpdate: vm.PcUpdateRegular, ApUpdate: vm.ApUpdateAdd1,
			FpUpdate: vm.FpUpdateRegular, Opcode: vm.OpcodeAssertEq,
		},
		{
			Off0: 0, Off1: 1, Off2: 2,
			DstRegister: vm.RegisterFP, Op0Register: vm.RegisterAP,
			Op1Src: vm.Op1SrcFP, Res: vm.ResOp1,
			PcUpdate: vm.PcUpdateJump, ApUpdate: vm.ApUpdateRegular,
			FpUpdate: vm.FpUpdateRegular, Opcode: vm.OpcodeNop,
		},
		{
			Off0: -32768, Off1: -1, Off2: 32767,
			DstRegister: vm.RegisterFP, Op0Register: vm.RegisterFP,
			Op1Src: vm.Op1SrcOp0, Res: vm.ResOp1,
			PcUpdate: vm.PcUpdateRegular, ApUpdate: vm.ApUpdateAdd2,
			FpUpdate: vm.FpUpdateApPlus2, Opcode: vm.OpcodeCall,
		},
		{
			Off0: 0, Off1: 0, Off2: 0,
			DstRegister: vm.RegisterFP, Op0Register: vm.RegisterAP,
			Op1Src: vm.Op1SrcAP, Res: vm.ResUnconstrained,
			PcUpdate: vm.PcUpdateJnz, ApUpdate: vm.ApUpdateRegular,
			FpUpdate: vm.FpUpdateRegular, Opcode: vm.OpcodeNop,
		},
		{
			Off0: 1, Off1: 1, Off2: 1,
			DstRegister: vm.RegisterAP, Op0Register: vm.RegisterAP,
			Op1Src: vm.Op1SrcFP, Res: vm.ResOp1,
			PcUpdate: vm.PcUpdateRegular, ApUpdate: vm.ApUpdateRegular,
			FpUpdate: vm.FpUpdateDst, Opcode: vm.OpcodeRet,
		},
	}

	for _, original := range cases {
		encoded := vm.EncodeInstruction(original)
		decoded, err := vm.DecodeInstruction(encoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	}
}

func TestDecodeRejectsOutOfRangeEncoding(t *testing.T) {
	_, err := vm.DecodeInstruction(vm.MaxEncodedInstruction)
	var rangeErr *vm.ErrEncodingOutOfRange
	assert.ErrorAs(t, err, &rangeErr)
}

func TestDecodeRejectsConflictingOp1Bits(t *testing.T) {
	// OP1_IMM (bit 2) and OP1_AP (bit 4) both set.
	encoding := uint64(1<<2 | 1<<4)
	_, err := vm.DecodeInstruction(encoding << (3 * vm.OffsetBits))
	assert.ErrorIs(t, err, vm.ErrInvalidOp1)
}

func TestDecodeRejectsJnzWithConstrainedRes(t *testing.T) {
	// PC_JNZ (bit 9) with RES_ADD (bit 5) also set.
	flags := uint64(1<<9 | 1<<5)
	_, err := vm.DecodeInstruction(flags << (3 * vm.OffsetBits))
	assert.ErrorIs(t, err, vm.ErrJnzRequiresUnconstrainedRes)
}

func TestDecodeRejectsCallWithExplicitApUpdate(t *testing.T) {
	// OPCODE_CALL (bit 12) with AP_ADD (bit 10) also set.
	flags := uint64(1<<12 | 1<<10)
	_, err := vm.DecodeInstruction(flags << (3 * vm.OffsetBits))
	assert.ErrorIs(t, err, vm.ErrCallRequiresRegularApUpdate)
}

func TestInstructionSize(t *testing.T) {
	withImm := vm.Instruction{Op1Src: vm.Op1SrcImm}
	withoutImm := vm.Instruction{Op1Src: vm.Op1SrcFP}
	assert.Equal(t, int64(2), withImm.Size())
	assert.Equal(t, int64(1), withoutImm.Size())
}
