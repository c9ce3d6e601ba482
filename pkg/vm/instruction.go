package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Bit positions of the 15 flag bits in an encoded instruction, once the
// three 16-bit offset lanes have been stripped off.
const (
	dstRegBit = iota
	op0RegBit
	op1ImmBit
	op1FpBit
	op1ApBit
	resAddBit
	resMulBit
	pcJumpAbsBit
	pcJumpRelBit
	pcJnzBit
	apAddBit
	apAdd1Bit
	opcodeCallBit
	opcodeRetBit
	opcodeAssertEqBit
)

const (
	// OffsetBits is the width of each of the three offset lanes.
	OffsetBits = 16
	offsetMask = 1<<OffsetBits - 1
	offsetBias = 1 << (OffsetBits - 1)
	// MaxEncodedInstruction is one past the largest value an encoded
	// instruction may take: 3 offset lanes plus 15 flag bits.
	MaxEncodedInstruction = 1 << (3*OffsetBits + 15)
)

// Register names a VM register used to compute an operand address.
type Register int

const (
	RegisterAP Register = iota
	RegisterFP
)

func (r Register) String() string {
	if r == RegisterFP {
		return "fp"
	}
	return "ap"
}

// Op1Src names where the op1 operand address is computed from.
type Op1Src int

const (
	Op1SrcOp0 Op1Src = iota
	Op1SrcImm
	Op1SrcAP
	Op1SrcFP
)

// ResLogic names how the instruction's "res" value is derived from the
// operands.
type ResLogic int

const (
	ResOp1 ResLogic = iota
	ResAdd
	ResMul
	ResUnconstrained
)

// PcUpdate names how the pc register advances after a step.
type PcUpdate int

const (
	PcUpdateRegular PcUpdate = iota
	PcUpdateJump
	PcUpdateJumpRel
	PcUpdateJnz
)

// ApUpdate names how the ap register advances after a step.
type ApUpdate int

const (
	ApUpdateRegular ApUpdate = iota
	ApUpdateAdd
	ApUpdateAdd1
	ApUpdateAdd2
)

// FpUpdate names how the fp register advances after a step.
type FpUpdate int

const (
	FpUpdateRegular FpUpdate = iota
	FpUpdateApPlus2
	FpUpdateDst
)

// Opcode names the instruction's top-level operation.
type Opcode int

const (
	OpcodeNop Opcode = iota
	OpcodeAssertEq
	OpcodeCall
	OpcodeRet
)

// Instruction is the decoded form of one (or two, if it carries an
// immediate) encoded field elements.
type Instruction struct {
	Off0, Off1, Off2 int16

	DstRegister Register
	Op0Register Register
	Op1Src      Op1Src

	Res       ResLogic
	PcUpdate  PcUpdate
	ApUpdate  ApUpdate
	FpUpdate  FpUpdate
	Opcode    Opcode
}

// Size is 2 when the instruction carries an immediate (Op1Src == Op1SrcImm),
// 1 otherwise.
func (i Instruction) Size() int64 {
	if i.Op1Src == Op1SrcImm {
		return 2
	}
	return 1
}

// Decode errors, one sentinel value per invalid flag combination so callers
// can distinguish them with errors.Is.
var (
	ErrInvalidOp1      = errors.New("invalid op1 encoding: more than one of OP1_IMM/OP1_AP/OP1_FP set")
	ErrInvalidPcUpdate = errors.New("invalid pc_update encoding: more than one of PC_JUMP_ABS/PC_JUMP_REL/PC_JNZ set")
	ErrInvalidRes      = errors.New("invalid res encoding: both RES_ADD and RES_MUL set")
	ErrInvalidOpcode   = errors.New("invalid opcode encoding: more than one of CALL/RET/ASSERT_EQ set")
	ErrJnzRequiresUnconstrainedRes = errors.New("JNZ opcode means res must be UNCONSTRAINED")
	ErrCallRequiresRegularApUpdate = errors.New("CALL must have ap_update REGULAR on the wire")
)

// ErrEncodingOutOfRange is returned when the raw integer does not fit the
// 3*16+15-bit instruction encoding.
type ErrEncodingOutOfRange struct {
	Encoding uint64
}

func (e *ErrEncodingOutOfRange) Error() string {
	return fmt.Sprintf("encoded instruction %d is out of range [0, 2^63)", e.Encoding)
}

// DecodeInstruction decodes a raw 63-bit encoded instruction, per the bit
// layout: off0 = enc[0:16), off1 = enc[16:32), off2 = enc[32:48) (each
// biased by 2^15), flags = enc >> 48.
func DecodeInstruction(encoding uint64) (Instruction, error) {
	if encoding >= MaxEncodedInstruction {
		return Instruction{}, &ErrEncodingOutOfRange{Encoding: encoding}
	}

	off0 := int16((encoding & offsetMask) - offsetBias)
	off1 := int16(((encoding >> OffsetBits) & offsetMask) - offsetBias)
	off2 := int16(((encoding >> (2 * OffsetBits)) & offsetMask) - offsetBias)
	flags := encoding >> (3 * OffsetBits)

	bit := func(n uint) bool { return (flags>>n)&1 != 0 }

	dstReg := RegisterAP
	if bit(dstRegBit) {
		dstReg = RegisterFP
	}
	op0Reg := RegisterAP
	if bit(op0RegBit) {
		op0Reg = RegisterFP
	}

	var op1Src Op1Src
	switch {
	case bit(op1ImmBit) && !bit(op1ApBit) && !bit(op1FpBit):
		op1Src = Op1SrcImm
	case !bit(op1ImmBit) && bit(op1ApBit) && !bit(op1FpBit):
		op1Src = Op1SrcAP
	case !bit(op1ImmBit) && !bit(op1ApBit) && bit(op1FpBit):
		op1Src = Op1SrcFP
	case !bit(op1ImmBit) && !bit(op1ApBit) && !bit(op1FpBit):
		op1Src = Op1SrcOp0
	default:
		return Instruction{}, ErrInvalidOp1
	}

	var pcUpdate PcUpdate
	switch {
	case bit(pcJumpAbsBit) && !bit(pcJumpRelBit) && !bit(pcJnzBit):
		pcUpdate = PcUpdateJump
	case !bit(pcJumpAbsBit) && bit(pcJumpRelBit) && !bit(pcJnzBit):
		pcUpdate = PcUpdateJumpRel
	case !bit(pcJumpAbsBit) && !bit(pcJumpRelBit) && bit(pcJnzBit):
		pcUpdate = PcUpdateJnz
	case !bit(pcJumpAbsBit) && !bit(pcJumpRelBit) && !bit(pcJnzBit):
		pcUpdate = PcUpdateRegular
	default:
		return Instruction{}, ErrInvalidPcUpdate
	}

	var res ResLogic
	switch {
	case bit(resAddBit) && !bit(resMulBit):
		res = ResAdd
	case !bit(resAddBit) && bit(resMulBit):
		res = ResMul
	case !bit(resAddBit) && !bit(resMulBit):
		if pcUpdate == PcUpdateJnz {
			res = ResUnconstrained
		} else {
			res = ResOp1
		}
	default:
		return Instruction{}, ErrInvalidRes
	}

	if pcUpdate == PcUpdateJnz && res != ResUnconstrained {
		return Instruction{}, ErrJnzRequiresUnconstrainedRes
	}

	var apUpdate ApUpdate
	switch {
	case bit(apAddBit) && !bit(apAdd1Bit):
		apUpdate = ApUpdateAdd
	case !bit(apAddBit) && bit(apAdd1Bit):
		apUpdate = ApUpdateAdd1
	case !bit(apAddBit) && !bit(apAdd1Bit):
		apUpdate = ApUpdateRegular
	default:
		return Instruction{}, errors.New("invalid ap_update encoding: both AP_ADD and AP_ADD1 set")
	}

	var opcode Opcode
	switch {
	case bit(opcodeCallBit) && !bit(opcodeRetBit) && !bit(opcodeAssertEqBit):
		opcode = OpcodeCall
	case !bit(opcodeCallBit) && bit(opcodeRetBit) && !bit(opcodeAssertEqBit):
		opcode = OpcodeRet
	case !bit(opcodeCallBit) && !bit(opcodeRetBit) && bit(opcodeAssertEqBit):
		opcode = OpcodeAssertEq
	case !bit(opcodeCallBit) && !bit(opcodeRetBit) && !bit(opcodeAssertEqBit):
		opcode = OpcodeNop
	default:
		return Instruction{}, ErrInvalidOpcode
	}

	if opcode == OpcodeCall {
		if apUpdate != ApUpdateRegular {
			return Instruction{}, ErrCallRequiresRegularApUpdate
		}
		apUpdate = ApUpdateAdd2
	}

	var fpUpdate FpUpdate
	switch opcode {
	case OpcodeCall:
		fpUpdate = FpUpdateApPlus2
	case OpcodeRet:
		fpUpdate = FpUpdateDst
	default:
		fpUpdate = FpUpdateRegular
	}

	return Instruction{
		Off0:        off0,
		Off1:        off1,
		Off2:        off2,
		DstRegister: dstReg,
		Op0Register: op0Reg,
		Op1Src:      op1Src,
		Res:         res,
		PcUpdate:    pcUpdate,
		ApUpdate:    apUpdate,
		FpUpdate:    fpUpdate,
		Opcode:      opcode,
	}, nil
}

// EncodeInstruction is the inverse of DecodeInstruction: it reconstructs
// the raw encoded integer for an instruction. CALL/RET instructions carry
// their opcode-forced ApUpdate/FpUpdate, which this function reverses back
// to the wire representation (CALL's ap_update bits are always 0; the
// ADD2 behavior is implied by the opcode bits alone).
func EncodeInstruction(i Instruction) uint64 {
	off0 := uint64(uint16(int32(i.Off0) + offsetBias))
	off1 := uint64(uint16(int32(i.Off1) + offsetBias))
	off2 := uint64(uint16(int32(i.Off2) + offsetBias))

	var flags uint64
	if i.DstRegister == RegisterFP {
		flags |= 1 << dstRegBit
	}
	if i.Op0Register == RegisterFP {
		flags |= 1 << op0RegBit
	}
	switch i.Op1Src {
	case Op1SrcImm:
		flags |= 1 << op1ImmBit
	case Op1SrcAP:
		flags |= 1 << op1ApBit
	case Op1SrcFP:
		flags |= 1 << op1FpBit
	case Op1SrcOp0:
	}
	switch i.Res {
	case ResAdd:
		flags |= 1 << resAddBit
	case ResMul:
		flags |= 1 << resMulBit
	}
	switch i.PcUpdate {
	case PcUpdateJump:
		flags |= 1 << pcJumpAbsBit
	case PcUpdateJumpRel:
		flags |= 1 << pcJumpRelBit
	case PcUpdateJnz:
		flags |= 1 << pcJnzBit
	}
	// ap_update wire bits are only meaningful outside CALL, which always
	// forces ADD2 from the opcode bits alone.
	if i.Opcode != OpcodeCall {
		switch i.ApUpdate {
		case ApUpdateAdd:
			flags |= 1 << apAddBit
		case ApUpdateAdd1:
			flags |= 1 << apAdd1Bit
		}
	}
	switch i.Opcode {
	case OpcodeCall:
		flags |= 1 << opcodeCallBit
	case OpcodeRet:
		flags |= 1 << opcodeRetBit
	case OpcodeAssertEq:
		flags |= 1 << opcodeAssertEqBit
	}

	return off0 | off1<<OffsetBits | off2<<(2*OffsetBits) | flags<<(3*OffsetBits)
}
