package vm

import (
	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// RunContext is the VM's three registers at a point in time.
type RunContext struct {
	Pc memory.Relocatable
	Ap memory.Relocatable
	Fp memory.Relocatable
}

// TraceEntry is one snapshot of the registers, recorded before the
// instruction at Pc executes.
type TraceEntry struct {
	Pc memory.Relocatable
	Ap memory.Relocatable
	Fp memory.Relocatable
}

// AutoDeductionRule is a pure function registered against a segment
// (typically by a builtin) that, given an address in that segment, may
// produce the value that address is expected to hold. It returns ok=false
// when it has no opinion about addr.
type AutoDeductionRule func(vm *VirtualMachine, addr memory.Relocatable) (value memory.MaybeRelocatable, ok bool, err error)

// VirtualMachine executes one Cairo program against a validated memory and
// segment manager. It owns the registers, the step counter, the
// instruction trace, the accessed-address set, and the registry of
// per-segment auto-deduction rules; hint scopes live alongside it (see
// hints.go).
type VirtualMachine struct {
	RunContext RunContext

	Memory   *memory.ValidatedMemory
	Segments *memory.SegmentManager

	CurrentStep uint64
	Trace       []TraceEntry

	AccessedAddresses map[memory.Relocatable]bool
	Hints             map[memory.Relocatable][]CompiledHint
	AutoDeduction     map[int64][]AutoDeductionRule

	scopes *scopeStack
}

// NewVirtualMachine builds a VM over an already-populated memory/segment
// pair, with registers set to ctx.
func NewVirtualMachine(ctx RunContext, mem *memory.ValidatedMemory, segments *memory.SegmentManager) *VirtualMachine {
	return &VirtualMachine{
		RunContext:        ctx,
		Memory:            mem,
		Segments:          segments,
		AccessedAddresses: make(map[memory.Relocatable]bool),
		Hints:             make(map[memory.Relocatable][]CompiledHint),
		AutoDeduction:     make(map[int64][]AutoDeductionRule),
		scopes:            newScopeStack(),
	}
}

// AddAutoDeductionRule registers rule against every address of segmentIndex.
func (v *VirtualMachine) AddAutoDeductionRule(segmentIndex int64, rule AutoDeductionRule) {
	v.AutoDeduction[segmentIndex] = append(v.AutoDeduction[segmentIndex], rule)
}

func (v *VirtualMachine) markAccessed(addr memory.Relocatable) {
	v.AccessedAddresses[addr] = true
}

func (v *VirtualMachine) reg(r Register) memory.Relocatable {
	if r == RegisterFP {
		return v.RunContext.Fp
	}
	return v.RunContext.Ap
}

// Step executes one VM step: run any hints registered at pc, then (unless a
// hint requested skip_instruction_execution) decode, compute operands,
// assert, append a trace entry, and update registers.
func (v *VirtualMachine) Step(hintRunner HintRunner) error {
	skip, err := v.runHints(hintRunner)
	if err != nil {
		return errors.Wrap(err, "running hints")
	}
	if skip {
		v.CurrentStep++
		return nil
	}

	instr, err := v.decodeAt(v.RunContext.Pc)
	if err != nil {
		return errors.Wrap(err, "decoding instruction")
	}

	operands, err := v.computeOperands(instr)
	if err != nil {
		return errors.Wrap(err, "computing operands")
	}

	if err := v.opcodeAssertions(instr, operands); err != nil {
		return errors.Wrap(err, "opcode assertions")
	}

	v.Trace = append(v.Trace, TraceEntry{Pc: v.RunContext.Pc, Ap: v.RunContext.Ap, Fp: v.RunContext.Fp})

	newPc, newAp, newFp, err := v.updateRegisters(instr, operands)
	if err != nil {
		return errors.Wrap(err, "updating registers")
	}

	v.markAccessed(operands.dstAddr)
	v.markAccessed(operands.op0Addr)
	v.markAccessed(operands.op1Addr)
	v.markAccessed(v.RunContext.Pc)

	v.RunContext.Pc = newPc
	v.RunContext.Ap = newAp
	v.RunContext.Fp = newFp
	v.CurrentStep++
	return nil
}

func (v *VirtualMachine) decodeAt(pc memory.Relocatable) (Instruction, error) {
	cell, err := v.Memory.Get(pc)
	if err != nil {
		return Instruction{}, err
	}
	f, ok := cell.GetFelt()
	if !ok {
		return Instruction{}, errors.Wrapf(memory.ErrPureValue, "instruction cell at %s must be a field element", pc)
	}
	enc, err := f.ToUint64()
	if err != nil {
		return Instruction{}, errors.Wrapf(err, "instruction cell at %s does not fit an encoded instruction", pc)
	}
	return DecodeInstruction(enc)
}

// operands is the fully-resolved set of addresses and values computed by
// computeOperands for one step.
type operands struct {
	dstAddr, op0Addr, op1Addr memory.Relocatable
	dst, op0, op1             memory.MaybeRelocatable
	res                       memory.MaybeRelocatable
	resKnown                  bool
}

func (v *VirtualMachine) tryAutoDeduce(addr memory.Relocatable) (memory.MaybeRelocatable, bool, error) {
	for _, rule := range v.AutoDeduction[addr.SegmentIndex] {
		value, ok, err := rule(v, addr)
		if err != nil {
			return memory.MaybeRelocatable{}, false, err
		}
		if ok {
			return value, true, nil
		}
	}
	return memory.MaybeRelocatable{}, false, nil
}

// computeOperands implements spec.md §4.4's non-deterministic operand
// resolution: address computation, auto-deduction, opcode-based
// deduction, forced reads, res computation, dst deduction, and write-back
// of anything newly deduced.
func (v *VirtualMachine) computeOperands(instr Instruction) (operands, error) {
	var ops operands

	ops.dstAddr = v.reg(instr.DstRegister).AddOffset(int64(instr.Off0))
	ops.op0Addr = v.reg(instr.Op0Register).AddOffset(int64(instr.Off1))

	op1Addr, err := v.computeOp1Addr(instr, ops.op0Addr)
	if err != nil {
		return operands{}, err
	}
	ops.op1Addr = op1Addr

	dst, dstKnown := v.Memory.Memory().GetOr(ops.dstAddr, memory.MaybeRelocatable{})
	op0, op0Known := v.Memory.Memory().GetOr(ops.op0Addr, memory.MaybeRelocatable{})
	op1, op1Known := v.Memory.Memory().GetOr(ops.op1Addr, memory.MaybeRelocatable{})

	if !op0Known {
		if value, ok, err := v.tryAutoDeduce(ops.op0Addr); err != nil {
			return operands{}, err
		} else if ok {
			op0, op0Known = value, true
		}
	}
	if !op1Known {
		if value, ok, err := v.tryAutoDeduce(ops.op1Addr); err != nil {
			return operands{}, err
		} else if ok {
			op1, op1Known = value, true
		}
	}

	var res memory.MaybeRelocatable
	var resKnown bool

	if !op0Known {
		switch {
		case instr.Opcode == OpcodeCall:
			op0 = memory.NewFromRelocatable(v.RunContext.Pc.AddOffset(instr.Size()))
			op0Known = true
		case instr.Opcode == OpcodeAssertEq && instr.Res == ResAdd && dstKnown && op1Known:
			op0, err = dst.Sub(op1)
			if err != nil {
				return operands{}, err
			}
			op0Known, res, resKnown = true, dst, true
		case instr.Opcode == OpcodeAssertEq && instr.Res == ResMul && dstKnown && op1Known:
			op1Felt, ok1 := op1.GetFelt()
			dstFelt, ok2 := dst.GetFelt()
			if ok1 && ok2 && !op1Felt.IsZero() {
				inv, invErr := op1Felt.Inverse()
				if invErr != nil {
					return operands{}, invErr
				}
				op0, op0Known, res, resKnown = memory.NewFromFelt(dstFelt.Mul(inv)), true, dst, true
			}
		}
	}

	if !op1Known {
		switch {
		case instr.Opcode == OpcodeAssertEq && instr.Res == ResOp1 && dstKnown:
			op1, op1Known, res, resKnown = dst, true, dst, true
		case instr.Opcode == OpcodeAssertEq && instr.Res == ResAdd && dstKnown && op0Known:
			op1, err = dst.Sub(op0)
			if err != nil {
				return operands{}, err
			}
			op1Known, res, resKnown = true, dst, true
		case instr.Opcode == OpcodeAssertEq && instr.Res == ResMul && dstKnown && op0Known:
			op0Felt, ok1 := op0.GetFelt()
			dstFelt, ok2 := dst.GetFelt()
			if ok1 && ok2 && !op0Felt.IsZero() {
				inv, invErr := op0Felt.Inverse()
				if invErr != nil {
					return operands{}, invErr
				}
				op1, op1Known, res, resKnown = memory.NewFromFelt(dstFelt.Mul(inv)), true, dst, true
			}
		}
	}

	if !op0Known {
		if op0, err = v.Memory.Get(ops.op0Addr); err != nil {
			return operands{}, err
		}
		op0Known = true
	}
	if !op1Known {
		if op1, err = v.Memory.Get(ops.op1Addr); err != nil {
			return operands{}, err
		}
		op1Known = true
	}

	if !resKnown {
		switch instr.Res {
		case ResOp1:
			res, resKnown = op1, true
		case ResAdd:
			if res, err = op0.Add(op1); err != nil {
				return operands{}, err
			}
			resKnown = true
		case ResMul:
			if res, err = op0.Mul(op1); err != nil {
				return operands{}, err
			}
			resKnown = true
		case ResUnconstrained:
			resKnown = false
		}
	}

	if !dstKnown {
		switch instr.Opcode {
		case OpcodeAssertEq:
			if !resKnown {
				return operands{}, ErrAssertEqWithUnconstrained
			}
			dst, dstKnown = res, true
		case OpcodeCall:
			dst = memory.NewFromRelocatable(v.RunContext.Fp)
			dstKnown = true
		default:
			if dst, err = v.Memory.Get(ops.dstAddr); err != nil {
				return operands{}, err
			}
			dstKnown = true
		}
	}

	if err := v.Memory.Insert(ops.dstAddr, dst); err != nil {
		return operands{}, err
	}
	if err := v.Memory.Insert(ops.op0Addr, op0); err != nil {
		return operands{}, err
	}
	if err := v.Memory.Insert(ops.op1Addr, op1); err != nil {
		return operands{}, err
	}

	ops.dst, ops.op0, ops.op1 = dst, op0, op1
	ops.res, ops.resKnown = res, resKnown
	return ops, nil
}

func (v *VirtualMachine) computeOp1Addr(instr Instruction, op0Addr memory.Relocatable) (memory.Relocatable, error) {
	off2 := int64(instr.Off2)
	switch instr.Op1Src {
	case Op1SrcFP:
		return v.RunContext.Fp.AddOffset(off2), nil
	case Op1SrcAP:
		return v.RunContext.Ap.AddOffset(off2), nil
	case Op1SrcImm:
		if instr.Off2 != 1 {
			return memory.Relocatable{}, ErrInvalidOff2
		}
		return v.RunContext.Pc.AddOffset(1), nil
	case Op1SrcOp0:
		op0Value, ok := v.Memory.Memory().GetOr(op0Addr, memory.MaybeRelocatable{})
		if !ok {
			return memory.Relocatable{}, ErrUnknownOp0
		}
		addr, ok := op0Value.GetRelocatable()
		if !ok {
			return memory.Relocatable{}, errors.Wrapf(memory.ErrPureValue, "op1 addressed via OP0 requires op0 to hold an address, got %s", op0Value)
		}
		return addr.AddOffset(off2), nil
	default:
		return memory.Relocatable{}, errors.Errorf("unknown op1 source %d", instr.Op1Src)
	}
}

func (v *VirtualMachine) opcodeAssertions(instr Instruction, ops operands) error {
	switch instr.Opcode {
	case OpcodeAssertEq:
		if !ops.resKnown {
			return ErrAssertEqWithUnconstrained
		}
		if !ops.dst.Equal(ops.res) {
			return &ErrAssertEqFailed{Dst: ops.dst, Res: ops.res}
		}
	case OpcodeCall:
		expectedOp0 := memory.NewFromRelocatable(v.RunContext.Pc.AddOffset(instr.Size()))
		if !ops.op0.Equal(expectedOp0) {
			return &ErrInconsistentOp0{Expected: expectedOp0, Found: ops.op0}
		}
		expectedDst := memory.NewFromRelocatable(v.RunContext.Fp)
		if !ops.dst.Equal(expectedDst) {
			return &ErrInconsistentDst{Expected: expectedDst, Found: ops.dst}
		}
	}
	return nil
}

func (v *VirtualMachine) updateRegisters(instr Instruction, ops operands) (newPc, newAp, newFp memory.Relocatable, err error) {
	switch instr.FpUpdate {
	case FpUpdateRegular:
		newFp = v.RunContext.Fp
	case FpUpdateApPlus2:
		newFp = v.RunContext.Ap.AddOffset(2)
	case FpUpdateDst:
		addr, ok := ops.dst.GetRelocatable()
		if !ok {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, errors.Wrapf(memory.ErrPureValue, "RET requires dst to hold an address, got %s", ops.dst)
		}
		newFp = addr
	}

	switch instr.ApUpdate {
	case ApUpdateRegular:
		newAp = v.RunContext.Ap
	case ApUpdateAdd:
		if !ops.resKnown {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, ErrAddWithUnconstrained
		}
		sum, sumErr := memory.NewFromRelocatable(v.RunContext.Ap).Add(ops.res)
		if sumErr != nil {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, sumErr
		}
		addr, ok := sum.GetRelocatable()
		if !ok {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, errors.Wrap(memory.ErrPureValue, "ap update produced a field element, not an address")
		}
		newAp = addr
	case ApUpdateAdd1:
		newAp = v.RunContext.Ap.AddOffset(1)
	case ApUpdateAdd2:
		newAp = v.RunContext.Ap.AddOffset(2)
	}

	switch instr.PcUpdate {
	case PcUpdateRegular:
		newPc = v.RunContext.Pc.AddOffset(instr.Size())
	case PcUpdateJump:
		if !ops.resKnown {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, ErrJumpWithUnconstrained
		}
		addr, ok := ops.res.GetRelocatable()
		if !ok {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, errors.Wrap(memory.ErrPureValue, "absolute jump target must be an address")
		}
		newPc = addr
	case PcUpdateJumpRel:
		if !ops.resKnown {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, ErrJumpRelWithUnconstrained
		}
		sum, sumErr := memory.NewFromRelocatable(v.RunContext.Pc).Add(ops.res)
		if sumErr != nil {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, sumErr
		}
		addr, _ := sum.GetRelocatable()
		newPc = addr
	case PcUpdateJnz:
		zero, zeroErr := ops.dst.IsZeroChecked()
		if zeroErr != nil {
			return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, zeroErr
		}
		if zero {
			newPc = v.RunContext.Pc.AddOffset(instr.Size())
		} else {
			sum, sumErr := memory.NewFromRelocatable(v.RunContext.Pc).Add(ops.op1)
			if sumErr != nil {
				return memory.Relocatable{}, memory.Relocatable{}, memory.Relocatable{}, sumErr
			}
			addr, _ := sum.GetRelocatable()
			newPc = addr
		}
	}

	return newPc, newAp, newFp, nil
}

// VerifyAutoDeductions re-derives, for every address with a registered
// auto-deduction rule, the value the rule would produce and checks it
// against what memory actually holds. Called once at end_run.
func (v *VirtualMachine) VerifyAutoDeductions() error {
	for addr, current := range v.Memory.Memory().Data() {
		rules, ok := v.AutoDeduction[addr.SegmentIndex]
		if !ok {
			continue
		}
		for _, rule := range rules {
			rederived, ok, err := rule(v, addr)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if !rederived.Equal(current) {
				return &ErrInconsistentAutoDeduction{Addr: addr, Current: current, Rederived: rederived}
			}
		}
	}
	return nil
}

// EndRun verifies auto-deductions and checks that every hint scope opened
// during the run was closed.
func (v *VirtualMachine) EndRun() error {
	if err := v.VerifyAutoDeductions(); err != nil {
		return err
	}
	return v.scopes.checkBalanced()
}
