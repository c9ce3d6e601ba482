package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// ErrDivisionByZero names a zero divisor in MUL-logic operand deduction.
// computeOperands does not return it: when the known operand is zero it
// skips the deduction and reads the operand from memory instead.
var ErrDivisionByZero = errors.New("division by zero")

// ErrUnknownOp0 is returned when op1's OP0 source needs an op0 value that
// has not yet been resolved.
var ErrUnknownOp0 = errors.New("op1 addressing via OP0 requires op0 to already be known")

// ErrInvalidOff2 is returned when op1 is sourced from an immediate but the
// instruction's off2 is not 1, which is the only valid encoding for an
// immediate operand (the immediate always sits at pc+1).
var ErrInvalidOff2 = errors.New("op1 addressed via IMM must have off2 == 1")

// ErrAddWithUnconstrained and friends guard against deducing or asserting
// against a res that was never computed because res_logic was
// UNCONSTRAINED.
var (
	ErrAddWithUnconstrained      = errors.New("cannot add with unconstrained res")
	ErrJumpWithUnconstrained     = errors.New("cannot jump with unconstrained res")
	ErrJumpRelWithUnconstrained  = errors.New("cannot perform relative jump with unconstrained res")
	ErrAssertEqWithUnconstrained = errors.New("cannot assert equality with unconstrained res")
)

// ErrAssertEqFailed is raised when an ASSERT_EQ instruction's dst and res
// do not match.
type ErrAssertEqFailed struct {
	Dst memory.MaybeRelocatable
	Res memory.MaybeRelocatable
}

func (e *ErrAssertEqFailed) Error() string {
	return fmt.Sprintf("assertion failed: %s != %s", e.Dst, e.Res)
}

// ErrInconsistentOp0 is raised when a CALL instruction's op0 cell does not
// already hold the expected return pc.
type ErrInconsistentOp0 struct {
	Expected memory.MaybeRelocatable
	Found    memory.MaybeRelocatable
}

func (e *ErrInconsistentOp0) Error() string {
	return fmt.Sprintf("CALL: inconsistent op0 (return pc): expected %s, found %s", e.Expected, e.Found)
}

// ErrInconsistentDst is raised when a CALL instruction's dst cell does not
// already hold the expected return fp.
type ErrInconsistentDst struct {
	Expected memory.MaybeRelocatable
	Found    memory.MaybeRelocatable
}

func (e *ErrInconsistentDst) Error() string {
	return fmt.Sprintf("CALL: inconsistent dst (return fp): expected %s, found %s", e.Expected, e.Found)
}

// ErrInconsistentAutoDeduction is raised by VerifyAutoDeductions when an
// address already holding a value disagrees with what its segment's
// auto-deduction rules would produce.
type ErrInconsistentAutoDeduction struct {
	Addr    memory.Relocatable
	Current memory.MaybeRelocatable
	Rederived memory.MaybeRelocatable
}

func (e *ErrInconsistentAutoDeduction) Error() string {
	return fmt.Sprintf(
		"inconsistent auto-deduction at %s: stored %s, rule produced %s",
		e.Addr, e.Current, e.Rederived,
	)
}

// ErrEnterExitScopeMismatch is raised when end_run is reached with an
// unbalanced hint-scope stack.
var ErrEnterExitScopeMismatch = errors.New("unbalanced hint scopes: enter_scope without matching exit_scope")
