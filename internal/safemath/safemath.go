// Package safemath collects the small arithmetic helpers the runner and
// VM need around step counts and proof-mode trace padding, kept separate
// from pkg/felt because they operate on plain Go integers, not field
// elements.
package safemath

import "github.com/pkg/errors"

// ErrDivisionByZero is returned by SafeDiv when dividing by zero.
var ErrDivisionByZero = errors.New("division by zero")

// NextPowerOfTwo returns the smallest power of two greater than or equal
// to n. Used by proof-mode trace padding, which must pad the trace out
// to a power-of-two length.
//
// Grounded on coburn24-cairo-vm-go/pkg/runners/zero/zero.go's
// safemath.NextPowerOfTwo(runner.vm.Step) call site.
func NextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// SafeDiv divides a by b, returning ErrDivisionByZero instead of
// panicking when b is zero.
//
// Grounded on the companion Go fork's utils.SafeDiv. The builtins compute
// their instance count (currentStep/ratio) with plain division, not SafeDiv.
func SafeDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}
