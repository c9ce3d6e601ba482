package memory

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/felt"
)

// ErrPureValue is returned when an operation required a field element but
// was given a relocatable address, or vice-versa, in a position where the
// semantics forbid it (e.g. adding two relocatables, or multiplying an
// address).
var ErrPureValue = errors.New("operand type mismatch between field element and relocatable address")

// MaybeRelocatable is the tagged union of a field element and a relocatable
// address: a single memory cell's value. This is "Cell" in the VM
// specification; memory is never keyed by a Cell, only by a Relocatable.
type MaybeRelocatable struct {
	isAddr bool
	addr   Relocatable
	value  felt.Felt
}

// NewFromFelt wraps a field element as a cell value.
func NewFromFelt(f felt.Felt) MaybeRelocatable {
	return MaybeRelocatable{value: f}
}

// NewFromRelocatable wraps a relocatable address as a cell value.
func NewFromRelocatable(r Relocatable) MaybeRelocatable {
	return MaybeRelocatable{isAddr: true, addr: r}
}

// IsAddress reports whether this cell holds a relocatable address.
func (m MaybeRelocatable) IsAddress() bool {
	return m.isAddr
}

// GetFelt returns the field element and true if this cell holds one.
func (m MaybeRelocatable) GetFelt() (felt.Felt, bool) {
	if m.isAddr {
		return felt.Felt{}, false
	}
	return m.value, true
}

// GetRelocatable returns the address and true if this cell holds one.
func (m MaybeRelocatable) GetRelocatable() (Relocatable, bool) {
	if !m.isAddr {
		return Relocatable{}, false
	}
	return m.addr, true
}

// IsZero reports whether the cell is the felt zero. Relocatables are never
// zero under this check; see IsZeroChecked for the JNZ zero-test semantics,
// which reject a relocatable with a negative offset outright.
func (m MaybeRelocatable) IsZero() bool {
	if m.isAddr {
		return false
	}
	return m.value.IsZero()
}

// IsZeroChecked implements the JNZ zero test: Int(0) is zero, any other Int
// is non-zero, an Addr with a non-negative offset is non-zero, and an Addr
// with a negative offset is undefined (returns ErrPureValue).
func (m MaybeRelocatable) IsZeroChecked() (bool, error) {
	if !m.isAddr {
		return m.value.IsZero(), nil
	}
	if m.addr.Offset < 0 {
		return false, errors.Wrapf(ErrPureValue, "cannot determine zero-ness of %s", m)
	}
	return false, nil
}

// Equal reports structural equality: same tag and same underlying value.
func (m MaybeRelocatable) Equal(other MaybeRelocatable) bool {
	if m.isAddr != other.isAddr {
		return false
	}
	if m.isAddr {
		return m.addr == other.addr
	}
	return m.value.Equal(other.value)
}

// Add implements Cell arithmetic: Int+Int, Int+Addr (commutative),
// Addr+Addr is forbidden.
func (m MaybeRelocatable) Add(other MaybeRelocatable) (MaybeRelocatable, error) {
	switch {
	case !m.isAddr && !other.isAddr:
		return NewFromFelt(m.value.Add(other.value)), nil
	case !m.isAddr && other.isAddr:
		offset, err := addFeltToOffset(other.addr.Offset, m.value)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewFromRelocatable(Relocatable{SegmentIndex: other.addr.SegmentIndex, Offset: offset}), nil
	case m.isAddr && !other.isAddr:
		offset, err := addFeltToOffset(m.addr.Offset, other.value)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewFromRelocatable(Relocatable{SegmentIndex: m.addr.SegmentIndex, Offset: offset}), nil
	default:
		return MaybeRelocatable{}, errors.Wrapf(ErrPureValue, "cannot add two relocatables: %s + %s", m, other)
	}
}

// Sub implements Cell subtraction: Addr-Addr (same segment) yields Int,
// Addr-Int yields Addr, Int-Addr is forbidden, Int-Int yields Int.
func (m MaybeRelocatable) Sub(other MaybeRelocatable) (MaybeRelocatable, error) {
	switch {
	case !m.isAddr && !other.isAddr:
		return NewFromFelt(m.value.Sub(other.value)), nil
	case m.isAddr && other.isAddr:
		diff, err := m.addr.Sub(other.addr)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewFromFelt(felt.FromInt64(diff)), nil
	case m.isAddr && !other.isAddr:
		offset, err := addFeltToOffset(m.addr.Offset, other.value.Neg())
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewFromRelocatable(Relocatable{SegmentIndex: m.addr.SegmentIndex, Offset: offset}), nil
	default:
		return MaybeRelocatable{}, errors.Wrapf(ErrPureValue, "cannot subtract a relocatable from a field element: %s - %s", m, other)
	}
}

// Mul implements Cell multiplication; only defined for two field elements.
func (m MaybeRelocatable) Mul(other MaybeRelocatable) (MaybeRelocatable, error) {
	if m.isAddr || other.isAddr {
		return MaybeRelocatable{}, errors.Wrapf(ErrPureValue, "cannot multiply a relocatable address: %s * %s", m, other)
	}
	return NewFromFelt(m.value.Mul(other.value)), nil
}

func addFeltToOffset(offset int64, f felt.Felt) (int64, error) {
	delta, err := f.ToUint64()
	if err != nil {
		// Fall back through the field's signed representation: values in the
		// upper half of the field represent negative offsets (p - k).
		neg, err2 := f.Neg().ToUint64()
		if err2 != nil {
			return 0, errors.Wrapf(ErrPureValue, "offset delta %s does not fit in an address offset", f)
		}
		return offset - int64(neg), nil
	}
	return offset + int64(delta), nil
}

func (m MaybeRelocatable) String() string {
	if m.isAddr {
		return m.addr.String()
	}
	return m.value.String()
}

var _ fmt.Stringer = MaybeRelocatable{}
