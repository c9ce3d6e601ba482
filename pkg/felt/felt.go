// Package felt provides field element arithmetic for the Cairo VM, backed by
// the STARK-curve base field (the Cairo prime 2^251 + 17*2^192 + 1).
package felt

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/pkg/errors"
)

// ErrDivisionByZero is returned when dividing by a zero field element.
var ErrDivisionByZero = errors.New("division by zero")

// Felt is a single element of the Cairo prime field.
type Felt struct {
	inner fp.Element
}

// Zero returns the additive identity.
func Zero() Felt {
	return Felt{}
}

// One returns the multiplicative identity.
func One() Felt {
	var f Felt
	f.inner.SetOne()
	return f
}

// FromUint64 builds a Felt from a uint64 value.
func FromUint64(value uint64) Felt {
	var f Felt
	f.inner.SetUint64(value)
	return f
}

// FromInt64 builds a Felt from a signed 64-bit value, wrapping negative
// values modulo the field's prime.
func FromInt64(value int64) Felt {
	var f Felt
	f.inner.SetInt64(value)
	return f
}

// FromDecString parses a decimal string into a Felt.
func FromDecString(s string) (Felt, error) {
	if _, ok := new(big.Int).SetString(s, 10); !ok {
		return Felt{}, errors.Errorf("invalid decimal field element: %q", s)
	}
	var f Felt
	f.inner.SetString(s)
	return f, nil
}

// FromBigInt builds a Felt from an arbitrary-precision integer, reducing
// modulo the field's prime.
func FromBigInt(v *big.Int) Felt {
	var f Felt
	f.inner.SetBigInt(v)
	return f
}

// FromBytesBE builds a Felt from a 32-byte big-endian encoding.
func FromBytesBE(b [32]byte) Felt {
	var f Felt
	f.inner.SetBytes(b[:])
	return f
}

// BytesBE returns the big-endian encoding of the element.
func (f Felt) BytesBE() [32]byte {
	return f.inner.Bytes()
}

// BigInt returns the value as an arbitrary-precision integer in [0, p).
func (f Felt) BigInt() *big.Int {
	var out big.Int
	f.inner.BigInt(&out)
	return &out
}

// Add returns f + other mod p.
func (f Felt) Add(other Felt) Felt {
	var out Felt
	out.inner.Add(&f.inner, &other.inner)
	return out
}

// Sub returns f - other mod p.
func (f Felt) Sub(other Felt) Felt {
	var out Felt
	out.inner.Sub(&f.inner, &other.inner)
	return out
}

// Mul returns f * other mod p.
func (f Felt) Mul(other Felt) Felt {
	var out Felt
	out.inner.Mul(&f.inner, &other.inner)
	return out
}

// Neg returns -f mod p.
func (f Felt) Neg() Felt {
	var out Felt
	out.inner.Neg(&f.inner)
	return out
}

// Inverse returns the multiplicative inverse of f via the extended
// Euclidean algorithm. Returns ErrDivisionByZero if f is zero.
func (f Felt) Inverse() (Felt, error) {
	if f.IsZero() {
		return Felt{}, ErrDivisionByZero
	}
	var out Felt
	out.inner.Inverse(&f.inner)
	return out, nil
}

// Div returns f / other mod p. Returns ErrDivisionByZero if other is zero.
func (f Felt) Div(other Felt) (Felt, error) {
	inv, err := other.Inverse()
	if err != nil {
		return Felt{}, err
	}
	return f.Mul(inv), nil
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool {
	return f.inner.IsZero()
}

// Equal reports whether f and other represent the same field element.
func (f Felt) Equal(other Felt) bool {
	return f.inner.Equal(&other.inner)
}

// String returns the decimal representation of f.
func (f Felt) String() string {
	return f.inner.Text(10)
}

// Text returns the representation of f in the given base.
func (f Felt) Text(base int) string {
	return f.inner.Text(base)
}

// ToUint64 converts f to a uint64, failing if f does not fit.
func (f Felt) ToUint64() (uint64, error) {
	b := f.BigInt()
	if !b.IsUint64() {
		return 0, errors.Errorf("felt %s does not fit in a uint64", f.String())
	}
	return b.Uint64(), nil
}
