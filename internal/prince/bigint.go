package prince

import (
	"fmt"
	"math/big"
)

// Int is an arbitrary-precision, nonnegative integer.
//
// It wraps [math/big.Int] the way pp.c wraps GMP's mpz_t: a small facade
// exposing exactly the operations the keyspace and cursor arithmetic need
// (add, subtract, multiply, floor-divide and mod by a u64, compare, and
// decimal parse/print), never the full big.Int surface.
//
// The zero value represents 0 and is ready to use.
type Int struct {
	n big.Int
}

// IntFromUint64 returns the Int representing u.
func IntFromUint64(u uint64) Int {
	var i Int
	i.n.SetUint64(u)

	return i
}

// ParseInt parses a nonnegative decimal string.
func ParseInt(s string) (Int, error) {
	var i Int

	_, ok := i.n.SetString(s, 10)
	if !ok {
		return Int{}, fmt.Errorf("invalid decimal integer %q", s)
	}

	if i.n.Sign() < 0 {
		return Int{}, fmt.Errorf("%q: %w", s, ErrNegativeInt)
	}

	return i, nil
}

// String returns the decimal representation.
func (x Int) String() string {
	return x.n.String()
}

// IsZero reports whether x is 0.
func (x Int) IsZero() bool {
	return x.n.Sign() == 0
}

// Cmp compares x and y, returning -1, 0, or +1.
func (x Int) Cmp(y Int) int {
	return x.n.Cmp(&y.n)
}

// CmpUint64 compares x against the uint64 value u.
func (x Int) CmpUint64(u uint64) int {
	var y big.Int
	y.SetUint64(u)

	return x.n.Cmp(&y)
}

// Add returns x + y.
func (x Int) Add(y Int) Int {
	var r Int
	r.n.Add(&x.n, &y.n)

	return r
}

// AddUint64 returns x + u.
func (x Int) AddUint64(u uint64) Int {
	var y big.Int
	y.SetUint64(u)

	var r Int
	r.n.Add(&x.n, &y)

	return r
}

// Sub returns x - y.
//
// Callers must ensure x >= y; the arithmetic here mirrors pp.c's unchecked
// mpz_sub, which is always called on differences known to be nonnegative by
// the surrounding bookkeeping (e.g. total_ks_cnt - total_ks_pos).
func (x Int) Sub(y Int) Int {
	var r Int
	r.n.Sub(&x.n, &y.n)

	return r
}

// Mul returns x * y.
func (x Int) Mul(y Int) Int {
	var r Int
	r.n.Mul(&x.n, &y.n)

	return r
}

// MulUint64 returns x * u.
func (x Int) MulUint64(u uint64) Int {
	var r Int
	r.n.Mul(&x.n, new(big.Int).SetUint64(u))

	return r
}

// DivUint64 returns floor(x / u). Panics if u is 0, matching GMP's mpz_div_ui.
func (x Int) DivUint64(u uint64) Int {
	var r Int
	r.n.Div(&x.n, new(big.Int).SetUint64(u))

	return r
}

// ModUint64 returns x mod u as a uint64. Panics if u is 0.
func (x Int) ModUint64(u uint64) uint64 {
	var m big.Int
	m.Mod(&x.n, new(big.Int).SetUint64(u))

	return m.Uint64()
}

// Uint64Capped reports (value, true) if x fits in a uint64, or (0, false)
// otherwise.
func (x Int) Uint64Capped() (uint64, bool) {
	if !x.n.IsUint64() {
		return 0, false
	}

	return x.n.Uint64(), true
}

// Bytes returns the big-endian magnitude of x, matching [math/big.Int.Bytes].
func (x Int) Bytes() []byte {
	return x.n.Bytes()
}

// IntFromBytes reconstructs an Int from a big-endian magnitude as produced
// by [Int.Bytes].
func IntFromBytes(b []byte) Int {
	var i Int
	i.n.SetBytes(b)

	return i
}

// MinInt returns the smaller of a and b.
func MinInt(a, b Int) Int {
	if a.Cmp(b) <= 0 {
		return a
	}

	return b
}
