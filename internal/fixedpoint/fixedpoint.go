// Package fixedpoint implements the checked integer arithmetic used for
// prices and discounts. Intermediates are evaluated in 256 bits and every
// result must fit uint64; anything else is failure.ErrArithmeticOverflow.
package fixedpoint

import (
	"github.com/holiman/uint256"

	"nodesale/internal/failure"
)

func fit(v *uint256.Int, op string) (uint64, error) {
	if !v.IsUint64() {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "%s", op)
	}
	return v.Uint64(), nil
}

func Mul(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "mul")
	}
	return fit(product, "mul")
}

func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "division by zero")
	}
	return a / b, nil
}

func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "add")
	}
	return sum, nil
}

func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "sub underflow")
	}
	return a - b, nil
}

// MulDiv computes a*b/d without losing the high bits of the product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, failure.Wrap(failure.ErrArithmeticOverflow, "division by zero")
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return fit(product.Div(product, uint256.NewInt(d)), "muldiv")
}

// Pow10 returns 10^exp.
func Pow10(exp uint32) (uint64, error) {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint32(0); i < exp; i++ {
		result.Mul(result, ten)
		if !result.IsUint64() {
			return 0, failure.Wrap(failure.ErrArithmeticOverflow, "10^%d", exp)
		}
	}
	return result.Uint64(), nil
}
