package models

import (
	"errors"
	"fmt"
	"math"
)

// Money is an amount in minor currency units (e.g. pence).
type Money int64

const (
	// MaxUnitPrice is the highest accepted price of a single dish.
	MaxUnitPrice Money = 100_000_00

	// MaxContribution is the highest accepted single contribution.
	MaxContribution Money = 1_000_000_00

	// MaxPool caps the collected total of one group order.
	MaxPool Money = 1_000_000_000_00
)

// ErrOverflow is returned by checked arithmetic whose result does not fit.
var ErrOverflow = errors.New("money: amount out of range")

// Add returns m + n, or ErrOverflow.
func (m Money) Add(n Money) (Money, error) {
	if (n > 0 && m > math.MaxInt64-n) || (n < 0 && m < math.MinInt64-n) {
		return 0, ErrOverflow
	}
	return m + n, nil
}

// Times returns m × n for a non-negative n, or ErrOverflow.
func (m Money) Times(n int) (Money, error) {
	if n < 0 {
		return 0, ErrOverflow
	}
	if n == 0 || m == 0 {
		return 0, nil
	}
	if m > math.MaxInt64/Money(n) || m < math.MinInt64/Money(n) {
		return 0, ErrOverflow
	}
	return m * Money(n), nil
}

// String formats the amount with two decimal places, e.g. "12.50".
func (m Money) String() string {
	sign := ""
	v := uint64(m)
	if m < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
