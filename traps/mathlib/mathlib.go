// Package mathlib implements the math trap library, grounded on
// original_source/libsam/traps_math.c/.h: integer/float conversion and
// transcendental functions. spec.md §4.6 specifies this set only by stack
// effect, leaving the actual math to the standard library.
package mathlib

import (
	"math"

	"github.com/rrthomas/samvm"
)

// Base is SAM_TRAP_MATH_BASE in the original source.
const Base sam.Word = 0x100

// Function numbers within Base, matching traps_math.c's enum order.
const (
	I2F sam.Word = iota
	F2I
	Pow
	Sin
	Cos
	Deg
	Rad
)

// Library implements sam.TrapLibrary for the math trap set.
type Library struct{}

// New returns a math trap library ready to register with sam.WithTrapLibrary.
func New() Library { return Library{} }

// Base reports this library's trap base.
func (Library) Base() sam.Word { return Base }

// Invoke dispatches one math-library function.
func (Library) Invoke(state *sam.State, function sam.Word) error {
	data := state.CurrentData()
	switch function {
	case I2F:
		i, err := popInt(data)
		if err != nil {
			return err
		}
		return data.PushFloat(float64(i))

	case F2I:
		f, err := popFloat(data)
		if err != nil {
			return err
		}
		return data.PushInt(int(f))

	case Pow:
		return pow(data)

	case Sin:
		return unary(data, math.Sin)
	case Cos:
		return unary(data, math.Cos)
	case Deg:
		// radians to degrees
		return unary(data, func(a float64) float64 { return a * (180.0 / math.Pi) })
	case Rad:
		// degrees to radians
		return unary(data, func(a float64) float64 { return a * (math.Pi / 180.0) })

	default:
		return sam.VMError{Code: sam.ErrInvalidTrap, Detail: "unknown mathlib function"}
	}
}

// pow dispatches on the operands' tags: if either is a float, POW uses
// math.Pow; otherwise integer POW uses square-and-multiply (powi in the
// original).
func pow(data *sam.Stack) error {
	bw, err := data.Pop()
	if err != nil {
		return err
	}
	aw, err := data.Pop()
	if err != nil {
		return err
	}
	if sam.IsFloat(bw) || sam.IsFloat(aw) {
		return data.PushFloat(math.Pow(sam.DecodeFloat(aw), sam.DecodeFloat(bw)))
	}
	b, err := sam.DecodeInt(bw)
	if err != nil {
		return err
	}
	a, err := sam.DecodeInt(aw)
	if err != nil {
		return err
	}
	return data.PushInt(powi(a, b))
}

// powi is integer exponentiation by squaring, matching traps_math.c's powi.
// Negative exponents yield 0, matching integer truncation of the
// corresponding fractional result.
func powi(base, exp int) int {
	if exp < 0 {
		return 0
	}
	result := 1
	for exp > 0 {
		if exp&1 != 0 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func unary(data *sam.Stack, f func(float64) float64) error {
	a, err := popFloat(data)
	if err != nil {
		return err
	}
	return data.PushFloat(f(a))
}

func popInt(data *sam.Stack) (int, error) {
	w, err := data.Pop()
	if err != nil {
		return 0, err
	}
	return sam.DecodeInt(w)
}

func popFloat(data *sam.Stack) (float64, error) {
	w, err := data.Pop()
	if err != nil {
		return 0, err
	}
	return sam.DecodeFloat(w), nil
}
