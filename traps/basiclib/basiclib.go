// Package basiclib implements the basic trap library, grounded on
// original_source/libsam/traps_basic.c: stack introspection and sub-stack
// allocation operations that the distilled core spec treats only as an
// external trap collaborator.
package basiclib

import "github.com/rrthomas/samvm"

// Base is this library's trap function base, SAM_TRAP_BASIC_BASE in the
// original source.
const Base sam.Word = 0x0

// Function numbers within Base, matching traps_basic.c's enum order. Alloc
// is named distinctly from the New constructor below to avoid shadowing it.
const (
	S0 sam.Word = iota
	Quote
	Alloc
	Copy
	Ret
	Lsh
	Rsh
	Arsh
)

// Library implements sam.TrapLibrary for the basic trap set.
type Library struct{}

// New returns a basic trap library ready to register with sam.WithTrapLibrary.
func New() Library { return Library{} }

// Base reports this library's trap base.
func (Library) Base() sam.Word { return Base }

// Invoke dispatches one basic-library function.
func (Library) Invoke(state *sam.State, function sam.Word) error {
	data := state.CurrentData()
	switch function {
	case S0:
		// Push a reference to the root (outermost frame's) data stack.
		return data.PushRef(state.RootData())

	case Quote:
		// Read the next code word verbatim, skipping normal evaluation.
		w, err := state.QuoteNext()
		if err != nil {
			return err
		}
		return data.Push(w)

	case Alloc:
		// Allocate an empty sub-stack and push a reference to it.
		st := state.NewStack()
		return data.PushRef(st)

	case Copy:
		w, err := data.Peek(data.Count() - 1)
		if err != nil {
			return err
		}
		src, err := state.ResolveRef(w)
		if err != nil {
			return err
		}
		// Hold src across the pop, which may drop its last reference.
		src.Ref()
		defer src.Unref()
		if _, err := data.Pop(); err != nil {
			return err
		}
		dup, err := src.Copy()
		if err != nil {
			return err
		}
		return data.PushRef(dup)

	case Ret:
		return state.Return()

	case Lsh, Rsh, Arsh:
		return shift(data, function)

	default:
		return sam.VMError{Code: sam.ErrInvalidTrap, Detail: "unknown basiclib function"}
	}
}

// shift duplicates the LSH/RSH/ARSH packed instructions as callable traps,
// for programs that invoke them indirectly rather than via a packed word.
func shift(data *sam.Stack, function sam.Word) error {
	n, err := popInt(data)
	if err != nil {
		return err
	}
	v, err := popInt(data)
	if err != nil {
		return err
	}
	var result int
	switch function {
	case Lsh:
		result = int(sam.Word(v) << uint(n))
	case Rsh:
		result = int(sam.Word(v) >> uint(n))
	case Arsh:
		result = v >> uint(n)
	}
	return data.PushInt(result)
}

func popInt(data *sam.Stack) (int, error) {
	w, err := data.Pop()
	if err != nil {
		return 0, err
	}
	return sam.DecodeInt(w)
}
