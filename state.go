package sam

import (
	"context"
	"errors"

	"github.com/rrthomas/samvm/internal/panicerr"
)

// TraceFunc is the shape of the optional per-instruction trace hook
// (SPEC_FULL.md §2 "Logging / debug hooks"), modeled on gothird's logf
// callbacks. It receives a preformatted line with no trailing newline.
type TraceFunc func(line string)

// TrapLibrary answers one trap library: a fixed-size range of function
// numbers under a single base, per spec.md §4.6.
type TrapLibrary interface {
	// Base is this library's SAM_TRAP_*_BASE value: the trap function
	// number with its low bits masked off.
	Base() Word
	// Invoke runs function (already masked to the library's local range)
	// against state's current frame.
	Invoke(state *State, function Word) error
}

// EventPollFunc is called once after every fetched instruction (never
// mid-instruction), per spec.md §5; it must not mutate stacks. Used e.g. by
// a graphics trap library's Display to pump a UI event loop.
type EventPollFunc func()

// State is the root of one VM instance: the current frame chain, the
// stack-handle table that backs stack-reference words, the registered trap
// libraries, and optional trace/poll hooks.
type State struct {
	frame *Frame
	root  *Frame

	stacks     map[uint32]*Stack
	nextHandle uint32

	traps []TrapLibrary

	trace     TraceFunc
	eventPoll EventPollFunc

	stepLimit int
	steps     int
}

// Option configures a State at construction time, following the teacher's
// functional-options pattern (VMOption/options/noption in api.go/options.go).
type Option func(*State)

// WithTrapLibrary registers a trap library. Libraries are tried in
// registration order is not significant: each claims a disjoint Base().
func WithTrapLibrary(lib TrapLibrary) Option {
	return func(s *State) { s.traps = append(s.traps, lib) }
}

// WithTrace installs a trace hook called once per fetched instruction and
// once per packed sub-opcode.
func WithTrace(fn TraceFunc) Option {
	return func(s *State) { s.trace = fn }
}

// WithEventPoll installs a hook called once after each fetched instruction.
func WithEventPoll(fn EventPollFunc) Option {
	return func(s *State) { s.eventPoll = fn }
}

// WithStepLimit bounds the number of instructions Run will execute before
// failing with ErrNoMemory-shaped exhaustion; zero (the default) means
// unbounded. Primarily for tests against runaway programs.
func WithStepLimit(n int) Option {
	return func(s *State) { s.stepLimit = n }
}

// NewState allocates an empty state with an empty root frame, per
// state_new/sam_state_new. Callers install the program with SetProgram
// before calling Run.
func NewState(opts ...Option) *State {
	s := &State{stacks: make(map[uint32]*Stack)}
	for _, opt := range opts {
		opt(s)
	}
	code := s.NewStack()
	data := s.NewStack()
	s.frame = newFrame(nil, code, data)
	s.root = s.frame
	return s
}

// SetProgram installs code and data as the root frame's stacks, per
// state_set_program. Both must already have been obtained from this same
// State (e.g. via NewStack).
func (s *State) SetProgram(code, data *Stack) {
	s.frame.release()
	s.frame = newFrame(nil, code, data)
	s.root = s.frame
}

// CurrentData returns the data stack of the currently executing frame, for
// trap libraries invoked through TrapLibrary.Invoke.
func (s *State) CurrentData() *Stack { return s.frame.Data }

// CurrentCode returns the code stack of the currently executing frame.
func (s *State) CurrentCode() *Stack { return s.frame.Code }

// RootData returns the data stack of the outermost frame, the S0 basic trap's
// operand.
func (s *State) RootData() *Stack { return s.root.Data }

// QuoteNext reads the next word from the current frame's code stack without
// executing it, advancing the program counter — the QUOTE basic trap's
// primitive.
func (s *State) QuoteNext() (Word, error) {
	f := s.frame
	if f.atEnd() {
		return 0, errf(ErrInvalidAddress, "QUOTE at end of code")
	}
	w, err := f.Code.Peek(f.PC)
	if err != nil {
		return 0, err
	}
	f.PC++
	return w, nil
}

// Return forces a return from the current frame, as if its program counter
// had reached the end of its code stack.
func (s *State) Return() error { return s.doReturn() }

// NewStack allocates an empty stack and assigns it a handle in this state's
// reference table, so it can later be turned into a reference word via
// PushRef.
func (s *State) NewStack() *Stack {
	s.nextHandle++
	handle := s.nextHandle
	st := &Stack{owner: s, typ: StackArray, handle: handle}
	s.stacks[handle] = st
	return st
}

// ResolveRef looks up the stack a reference word denotes, for trap libraries
// that need to dereference a stack-reference operand.
func (s *State) ResolveRef(w Word) (*Stack, error) { return s.resolveRef(w) }

// resolveRef looks up the stack a reference word denotes.
func (s *State) resolveRef(w Word) (*Stack, error) {
	handle, err := decodeRef(w)
	if err != nil {
		return nil, err
	}
	st, ok := s.stacks[handle]
	if !ok {
		return nil, errf(ErrOrphanStack, "dangling stack reference %#x", uint(w))
	}
	return st, nil
}

// forgetStack removes a stack from the handle table once it has been freed
// (refcount reached zero), so dangling references correctly resolve to
// ErrOrphanStack instead of resurrecting a freed stack's memory.
func (s *State) forgetStack(st *Stack) {
	delete(s.stacks, st.handle)
}

// RefWord returns the Stack-reference word denoting st. It does not itself
// adjust st's refcount — the caller is expected to immediately Push or Poke
// the returned word somewhere, which performs the increment.
func (s *State) RefWord(st *Stack) Word {
	return encodeRef(st.handle)
}

// haltSignal is the internal control-flow error step() returns when HALT
// executes or the frame chain empties; it carries the return code that Run
// packs into the high bits of its result word.
type haltSignal struct {
	ret int
}

func (haltSignal) Error() string { return ErrHalt.String() }

// Run executes the installed program to completion, per spec.md's
// `run(state) -> word`. The returned Word's low RetShift bits are the error
// code; on a clean Halt the remaining high bits carry the program's return
// code. err is nil only when the run halted cleanly; any other termination
// (a fatal structural error, or ctx being done) is reported through err too.
//
// The whole run is wrapped in panicerr.Recover, so a bug in a trap library
// (trap libraries run with full access to the data stack and can misuse it)
// surfaces as a regular error rather than taking down the host process.
func (s *State) Run(ctx context.Context) (Word, error) {
	var result Word
	err := panicerr.Recover("sam", func() error {
		var runErr error
		result, runErr = s.runLoop(ctx)
		return runErr
	})
	return result, err
}

func (s *State) runLoop(ctx context.Context) (Word, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Word(ErrHalt), err
		}
		err := s.step(ctx)
		if err == nil {
			continue
		}
		var halt haltSignal
		if errors.As(err, &halt) {
			return Word(ErrHalt) | Word(uint(halt.ret))<<RetShift, nil
		}
		var verr VMError
		if errors.As(err, &verr) {
			return Word(verr.Code), err
		}
		return Word(ErrInvalidOpcode), err
	}
}
