package sam

import (
	"context"
	"fmt"
	"math"
)

// Inst is a primitive opcode, as packed (up to MaxPackedInsts at a time) into
// an Insts-tagged word. Values must fit in instShift (5) bits.
type Inst uint8

// Primitive opcodes, per spec.md §4.4's table. Order is significant: it is
// the packed encoding, not just a Go enum.
const (
	InstNop Inst = iota
	InstPop
	InstGet
	InstSet
	InstExtract
	InstInsert
	InstIget
	InstIset
	InstGo
	InstDo
	InstIf
	InstWhile
	InstNot
	InstAnd
	InstOr
	InstXor
	InstLsh
	InstRsh
	InstArsh
	InstNeg
	InstAdd
	InstMul
	InstDiv
	InstRem
	InstEq
	InstLt
	InstPush0
	InstPush1
	InstPushMinus1
	InstPush2
	InstPushMinus2
	InstHalt
)

var instNames = [...]string{
	InstNop: "NOP", InstPop: "POP", InstGet: "GET", InstSet: "SET",
	InstExtract: "EXTRACT", InstInsert: "INSERT", InstIget: "IGET", InstIset: "ISET",
	InstGo: "GO", InstDo: "DO", InstIf: "IF", InstWhile: "WHILE",
	InstNot: "NOT", InstAnd: "AND", InstOr: "OR", InstXor: "XOR",
	InstLsh: "LSH", InstRsh: "RSH", InstArsh: "ARSH",
	InstNeg: "NEG", InstAdd: "ADD", InstMul: "MUL", InstDiv: "DIV", InstRem: "REM",
	InstEq: "EQ", InstLt: "LT",
	InstPush0: "0", InstPush1: "1", InstPushMinus1: "-1", InstPush2: "2", InstPushMinus2: "-2",
	InstHalt: "HALT",
}

// String renders an opcode's mnemonic, falling back to "INST?" for
// anything outside the known table (there shouldn't be any, since encoding
// guards the range).
func (op Inst) String() string {
	if int(op) < len(instNames) && instNames[op] != "" {
		return instNames[op]
	}
	return "INST?"
}

// step executes one outer dispatch cycle: returning from an exhausted frame,
// or fetching and executing one word, per spec.md §4.4.
func (s *State) step(ctx context.Context) error {
	f := s.frame
	if f.atEnd() {
		return s.doReturn()
	}

	s.steps++
	if s.stepLimit > 0 && s.steps > s.stepLimit {
		return errf(ErrNoMemory, "step limit %d exceeded", s.stepLimit)
	}

	ir, err := f.Code.Peek(f.PC)
	if err != nil {
		return err
	}
	f.PC++

	if s.trace != nil {
		s.trace(traceFetch(f, ir))
	}

	switch {
	case IsFloat(ir), IsInt(ir), IsStackRef(ir):
		err = f.Data.Push(ir)
	case IsAtom(ir):
		err = errf(ErrInvalidOpcode, "atom %#x in executable position", uint(ir))
	case IsTrap(ir):
		err = s.dispatchTrap(decodeTrapFunction(ir))
	case IsInsts(ir):
		err = s.execPacked(decodeInsts(ir))
	default:
		err = errf(ErrInvalidOpcode, "word %#x is not executable", uint(ir))
	}
	if err != nil {
		return err
	}

	if s.eventPoll != nil {
		s.eventPoll()
	}
	return ctx.Err()
}

// execPacked runs the queue of primitive opcodes packed into w (already
// shifted past the Insts tag), LSB-first, until exhausted or a
// control-transfer opcode fires — per spec.md §4.5, the remainder of the
// queue is then discarded rather than continuing to execute.
func (s *State) execPacked(w Word) error {
	for w != 0 {
		op := Inst(w & instMask)
		w >>= instShift
		if s.trace != nil {
			s.trace(traceInst(s.frame, op))
		}
		transferred, err := s.execInst(op)
		if err != nil {
			return err
		}
		if transferred {
			return nil
		}
	}
	return nil
}

// execInst runs one primitive opcode against the current frame. transferred
// reports whether it altered the current frame/program counter (DO, GO, IF,
// WHILE, HALT), in which case any remaining packed opcodes in the same word
// must not run.
func (s *State) execInst(op Inst) (transferred bool, err error) {
	f := s.frame
	switch op {
	case InstNop:
		return false, nil

	case InstPop:
		_, err = f.Data.Pop()
		return false, err

	case InstGet:
		idx, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		addr, err := f.Data.Item(idx)
		if err != nil {
			return false, err
		}
		val, err := f.Data.Peek(addr)
		if err != nil {
			return false, err
		}
		return false, f.Data.Push(val)

	case InstSet:
		idx, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		val, err := f.Data.Pop()
		if err != nil {
			return false, err
		}
		addr, err := f.Data.Item(idx)
		if err != nil {
			return false, err
		}
		return false, f.Data.Poke(addr, val)

	case InstExtract:
		idx, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		addr, err := f.Data.Item(idx)
		if err != nil {
			return false, err
		}
		return false, f.Data.Extract(addr)

	case InstInsert:
		idx, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		addr, err := f.Data.Item(idx)
		if err != nil {
			return false, err
		}
		return false, f.Data.Insert(addr)

	case InstIget:
		st, idx, err := popStackAndIndex(f.Data, s)
		if err != nil {
			return false, err
		}
		defer st.Unref()
		addr, err := st.Item(idx)
		if err != nil {
			return false, err
		}
		val, err := st.Peek(addr)
		if err != nil {
			return false, err
		}
		return false, f.Data.Push(val)

	case InstIset:
		// pop order: stack reference, index, value.
		st, idx, err := popStackAndIndex(f.Data, s)
		if err != nil {
			return false, err
		}
		defer st.Unref()
		val, err := f.Data.Pop()
		if err != nil {
			return false, err
		}
		addr, err := st.Item(idx)
		if err != nil {
			return false, err
		}
		return false, st.Poke(addr, val)

	case InstGo:
		st, err := popStackRaw(f.Data, s)
		if err != nil {
			return false, err
		}
		// Ref the new code reference before Unref-ing the vacated slot's
		// claim, so a stack referenced only from this slot never
		// transiently drops to a zero refcount (see popRaw).
		st.Ref()
		f.Code.Unref()
		f.Code = st
		f.PC = 0
		st.Unref()
		return true, nil

	case InstDo:
		st, err := popStackRaw(f.Data, s)
		if err != nil {
			return false, err
		}
		s.frame = newFrame(f, st, f.Data)
		st.Unref()
		return true, nil

	case InstIf:
		elseRef, err := f.Data.popRaw()
		if err != nil {
			return false, err
		}
		thenRef, err := f.Data.popRaw()
		if err != nil {
			return false, err
		}
		flag, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		chosen, discarded := elseRef, thenRef
		if flag != 0 {
			chosen, discarded = thenRef, elseRef
		}
		st, err := s.resolveRef(chosen)
		if err != nil {
			return false, err
		}
		s.frame = newFrame(f, st, f.Data)
		st.Unref()
		if IsStackRef(discarded) {
			if dst, derr := s.resolveRef(discarded); derr == nil {
				dst.Unref()
			}
		}
		return true, nil

	case InstWhile:
		flag, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		if flag == 0 {
			return true, s.doReturn()
		}
		return false, nil

	case InstNot:
		a, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		return false, f.Data.Push(EncodeInt(^a))

	case InstAnd:
		return false, intBinOp(f.Data, func(a, b int) int { return a & b })
	case InstOr:
		return false, intBinOp(f.Data, func(a, b int) int { return a | b })
	case InstXor:
		return false, intBinOp(f.Data, func(a, b int) int { return a ^ b })

	case InstLsh:
		return false, shiftOp(f.Data, shiftLeft)
	case InstRsh:
		return false, shiftOp(f.Data, shiftRightLogical)
	case InstArsh:
		return false, shiftOp(f.Data, shiftRightArith)

	case InstNeg:
		return false, arithUnary(f.Data)
	case InstAdd:
		return false, arithBinary(f.Data, func(a, b int) int { return a + b }, func(a, b float64) float64 { return a + b })
	case InstMul:
		return false, arithBinary(f.Data, func(a, b int) int { return a * b }, func(a, b float64) float64 { return a * b })
	case InstDiv:
		return false, arithBinary(f.Data, divInt, func(a, b float64) float64 { return a / b })
	case InstRem:
		return false, arithBinary(f.Data, remInt, math.Mod)

	case InstEq:
		a, err := f.Data.Pop()
		if err != nil {
			return false, err
		}
		b, err := f.Data.Pop()
		if err != nil {
			return false, err
		}
		return false, f.Data.Push(boolWord(a == b))

	case InstLt:
		return false, ltOp(f.Data)

	case InstPush0:
		return false, f.Data.Push(EncodeInt(0))
	case InstPush1:
		return false, f.Data.Push(EncodeInt(1))
	case InstPushMinus1:
		return false, f.Data.Push(EncodeInt(-1))
	case InstPush2:
		return false, f.Data.Push(EncodeInt(2))
	case InstPushMinus2:
		return false, f.Data.Push(EncodeInt(-2))

	case InstHalt:
		ret, err := popInt(f.Data)
		if err != nil {
			return false, err
		}
		return true, haltSignal{ret: ret}

	default:
		return false, errf(ErrInvalidOpcode, "unknown packed opcode %d", op)
	}
}

// doReturn pops the current frame from the chain. If the chain is already at
// its root, the program has finished: it returns a haltSignal with return
// code 0 (spec.md §4.4 step 1, "If the chain empties, terminate with Halt").
func (s *State) doReturn() error {
	f := s.frame
	if f.Parent == nil {
		return haltSignal{ret: 0}
	}
	s.frame = f.Parent
	f.release()
	return nil
}

// dispatchTrap selects a library by the function number's base prefix and
// forwards the call, per spec.md §4.6.
func (s *State) dispatchTrap(function Word) error {
	for _, lib := range s.traps {
		if function&trapBaseMask == lib.Base() {
			return lib.Invoke(s, function&^trapBaseMask)
		}
	}
	return errf(ErrInvalidTrap, "no library for trap function %#x", uint(function))
}

func boolWord(b bool) Word {
	if b {
		return EncodeInt(-1)
	}
	return EncodeInt(0)
}

func popInt(st *Stack) (int, error) {
	w, err := st.Pop()
	if err != nil {
		return 0, err
	}
	return DecodeInt(w)
}

// popStackRaw pops a stack-reference word without refcount adjustment and
// resolves it, for callers that will immediately re-home the reference (see
// Stack.popRaw).
func popStackRaw(st *Stack, s *State) (*Stack, error) {
	w, err := st.popRaw()
	if err != nil {
		return nil, err
	}
	return s.resolveRef(w)
}

// popStackAndIndex pops a stack reference then a signed index, per
// spec.md §4.4's IGET/ISET pop order ("a stack reference s and index"). The
// reference is popped with popRaw, so the claim its data-stack slot held
// passes to the caller, which borrows the stack for the duration of the
// instruction and Unrefs it when done. A plain Pop would drop a sole
// reference, freeing the stack before the caller could use it.
func popStackAndIndex(st *Stack, s *State) (*Stack, int, error) {
	target, err := popStackRaw(st, s)
	if err != nil {
		return nil, 0, err
	}
	idx, err := popInt(st)
	if err != nil {
		target.Unref()
		return nil, 0, err
	}
	return target, idx, nil
}

func intBinOp(st *Stack, f func(a, b int) int) error {
	b, err := popInt(st)
	if err != nil {
		return err
	}
	a, err := popInt(st)
	if err != nil {
		return err
	}
	return st.Push(EncodeInt(f(a, b)))
}

func shiftLeft(v Word, n uint) Word {
	if n >= UWordBits {
		return 0
	}
	return v << n
}

func shiftRightLogical(v Word, n uint) Word {
	if n >= UWordBits {
		return 0
	}
	return v >> n
}

func shiftRightArith(v Word, n uint) Word {
	if n >= UWordBits {
		signBit := Word(1) << (UWordBits - 1)
		if v&signBit != 0 {
			return ^Word(0)
		}
		return 0
	}
	return arshift(v, n)
}

func shiftOp(st *Stack, f func(Word, uint) Word) error {
	n, err := popInt(st)
	if err != nil {
		return err
	}
	v, err := popInt(st)
	if err != nil {
		return err
	}
	result := f(Word(v), uint(n))
	return st.Push(EncodeInt(int(result)))
}

// divInt guards division by zero (returns 0) and the INT_MIN/-1 overflow
// case (returns INT_MIN), per spec.md §4.4.
func divInt(a, b int) int {
	if b == 0 {
		return 0
	}
	if a == intMin() && b == -1 {
		return intMin()
	}
	return a / b
}

// remInt guards division by zero by returning the dividend unchanged.
func remInt(a, b int) int {
	if b == 0 {
		return a
	}
	return a % b
}

func arithUnary(st *Stack) error {
	w, err := st.Pop()
	if err != nil {
		return err
	}
	if IsFloat(w) {
		return st.Push(EncodeFloat(-DecodeFloat(w)))
	}
	a, err := DecodeInt(w)
	if err != nil {
		return err
	}
	return st.Push(EncodeInt(-a))
}

func arithBinary(st *Stack, fi func(a, b int) int, ff func(a, b float64) float64) error {
	bw, err := st.Pop()
	if err != nil {
		return err
	}
	aw, err := st.Pop()
	if err != nil {
		return err
	}
	if IsFloat(bw) || IsFloat(aw) {
		return st.Push(EncodeFloat(ff(DecodeFloat(aw), DecodeFloat(bw))))
	}
	a, err := DecodeInt(aw)
	if err != nil {
		return err
	}
	b, err := DecodeInt(bw)
	if err != nil {
		return err
	}
	return st.Push(EncodeInt(fi(a, b)))
}

func ltOp(st *Stack) error {
	bw, err := st.Pop()
	if err != nil {
		return err
	}
	aw, err := st.Pop()
	if err != nil {
		return err
	}
	if IsFloat(bw) || IsFloat(aw) {
		return st.Push(boolWord(DecodeFloat(aw) < DecodeFloat(bw)))
	}
	a, err := DecodeInt(aw)
	if err != nil {
		return err
	}
	b, err := DecodeInt(bw)
	if err != nil {
		return err
	}
	return st.Push(boolWord(a < b))
}

func traceFetch(f *Frame, ir Word) string {
	return fmt.Sprintf("fetch %#x @pc=%d", uint(ir), f.PC-1)
}

func traceInst(f *Frame, op Inst) string {
	return "exec " + op.String()
}
