// Package graphicslib implements the graphics trap-dispatch boundary,
// grounded on original_source/libsam/sam_traps.h's drawing-operation
// enumeration. spec.md treats the graphics trap implementation itself as an
// opaque external collaborator, so this package stops at the Display
// interface and a library that forwards trap functions to one; it does not
// implement a real windowing backend (see ImageDisplay for the one stand-in
// concrete implementation, backed by the standard image package).
package graphicslib

import "github.com/rrthomas/samvm"

// Base is SAM_TRAP_GRAPHICS_BASE, disjoint from basiclib's and mathlib's.
const Base sam.Word = 0x200

// Function numbers within Base, matching sam_traps.h's order. Coordinates
// use origin (0,0) at the top-left corner.
const (
	Black sam.Word = iota
	White
	DisplayWidth
	DisplayHeight
	ClearScreen
	SetDot
	DrawLine
	DrawRect
	DrawRoundRect
	FillRect
	DrawCircle
	FillCircle
	DrawBitmap
)

// Display is the collaborator a host provides to receive drawing calls; it
// is the entire surface spec.md leaves opaque. Colors are host-defined small
// integers (Black/White below are two fixed values every Display must
// support; a real backend may support more via other means).
type Display interface {
	Black() int
	White() int
	DisplayWidth() int
	DisplayHeight() int
	ClearScreen()
	SetDot(x, y, color int)
	DrawLine(x0, y0, x1, y1, color int)
	DrawRect(x0, y0, x1, y1, color int)
	DrawRoundRect(x0, y0, x1, y1, radius, color int)
	FillRect(x0, y0, x1, y1, color int)
	DrawCircle(x, y, radius, color int)
	FillCircle(x, y, radius, color int)
	// DrawBitmap draws a w*h 1-bit-per-pixel bitmap, MSB first per row, read
	// from a sub-stack of packed words starting at bits.
	DrawBitmap(x, y, w, h int, bits *sam.Stack, color int)
}

// Library implements sam.TrapLibrary, forwarding each function to a Display.
type Library struct {
	Display Display
}

// New returns a graphics trap library forwarding to disp.
func New(disp Display) Library { return Library{Display: disp} }

// Base reports this library's trap base.
func (Library) Base() sam.Word { return Base }

// Invoke dispatches one graphics-library function to the Display, per
// spec.md §4.6 ("graphics... trap libraries are external collaborators
// invoked through this interface").
func (l Library) Invoke(state *sam.State, function sam.Word) error {
	data := state.CurrentData()
	d := l.Display
	switch function {
	case Black:
		return data.PushInt(d.Black())
	case White:
		return data.PushInt(d.White())
	case DisplayWidth:
		return data.PushInt(d.DisplayWidth())
	case DisplayHeight:
		return data.PushInt(d.DisplayHeight())
	case ClearScreen:
		d.ClearScreen()
		return nil
	case SetDot:
		color, x, y, err := pop3(data)
		if err != nil {
			return err
		}
		d.SetDot(x, y, color)
		return nil
	case DrawLine:
		color, x1, y1, x0, y0, err := pop5(data)
		if err != nil {
			return err
		}
		d.DrawLine(x0, y0, x1, y1, color)
		return nil
	case DrawRect:
		color, x1, y1, x0, y0, err := pop5(data)
		if err != nil {
			return err
		}
		d.DrawRect(x0, y0, x1, y1, color)
		return nil
	case DrawRoundRect:
		color, radius, x1, y1, x0, y0, err := pop6(data)
		if err != nil {
			return err
		}
		d.DrawRoundRect(x0, y0, x1, y1, radius, color)
		return nil
	case FillRect:
		color, x1, y1, x0, y0, err := pop5(data)
		if err != nil {
			return err
		}
		d.FillRect(x0, y0, x1, y1, color)
		return nil
	case DrawCircle:
		color, radius, y, x, err := pop4(data)
		if err != nil {
			return err
		}
		d.DrawCircle(x, y, radius, color)
		return nil
	case FillCircle:
		color, radius, y, x, err := pop4(data)
		if err != nil {
			return err
		}
		d.FillCircle(x, y, radius, color)
		return nil
	case DrawBitmap:
		colorW, err := data.Pop()
		if err != nil {
			return err
		}
		color, err := sam.DecodeInt(colorW)
		if err != nil {
			return err
		}
		bitsW, err := data.Pop()
		if err != nil {
			return err
		}
		bits, err := state.ResolveRef(bitsW)
		if err != nil {
			return err
		}
		h, w, y, x, err := pop4(data)
		if err != nil {
			return err
		}
		d.DrawBitmap(x, y, w, h, bits, color)
		return nil
	default:
		return sam.VMError{Code: sam.ErrInvalidTrap, Detail: "unknown graphicslib function"}
	}
}

func popInt(data *sam.Stack) (int, error) {
	w, err := data.Pop()
	if err != nil {
		return 0, err
	}
	return sam.DecodeInt(w)
}

func pop3(data *sam.Stack) (a, b, c int, err error) {
	if a, err = popInt(data); err != nil {
		return
	}
	if b, err = popInt(data); err != nil {
		return
	}
	c, err = popInt(data)
	return
}

func pop4(data *sam.Stack) (a, b, c, d int, err error) {
	if a, err = popInt(data); err != nil {
		return
	}
	if b, err = popInt(data); err != nil {
		return
	}
	if c, err = popInt(data); err != nil {
		return
	}
	d, err = popInt(data)
	return
}

func pop5(data *sam.Stack) (a, b, c, d, e int, err error) {
	if a, err = popInt(data); err != nil {
		return
	}
	if b, err = popInt(data); err != nil {
		return
	}
	if c, err = popInt(data); err != nil {
		return
	}
	if d, err = popInt(data); err != nil {
		return
	}
	e, err = popInt(data)
	return
}

func pop6(data *sam.Stack) (a, b, c, d, e, f int, err error) {
	if a, err = popInt(data); err != nil {
		return
	}
	if b, err = popInt(data); err != nil {
		return
	}
	if c, err = popInt(data); err != nil {
		return
	}
	if d, err = popInt(data); err != nil {
		return
	}
	if e, err = popInt(data); err != nil {
		return
	}
	f, err = popInt(data)
	return
}
