package graphicslib_test

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sam "github.com/rrthomas/samvm"
	"github.com/rrthomas/samvm/traps/graphicslib"
)

func newState(t *testing.T, disp graphicslib.Display) (*sam.State, graphicslib.Library) {
	t.Helper()
	lib := graphicslib.New(disp)
	s := sam.NewState(sam.WithTrapLibrary(lib))
	code := s.NewStack()
	data := s.NewStack()
	s.SetProgram(code, data)
	return s, lib
}

func Test_setDotDrawsOnTheBackingImage(t *testing.T) {
	disp := graphicslib.NewImageDisplay(10, 10)
	s, lib := newState(t, disp)
	data := s.CurrentData()

	// SetDot pops color, x, y in that order (color on top), so push the
	// reverse: y, x, color.
	require.NoError(t, data.PushInt(3)) // y
	require.NoError(t, data.PushInt(2)) // x
	require.NoError(t, data.PushInt(disp.White()))
	require.NoError(t, lib.Invoke(s, graphicslib.SetDot))

	got := disp.Image().At(2, 3)
	r, g, b, _ := got.RGBA()
	wr, wg, wb, _ := color.White.RGBA()
	assert.Equal(t, wr, r)
	assert.Equal(t, wg, g)
	assert.Equal(t, wb, b)
}

func Test_clearScreenFillsBlack(t *testing.T) {
	disp := graphicslib.NewImageDisplay(4, 4)
	s, lib := newState(t, disp)

	require.NoError(t, lib.Invoke(s, graphicslib.ClearScreen))

	got := disp.Image().At(1, 1)
	r, g, b, _ := got.RGBA()
	br, bg, bb, _ := color.Black.RGBA()
	assert.Equal(t, br, r)
	assert.Equal(t, bg, g)
	assert.Equal(t, bb, b)
}

func Test_displayDimensions(t *testing.T) {
	disp := graphicslib.NewImageDisplay(7, 9)
	s, lib := newState(t, disp)
	data := s.CurrentData()

	require.NoError(t, lib.Invoke(s, graphicslib.DisplayWidth))
	w, err := data.Pop()
	require.NoError(t, err)
	got, err := sam.DecodeInt(w)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	require.NoError(t, lib.Invoke(s, graphicslib.DisplayHeight))
	w, err = data.Pop()
	require.NoError(t, err)
	got, err = sam.DecodeInt(w)
	require.NoError(t, err)
	assert.Equal(t, 9, got)
}

func Test_fillRectCoversArea(t *testing.T) {
	disp := graphicslib.NewImageDisplay(10, 10)
	s, lib := newState(t, disp)
	data := s.CurrentData()

	// pop order is color, x1, y1, x0, y0 (see pop5): push so color ends on top.
	require.NoError(t, data.PushInt(0)) // y0
	require.NoError(t, data.PushInt(0)) // x0
	require.NoError(t, data.PushInt(3)) // y1
	require.NoError(t, data.PushInt(3)) // x1
	require.NoError(t, data.PushInt(disp.White()))
	require.NoError(t, lib.Invoke(s, graphicslib.FillRect))

	got := disp.Image().At(2, 2)
	r, _, _, _ := got.RGBA()
	wr, _, _, _ := color.White.RGBA()
	assert.Equal(t, wr, r)
}
