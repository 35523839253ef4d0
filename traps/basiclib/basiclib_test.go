package basiclib_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sam "github.com/rrthomas/samvm"
	"github.com/rrthomas/samvm/traps/basiclib"
)

func newState(t *testing.T) *sam.State {
	t.Helper()
	s := sam.NewState(sam.WithTrapLibrary(basiclib.New()))
	code := s.NewStack()
	data := s.NewStack()
	s.SetProgram(code, data)
	return s
}

func Test_New_allocatesAFreshStack(t *testing.T) {
	s := newState(t)
	lib := basiclib.New()

	require.NoError(t, lib.Invoke(s, basiclib.Alloc))
	data := s.CurrentData()
	require.Equal(t, 1, data.Count())

	w, err := data.Peek(0)
	require.NoError(t, err)
	assert.True(t, sam.IsStackRef(w))
}

func Test_Copy_duplicatesContents(t *testing.T) {
	s := newState(t)
	lib := basiclib.New()

	src := s.NewStack()
	require.NoError(t, src.PushInt(7))
	require.NoError(t, s.CurrentData().PushRef(src))

	require.NoError(t, lib.Invoke(s, basiclib.Copy))

	w, err := s.CurrentData().Peek(0)
	require.NoError(t, err)
	dup, err := s.ResolveRef(w)
	require.NoError(t, err)
	assert.NotSame(t, src, dup)

	dv, err := dup.Peek(0)
	require.NoError(t, err)
	got, err := sam.DecodeInt(dv)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func Test_S0_pushesRootData(t *testing.T) {
	s := newState(t)
	lib := basiclib.New()

	require.NoError(t, lib.Invoke(s, basiclib.S0))
	w, err := s.CurrentData().Peek(0)
	require.NoError(t, err)
	root, err := s.ResolveRef(w)
	require.NoError(t, err)
	assert.Same(t, s.RootData(), root)
}

func Test_Lsh(t *testing.T) {
	s := newState(t)
	lib := basiclib.New()

	require.NoError(t, s.CurrentData().PushInt(1))
	require.NoError(t, s.CurrentData().PushInt(4))
	require.NoError(t, lib.Invoke(s, basiclib.Lsh))

	w, err := s.CurrentData().Pop()
	require.NoError(t, err)
	got, err := sam.DecodeInt(w)
	require.NoError(t, err)
	assert.Equal(t, 16, got)
}

func Test_unknownFunctionFails(t *testing.T) {
	s := newState(t)
	lib := basiclib.New()
	err := lib.Invoke(s, sam.Word(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sam.ErrInvalidTrap))
}
