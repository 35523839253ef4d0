package sam

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_pushPeekPop(t *testing.T) {
	s := NewState()
	st := s.NewStack()
	st.Ref()

	require.NoError(t, st.PushInt(10))
	require.NoError(t, st.PushInt(20))
	require.NoError(t, st.PushInt(30))
	assert.Equal(t, 3, st.Count())

	v, err := st.Peek(0)
	require.NoError(t, err)
	got, err := DecodeInt(v)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	top, err := st.Pop()
	require.NoError(t, err)
	got, err = DecodeInt(top)
	require.NoError(t, err)
	assert.Equal(t, 30, got)
	assert.Equal(t, 2, st.Count())
}

func Test_popUnderflow(t *testing.T) {
	s := NewState()
	st := s.NewStack()
	_, err := st.Pop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func Test_extractInsertIsInverse(t *testing.T) {
	s := NewState()
	st := s.NewStack()
	st.Ref()

	require.NoError(t, st.PushInt(10))
	require.NoError(t, st.PushInt(20))
	require.NoError(t, st.PushInt(30))

	// extract item 0 (bottom) to the top, then insert it back at 0.
	addr, err := st.Item(0)
	require.NoError(t, err)
	require.NoError(t, st.Extract(addr))
	require.NoError(t, st.Insert(0))

	for i, want := range []int{10, 20, 30} {
		w, err := st.Peek(i)
		require.NoError(t, err)
		got, err := DecodeInt(w)
		require.NoError(t, err)
		assert.Equal(t, want, got, "slot %d after extract/insert round trip", i)
	}
}

func Test_itemNegativeIndexing(t *testing.T) {
	s := NewState()
	st := s.NewStack()
	require.NoError(t, st.PushInt(1))
	require.NoError(t, st.PushInt(2))
	require.NoError(t, st.PushInt(3))

	addr, err := st.Item(-1)
	require.NoError(t, err)
	assert.Equal(t, 2, addr, "item -1 is the topmost slot")

	_, err = st.Item(-4)
	require.Error(t, err, "out of range index must fail")
	assert.True(t, errors.Is(err, ErrStackOverflow))
}

func Test_refcountingFreesOnLastUnref(t *testing.T) {
	s := NewState()
	st := s.NewStack()
	handle := st.handle

	st.Ref()
	_, stillThere := s.stacks[handle]
	require.True(t, stillThere)

	st.Unref()
	_, found := s.stacks[handle]
	assert.False(t, found, "stack must be forgotten once its refcount reaches zero")
}

func Test_copyIsDeepButRefsAreShared(t *testing.T) {
	s := NewState()
	inner := s.NewStack()
	inner.Ref()
	require.NoError(t, inner.PushInt(99))

	outer := s.NewStack()
	outer.Ref()
	require.NoError(t, outer.PushRef(inner))
	assert.Equal(t, 2, inner.nrefs, "outer's push must have taken a ref")

	dup, err := outer.Copy()
	require.NoError(t, err)
	dup.Ref()
	assert.Equal(t, 3, inner.nrefs, "copying a ref slot must take another ref on the target")

	w, err := dup.Peek(0)
	require.NoError(t, err)
	require.True(t, IsStackRef(w))
	target, err := s.resolveRef(w)
	require.NoError(t, err)
	assert.Same(t, inner, target, "copied ref slot must still denote the same stack")
}

func Test_pokeAdjustsOutgoingAndIncomingRefs(t *testing.T) {
	s := NewState()
	a := s.NewStack()
	a.Ref()
	b := s.NewStack()
	b.Ref()

	holder := s.NewStack()
	holder.Ref()
	require.NoError(t, holder.PushRef(a))
	assert.Equal(t, 2, a.nrefs)

	require.NoError(t, holder.Poke(0, s.RefWord(b)))
	assert.Equal(t, 1, a.nrefs, "poking over a's slot must release a")
	assert.Equal(t, 2, b.nrefs, "poking in b's ref must take a ref on b")
}
