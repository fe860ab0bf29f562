package dobj

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"statelink.io/dobj/wire"
)

func TestPathEquality(t *testing.T) {
	a := NewPath(Elem(2, "lobby"))
	b := NewPath(Elem(2, "lobby"))
	c := NewPath(Elem(2, "arena"))
	d := NewPath(Elem(2, "lobby"), Elem(5, "x"))

	assert.Equal(t, a.Equal(b), true)
	assert.Equal(t, a.Equal(c), false)
	assert.Equal(t, a.Equal(d), false)
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, Path{}.IsRoot(), true)
	assert.Equal(t, a.IsRoot(), false)
	assert.Equal(t, d.Parent().Equal(a), true)
}

func TestPathChild(t *testing.T) {
	root := Path{}
	lobby := root.Child(2, "lobby")
	assert.Equal(t, lobby, NewPath(Elem(2, "lobby")))
	// Child copies, the parent is unchanged
	assert.Equal(t, root.IsRoot(), true)
}

func TestPathCodecRoundTrip(t *testing.T) {
	paths := []Path{
		{},
		NewPath(Elem(2, "lobby")),
		NewPath(Elem(2, "lobby"), Elem(7, "side-room")),
	}
	for _, path := range paths {
		w := wire.NewWriter()
		PathCodec.Encode(w, path)
		assert.Equal(t, w.Len(), PathCodec.Size(path))

		r := wire.NewReader(w.Bytes(), "test")
		decoded := PathCodec.Decode(r).(Path)
		assert.Equal(t, decoded.Equal(path), true)
		assert.Equal(t, r.End(), true)
	}
}
