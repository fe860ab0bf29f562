package dobj

import (
	"fmt"
	"strings"

	"statelink.io/dobj/wire"
)

// PathElem names one step of a path: the collection field id on the current
// object and the string key within that collection.
type PathElem struct {
	CollectionId uint32
	Key string
}

func Elem(collectionId uint32, key string) PathElem {
	return PathElem{
		CollectionId: collectionId,
		Key: key,
	}
}

// Path locates an object relative to the root as an ordered sequence of
// (collection id, key) pairs. The empty sequence names the root. Paths are
// value types: two equal paths are interchangeable.
type Path []PathElem

func NewPath(elems ...PathElem) Path {
	return Path(elems)
}

func (self Path) IsRoot() bool {
	return len(self) == 0
}

func (self Path) Child(collectionId uint32, key string) Path {
	child := make(Path, len(self)+1)
	copy(child, self)
	child[len(self)] = Elem(collectionId, key)
	return child
}

func (self Path) Parent() Path {
	if len(self) == 0 {
		return nil
	}
	return self[:len(self)-1]
}

func (self Path) Equal(other Path) bool {
	if len(self) != len(other) {
		return false
	}
	for i := range self {
		if self[i] != other[i] {
			return false
		}
	}
	return true
}

// String is also the handle table key, so it must be injective.
func (self Path) String() string {
	if len(self) == 0 {
		return "/"
	}
	parts := make([]string, len(self))
	for i, elem := range self {
		// quoted so that a '/' inside a key cannot mimic an element boundary
		parts[i] = fmt.Sprintf("%d:%q", elem.CollectionId, elem.Key)
	}
	return "/" + strings.Join(parts, "/")
}

var pathElemCodec = wire.TupleCodec(wire.Uint32Codec, wire.StringCodec)
var pathListCodec = wire.ListCodec(pathElemCodec)

// PathCodec carries a path as a list of (collection id, key) 2-tuples.
var PathCodec = &wire.Codec{
	Wire: wire.ByteLength,
	Encode: func(w *wire.Writer, v any) {
		pathListCodec.Encode(w, pathToList(v.(Path)))
	},
	Decode: func(r *wire.Reader) any {
		return pathFromList(pathListCodec.Decode(r))
	},
	Size: func(v any) int {
		return pathListCodec.Size(pathToList(v.(Path)))
	},
	ToDoc: func(v any) any {
		return v.(Path).String()
	},
	FromDoc: func(v any) any {
		// paths are not stored in documents
		return Path{}
	},
	ZeroValue: Path{},
}

func pathToList(path Path) []any {
	elems := make([]any, len(path))
	for i, elem := range path {
		elems[i] = []any{elem.CollectionId, elem.Key}
	}
	return elems
}

func pathFromList(v any) Path {
	if v == nil {
		return Path{}
	}
	elems := v.([]any)
	path := make(Path, len(elems))
	for i, elem := range elems {
		pair := elem.([]any)
		path[i] = Elem(pair[0].(uint32), pair[1].(string))
	}
	return path
}
