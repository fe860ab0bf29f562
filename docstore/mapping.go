package docstore

import (
	"fmt"
	"strings"

	"statelink.io/dobj/dobj"
	"statelink.io/dobj/wire"
)

// KeyForPath builds the external document key for an object path by joining
// `{collection_field_name}${collection_field_id}/{key}` segments from the
// root. The walk materialises intermediate schema objects through each
// collection so the field names are available. Must run on the owning loop.
func KeyForPath(root *dobj.DObject, path dobj.Path) (string, error) {
	if path.IsRoot() {
		return "root", nil
	}
	segments := []string{}
	current := root
	for _, elem := range path {
		field, ok := current.Field(elem.CollectionId)
		if !ok {
			return "", fmt.Errorf("path %s: no field %d on %s", path, elem.CollectionId, current.Path())
		}
		collection, ok := field.(*dobj.Collection)
		if !ok {
			return "", fmt.Errorf("path %s: field %d of %s is not a collection", path, elem.CollectionId, current.Path())
		}
		segments = append(segments, wire.DocFieldName(collection.Name(), collection.Id()), elem.Key)
		current = collection.Materialize(elem.Key)
	}
	return strings.Join(segments, "/"), nil
}

// UpdateForDelta maps one writer-side mutation to its incremental document
// update. Sets serialise as `{element: true}` maps and maps as
// `{key: value}` so element-level changes never require a read.
func UpdateForDelta(delta dobj.Delta) (map[string]any, bool) {
	docName := delta.Field.DocName()
	switch delta.Type {
	case dobj.MessageValueChange:
		return map[string]any{docName: delta.Value}, true
	case dobj.MessageSetAdd:
		return map[string]any{docName + "." + delta.Key: true}, true
	case dobj.MessageSetRemove:
		return map[string]any{docName + "." + delta.Key: Delete}, true
	case dobj.MessageMapSet:
		return map[string]any{docName + "." + delta.Key: delta.Value}, true
	case dobj.MessageMapRemove:
		return map[string]any{docName + "." + delta.Key: Delete}, true
	default:
		// queue traffic is ephemeral
		return nil, false
	}
}
