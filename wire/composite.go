package wire

import (
	"fmt"
	"strconv"

	"github.com/golang/glog"
)

// TupleCodec builds the codec for an N-tuple. The value form is a frame
// holding one varint of packed component wire types (element 0 most
// significant) followed by each component's value form. Values are []any of
// length N.
func TupleCodec(components ...*Codec) *Codec {
	wireTypes := make([]WireType, len(components))
	for i, component := range components {
		wireTypes[i] = component.Wire
	}
	packed := PackWireTypes(wireTypes...)
	packedSize := VarUintSize(packed)

	zero := make([]any, len(components))
	for i, component := range components {
		zero[i] = component.ZeroValue
	}

	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			elems := v.([]any)
			size := packedSize
			for i, component := range components {
				size += component.Size(elems[i])
			}
			w.WriteVarUint(uint64(size))
			w.WriteVarUint(packed)
			for i, component := range components {
				component.Encode(w, elems[i])
			}
		},
		Decode: func(r *Reader) any {
			sub := r.SubReader()
			if sub.Remaining() == 0 {
				glog.Warningf("[codec]%s: empty tuple frame", r.Context())
				return append([]any{}, zero...)
			}
			have := UnpackWireTypes(sub.ReadVarUint(), len(components))
			elems := make([]any, len(components))
			for i, component := range components {
				if sub.End() {
					glog.Warningf("[codec]%s: undersize tuple frame", r.Context())
					elems[i] = component.ZeroValue
					continue
				}
				elems[i] = component.DecodeChecked(sub, have[i])
			}
			if !sub.End() {
				glog.Warningf("[codec]%s: oversize tuple frame: %d trailing bytes", r.Context(), sub.Remaining())
			}
			return elems
		},
		Size: func(v any) int {
			elems := v.([]any)
			size := packedSize
			for i, component := range components {
				size += component.Size(elems[i])
			}
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			elems := v.([]any)
			doc := make([]any, len(components))
			for i, component := range components {
				doc[i] = component.ToDoc(elems[i])
			}
			return doc
		},
		FromDoc: func(v any) any {
			docElems, ok := v.([]any)
			elems := make([]any, len(components))
			for i, component := range components {
				if ok && i < len(docElems) {
					elems[i] = component.FromDoc(docElems[i])
				} else {
					elems[i] = component.ZeroValue
				}
			}
			return elems
		},
		ZeroValue: zero,
	}
}

// ListCodec builds the codec for arrays, lists, sets, and bags. The value
// form is a frame holding a varint id-wire-type header (id 0 null, id 1
// non-null) followed by the elements, all sharing one wire type. A zero
// length frame also decodes as null. Values are []any, nil for null.
func ListCodec(element *Codec) *Codec {
	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			if v == nil {
				header := Tag(0, element.Wire)
				w.WriteVarUint(uint64(VarUintSize(header)))
				w.WriteVarUint(header)
				return
			}
			elems := v.([]any)
			header := Tag(1, element.Wire)
			size := VarUintSize(header)
			for _, elem := range elems {
				size += element.Size(elem)
			}
			w.WriteVarUint(uint64(size))
			w.WriteVarUint(header)
			for _, elem := range elems {
				element.Encode(w, elem)
			}
		},
		Decode: func(r *Reader) any {
			sub := r.SubReader()
			if sub.Remaining() == 0 {
				return nil
			}
			id, elementWire := SplitTag(sub.ReadVarUint())
			if id == 0 {
				if !sub.End() {
					glog.Warningf("[codec]%s: null collection with %d trailing bytes", r.Context(), sub.Remaining())
				}
				return nil
			}
			if id != 1 {
				glog.Warningf("[codec]%s: bad collection header id %d", r.Context(), id)
				return nil
			}
			elems := []any{}
			for !sub.End() {
				elems = append(elems, element.DecodeChecked(sub, elementWire))
			}
			return elems
		},
		Size: func(v any) int {
			if v == nil {
				header := Tag(0, element.Wire)
				size := VarUintSize(header)
				return VarUintSize(uint64(size)) + size
			}
			elems := v.([]any)
			size := VarUintSize(Tag(1, element.Wire))
			for _, elem := range elems {
				size += element.Size(elem)
			}
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			if v == nil {
				return nil
			}
			elems := v.([]any)
			doc := make([]any, len(elems))
			for i, elem := range elems {
				doc[i] = element.ToDoc(elem)
			}
			return doc
		},
		FromDoc: func(v any) any {
			docElems, ok := v.([]any)
			if !ok {
				return nil
			}
			elems := make([]any, len(docElems))
			for i, docElem := range docElems {
				elems[i] = element.FromDoc(docElem)
			}
			return elems
		},
		ZeroValue: nil,
	}
}

// MapCodec builds the codec for dictionaries. The value form is a frame
// holding a varint id-key-value header (id 0 null, id 1 non-null) followed by
// alternating key/value pairs. Values are map[any]any, nil for null.
func MapCodec(key *Codec, value *Codec) *Codec {
	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			if v == nil {
				header := MapTag(0, key.Wire, value.Wire)
				w.WriteVarUint(uint64(VarUintSize(header)))
				w.WriteVarUint(header)
				return
			}
			entries := v.(map[any]any)
			header := MapTag(1, key.Wire, value.Wire)
			size := VarUintSize(header)
			for entryKey, entryValue := range entries {
				size += key.Size(entryKey)
				size += value.Size(entryValue)
			}
			w.WriteVarUint(uint64(size))
			w.WriteVarUint(header)
			for entryKey, entryValue := range entries {
				key.Encode(w, entryKey)
				value.Encode(w, entryValue)
			}
		},
		Decode: func(r *Reader) any {
			sub := r.SubReader()
			if sub.Remaining() == 0 {
				return nil
			}
			id, keyWire, valueWire := SplitMapTag(sub.ReadVarUint())
			if id == 0 {
				if !sub.End() {
					glog.Warningf("[codec]%s: null dictionary with %d trailing bytes", r.Context(), sub.Remaining())
				}
				return nil
			}
			if id != 1 {
				glog.Warningf("[codec]%s: bad dictionary header id %d", r.Context(), id)
				return nil
			}
			entries := map[any]any{}
			for !sub.End() {
				entryKey := key.DecodeChecked(sub, keyWire)
				if sub.End() {
					glog.Warningf("[codec]%s: dictionary with dangling key", r.Context())
					break
				}
				entries[entryKey] = value.DecodeChecked(sub, valueWire)
			}
			return entries
		},
		Size: func(v any) int {
			if v == nil {
				header := MapTag(0, key.Wire, value.Wire)
				size := VarUintSize(header)
				return VarUintSize(uint64(size)) + size
			}
			entries := v.(map[any]any)
			size := VarUintSize(MapTag(1, key.Wire, value.Wire))
			for entryKey, entryValue := range entries {
				size += key.Size(entryKey)
				size += value.Size(entryValue)
			}
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			if v == nil {
				return nil
			}
			entries := v.(map[any]any)
			doc := map[string]any{}
			for entryKey, entryValue := range entries {
				doc[DocKeyString(key.ToDoc(entryKey))] = value.ToDoc(entryValue)
			}
			return doc
		},
		FromDoc: func(v any) any {
			docEntries, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			entries := map[any]any{}
			for docKey, docValue := range docEntries {
				entries[DocKeyParse(key, docKey)] = value.FromDoc(docValue)
			}
			return entries
		},
		ZeroValue: nil,
	}
}

// DocKeyString renders a map key or set element as a document field name.
func DocKeyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case Guid:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// DocKeyParse recovers a typed key from its document field name.
func DocKeyParse(key *Codec, s string) any {
	switch key.ZeroValue.(type) {
	case string:
		return s
	case Guid:
		return key.FromDoc(s)
	case bool:
		return s == "true"
	case uint8:
		u, _ := strconv.ParseUint(s, 10, 8)
		return uint8(u)
	case uint16:
		u, _ := strconv.ParseUint(s, 10, 16)
		return uint16(u)
	case uint32:
		u, _ := strconv.ParseUint(s, 10, 32)
		return uint32(u)
	case int8:
		i, _ := strconv.ParseInt(s, 10, 8)
		return int8(i)
	case int16:
		i, _ := strconv.ParseInt(s, 10, 16)
		return int16(i)
	case int32:
		i, _ := strconv.ParseInt(s, 10, 32)
		return int32(i)
	default:
		i, _ := strconv.ParseInt(s, 10, 64)
		return key.FromDoc(i)
	}
}
