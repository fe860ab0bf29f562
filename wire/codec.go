package wire

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/oklog/ulid/v2"
)

// Codec is the pair of closures (plus the mirrored size calculator) built
// once per type from its schema metadata. Encode and Decode handle the
// self-delimiting value form of the type. ToDoc and FromDoc translate between
// the in-memory value and its document-store representation.
type Codec struct {
	Wire WireType
	Encode func(w *Writer, v any)
	Decode func(r *Reader) any
	Size func(v any) int
	ToDoc func(v any) any
	FromDoc func(v any) any

	ZeroValue any
}

// Zero returns the default value yielded on skip or mismatch.
func (self *Codec) Zero() any {
	return self.ZeroValue
}

// DecodeChecked decodes a value whose wire type was read from a field tag.
// A mismatch warns, consumes the tagged wire type, and yields the default.
func (self *Codec) DecodeChecked(r *Reader, wireType WireType) any {
	if wireType != self.Wire {
		glog.Warningf("[codec]%s: wire type mismatch: have %s want %s", r.Context(), wireType, self.Wire)
		r.Skip(wireType)
		return self.ZeroValue
	}
	return self.Decode(r)
}

// EncodeBytes is a convenience for one-off encodes outside a larger stream.
func (self *Codec) EncodeBytes(v any) []byte {
	w := NewWriterSize(self.Size(v))
	self.Encode(w, v)
	return w.Bytes()
}

func identityDoc(v any) any {
	return v
}

// Vec3 is a three-component single-precision vector,
// framed as exactly 12 bytes on the wire.
type Vec3 [3]float32

// Guid is a 16-byte unique id, framed as exactly 16 bytes on the wire.
// New guids are ulids so that ids from one source sort by create time.
type Guid [16]byte

func NewGuid() Guid {
	return Guid(ulid.Make())
}

func GuidFromBytes(b []byte) (Guid, error) {
	if len(b) != 16 {
		return Guid{}, fmt.Errorf("guid must be 16 bytes: %d", len(b))
	}
	return Guid(b), nil
}

func (self Guid) Bytes() []byte {
	return self[0:16]
}

func (self Guid) String() string {
	return ulid.ULID(self).String()
}

var BoolCodec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteBool(v.(bool))
	},
	Decode: func(r *Reader) any {
		return r.ReadBool()
	},
	Size: func(v any) int {
		return 1
	},
	ToDoc: identityDoc,
	FromDoc: func(v any) any {
		b, _ := v.(bool)
		return b
	},
	ZeroValue: false,
}

var Uint8Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarUint(uint64(v.(uint8)))
	},
	Decode: func(r *Reader) any {
		return uint8(r.ReadVarUint())
	},
	Size: func(v any) int {
		return VarUintSize(uint64(v.(uint8)))
	},
	ToDoc: func(v any) any {
		return int64(v.(uint8))
	},
	FromDoc: func(v any) any {
		return uint8(docUint(v))
	},
	ZeroValue: uint8(0),
}

var Uint16Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarUint(uint64(v.(uint16)))
	},
	Decode: func(r *Reader) any {
		return uint16(r.ReadVarUint())
	},
	Size: func(v any) int {
		return VarUintSize(uint64(v.(uint16)))
	},
	ToDoc: func(v any) any {
		return int64(v.(uint16))
	},
	FromDoc: func(v any) any {
		return uint16(docUint(v))
	},
	ZeroValue: uint16(0),
}

var Uint32Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarUint(uint64(v.(uint32)))
	},
	Decode: func(r *Reader) any {
		return uint32(r.ReadVarUint())
	},
	Size: func(v any) int {
		return VarUintSize(uint64(v.(uint32)))
	},
	ToDoc: func(v any) any {
		return int64(v.(uint32))
	},
	FromDoc: func(v any) any {
		return uint32(docUint(v))
	},
	ZeroValue: uint32(0),
}

var CharCodec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarUint(uint64(uint32(v.(rune))))
	},
	Decode: func(r *Reader) any {
		return rune(r.ReadVarUint())
	},
	Size: func(v any) int {
		return VarUintSize(uint64(uint32(v.(rune))))
	},
	ToDoc: func(v any) any {
		return string(v.(rune))
	},
	FromDoc: func(v any) any {
		s, _ := v.(string)
		for _, c := range s {
			return c
		}
		return rune(0)
	},
	ZeroValue: rune(0),
}

var Int8Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarInt(int64(v.(int8)))
	},
	Decode: func(r *Reader) any {
		return int8(r.ReadVarInt())
	},
	Size: func(v any) int {
		return VarIntSize(int64(v.(int8)))
	},
	ToDoc: func(v any) any {
		return int64(v.(int8))
	},
	FromDoc: func(v any) any {
		return int8(docInt(v))
	},
	ZeroValue: int8(0),
}

var Int16Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarInt(int64(v.(int16)))
	},
	Decode: func(r *Reader) any {
		return int16(r.ReadVarInt())
	},
	Size: func(v any) int {
		return VarIntSize(int64(v.(int16)))
	},
	ToDoc: func(v any) any {
		return int64(v.(int16))
	},
	FromDoc: func(v any) any {
		return int16(docInt(v))
	},
	ZeroValue: int16(0),
}

var Int32Codec = &Codec{
	Wire: VarInt,
	Encode: func(w *Writer, v any) {
		w.WriteVarInt(int64(v.(int32)))
	},
	Decode: func(r *Reader) any {
		return int32(r.ReadVarInt())
	},
	Size: func(v any) int {
		return VarIntSize(int64(v.(int32)))
	},
	ToDoc: func(v any) any {
		return int64(v.(int32))
	},
	FromDoc: func(v any) any {
		return int32(docInt(v))
	},
	ZeroValue: int32(0),
}

var Float32Codec = &Codec{
	Wire: FourByte,
	Encode: func(w *Writer, v any) {
		w.WriteFloat32(v.(float32))
	},
	Decode: func(r *Reader) any {
		return r.ReadFloat32()
	},
	Size: func(v any) int {
		return 4
	},
	ToDoc: func(v any) any {
		return float64(v.(float32))
	},
	FromDoc: func(v any) any {
		return float32(docFloat(v))
	},
	ZeroValue: float32(0),
}

var Float64Codec = &Codec{
	Wire: EightByte,
	Encode: func(w *Writer, v any) {
		w.WriteFloat64(v.(float64))
	},
	Decode: func(r *Reader) any {
		return r.ReadFloat64()
	},
	Size: func(v any) int {
		return 8
	},
	ToDoc: identityDoc,
	FromDoc: func(v any) any {
		return docFloat(v)
	},
	ZeroValue: float64(0),
}

var StringCodec = &Codec{
	Wire: ByteLength,
	Encode: func(w *Writer, v any) {
		w.WriteString(v.(string))
	},
	Decode: func(r *Reader) any {
		return r.ReadString()
	},
	Size: func(v any) int {
		s := v.(string)
		return VarUintSize(uint64(len(s))) + len(s)
	},
	ToDoc: identityDoc,
	FromDoc: func(v any) any {
		s, _ := v.(string)
		return s
	},
	ZeroValue: "",
}

var Vec3Codec = &Codec{
	Wire: ByteLength,
	Encode: func(w *Writer, v any) {
		vec := v.(Vec3)
		w.WriteVarUint(12)
		w.WriteFloat32(vec[0])
		w.WriteFloat32(vec[1])
		w.WriteFloat32(vec[2])
	},
	Decode: func(r *Reader) any {
		sub := r.SubReader()
		if sub.Remaining() != 12 {
			if sub.Remaining() != 0 {
				glog.Warningf("[codec]%s: bad vec3 length %d", r.Context(), sub.Remaining())
			}
			return Vec3{}
		}
		return Vec3{
			sub.ReadFloat32(),
			sub.ReadFloat32(),
			sub.ReadFloat32(),
		}
	},
	Size: func(v any) int {
		return 1 + 12
	},
	ToDoc: func(v any) any {
		vec := v.(Vec3)
		return []any{float64(vec[0]), float64(vec[1]), float64(vec[2])}
	},
	FromDoc: func(v any) any {
		elems, ok := v.([]any)
		if !ok || len(elems) != 3 {
			return Vec3{}
		}
		return Vec3{
			float32(docFloat(elems[0])),
			float32(docFloat(elems[1])),
			float32(docFloat(elems[2])),
		}
	},
	ZeroValue: Vec3{},
}

var GuidCodec = &Codec{
	Wire: ByteLength,
	Encode: func(w *Writer, v any) {
		guid := v.(Guid)
		w.WriteVarUint(16)
		w.WriteRaw(guid.Bytes())
	},
	Decode: func(r *Reader) any {
		sub := r.SubReader()
		if sub.Remaining() != 16 {
			if sub.Remaining() != 0 {
				glog.Warningf("[codec]%s: bad guid length %d", r.Context(), sub.Remaining())
			}
			return Guid{}
		}
		guid, _ := GuidFromBytes(sub.buf)
		return guid
	},
	Size: func(v any) int {
		return 1 + 16
	},
	ToDoc: func(v any) any {
		return v.(Guid).String()
	},
	FromDoc: func(v any) any {
		s, ok := v.(string)
		if !ok {
			return Guid{}
		}
		id, err := ulid.Parse(s)
		if err != nil {
			return Guid{}
		}
		return Guid(id)
	},
	ZeroValue: Guid{},
}

// EnumCodec adapts a named enum type to its varint wire form.
func EnumCodec[T ~uint32]() *Codec {
	return &Codec{
		Wire: VarInt,
		Encode: func(w *Writer, v any) {
			w.WriteVarUint(uint64(uint32(v.(T))))
		},
		Decode: func(r *Reader) any {
			return T(r.ReadVarUint())
		},
		Size: func(v any) int {
			return VarUintSize(uint64(uint32(v.(T))))
		},
		ToDoc: func(v any) any {
			return int64(uint32(v.(T)))
		},
		FromDoc: func(v any) any {
			return T(docUint(v))
		},
		ZeroValue: T(0),
	}
}

func docUint(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case int64:
		return uint64(t)
	case int:
		return uint64(t)
	case uint32:
		return uint64(t)
	case int32:
		return uint64(t)
	case float64:
		return uint64(t)
	default:
		return 0
	}
}

func docInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case uint64:
		return int64(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func docFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
