package wire

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func roundTrip(t *testing.T, codec *Codec, v any) any {
	w := NewWriter()
	codec.Encode(w, v)
	// encoder output length equals the pre-computed size
	assert.Equal(t, w.Len(), codec.Size(v))

	r := NewReader(w.Bytes(), "test")
	decoded := codec.Decode(r)
	assert.Equal(t, r.End(), true)
	return decoded
}

func TestPrimitiveRoundTrips(t *testing.T) {
	assert.Equal(t, roundTrip(t, BoolCodec, true), true)
	assert.Equal(t, roundTrip(t, BoolCodec, false), false)
	assert.Equal(t, roundTrip(t, Uint8Codec, uint8(200)), uint8(200))
	assert.Equal(t, roundTrip(t, Uint16Codec, uint16(65535)), uint16(65535))
	assert.Equal(t, roundTrip(t, Uint32Codec, uint32(1<<31)), uint32(1<<31))
	assert.Equal(t, roundTrip(t, CharCodec, 'ä'), 'ä')
	assert.Equal(t, roundTrip(t, Int8Codec, int8(-128)), int8(-128))
	assert.Equal(t, roundTrip(t, Int16Codec, int16(-32768)), int16(-32768))
	assert.Equal(t, roundTrip(t, Int32Codec, int32(-1)), int32(-1))
	assert.Equal(t, roundTrip(t, Float32Codec, float32(3.5)), float32(3.5))
	assert.Equal(t, roundTrip(t, Float64Codec, 2.25), 2.25)
	assert.Equal(t, roundTrip(t, StringCodec, "héllo"), "héllo")
	assert.Equal(t, roundTrip(t, StringCodec, ""), "")
	assert.Equal(t, roundTrip(t, Vec3Codec, Vec3{1, 2, 3}), Vec3{1, 2, 3})

	guid := NewGuid()
	assert.Equal(t, roundTrip(t, GuidCodec, guid), guid)
}

func TestEnumCodec(t *testing.T) {
	type color uint32
	codec := EnumCodec[color]()
	assert.Equal(t, roundTrip(t, codec, color(7)), color(7))
}

func TestTupleRoundTrip(t *testing.T) {
	codec := TupleCodec(Uint32Codec, StringCodec, Float64Codec)
	v := []any{uint32(5), "key", 1.5}
	assert.Equal(t, roundTrip(t, codec, v), v)
}

func TestTupleEmptyFrame(t *testing.T) {
	codec := TupleCodec(Uint32Codec, StringCodec)
	// a zero length frame is a valid zero-initialised tuple
	r := NewReader([]byte{0}, "test")
	assert.Equal(t, codec.Decode(r), []any{uint32(0), ""})
	assert.Equal(t, r.End(), true)
}

func TestListRoundTrip(t *testing.T) {
	codec := ListCodec(StringCodec)
	v := []any{"a", "b", "c"}
	assert.Equal(t, roundTrip(t, codec, v), v)
	assert.Equal(t, roundTrip(t, codec, []any{}), []any{})
	assert.Equal(t, roundTrip(t, codec, nil), nil)
}

func TestListNullForms(t *testing.T) {
	codec := ListCodec(Uint32Codec)
	// a zero length frame decodes as null
	r := NewReader([]byte{0}, "test")
	assert.Equal(t, codec.Decode(r), nil)
	assert.Equal(t, r.End(), true)
}

func TestMapRoundTrip(t *testing.T) {
	codec := MapCodec(StringCodec, Int32Codec)
	v := map[any]any{"alice": int32(7), "bob": int32(-1)}
	assert.Equal(t, roundTrip(t, codec, v), v)
	assert.Equal(t, roundTrip(t, codec, nil), nil)
}

type testPoint struct {
	X float32
	Y float32
	Label string
}

var testPointSpec = &StructSpec{
	Name: "wire.testPoint",
	New: func() any {
		return &testPoint{}
	},
	Fields: []FieldSpec{
		{
			Id: 1,
			Name: "x",
			Codec: Float32Codec,
			Get: func(record any) any {
				return record.(*testPoint).X
			},
			Set: func(record any, value any) {
				record.(*testPoint).X = value.(float32)
			},
		},
		{
			Id: 2,
			Name: "y",
			Codec: Float32Codec,
			Get: func(record any) any {
				return record.(*testPoint).Y
			},
			Set: func(record any, value any) {
				record.(*testPoint).Y = value.(float32)
			},
		},
		{
			Id: 3,
			Name: "label",
			Codec: StringCodec,
			Get: func(record any) any {
				return record.(*testPoint).Label
			},
			Set: func(record any, value any) {
				record.(*testPoint).Label = value.(string)
			},
		},
	},
}

func TestStructRoundTrip(t *testing.T) {
	codec := StructCodec(testPointSpec)
	v := &testPoint{X: 1, Y: 2, Label: "origin-ish"}
	assert.Equal(t, roundTrip(t, codec, v), v)
}

func TestStructSkipsUnknownFields(t *testing.T) {
	codec := StructCodec(testPointSpec)
	v := &testPoint{X: 1, Y: 2, Label: "p"}

	// re-frame with an extra unknown field appended
	w := NewWriter()
	codec.Encode(w, v)
	r := NewReader(w.Bytes(), "test")
	inner := append([]byte{}, r.ReadFrame()...)

	extra := NewWriter()
	extra.WriteRaw(inner)
	extra.WriteTag(99, VarInt)
	extra.WriteVarUint(42)

	framed := NewWriter()
	framed.WriteVarUint(uint64(extra.Len()))
	framed.WriteRaw(extra.Bytes())

	r = NewReader(framed.Bytes(), "test")
	assert.Equal(t, codec.Decode(r), v)
	assert.Equal(t, r.End(), true)
}

func TestStructWireTypeMismatch(t *testing.T) {
	codec := StructCodec(testPointSpec)

	// field 3 encoded as a varint instead of a string
	inner := NewWriter()
	inner.WriteTag(1, FourByte)
	inner.WriteFloat32(5)
	inner.WriteTag(3, VarInt)
	inner.WriteVarUint(1234)

	framed := NewWriter()
	framed.WriteVarUint(uint64(inner.Len()))
	framed.WriteRaw(inner.Bytes())

	r := NewReader(framed.Bytes(), "test")
	decoded := codec.Decode(r).(*testPoint)
	assert.Equal(t, decoded.X, float32(5))
	// mismatched field recovered as the default
	assert.Equal(t, decoded.Label, "")
	assert.Equal(t, r.End(), true)
}

type testShape interface {
	isShape()
}

type testCircle struct {
	Radius float32
}

type testSquare struct {
	Side float32
}

func (self *testCircle) isShape() {}
func (self *testSquare) isShape() {}

var testShapeCodec = StructCodec(&StructSpec{
	Name: "wire.testShape",
	Subtypes: []*StructSpec{
		{
			Name: "wire.testCircle",
			TypeId: 1,
			New: func() any {
				return &testCircle{}
			},
			Matches: func(v any) bool {
				_, ok := v.(*testCircle)
				return ok
			},
			Fields: []FieldSpec{
				{
					Id: 1,
					Name: "radius",
					Codec: Float32Codec,
					Get: func(record any) any {
						return record.(*testCircle).Radius
					},
					Set: func(record any, value any) {
						record.(*testCircle).Radius = value.(float32)
					},
				},
			},
		},
		{
			Name: "wire.testSquare",
			TypeId: 2,
			New: func() any {
				return &testSquare{}
			},
			Matches: func(v any) bool {
				_, ok := v.(*testSquare)
				return ok
			},
			Fields: []FieldSpec{
				{
					Id: 1,
					Name: "side",
					Codec: Float32Codec,
					Get: func(record any) any {
						return record.(*testSquare).Side
					},
					Set: func(record any, value any) {
						record.(*testSquare).Side = value.(float32)
					},
				},
			},
		},
	},
})

func TestPolymorphicRoundTrip(t *testing.T) {
	assert.Equal(t, roundTrip(t, testShapeCodec, &testCircle{Radius: 2}), &testCircle{Radius: 2})
	assert.Equal(t, roundTrip(t, testShapeCodec, &testSquare{Side: 3}), &testSquare{Side: 3})
	assert.Equal(t, roundTrip(t, testShapeCodec, nil), nil)
}

func TestPolymorphicUnknownSubtype(t *testing.T) {
	inner := NewWriter()
	inner.WriteVarUint(9)
	inner.WriteTag(1, FourByte)
	inner.WriteFloat32(2)

	framed := NewWriter()
	framed.WriteVarUint(uint64(inner.Len()))
	framed.WriteRaw(inner.Bytes())
	framed.WriteVarUint(77)

	// unknown subtype yields null with the reader at the frame end
	r := NewReader(framed.Bytes(), "test")
	assert.Equal(t, testShapeCodec.Decode(r), nil)
	assert.Equal(t, r.ReadVarUint(), uint64(77))
}

func TestCodecCacheMemoises(t *testing.T) {
	a := StructCodec(testPointSpec)
	b := StructCodec(testPointSpec)
	if a != b {
		t.Fatalf("codec cache returned distinct codecs for one type")
	}
}

func TestDocRoundTrips(t *testing.T) {
	assert.Equal(t, Uint32Codec.FromDoc(Uint32Codec.ToDoc(uint32(9))), uint32(9))
	assert.Equal(t, Vec3Codec.FromDoc(Vec3Codec.ToDoc(Vec3{1, 2, 3})), Vec3{1, 2, 3})

	guid := NewGuid()
	assert.Equal(t, GuidCodec.FromDoc(GuidCodec.ToDoc(guid)), guid)

	pointCodec := StructCodec(testPointSpec)
	point := &testPoint{X: 1, Y: 2, Label: "p"}
	assert.Equal(t, pointCodec.FromDoc(pointCodec.ToDoc(point)), point)
}
