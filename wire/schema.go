package wire

import (
	"github.com/golang/glog"
)

// FieldSpec declares one record field: its stable numeric id, its document
// name, its codec, and accessors over the owning record value.
type FieldSpec struct {
	Id uint32
	Name string
	Codec *Codec
	Get func(record any) any
	Set func(record any, value any)
}

// StructSpec is the schema metadata for a record type. A spec with Subtypes
// is a polymorphic base: the concrete subtype's TypeId prefixes the frame and
// selects the reader, 0 meaning null. A Nullable spec without subtypes writes
// its TypeId, or the fixed value 1 when it has none (0 for null), before the
// field stream. A spec that is
// neither is an always-present inline struct.
type StructSpec struct {
	Name string
	// New returns a zero record to decode into. nil for pure base specs.
	New func() any
	Fields []FieldSpec
	// TypeId is the concrete subtype id within the base's closed set
	TypeId uint32
	Nullable bool
	Subtypes []*StructSpec
	// Matches reports whether a value is an instance of this concrete
	// subtype. Required on each member of a Subtypes set.
	Matches func(v any) bool
}

func (self *StructSpec) field(id uint32) *FieldSpec {
	for i := range self.Fields {
		if self.Fields[i].Id == id {
			return &self.Fields[i]
		}
	}
	return nil
}

// fieldsSize is the unframed size of the field stream.
func (self *StructSpec) fieldsSize(record any) int {
	size := 0
	for i := range self.Fields {
		field := &self.Fields[i]
		size += VarUintSize(Tag(field.Id, field.Codec.Wire))
		size += field.Codec.Size(field.Get(record))
	}
	return size
}

// encodeFields writes the unframed field stream,
// each field preceded by its id-wire-type tag.
func (self *StructSpec) encodeFields(w *Writer, record any) {
	for i := range self.Fields {
		field := &self.Fields[i]
		w.WriteTag(field.Id, field.Codec.Wire)
		field.Codec.Encode(w, field.Get(record))
	}
}

// decodeFields consumes the field stream to the end of the frame.
// Unknown field ids are skipped using the wire type alone.
func (self *StructSpec) decodeFields(r *Reader, record any) {
	for !r.End() {
		id, wireType := SplitTag(r.ReadVarUint())
		field := self.field(id)
		if field == nil {
			glog.V(2).Infof("[codec]%s: %s skipping unknown field %d", r.Context(), self.Name, id)
			r.Skip(wireType)
			continue
		}
		field.Set(record, field.Codec.DecodeChecked(r, wireType))
	}
}

func (self *StructSpec) toDoc(record any) map[string]any {
	doc := map[string]any{}
	for i := range self.Fields {
		field := &self.Fields[i]
		doc[DocFieldName(field.Name, field.Id)] = field.Codec.ToDoc(field.Get(record))
	}
	return doc
}

func (self *StructSpec) fromDoc(doc map[string]any, record any) {
	for i := range self.Fields {
		field := &self.Fields[i]
		if docValue, ok := doc[DocFieldName(field.Name, field.Id)]; ok {
			field.Set(record, field.Codec.FromDoc(docValue))
		}
	}
}

// StructCodec builds and memoises the codec for a record type from its
// schema metadata. The value form depends on the spec:
//
//   - inline struct: frame of concatenated tagged fields
//   - simple class: frame of varint 0 for null, else its TypeId (1 when
//     unset) then the fields
//   - polymorphic class: frame of the concrete subtype id, 0 for null;
//     an unknown id seeks to the frame end and yields null with a warning
func StructCodec(spec *StructSpec) *Codec {
	return registerCodec(spec.Name, func() *Codec {
		if 0 < len(spec.Subtypes) {
			return polyCodec(spec)
		}
		if spec.Nullable {
			return classCodec(spec)
		}
		return structCodec(spec)
	})
}

func structCodec(spec *StructSpec) *Codec {
	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			size := spec.fieldsSize(v)
			w.WriteVarUint(uint64(size))
			spec.encodeFields(w, v)
		},
		Decode: func(r *Reader) any {
			record := spec.New()
			spec.decodeFields(r.SubReader(), record)
			return record
		},
		Size: func(v any) int {
			size := spec.fieldsSize(v)
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			return spec.toDoc(v)
		},
		FromDoc: func(v any) any {
			record := spec.New()
			if doc, ok := v.(map[string]any); ok {
				spec.fromDoc(doc, record)
			}
			return record
		},
		ZeroValue: spec.New(),
	}
}

func classCodec(spec *StructSpec) *Codec {
	// a class with a declared id writes it verbatim; otherwise the fixed
	// value 1 precedes the field stream. 0 always means null.
	presentId := uint64(1)
	if spec.TypeId != 0 {
		presentId = uint64(spec.TypeId)
	}
	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			if v == nil {
				w.WriteVarUint(1)
				w.WriteVarUint(0)
				return
			}
			size := VarUintSize(presentId) + spec.fieldsSize(v)
			w.WriteVarUint(uint64(size))
			w.WriteVarUint(presentId)
			spec.encodeFields(w, v)
		},
		Decode: func(r *Reader) any {
			sub := r.SubReader()
			if sub.Remaining() == 0 {
				return nil
			}
			if sub.ReadVarUint() == 0 {
				return nil
			}
			record := spec.New()
			spec.decodeFields(sub, record)
			return record
		},
		Size: func(v any) int {
			if v == nil {
				return 2
			}
			size := VarUintSize(presentId) + spec.fieldsSize(v)
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			if v == nil {
				return nil
			}
			return spec.toDoc(v)
		},
		FromDoc: func(v any) any {
			doc, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			record := spec.New()
			spec.fromDoc(doc, record)
			return record
		},
		ZeroValue: nil,
	}
}

func polyCodec(base *StructSpec) *Codec {
	subtypes := map[uint32]*StructSpec{}
	for _, subtype := range base.Subtypes {
		if subtype.TypeId == 0 {
			panic("subtype id 0 is reserved for null: " + subtype.Name)
		}
		if _, ok := subtypes[subtype.TypeId]; ok {
			panic("duplicate subtype id in " + base.Name)
		}
		subtypes[subtype.TypeId] = subtype
	}

	// concrete spec for an encoded value
	specFor := func(v any) *StructSpec {
		for _, subtype := range base.Subtypes {
			if subtype.Matches(v) {
				return subtype
			}
		}
		return nil
	}

	return &Codec{
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			if v == nil {
				w.WriteVarUint(1)
				w.WriteVarUint(0)
				return
			}
			spec := specFor(v)
			if spec == nil {
				glog.Warningf("[codec]%s: no subtype for %T, encoding null", base.Name, v)
				w.WriteVarUint(1)
				w.WriteVarUint(0)
				return
			}
			size := VarUintSize(uint64(spec.TypeId)) + spec.fieldsSize(v)
			w.WriteVarUint(uint64(size))
			w.WriteVarUint(uint64(spec.TypeId))
			spec.encodeFields(w, v)
		},
		Decode: func(r *Reader) any {
			sub := r.SubReader()
			if sub.Remaining() == 0 {
				return nil
			}
			typeId := uint32(sub.ReadVarUint())
			if typeId == 0 {
				return nil
			}
			spec, ok := subtypes[typeId]
			if !ok {
				glog.Warningf("[codec]%s: %s unknown subtype id %d", r.Context(), base.Name, typeId)
				return nil
			}
			record := spec.New()
			spec.decodeFields(sub, record)
			return record
		},
		Size: func(v any) int {
			if v == nil {
				return 2
			}
			spec := specFor(v)
			if spec == nil {
				return 2
			}
			size := VarUintSize(uint64(spec.TypeId)) + spec.fieldsSize(v)
			return VarUintSize(uint64(size)) + size
		},
		ToDoc: func(v any) any {
			if v == nil {
				return nil
			}
			spec := specFor(v)
			if spec == nil {
				return nil
			}
			doc := spec.toDoc(v)
			doc["$type"] = int64(spec.TypeId)
			return doc
		},
		FromDoc: func(v any) any {
			doc, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			spec, ok := subtypes[uint32(docUint(doc["$type"]))]
			if !ok {
				return nil
			}
			record := spec.New()
			spec.fromDoc(doc, record)
			return record
		},
		ZeroValue: nil,
	}
}
