package wire

import (
	"encoding/binary"
	"math"
)

// Writer accumulates the encoded byte stream. Frames are length-prefixed, so
// callers pre-compute sizes with the codec size calculators rather than
// back-patching.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{
		buf: []byte{},
	}
}

func NewWriterSize(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

func (self *Writer) Reset() {
	self.buf = self.buf[:0]
}

func (self *Writer) Len() int {
	return len(self.buf)
}

// Bytes returns the written stream. The slice aliases the writer's buffer and
// is invalidated by the next write or Reset.
func (self *Writer) Bytes() []byte {
	return self.buf
}

func (self *Writer) WriteVarUint(v uint64) {
	for 0x80 <= v {
		self.buf = append(self.buf, byte(v)|0x80)
		v >>= 7
	}
	self.buf = append(self.buf, byte(v))
}

func (self *Writer) WriteVarInt(v int64) {
	self.WriteVarUint(ZigZag(v))
}

func (self *Writer) WriteBool(v bool) {
	if v {
		self.WriteVarUint(1)
	} else {
		self.WriteVarUint(0)
	}
}

func (self *Writer) WriteFloat32(v float32) {
	self.buf = binary.LittleEndian.AppendUint32(self.buf, math.Float32bits(v))
}

func (self *Writer) WriteFloat64(v float64) {
	self.buf = binary.LittleEndian.AppendUint64(self.buf, math.Float64bits(v))
}

// WriteBlob writes a ByteLength frame: varint length then the bytes.
func (self *Writer) WriteBlob(b []byte) {
	self.WriteVarUint(uint64(len(b)))
	self.buf = append(self.buf, b...)
}

func (self *Writer) WriteString(s string) {
	self.WriteVarUint(uint64(len(s)))
	self.buf = append(self.buf, s...)
}

// WriteRaw appends bytes with no framing.
func (self *Writer) WriteRaw(b []byte) {
	self.buf = append(self.buf, b...)
}

func (self *Writer) WriteTag(id uint32, wireType WireType) {
	self.WriteVarUint(Tag(id, wireType))
}

func (self *Writer) WriteMapTag(id uint32, keyWire WireType, valueWire WireType) {
	self.WriteVarUint(MapTag(id, keyWire, valueWire))
}
