package wire

import (
	"encoding/binary"
	"math"

	"github.com/golang/glog"
)

// Reader consumes an encoded byte stream. Decode errors are non-fatal: the
// reader warns with its context string, consumes what the wire type allows,
// and yields the default value.
type Reader struct {
	buf []byte
	pos int
	// caller-supplied context included in warnings
	context string
}

func NewReader(b []byte, context string) *Reader {
	return &Reader{
		buf: b,
		context: context,
	}
}

func (self *Reader) Context() string {
	return self.context
}

func (self *Reader) Pos() int {
	return self.pos
}

func (self *Reader) Remaining() int {
	return len(self.buf) - self.pos
}

func (self *Reader) End() bool {
	return len(self.buf) <= self.pos
}

func (self *Reader) warnf(format string, a ...any) {
	glog.Warningf("[codec]%s: "+format, append([]any{self.context}, a...)...)
}

func (self *Reader) ReadVarUint() uint64 {
	var v uint64
	var shift uint
	for {
		if self.End() {
			self.warnf("truncated varint at %d", self.pos)
			return 0
		}
		b := self.buf[self.pos]
		self.pos += 1
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v
		}
		shift += 7
		if 64 <= shift {
			self.warnf("varint overflow at %d", self.pos)
			return 0
		}
	}
}

func (self *Reader) ReadVarInt() int64 {
	return UnZigZag(self.ReadVarUint())
}

func (self *Reader) ReadBool() bool {
	return self.ReadVarUint() != 0
}

func (self *Reader) ReadFloat32() float32 {
	if self.Remaining() < 4 {
		self.warnf("truncated float32 at %d", self.pos)
		self.pos = len(self.buf)
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(self.buf[self.pos:]))
	self.pos += 4
	return v
}

func (self *Reader) ReadFloat64() float64 {
	if self.Remaining() < 8 {
		self.warnf("truncated float64 at %d", self.pos)
		self.pos = len(self.buf)
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(self.buf[self.pos:]))
	self.pos += 8
	return v
}

// ReadFrame reads a ByteLength frame and returns its contents.
// The returned slice aliases the reader's buffer.
func (self *Reader) ReadFrame() []byte {
	n := self.ReadVarUint()
	if uint64(self.Remaining()) < n {
		self.warnf("truncated frame at %d: need %d have %d", self.pos, n, self.Remaining())
		self.pos = len(self.buf)
		return nil
	}
	b := self.buf[self.pos : self.pos+int(n)]
	self.pos += int(n)
	return b
}

func (self *Reader) ReadString() string {
	return string(self.ReadFrame())
}

// Skip consumes one value of the given wire type. This is all that is needed
// to step over unknown fields.
func (self *Reader) Skip(wireType WireType) {
	switch wireType {
	case VarInt:
		self.ReadVarUint()
	case FourByte:
		if self.Remaining() < 4 {
			self.pos = len(self.buf)
		} else {
			self.pos += 4
		}
	case EightByte:
		if self.Remaining() < 8 {
			self.pos = len(self.buf)
		} else {
			self.pos += 8
		}
	case ByteLength:
		self.ReadFrame()
	}
}

// SubReader scopes a nested reader to one ByteLength frame,
// keeping the parent positioned at the frame end.
func (self *Reader) SubReader() *Reader {
	return &Reader{
		buf: self.ReadFrame(),
		context: self.context,
	}
}
