package compile

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fusabi-lang/fusabi-host/value"
)

// Opcodes for the stack machine. Operands live in Instr.A and Instr.B.
const (
	OpConst       byte = iota // push Consts[A]
	OpPop                     // discard top of stack
	OpStoreResult             // pop into the run result register
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpJump        // pc = A
	OpJumpIfFalse // pop; if falsy pc = A
	OpAndJump     // if top falsy pc = A (keep top), else pop
	OpOrJump      // if top truthy pc = A (keep top), else pop
	OpGetLocal    // push locals[A]
	OpSetLocal    // pop into locals[A]
	OpMakeList    // pop A items, push list
	OpMakeMap     // pop A key/value pairs, push map
	OpIndex       // pop index and container, push element
	OpCall        // call Funcs[A], args on stack
	OpCallHost    // call host function Names[A] with B args
	OpReturn      // pop return value, pop frame
	OpHalt        // stop the run

	numOpcodes = iota
)

// Instr is one fixed-width instruction.
type Instr struct {
	Op byte
	A  int32
	B  int32
}

// FuncInfo describes one script function.
type FuncInfo struct {
	Name      string
	NumParams int
	NumLocals int
	Entry     int
	Exported  bool
}

// Program is the executable form of a script: a constant pool, flat
// code, the host/function name table, and function descriptors. Main
// code starts at pc 0 and ends at OpHalt; function bodies follow.
type Program struct {
	Consts     []value.Value
	Code       []Instr
	Names      []string
	Funcs      []FuncInfo
	MainLocals int
}

// Frame layout: 4-byte magic, version, flags, 10 reserved bytes, 8-byte
// payload digest, then the encoded program.
const (
	formatVersion   = 1
	headerLen       = 4 + 1 + 1 + 10 + 8
	flagDebug  byte = 1 << 0
)

var magic = [4]byte{'F', 'Z', 'B', 0}

// EncodeProgram serializes p into an FZB frame.
func EncodeProgram(p *Program, flags byte) ([]byte, error) {
	var payload bytes.Buffer
	w := &leWriter{buf: &payload}

	w.u32(uint32(len(p.Consts)))
	for _, c := range p.Consts {
		if err := writeConst(w, c); err != nil {
			return nil, err
		}
	}
	w.u32(uint32(len(p.Code)))
	for _, in := range p.Code {
		w.buf.WriteByte(in.Op)
		w.i32(in.A)
		w.i32(in.B)
	}
	w.u32(uint32(len(p.Names)))
	for _, n := range p.Names {
		w.str(n)
	}
	w.u32(uint32(len(p.Funcs)))
	for _, f := range p.Funcs {
		w.str(f.Name)
		w.u32(uint32(f.NumParams))
		w.u32(uint32(f.NumLocals))
		w.u32(uint32(f.Entry))
		exported := byte(0)
		if f.Exported {
			exported = 1
		}
		w.buf.WriteByte(exported)
	}
	w.u32(uint32(p.MainLocals))

	frame := make([]byte, headerLen, headerLen+payload.Len())
	copy(frame, magic[:])
	frame[4] = formatVersion
	frame[5] = flags
	digest := sha256.Sum256(payload.Bytes())
	copy(frame[16:24], digest[:8])
	return append(frame, payload.Bytes()...), nil
}

// DecodeProgram parses an FZB frame back into a Program.
func DecodeProgram(data []byte) (*Program, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	r := &leReader{data: data[headerLen:]}

	p := &Program{}
	nConsts := r.u32()
	for i := uint32(0); i < nConsts && r.err == nil; i++ {
		c, err := readConst(r)
		if err != nil {
			return nil, err
		}
		p.Consts = append(p.Consts, c)
	}
	nCode := r.u32()
	for i := uint32(0); i < nCode && r.err == nil; i++ {
		op := r.u8()
		if op >= numOpcodes {
			return nil, fmt.Errorf("invalid bytecode: unknown opcode %d", op)
		}
		p.Code = append(p.Code, Instr{Op: op, A: r.i32(), B: r.i32()})
	}
	nNames := r.u32()
	for i := uint32(0); i < nNames && r.err == nil; i++ {
		p.Names = append(p.Names, r.str())
	}
	nFuncs := r.u32()
	for i := uint32(0); i < nFuncs && r.err == nil; i++ {
		f := FuncInfo{
			Name:      r.str(),
			NumParams: int(r.u32()),
			NumLocals: int(r.u32()),
			Entry:     int(r.u32()),
			Exported:  r.u8() == 1,
		}
		p.Funcs = append(p.Funcs, f)
	}
	p.MainLocals = int(r.u32())
	if r.err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", r.err)
	}
	return p, nil
}

// Validate checks the FZB frame: magic, version, and payload digest.
// It does not decode the program body.
func Validate(data []byte) error {
	if len(data) < headerLen {
		return fmt.Errorf("invalid bytecode: %d bytes is shorter than the header", len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return fmt.Errorf("invalid bytecode: bad magic")
	}
	if v := data[4]; v != formatVersion {
		return fmt.Errorf("invalid bytecode: unsupported format version %d (want %d)", v, formatVersion)
	}
	digest := sha256.Sum256(data[headerLen:])
	if !bytes.Equal(data[16:24], digest[:8]) {
		return fmt.Errorf("invalid bytecode: payload digest mismatch")
	}
	return nil
}

// FrameFlags returns the flags byte of a valid frame.
func FrameFlags(data []byte) (byte, error) {
	if err := Validate(data); err != nil {
		return 0, err
	}
	return data[5], nil
}

const (
	constNull byte = iota
	constBool
	constInt
	constFloat
	constString
)

func writeConst(w *leWriter, v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		w.buf.WriteByte(constNull)
	case value.KindBool:
		w.buf.WriteByte(constBool)
		b, _ := v.AsBool()
		if b {
			w.buf.WriteByte(1)
		} else {
			w.buf.WriteByte(0)
		}
	case value.KindInt:
		w.buf.WriteByte(constInt)
		i, _ := v.AsInt()
		w.u64(uint64(i))
	case value.KindFloat:
		w.buf.WriteByte(constFloat)
		f, _ := v.AsFloat()
		w.u64(math.Float64bits(f))
	case value.KindString:
		w.buf.WriteByte(constString)
		s, _ := v.AsString()
		w.str(s)
	default:
		return fmt.Errorf("constant kind %s is not encodable", v.Kind())
	}
	return nil
}

func readConst(r *leReader) (value.Value, error) {
	switch tag := r.u8(); tag {
	case constNull:
		return value.Null(), nil
	case constBool:
		return value.Bool(r.u8() == 1), nil
	case constInt:
		return value.Int(int64(r.u64())), nil
	case constFloat:
		return value.Float(math.Float64frombits(r.u64())), nil
	case constString:
		return value.Str(r.str()), nil
	default:
		return value.Null(), fmt.Errorf("invalid bytecode: unknown constant tag %d", tag)
	}
}

type leWriter struct {
	buf *bytes.Buffer
}

func (w *leWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *leWriter) i32(v int32) { w.u32(uint32(v)) }

func (w *leWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *leWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

type leReader struct {
	data []byte
	pos  int
	err  error
}

func (r *leReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("truncated at offset %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *leReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *leReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *leReader) i32() int32 { return int32(r.u32()) }

func (r *leReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *leReader) str() string {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
