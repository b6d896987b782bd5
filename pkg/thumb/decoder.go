// Package thumb decodes ARMv7-M Thumb and Thumb-2 instructions into the
// shape the tracer needs: mnemonic text, control-flow operands, the set of
// written registers and the raw IT state.
//
// It is not a full disassembler. Operand text is close to what common
// disassemblers print, but conditional instructions inside an IT block are
// printed without their condition suffix since decoding is stateless.
package thumb

import (
	"encoding/binary"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
)

var (
	// ErrShortBuffer is returned when code holds less than one instruction
	ErrShortBuffer = errors.New("not enough bytes for instruction")
	// ErrUndefined is returned for permanently undefined encodings
	ErrUndefined = errors.New("undefined instruction")
	// ErrUnpredictable is returned for encodings with unpredictable behaviour
	ErrUnpredictable = errors.New("unpredictable instruction")
)

// Decoder decodes Thumb code. The zero value is ready to use and it is safe
// for concurrent use.
type Decoder struct{}

// NewDecoder returns a Thumb decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Is32Bit reports whether the halfword starts a 32-bit Thumb-2 instruction
func Is32Bit(hw uint16) bool {
	return hw&0xf800 == 0xe800 || hw&0xf000 == 0xf000
}

// Decode decodes the instruction at addr. code must start at addr and hold at
// least 2 bytes (4 for 32-bit encodings).
func (d *Decoder) Decode(addr uint32, code []byte) (*trace.Instruction, error) {
	if len(code) < 2 {
		return nil, errors.Wrapf(ErrShortBuffer, "%#08x", addr)
	}
	hw := binary.LittleEndian.Uint16(code)

	var (
		insn *trace.Instruction
		err  error
	)
	if Is32Bit(hw) {
		if len(code) < 4 {
			return nil, errors.Wrapf(ErrShortBuffer, "%#08x: 32-bit encoding %#04x", addr, hw)
		}
		insn, err = decode32(addr, hw, binary.LittleEndian.Uint16(code[2:]))
	} else {
		insn, err = decode16(addr, hw)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%#08x", addr)
	}

	insn.Address = addr
	return insn, nil
}

func newInsn(size int, mnemonic, opStr string) *trace.Instruction {
	return &trace.Instruction{
		Size:     size,
		Mnemonic: mnemonic,
		OpStr:    opStr,
		Op:       trace.OpOther,
		Cond:     trace.CondAL,
	}
}

func writes(insn *trace.Instruction, rs ...trace.Register) *trace.Instruction {
	insn.Writes = insn.Writes.With(rs...)
	return insn
}
