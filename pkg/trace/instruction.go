package trace

//go:generate go tool stringer -type=Opcode,OperandKind -output instruction_string.go

// Opcode identifies the instructions the tracer needs to tell apart. Anything
// without control-flow meaning decodes as OpOther.
type Opcode uint8

const (
	OpOther Opcode = iota
	OpB
	OpBL
	OpBLX
	OpBX
	OpCBZ
	OpCBNZ
	OpTBB
	OpTBH
	OpPOP
	OpLDM
	OpPUSH
	OpSTMDB
	OpSVC
	OpIT
	OpUDF
	OpBKPT
)

// OperandKind is the shape of a decoded operand
type OperandKind uint8

const (
	OperandInvalid OperandKind = iota
	OperandReg
	OperandImm
	OperandMem
	OperandRegList
)

// Operand is a decoded instruction operand
type Operand struct {
	Kind OperandKind
	Reg  Register
	Imm  int64
	// Mem operands: base and optional index register
	Base  Register
	Index Register
	// RegList operands
	List RegisterMask
}

// ITState is the raw firstcond/mask pair of an IT instruction
type ITState struct {
	FirstCond Condition
	Mask      uint8
}

// Instruction is what a Decoder reports about the instruction at an address
type Instruction struct {
	Address  uint32
	Size     int
	Mnemonic string
	OpStr    string
	Op       Opcode
	Cond     Condition
	Operands []Operand
	// Writes is every register the instruction may write, including xPSR for
	// flag-setting forms
	Writes RegisterMask
	// ITState is set for IT instructions by decoders that expose it
	ITState *ITState
}

func (i *Instruction) String() string {
	if i.OpStr == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + "\t" + i.OpStr
}

// IsIT reports whether the instruction opens an IT block
func (i *Instruction) IsIT() bool {
	return i.Op == OpIT
}

// IsPush reports whether the instruction is a register-spill store multiple
func (i *Instruction) IsPush() bool {
	return i.Op == OpPUSH
}

// BranchTarget returns the operand holding the branch destination
func (i *Instruction) BranchTarget() (Operand, bool) {
	switch i.Op {
	case OpCBZ, OpCBNZ:
		// cbz rn, label
		if len(i.Operands) > 1 {
			return i.Operands[1], true
		}
	default:
		if len(i.Operands) > 0 {
			return i.Operands[0], true
		}
	}
	return Operand{}, false
}

// Decoder turns raw bytes at an address into an Instruction
type Decoder interface {
	Decode(addr uint32, code []byte) (*Instruction, error)
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(addr uint32, code []byte) (*Instruction, error)

func (f DecoderFunc) Decode(addr uint32, code []byte) (*Instruction, error) {
	return f(addr, code)
}
