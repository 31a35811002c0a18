package ir

import (
	"math"

	"github.com/icarus-lang/icarus/internal/types"
)

// Register is a per-function identifier denoting a function argument slot,
// an output slot, or the value produced by an instruction. Registers are
// SSA within a block; a value crossing blocks with multiple predecessors
// must go through a Phi.
type Register uint32

// Operand is a register-or-immediate. Immediates carry their value as raw
// 64-bit slot contents.
type Operand struct {
	isReg bool
	reg   Register
	imm   uint64
}

// Reg makes a register operand.
func Reg(r Register) Operand { return Operand{isReg: true, reg: r} }

// Imm makes an immediate operand from raw slot bits.
func Imm(bits uint64) Operand { return Operand{imm: bits} }

// IsRegister reports whether the operand references a register.
func (o Operand) IsRegister() bool { return o.isReg }

// Register returns the referenced register. Defined only for register
// operands.
func (o Operand) Register() Register { return o.reg }

// Immediate returns the raw immediate bits. Defined only for immediate
// operands.
func (o Operand) Immediate() uint64 { return o.imm }

// Immediate constructors for the primitive value classes.

func ImmI64(v int64) Operand      { return Imm(uint64(v)) }
func ImmU64(v uint64) Operand     { return Imm(v) }
func ImmF64(v float64) Operand    { return Imm(math.Float64bits(v)) }
func ImmF32(v float32) Operand    { return Imm(uint64(math.Float32bits(v))) }
func ImmChar(v byte) Operand      { return Imm(uint64(v)) }
func ImmType(t types.Type) Operand { return Imm(t.Representation()) }

func ImmBool(v bool) Operand {
	if v {
		return Imm(1)
	}
	return Imm(0)
}

// Region tags the memory region an Address points into.
type Region uint8

const (
	RegionStack Region = iota
	RegionHeap
	RegionReadOnly
)

func (r Region) String() string {
	switch r {
	case RegionStack:
		return "stack"
	case RegionHeap:
		return "heap"
	case RegionReadOnly:
		return "rodata"
	}
	return "invalid"
}

// Address is a tagged pointer: a region plus the raw offset within it.
// Addresses pack into a single register slot.
type Address struct {
	Region Region
	Offset uint64
}

const regionShift = 62

// Pack encodes the address into raw slot bits.
func (a Address) Pack() uint64 {
	return uint64(a.Region)<<regionShift | a.Offset&(1<<regionShift-1)
}

// UnpackAddress decodes raw slot bits into an Address.
func UnpackAddress(bits uint64) Address {
	return Address{
		Region: Region(bits >> regionShift),
		Offset: bits & (1<<regionShift - 1),
	}
}

// NullAddress is the packed null pointer: offset zero in the heap region is
// never handed out.
var NullAddress = Address{Region: RegionHeap, Offset: 0}
