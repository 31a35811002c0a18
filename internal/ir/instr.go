package ir

import "github.com/icarus-lang/icarus/internal/types"

// Instr is a non-terminating instruction stored in a basic block.
type Instr interface {
	instrNode()
}

// Arithmetic over signed integers, unsigned integers, and floats. Unsigned
// arithmetic wraps; signed overflow traps in the interpreter.

type Add struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Sub struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Mul struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Div struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Mod struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

// Neg negates a signed integer or float.
type Neg struct {
	Type    types.Type
	Operand Operand
	Out     Register
}

// Comparisons. Gt/Ge are expressed as Lt/Le with swapped operands.

type Eq struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Ne struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Lt struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

type Le struct {
	Type     types.Type
	Lhs, Rhs Operand
	Out      Register
}

// Logical operations over booleans.

type And struct {
	Lhs, Rhs Operand
	Out      Register
}

type Or struct {
	Lhs, Rhs Operand
	Out      Register
}

type Xor struct {
	Lhs, Rhs Operand
	Out      Register
}

type Not struct {
	Operand Operand
	Out     Register
}

// Cast is the concrete numeric conversion decided by the cast lattice.
type Cast struct {
	From, To types.Type
	Operand  Operand
	Out      Register
}

// AsciiEncode converts a u8 to a char; AsciiDecode converts a char to a u8.
// Char participates in no numeric casts, so these are distinct instructions.

type AsciiEncode struct {
	Operand Operand
	Out     Register
}

type AsciiDecode struct {
	Operand Operand
	Out     Register
}

// Memory operations. Addresses are packed region-tagged pointers.

// StackAllocate reserves frame storage for one value of Type and yields its
// address. The actual placement is computed at function finalization.
type StackAllocate struct {
	Type types.Type
	Out  Register
}

// Load reads a value of Type from an address.
type Load struct {
	Type types.Type
	Addr Operand
	Out  Register
}

// Store writes a value of Type to an address.
type Store struct {
	Type  types.Type
	Value Operand
	Addr  Operand
}

// PtrIncr advances a buffer pointer by Index elements of Pointee.
type PtrIncr struct {
	Pointee     types.Type
	Base, Index Operand
	Out         Register
}

// StructIndex yields the address of field Field within the struct at Base.
type StructIndex struct {
	Struct types.Type
	Base   Operand
	Field  int
	Out    Register
}

// Call invokes a compiled function. The callee is either an immediate
// function id or a register holding one. Return values of the callee are
// written into Outs in order; a big return value instead occupies
// consecutive slots starting at its out register.
type Call struct {
	Callee Operand
	Args   []Operand
	Outs   []Register
}

// ForeignCall invokes a registered foreign function by name and type.
type ForeignCall struct {
	Name string
	Type types.Type
	Args []Operand
	Outs []Register
}

// LoadDataSymbol yields the address of a named foreign data symbol.
type LoadDataSymbol struct {
	Name string
	Out  Register
}

// PhiPair matches a predecessor block to the value control brings from it.
type PhiPair struct {
	Pred  *Block
	Value Operand
}

// Phi selects a value based on which predecessor control arrived from.
// Exactly one pair per predecessor, in a fixed order. Phis must be the
// leading instructions of their block.
type Phi struct {
	Type  types.Type
	Pairs []PhiPair
	Out   Register
}

// Type constructors. These run at compile time and produce Type values.

type PtrOf struct {
	Operand Operand
	Out     Register
}

type BufPtrOf struct {
	Operand Operand
	Out     Register
}

type SliceOf struct {
	Operand Operand
	Out     Register
}

type ArrayOf struct {
	Length Operand
	Elem   Operand
	Out    Register
}

// EnumMemberSpec is one member of an EnumCreate or FlagsCreate.
type EnumMemberSpec struct {
	Name     string
	Value    Operand
	HasValue bool
}

// EnumCreate allocates a nominal enum, populates its members, and completes
// it. Unspecified members receive distinct underlying values.
type EnumCreate struct {
	Module  string
	Name    string
	Members []EnumMemberSpec
	Out     Register
}

// FlagsCreate is the bitset counterpart of EnumCreate.
type FlagsCreate struct {
	Module  string
	Name    string
	Members []EnumMemberSpec
	Out     Register
}

// StructFieldSpec is one field of a StructCreate; the field type is an
// operand evaluated to a Type value.
type StructFieldSpec struct {
	Name string
	Type Operand
}

// StructCreate allocates a nominal struct, populates its fields, lays it
// out, and completes it.
type StructCreate struct {
	Module string
	Name   string
	Fields []StructFieldSpec
	Out    Register
}

// OpaqueCreate allocates a nominal type with unknown members.
type OpaqueCreate struct {
	Module string
	Out    Register
}

// Generic support: stack-shuffling operations used by generic function
// bodies to assemble function types from argument types.

// PushType materializes a type constant.
type PushType struct {
	Type types.Type
	Out  Register
}

// PushFunction materializes a function handle constant.
type PushFunction struct {
	Fn  uint32
	Out Register
}

// PushValue materializes a raw constant.
type PushValue struct {
	Value Operand
	Out   Register
}

// Rotate cyclically permutes the values held in Regs: each register
// receives its successor's value and the last receives the first.
type Rotate struct {
	Regs []Register
}

// ConstructFunctionType builds a function type from a parameters value (or
// a single parameter type) and a return type.
type ConstructFunctionType struct {
	Params Operand
	Return Operand
	Out    Register
}

// ConstructParametersType builds a Parameters type from argument types.
type ConstructParametersType struct {
	Types []Operand
	Out   Register
}

// TypeKind yields the kind tag of a type value.
type TypeKind struct {
	Operand Operand
	Out     Register
}

// ConstructOpaqueType builds a fresh opaque type.
type ConstructOpaqueType struct {
	Module string
	Out    Register
}

// Special-member operations. Each resolves to a call to the type's
// registered function if any, else to a trivial per-kind implementation.

type Init struct {
	Type types.Type
	Addr Operand
}

type Destroy struct {
	Type types.Type
	Addr Operand
}

type CopyAssign struct {
	Type     types.Type
	Dst, Src Operand
}

type MoveAssign struct {
	Type     types.Type
	Dst, Src Operand
}

type CopyInit struct {
	Type     types.Type
	Dst, Src Operand
}

type MoveInit struct {
	Type     types.Type
	Dst, Src Operand
}

// Pack gathers single-slot operands into consecutive slots of a wide
// register; slices and other big values are assembled this way.
type Pack struct {
	Slots []Operand
	Out   Register
}

// Extract reads one slot out of a wide operand.
type Extract struct {
	Source Operand
	Index  int
	Out    Register
}

// DebugIr prints the containing function to stderr.
type DebugIr struct{}

func (*Add) instrNode()            {}
func (*Sub) instrNode()            {}
func (*Mul) instrNode()            {}
func (*Div) instrNode()            {}
func (*Mod) instrNode()            {}
func (*Neg) instrNode()            {}
func (*Eq) instrNode()             {}
func (*Ne) instrNode()             {}
func (*Lt) instrNode()             {}
func (*Le) instrNode()             {}
func (*And) instrNode()            {}
func (*Or) instrNode()             {}
func (*Xor) instrNode()            {}
func (*Not) instrNode()            {}
func (*Cast) instrNode()           {}
func (*AsciiEncode) instrNode()    {}
func (*AsciiDecode) instrNode()    {}
func (*StackAllocate) instrNode()  {}
func (*Load) instrNode()           {}
func (*Store) instrNode()          {}
func (*PtrIncr) instrNode()        {}
func (*StructIndex) instrNode()    {}
func (*Call) instrNode()           {}
func (*ForeignCall) instrNode()    {}
func (*LoadDataSymbol) instrNode() {}
func (*Phi) instrNode()            {}
func (*PtrOf) instrNode()          {}
func (*BufPtrOf) instrNode()       {}
func (*SliceOf) instrNode()        {}
func (*ArrayOf) instrNode()        {}
func (*EnumCreate) instrNode()     {}
func (*FlagsCreate) instrNode()    {}
func (*StructCreate) instrNode()   {}
func (*OpaqueCreate) instrNode()   {}
func (*PushType) instrNode()       {}
func (*PushFunction) instrNode()   {}
func (*PushValue) instrNode()      {}
func (*Rotate) instrNode()         {}
func (*ConstructFunctionType) instrNode()   {}
func (*ConstructParametersType) instrNode() {}
func (*TypeKind) instrNode()                {}
func (*ConstructOpaqueType) instrNode()     {}
func (*Init) instrNode()           {}
func (*Destroy) instrNode()        {}
func (*CopyAssign) instrNode()     {}
func (*MoveAssign) instrNode()     {}
func (*CopyInit) instrNode()       {}
func (*MoveInit) instrNode()       {}
func (*Pack) instrNode()           {}
func (*Extract) instrNode()        {}
func (*DebugIr) instrNode()        {}
