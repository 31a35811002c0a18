// Package module reads and writes compiled module files. A module file
// carries the exported symbol triples, every non-primitive type of the
// type system, and the compiled functions. The wire format is
// protobuf framing (see encoding/protowire); only self-consistency is
// promised.
package module

import (
	"github.com/icarus-lang/icarus/internal/types"
)

// Symbol is one exported binding.
type Symbol struct {
	Name string
	Type types.Type
	// Value holds the symbol's register-slot representation.
	Value []uint64
	// FnID is the function table index for function-typed symbols.
	FnID  uint32
	IsFn  bool
}

// Module is the in-memory form of a compiled module.
type Module struct {
	Name    string
	BuildID string
	Symbols []Symbol
}

// Field numbers of the top-level module frame.
const (
	fieldBuildID  = 1
	fieldName     = 2
	fieldType     = 3 // repeated, grouped by kind in table order
	fieldSymbol   = 4 // repeated
	fieldFunction = 5 // repeated
)

// Field numbers of a type record.
const (
	typeFieldRepr    = 1
	typeFieldKind    = 2
	typeFieldElem    = 3 // pointee / element
	typeFieldLength  = 4
	typeFieldName    = 5 // repeated names (parameters, nominal members)
	typeFieldValue   = 6 // repeated values (enum/flags member values, struct field offsets)
	typeFieldModule  = 7
	typeFieldDisplay = 8
	typeFieldEval    = 9
	typeFieldReturn  = 10 // repeated types (parameter types, function returns, struct field types)
	typeFieldBody    = 11 // function parameters type
)

// Field numbers of a symbol record.
const (
	symFieldName  = 1
	symFieldType  = 2
	symFieldValue = 3 // repeated fixed64 slots
	symFieldFnID  = 4
	symFieldIsFn  = 5
)

// Field numbers of a function record.
const (
	fnFieldType      = 1
	fnFieldNumParams = 2
	fnFieldNumRegs   = 3
	fnFieldOut       = 4 // repeated output register indices
	fnFieldWideReg   = 5 // repeated {register, width}
	fnFieldAlloca    = 6 // repeated {register, type}
	fnFieldBlock     = 7 // repeated
)

// Field numbers of a block record.
const (
	blockFieldInstr      = 1 // repeated
	blockFieldTermOp     = 2
	blockFieldTermTarget = 3 // repeated block indices
	blockFieldTermCond   = 4 // operand
)

// Terminator opcodes.
const (
	termReturn = 1
	termUncond = 2
	termCond   = 3
	termChoose = 4
)
