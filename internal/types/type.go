package types

// Type is an 8-byte handle into a type System. The low 6 bits hold the kind
// tag; the remaining 58 bits hold a kind-specific payload. For primitives the
// payload encodes the primitive directly; for every other kind it is a
// flyweight index into the System's table for that kind. Two Types are equal
// iff their representations are equal.
type Type struct {
	repr uint64
}

// Kind is the 6-bit category tag of a Type.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindPointer
	KindBufferPointer
	KindSlice
	KindArray
	KindParameters
	KindFunction
	KindGenericFunction
	KindPattern
	KindEnum
	KindFlags
	KindStruct
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindPointer:
		return "pointer"
	case KindBufferPointer:
		return "buffer-pointer"
	case KindSlice:
		return "slice"
	case KindArray:
		return "array"
	case KindParameters:
		return "parameters"
	case KindFunction:
		return "function"
	case KindGenericFunction:
		return "generic-function"
	case KindPattern:
		return "pattern"
	case KindEnum:
		return "enum"
	case KindFlags:
		return "flags"
	case KindStruct:
		return "struct"
	case KindOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

const kindBits = 6

func makeType(k Kind, payload uint64) Type {
	return Type{repr: payload<<kindBits | uint64(k)}
}

// Kind returns the category tag.
func (t Type) Kind() Kind { return Kind(t.repr & (1<<kindBits - 1)) }

func (t Type) payload() uint64 { return t.repr >> kindBits }

// Representation exposes the raw 64-bit value, used by the interpreter and
// the module writer to move types through registers and wire encodings.
func (t Type) Representation() uint64 { return t.repr }

// FromRepresentation reconstructs a Type from its raw representation.
func FromRepresentation(repr uint64) Type { return Type{repr: repr} }

// Valid reports whether the handle refers to a type. The zero Type is
// reserved as invalid.
func (t Type) Valid() bool { return t.repr != 0 }

// PrimitiveKind enumerates the fixed primitive alphabet.
type PrimitiveKind uint8

const (
	// PrimInvalid is the zero value, reserved so that the zero Type is not a
	// valid type.
	PrimInvalid PrimitiveKind = iota
	PrimBool
	PrimChar
	PrimByte
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimF32
	PrimF64
	PrimInteger
	PrimType
	PrimModule
	PrimError
	PrimNullPtr
	PrimEmptyArray
	PrimInterface
	PrimBottom
	PrimUnit
)

var primitiveNames = [...]string{
	PrimInvalid:    "<invalid>",
	PrimBool:       "bool",
	PrimChar:       "char",
	PrimByte:       "byte",
	PrimI8:         "i8",
	PrimI16:        "i16",
	PrimI32:        "i32",
	PrimI64:        "i64",
	PrimU8:         "u8",
	PrimU16:        "u16",
	PrimU32:        "u32",
	PrimU64:        "u64",
	PrimF32:        "f32",
	PrimF64:        "f64",
	PrimInteger:    "integer",
	PrimType:       "type",
	PrimModule:     "module",
	PrimError:      "error",
	PrimNullPtr:    "null-type",
	PrimEmptyArray: "empty-array",
	PrimInterface:  "interface",
	PrimBottom:     "bottom",
	PrimUnit:       "unit",
}

func makePrimitive(p PrimitiveKind) Type { return makeType(KindPrimitive, uint64(p)) }

// The primitive types.
var (
	Bool       = makePrimitive(PrimBool)
	Char       = makePrimitive(PrimChar)
	Byte       = makePrimitive(PrimByte)
	I8         = makePrimitive(PrimI8)
	I16        = makePrimitive(PrimI16)
	I32        = makePrimitive(PrimI32)
	I64        = makePrimitive(PrimI64)
	U8         = makePrimitive(PrimU8)
	U16        = makePrimitive(PrimU16)
	U32        = makePrimitive(PrimU32)
	U64        = makePrimitive(PrimU64)
	F32        = makePrimitive(PrimF32)
	F64        = makePrimitive(PrimF64)
	Integer    = makePrimitive(PrimInteger)
	Type_      = makePrimitive(PrimType)
	Module     = makePrimitive(PrimModule)
	Error      = makePrimitive(PrimError)
	NullPtr    = makePrimitive(PrimNullPtr)
	EmptyArray = makePrimitive(PrimEmptyArray)
	Interface  = makePrimitive(PrimInterface)
	Bottom     = makePrimitive(PrimBottom)
	Unit       = makePrimitive(PrimUnit)
)

// Primitive returns the primitive kind of t. Defined only when
// t.Kind() == KindPrimitive.
func (t Type) Primitive() PrimitiveKind { return PrimitiveKind(t.payload()) }

// PrimitiveByName resolves a primitive type spelling ("i64", "bool", ...).
func PrimitiveByName(name string) (Type, bool) {
	for p, n := range primitiveNames {
		if n == name {
			return makePrimitive(PrimitiveKind(p)), true
		}
	}
	return Type{}, false
}

// IsSignedInteger reports whether t is one of I8..I64.
func IsSignedInteger(t Type) bool {
	if t.Kind() != KindPrimitive {
		return false
	}
	p := t.Primitive()
	return p >= PrimI8 && p <= PrimI64
}

// IsUnsignedInteger reports whether t is one of U8..U64.
func IsUnsignedInteger(t Type) bool {
	if t.Kind() != KindPrimitive {
		return false
	}
	p := t.Primitive()
	return p >= PrimU8 && p <= PrimU64
}

// IsInteger reports whether t is a fixed-width integer type.
func IsInteger(t Type) bool {
	return IsSignedInteger(t) || IsUnsignedInteger(t)
}

// IsFloat reports whether t is F32 or F64.
func IsFloat(t Type) bool {
	if t.Kind() != KindPrimitive {
		return false
	}
	p := t.Primitive()
	return p == PrimF32 || p == PrimF64
}

// IsNumeric reports whether t is a fixed-width integer or float.
func IsNumeric(t Type) bool { return IsInteger(t) || IsFloat(t) }

// IsArithmetic additionally admits the arbitrary-precision Integer.
func IsArithmetic(t Type) bool { return IsNumeric(t) || t == Integer }

// IntegerWidth returns the width in bits of a fixed-width integer type.
func IntegerWidth(t Type) int {
	switch t.Primitive() {
	case PrimI8, PrimU8:
		return 8
	case PrimI16, PrimU16:
		return 16
	case PrimI32, PrimU32:
		return 32
	case PrimI64, PrimU64:
		return 64
	}
	return 0
}

// FloatWidth returns the width in bits of a float type.
func FloatWidth(t Type) int {
	switch t.Primitive() {
	case PrimF32:
		return 32
	case PrimF64:
		return 64
	}
	return 0
}
