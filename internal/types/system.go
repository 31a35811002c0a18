package types

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// flyweight is an interning store: equal keys map to equal indices, distinct
// keys to distinct indices. Entries are never removed.
type flyweight[K comparable] struct {
	index map[K]uint64
	elems []K
}

func (f *flyweight[K]) intern(key K) uint64 {
	if i, ok := f.index[key]; ok {
		return i
	}
	if f.index == nil {
		f.index = make(map[K]uint64)
	}
	i := uint64(len(f.elems))
	f.index[key] = i
	f.elems = append(f.elems, key)
	return i
}

func (f *flyweight[K]) at(i uint64) K { return f.elems[i] }

func (f *flyweight[K]) len() int { return len(f.elems) }

// Evaluation describes when a function must or should be evaluated.
type Evaluation uint8

const (
	RequiredAtCompileTime Evaluation = iota
	PreferAtCompileTime
	PreferRuntime
)

// Parameter is one entry of a Parameters type.
type Parameter struct {
	Name string // empty for anonymous parameters
	Type Type
}

type arrayKey struct {
	length uint64
	elem   Type
}

type functionKey struct {
	parameters Type   // a Parameters type
	returns    string // packed return types
	evaluation Evaluation
}

type genericKey struct {
	evaluation Evaluation
	body       uint32
}

// System owns one flyweight table per non-primitive kind and the arenas for
// nominal types. A single System underlies one compilation.
//
// The core runs on a single semantic-analysis thread, so the tables are
// unguarded.
type System struct {
	pointers   flyweight[Type]
	bufferPtrs flyweight[Type]
	slices     flyweight[Type]
	arrays     flyweight[arrayKey]
	parameters flyweight[string]
	functions  flyweight[functionKey]
	generics   flyweight[genericKey]
	patterns   flyweight[Type]

	parameterLists [][]Parameter

	enums   []*Enum
	flags   []*Flags
	structs []*Struct
	opaques []*Opaque
}

// NewSystem creates an empty type system.
func NewSystem() *System { return &System{} }

// Ptr interns the pointer-to-t type.
func (s *System) Ptr(t Type) Type {
	return makeType(KindPointer, s.pointers.intern(t))
}

// Pointee decomposes a Pointer type.
func (s *System) Pointee(t Type) Type {
	mustKind(t, KindPointer)
	return s.pointers.at(t.payload())
}

// BufPtr interns the buffer-pointer-to-t type.
func (s *System) BufPtr(t Type) Type {
	return makeType(KindBufferPointer, s.bufferPtrs.intern(t))
}

// BufferPointee decomposes a BufferPointer type.
func (s *System) BufferPointee(t Type) Type {
	mustKind(t, KindBufferPointer)
	return s.bufferPtrs.at(t.payload())
}

// AnyPointee decomposes either pointer kind.
func (s *System) AnyPointee(t Type) Type {
	switch t.Kind() {
	case KindPointer:
		return s.Pointee(t)
	case KindBufferPointer:
		return s.BufferPointee(t)
	}
	panic(fmt.Sprintf("types: AnyPointee on %v", t.Kind()))
}

// Slc interns the slice-of-t type.
func (s *System) Slc(t Type) Type {
	return makeType(KindSlice, s.slices.intern(t))
}

// SliceElem decomposes a Slice type.
func (s *System) SliceElem(t Type) Type {
	mustKind(t, KindSlice)
	return s.slices.at(t.payload())
}

// Arr interns the array type of n contiguous elem values.
func (s *System) Arr(n uint64, elem Type) Type {
	return makeType(KindArray, s.arrays.intern(arrayKey{length: n, elem: elem}))
}

// ArrayLength decomposes an Array type's length.
func (s *System) ArrayLength(t Type) uint64 {
	mustKind(t, KindArray)
	return s.arrays.at(t.payload()).length
}

// ArrayElem decomposes an Array type's element type.
func (s *System) ArrayElem(t Type) Type {
	mustKind(t, KindArray)
	return s.arrays.at(t.payload()).elem
}

// Params interns an ordered parameter list as a Parameters type.
func (s *System) Params(params []Parameter) Type {
	key := packParameters(params)
	before := s.parameters.len()
	i := s.parameters.intern(key)
	if s.parameters.len() != before {
		list := make([]Parameter, len(params))
		copy(list, params)
		s.parameterLists = append(s.parameterLists, list)
	}
	return makeType(KindParameters, i)
}

// ParameterList decomposes a Parameters type.
func (s *System) ParameterList(t Type) []Parameter {
	mustKind(t, KindParameters)
	return s.parameterLists[t.payload()]
}

// Func interns a function type from a Parameters type, an ordered return
// list, and an evaluation strategy.
func (s *System) Func(parameters Type, returns []Type, evaluation Evaluation) Type {
	mustKind(parameters, KindParameters)
	return makeType(KindFunction, s.functions.intern(functionKey{
		parameters: parameters,
		returns:    packTypes(returns),
		evaluation: evaluation,
	}))
}

// FuncOf is a convenience constructor interning both the parameter list and
// the function type.
func (s *System) FuncOf(params []Parameter, returns []Type) Type {
	return s.Func(s.Params(params), returns, PreferRuntime)
}

// FunctionParameters decomposes a Function type's Parameters type.
func (s *System) FunctionParameters(t Type) Type {
	mustKind(t, KindFunction)
	return s.functions.at(t.payload()).parameters
}

// FunctionReturns decomposes a Function type's return list.
func (s *System) FunctionReturns(t Type) []Type {
	mustKind(t, KindFunction)
	return unpackTypes(s.functions.at(t.payload()).returns)
}

// FunctionEvaluation decomposes a Function type's evaluation strategy.
func (s *System) FunctionEvaluation(t Type) Evaluation {
	mustKind(t, KindFunction)
	return s.functions.at(t.payload()).evaluation
}

// Generic interns a generic-function type referring to a callable body.
func (s *System) Generic(evaluation Evaluation, body uint32) Type {
	return makeType(KindGenericFunction, s.generics.intern(genericKey{evaluation: evaluation, body: body}))
}

// GenericBody decomposes a GenericFunction type's body id.
func (s *System) GenericBody(t Type) uint32 {
	mustKind(t, KindGenericFunction)
	return s.generics.at(t.payload()).body
}

// GenericEvaluation decomposes a GenericFunction type's evaluation strategy.
func (s *System) GenericEvaluation(t Type) Evaluation {
	mustKind(t, KindGenericFunction)
	return s.generics.at(t.payload()).evaluation
}

// Pat interns the pattern-matching-against-t type.
func (s *System) Pat(t Type) Type {
	return makeType(KindPattern, s.patterns.intern(t))
}

// PatternMatchType decomposes a Pattern type.
func (s *System) PatternMatchType(t Type) Type {
	mustKind(t, KindPattern)
	return s.patterns.at(t.payload())
}

// String renders t for diagnostics.
func (s *System) String(t Type) string {
	switch t.Kind() {
	case KindPrimitive:
		p := t.Primitive()
		if int(p) < len(primitiveNames) {
			return primitiveNames[p]
		}
		return "<invalid>"
	case KindPointer:
		return "*" + s.String(s.Pointee(t))
	case KindBufferPointer:
		return "[*]" + s.String(s.BufferPointee(t))
	case KindSlice:
		return "[]" + s.String(s.SliceElem(t))
	case KindArray:
		return fmt.Sprintf("[%d; %s]", s.ArrayLength(t), s.String(s.ArrayElem(t)))
	case KindParameters:
		var sb strings.Builder
		sb.WriteByte('(')
		for i, p := range s.ParameterList(t) {
			if i > 0 {
				sb.WriteString(", ")
			}
			if p.Name != "" {
				sb.WriteString(p.Name)
				sb.WriteString(": ")
			}
			sb.WriteString(s.String(p.Type))
		}
		sb.WriteByte(')')
		return sb.String()
	case KindFunction:
		var sb strings.Builder
		sb.WriteString(s.String(s.FunctionParameters(t)))
		sb.WriteString(" -> (")
		for i, r := range s.FunctionReturns(t) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.String(r))
		}
		sb.WriteByte(')')
		return sb.String()
	case KindGenericFunction:
		return "generic-function"
	case KindPattern:
		return "pattern(" + s.String(s.PatternMatchType(t)) + ")"
	case KindEnum:
		return s.EnumOf(t).Name()
	case KindFlags:
		return s.FlagsOf(t).Name()
	case KindStruct:
		return s.StructOf(t).Name()
	case KindOpaque:
		return s.OpaqueOf(t).Name()
	default:
		return "<invalid>"
	}
}

func mustKind(t Type, k Kind) {
	if t.Kind() != k {
		panic(fmt.Sprintf("types: decomposing %v as %v", t.Kind(), k))
	}
}

func packTypes(ts []Type) string {
	buf := make([]byte, 8*len(ts))
	for i, t := range ts {
		binary.LittleEndian.PutUint64(buf[8*i:], t.Representation())
	}
	return string(buf)
}

func unpackTypes(packed string) []Type {
	out := make([]Type, len(packed)/8)
	for i := range out {
		out[i] = FromRepresentation(binary.LittleEndian.Uint64([]byte(packed[8*i : 8*i+8])))
	}
	return out
}

func packParameters(params []Parameter) string {
	var sb strings.Builder
	for _, p := range params {
		sb.WriteString(p.Name)
		sb.WriteByte(0)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], p.Type.Representation())
		sb.Write(buf[:])
	}
	return sb.String()
}
