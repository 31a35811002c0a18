package types

import "fmt"

// registerSlotBytes is the width of one interpreter register slot.
const registerSlotBytes = 8

// Bytes returns the size of a value of t in bytes. Compile-time-only types
// (Integer, Module, Interface, Bottom) have no runtime representation and
// must not be asked.
func (s *System) Bytes(t Type) uint64 {
	switch t.Kind() {
	case KindPrimitive:
		switch t.Primitive() {
		case PrimBool, PrimChar, PrimByte, PrimI8, PrimU8:
			return 1
		case PrimI16, PrimU16:
			return 2
		case PrimI32, PrimU32, PrimF32:
			return 4
		case PrimI64, PrimU64, PrimF64, PrimType, PrimNullPtr:
			return 8
		case PrimUnit, PrimEmptyArray:
			return 0
		}
	case KindPointer, KindBufferPointer, KindFunction, KindGenericFunction:
		return 8
	case KindSlice:
		return 16
	case KindArray:
		n := s.ArrayLength(t)
		elem := s.ArrayElem(t)
		if n == 0 {
			return 0
		}
		stride := alignUp(s.Bytes(elem), s.Alignment(elem))
		return stride * n
	case KindEnum, KindFlags:
		return 8
	case KindStruct:
		st := s.StructOf(t)
		if st.completeness != Complete {
			panic(fmt.Sprintf("types: size of incomplete struct %s", st.Name()))
		}
		return st.size
	}
	panic(fmt.Sprintf("types: %s has no runtime size", s.String(t)))
}

// Alignment returns the alignment requirement of t in bytes.
func (s *System) Alignment(t Type) uint64 {
	switch t.Kind() {
	case KindPrimitive:
		switch t.Primitive() {
		case PrimBool, PrimChar, PrimByte, PrimI8, PrimU8:
			return 1
		case PrimI16, PrimU16:
			return 2
		case PrimI32, PrimU32, PrimF32:
			return 4
		case PrimI64, PrimU64, PrimF64, PrimType, PrimNullPtr:
			return 8
		case PrimUnit, PrimEmptyArray:
			return 1
		}
	case KindPointer, KindBufferPointer, KindFunction, KindGenericFunction, KindSlice:
		return 8
	case KindArray:
		return s.Alignment(s.ArrayElem(t))
	case KindEnum, KindFlags:
		return 8
	case KindStruct:
		st := s.StructOf(t)
		if st.completeness != Complete {
			panic(fmt.Sprintf("types: alignment of incomplete struct %s", st.Name()))
		}
		return st.align
	}
	panic(fmt.Sprintf("types: %s has no runtime alignment", s.String(t)))
}

// RegisterSize returns the number of interpreter register slots a value of t
// occupies: one for most kinds, two for slices, and enough slots to span the
// value for big arrays and structs.
func (s *System) RegisterSize(t Type) int {
	switch t.Kind() {
	case KindSlice:
		return 2
	case KindArray, KindStruct:
		bytes := s.Bytes(t)
		if bytes <= registerSlotBytes {
			return 1
		}
		return int((bytes + registerSlotBytes - 1) / registerSlotBytes)
	default:
		return 1
	}
}

// Big reports whether a value of t does not fit in a single interpreter
// register slot.
func (s *System) Big(t Type) bool { return s.RegisterSize(t) > 1 }
