package types

// The cast lattice distinguishes three strengths of conversion between an
// ordered pair of types:
//
//   - in-place: no bytes change; the same storage can be reinterpreted.
//   - implicit: the compiler may insert the conversion silently.
//   - explicit: the conversion requires a source-level `as`.
//
// Every in-place cast is implicit and every implicit cast is explicit.

// CanCastInPlace reports whether a value of `from` may be reinterpreted as
// `to` without changing any bytes.
func (s *System) CanCastInPlace(from, to Type) bool {
	if from == to {
		return true
	}
	switch from.Kind() {
	case KindPointer:
		// Pointee covariance: *[*]T reinterprets as **T, and so on down.
		if to.Kind() == KindPointer {
			return s.CanCastInPlace(s.Pointee(from), s.Pointee(to))
		}
	case KindBufferPointer:
		// A buffer pointer is represented identically to a pointer to its
		// first element.
		switch to.Kind() {
		case KindPointer:
			return s.CanCastInPlace(s.BufferPointee(from), s.Pointee(to))
		case KindBufferPointer:
			return s.CanCastInPlace(s.BufferPointee(from), s.BufferPointee(to))
		}
	case KindSlice:
		if to.Kind() == KindSlice {
			return s.sliceElemInPlace(s.SliceElem(from), s.SliceElem(to))
		}
	case KindFunction:
		if to.Kind() == KindFunction {
			return s.functionCast(from, to)
		}
	}
	return false
}

// sliceElemInPlace admits element covariance plus the u8/byte
// reinterpretation, which is bidirectional only through slices.
func (s *System) sliceElemInPlace(from, to Type) bool {
	if s.CanCastInPlace(from, to) {
		return true
	}
	return (from == U8 || from == Byte) && (to == U8 || to == Byte)
}

// functionCast: parameters and returns must convert in place pointwise, and
// a named parameter may only match an anonymous one or the same name.
func (s *System) functionCast(from, to Type) bool {
	fromParams := s.ParameterList(s.FunctionParameters(from))
	toParams := s.ParameterList(s.FunctionParameters(to))
	if len(fromParams) != len(toParams) {
		return false
	}
	for i := range fromParams {
		if !s.CanCastInPlace(fromParams[i].Type, toParams[i].Type) {
			return false
		}
		if toParams[i].Name != "" && toParams[i].Name != fromParams[i].Name {
			return false
		}
	}
	fromReturns := s.FunctionReturns(from)
	toReturns := s.FunctionReturns(to)
	if len(fromReturns) != len(toReturns) {
		return false
	}
	for i := range fromReturns {
		if !s.CanCastInPlace(fromReturns[i], toReturns[i]) {
			return false
		}
	}
	return true
}

// CanCastImplicitly reports whether the compiler may insert the conversion
// from `from` to `to` silently.
func (s *System) CanCastImplicitly(from, to Type) bool {
	if s.CanCastInPlace(from, to) {
		return true
	}

	// The arbitrary-precision literal type converts to any concrete numeric
	// type.
	if from == Integer && (IsNumeric(to) || to == Integer) {
		return true
	}

	// Arithmetic widenings that preserve signedness.
	if IsInteger(from) && IsInteger(to) {
		return IsSignedInteger(from) == IsSignedInteger(to) &&
			IntegerWidth(from) <= IntegerWidth(to)
	}
	if IsFloat(from) && IsFloat(to) {
		return FloatWidth(from) <= FloatWidth(to)
	}
	if IsInteger(from) && IsFloat(to) {
		// Only when every value of the integer type is exactly
		// representable.
		if FloatWidth(to) == 64 {
			return IntegerWidth(from) <= 32
		}
		return IntegerWidth(from) <= 16
	}

	// The null literal is assignable to either pointer kind.
	if from == NullPtr && (to.Kind() == KindPointer || to.Kind() == KindBufferPointer) {
		return true
	}

	// An array converts to a slice of an in-place-compatible element or to
	// a byte slice; it also auto-address-of converts to a pointer to itself.
	if from.Kind() == KindArray {
		if to.Kind() == KindSlice {
			toElem := s.SliceElem(to)
			return s.CanCastInPlace(s.ArrayElem(from), toElem) || toElem == Byte
		}
		if to.Kind() == KindPointer {
			return s.Pointee(to) == from
		}
	}

	// Any slice views as a byte slice.
	if from.Kind() == KindSlice && to.Kind() == KindSlice {
		return s.SliceElem(to) == Byte
	}

	// A type used where an interface is expected.
	if from == Type_ && to == Interface {
		return true
	}

	return false
}

// CanCastExplicitly reports whether the conversion is expressible with a
// source-level `as`.
func (s *System) CanCastExplicitly(from, to Type) bool {
	if s.CanCastImplicitly(from, to) {
		return true
	}

	// Char participates in no numeric casts; its conversions go through the
	// dedicated ascii instructions.
	if from == Char || to == Char {
		return false
	}

	// Narrowing and sign-changing integer conversions.
	if IsInteger(from) && IsInteger(to) {
		return true
	}
	// Any integer converts to any float, and floats convert between widths;
	// floats never convert to integers.
	if IsInteger(from) && IsFloat(to) {
		return true
	}
	if IsFloat(from) && IsFloat(to) {
		return true
	}
	if IsFloat(from) && IsInteger(to) {
		return false
	}

	// Enums and flags convert to and from integers of sufficient width.
	if (from.Kind() == KindEnum || from.Kind() == KindFlags) && IsInteger(to) {
		return IntegerWidth(to) == 64
	}
	if IsInteger(from) && (to.Kind() == KindEnum || to.Kind() == KindFlags) {
		return true
	}

	// Pointer-to-pointer casts where the element widths permit. The buffer
	// qualifier may be dropped but never invented.
	if isPointerKind(from) && isPointerKind(to) {
		if from.Kind() == KindPointer && to.Kind() == KindBufferPointer {
			return false
		}
		return s.Bytes(s.AnyPointee(from)) == s.Bytes(s.AnyPointee(to))
	}

	// The empty array literal names any zero-length array or any slice.
	if from == EmptyArray {
		if to.Kind() == KindArray {
			return s.ArrayLength(to) == 0
		}
		return to.Kind() == KindSlice
	}

	// Arrays convert elementwise when no bytes change.
	if from.Kind() == KindArray && to.Kind() == KindArray {
		return s.ArrayLength(from) == s.ArrayLength(to) &&
			s.CanCastInPlace(s.ArrayElem(from), s.ArrayElem(to))
	}

	return false
}

func isPointerKind(t Type) bool {
	return t.Kind() == KindPointer || t.Kind() == KindBufferPointer
}

// Meet returns the most specific type that both a and b implicitly convert
// to, if one exists.
func (s *System) Meet(a, b Type) (Type, bool) {
	if a == b {
		return a, true
	}
	if a == Integer && (IsNumeric(b) || b == Integer) {
		return b, true
	}
	if b == Integer && IsNumeric(a) {
		return a, true
	}
	if s.CanCastImplicitly(a, b) {
		return b, true
	}
	if s.CanCastImplicitly(b, a) {
		return a, true
	}
	return Type{}, false
}

// Inference defaults literal-carrying types to concrete runtime types: the
// arbitrary-precision Integer becomes I64, including through arrays. It
// fails where no default exists.
func (s *System) Inference(t Type) (Type, bool) {
	switch {
	case t == Integer:
		return I64, true
	case t == NullPtr, t == EmptyArray:
		return Type{}, false
	case t.Kind() == KindArray:
		elem, ok := s.Inference(s.ArrayElem(t))
		if !ok {
			return Type{}, false
		}
		return s.Arr(s.ArrayLength(t), elem), true
	case t.Kind() == KindPointer:
		// A pointer into storage of literal type has no runtime pointee to
		// default; only already-concrete pointees survive.
		if s.containsLiteral(s.Pointee(t)) {
			return Type{}, false
		}
		return t, true
	case t.Kind() == KindBufferPointer:
		if s.containsLiteral(s.BufferPointee(t)) {
			return Type{}, false
		}
		return t, true
	case t.Kind() == KindSlice:
		if s.containsLiteral(s.SliceElem(t)) {
			return Type{}, false
		}
		return t, true
	default:
		return t, true
	}
}

func (s *System) containsLiteral(t Type) bool {
	switch t.Kind() {
	case KindPrimitive:
		return t == Integer || t == NullPtr || t == EmptyArray
	case KindPointer:
		return s.containsLiteral(s.Pointee(t))
	case KindBufferPointer:
		return s.containsLiteral(s.BufferPointee(t))
	case KindSlice:
		return s.containsLiteral(s.SliceElem(t))
	case KindArray:
		return s.containsLiteral(s.ArrayElem(t))
	default:
		return false
	}
}
