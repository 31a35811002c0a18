package interp

import (
	"math"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Register slots store values in canonical 64-bit form: signed integers
// sign-extended, unsigned integers zero-extended, f32 as its bit pattern in
// the low 32 bits, bool as 0 or 1.

func signedBounds(width int) (int64, int64) {
	switch width {
	case 8:
		return math.MinInt8, math.MaxInt8
	case 16:
		return math.MinInt16, math.MaxInt16
	case 32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func unsignedMask(width int) uint64 {
	if width == 64 {
		return math.MaxUint64
	}
	return 1<<uint(width) - 1
}

func truncSigned(v int64, width int) int64 {
	shift := uint(64 - width)
	return v << shift >> shift
}

// arith executes Add/Sub/Mul/Div/Mod. Unsigned arithmetic wraps at the
// type's width; signed overflow traps; division by zero traps.
func (m *Machine) arith(fr *frame, instr ir.Instr) *EvalError {
	var t types.Type
	var lhs, rhs ir.Operand
	var out ir.Register
	var op byte
	switch i := instr.(type) {
	case *ir.Add:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, '+'
	case *ir.Sub:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, '-'
	case *ir.Mul:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, '*'
	case *ir.Div:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, '/'
	case *ir.Mod:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, '%'
	}
	a, b := fr.resolve(lhs), fr.resolve(rhs)

	switch {
	case types.IsSignedInteger(t):
		v, err := signedArith(op, int64(a), int64(b), types.IntegerWidth(t))
		if err != nil {
			return err
		}
		fr.set(out, uint64(v))
	case types.IsUnsignedInteger(t):
		v, err := unsignedArith(op, a, b, types.IntegerWidth(t))
		if err != nil {
			return err
		}
		fr.set(out, v)
	case t == types.F64:
		v, err := floatArith(op, math.Float64frombits(a), math.Float64frombits(b))
		if err != nil {
			return err
		}
		fr.set(out, math.Float64bits(v))
	case t == types.F32:
		v, err := floatArith(op, float64(math.Float32frombits(uint32(a))), float64(math.Float32frombits(uint32(b))))
		if err != nil {
			return err
		}
		fr.set(out, uint64(math.Float32bits(float32(v))))
	default:
		return abort(MalformedFunction, "arithmetic over %s", m.sys.String(t))
	}
	return nil
}

func signedArith(op byte, a, b int64, width int) (int64, *EvalError) {
	lo, hi := signedBounds(width)
	checked := func(v int64, overflowed bool) (int64, *EvalError) {
		if overflowed || v < lo || v > hi {
			return 0, abort(SignedOverflow, "%d-bit signed overflow", width)
		}
		return v, nil
	}
	switch op {
	case '+':
		v := a + b
		return checked(v, b > 0 && v < a || b < 0 && v > a)
	case '-':
		v := a - b
		return checked(v, b < 0 && v < a || b > 0 && v > a)
	case '*':
		v := a * b
		return checked(v, a != 0 && (v/a != b))
	case '/':
		if b == 0 {
			return 0, abort(DivideByZero, "signed division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return 0, abort(SignedOverflow, "dividing the minimum value by -1")
		}
		return checked(a/b, false)
	case '%':
		if b == 0 {
			return 0, abort(DivideByZero, "signed remainder by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return 0, nil
		}
		return a % b, nil
	}
	return 0, abort(MalformedFunction, "unknown arithmetic operator %q", op)
}

func unsignedArith(op byte, a, b uint64, width int) (uint64, *EvalError) {
	mask := unsignedMask(width)
	a, b = a&mask, b&mask
	switch op {
	case '+':
		return (a + b) & mask, nil
	case '-':
		return (a - b) & mask, nil
	case '*':
		return (a * b) & mask, nil
	case '/':
		if b == 0 {
			return 0, abort(DivideByZero, "unsigned division by zero")
		}
		return a / b, nil
	case '%':
		if b == 0 {
			return 0, abort(DivideByZero, "unsigned remainder by zero")
		}
		return a % b, nil
	}
	return 0, abort(MalformedFunction, "unknown arithmetic operator %q", op)
}

func floatArith(op byte, a, b float64) (float64, *EvalError) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		return a / b, nil
	case '%':
		return math.Mod(a, b), nil
	}
	return 0, abort(MalformedFunction, "unknown arithmetic operator %q", op)
}

func (m *Machine) neg(fr *frame, i *ir.Neg) *EvalError {
	v := fr.resolve(i.Operand)
	switch {
	case types.IsSignedInteger(i.Type):
		lo, _ := signedBounds(types.IntegerWidth(i.Type))
		if int64(v) == lo {
			return abort(SignedOverflow, "negating the minimum value")
		}
		fr.set(i.Out, uint64(-int64(v)))
	case i.Type == types.F64:
		fr.set(i.Out, math.Float64bits(-math.Float64frombits(v)))
	case i.Type == types.F32:
		fr.set(i.Out, uint64(math.Float32bits(-math.Float32frombits(uint32(v)))))
	default:
		return abort(MalformedFunction, "negation over %s", m.sys.String(i.Type))
	}
	return nil
}

// compare executes Eq/Ne/Lt/Le over all arithmetic kinds plus char, bool,
// types, and pointer equality. Gt/Ge never reach the interpreter; the
// emitter swaps operands instead.
func (m *Machine) compare(fr *frame, instr ir.Instr) *EvalError {
	var t types.Type
	var lhs, rhs ir.Operand
	var out ir.Register
	var op string
	switch i := instr.(type) {
	case *ir.Eq:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "=="
	case *ir.Ne:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "!="
	case *ir.Lt:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "<"
	case *ir.Le:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "<="
	}
	a, b := fr.resolve(lhs), fr.resolve(rhs)

	var result bool
	switch {
	case types.IsSignedInteger(t):
		result = compareOrdered(op, int64(a), int64(b))
	case types.IsUnsignedInteger(t) || t == types.Char || t == types.Byte:
		result = compareOrdered(op, a, b)
	case t == types.F64:
		result = compareOrdered(op, math.Float64frombits(a), math.Float64frombits(b))
	case t == types.F32:
		result = compareOrdered(op, math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))
	case t == types.Bool || t == types.Type_ || t.Kind() == types.KindPointer ||
		t.Kind() == types.KindBufferPointer || t.Kind() == types.KindEnum ||
		t.Kind() == types.KindFlags || t.Kind() == types.KindFunction:
		switch op {
		case "==":
			result = a == b
		case "!=":
			result = a != b
		default:
			return abort(MalformedFunction, "ordering comparison over %s", m.sys.String(t))
		}
	default:
		return abort(MalformedFunction, "comparison over %s", m.sys.String(t))
	}

	if result {
		fr.set(out, 1)
	} else {
		fr.set(out, 0)
	}
	return nil
}

func compareOrdered[T int64 | uint64 | float64 | float32](op string, a, b T) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	default:
		return a <= b
	}
}

// convert implements Cast<From, To> for the conversions the cast lattice
// admits at runtime: integer resizations, integer-to-float, float widths,
// pointer reinterpretations, and enum/flags integer round-trips.
func (m *Machine) convert(v uint64, from, to types.Type) (uint64, *EvalError) {
	// Reinterpreting casts: same bits.
	if from == to ||
		isPointerLike(from) && isPointerLike(to) ||
		from.Kind() == types.KindEnum || from.Kind() == types.KindFlags ||
		to.Kind() == types.KindEnum || to.Kind() == types.KindFlags {
		return v, nil
	}

	switch {
	case types.IsSignedInteger(from):
		return convertFromInt(int64(v), to)
	case types.IsUnsignedInteger(from):
		return convertFromUint(v&unsignedMask(types.IntegerWidth(from)), to)
	case from == types.F64:
		return convertFromFloat(math.Float64frombits(v), to)
	case from == types.F32:
		return convertFromFloat(float64(math.Float32frombits(uint32(v))), to)
	}
	return 0, abort(NotYetImplemented, "cast %s to %s", m.sys.String(from), m.sys.String(to))
}

func isPointerLike(t types.Type) bool {
	return t.Kind() == types.KindPointer || t.Kind() == types.KindBufferPointer || t == types.NullPtr
}

func convertFromInt(v int64, to types.Type) (uint64, *EvalError) {
	switch {
	case types.IsSignedInteger(to):
		return uint64(truncSigned(v, types.IntegerWidth(to))), nil
	case types.IsUnsignedInteger(to):
		return uint64(v) & unsignedMask(types.IntegerWidth(to)), nil
	case to == types.F64:
		return math.Float64bits(float64(v)), nil
	case to == types.F32:
		return uint64(math.Float32bits(float32(v))), nil
	}
	return 0, abort(NotYetImplemented, "integer cast target")
}

func convertFromUint(v uint64, to types.Type) (uint64, *EvalError) {
	switch {
	case types.IsSignedInteger(to):
		return uint64(truncSigned(int64(v), types.IntegerWidth(to))), nil
	case types.IsUnsignedInteger(to):
		return v & unsignedMask(types.IntegerWidth(to)), nil
	case to == types.F64:
		return math.Float64bits(float64(v)), nil
	case to == types.F32:
		return uint64(math.Float32bits(float32(v))), nil
	}
	return 0, abort(NotYetImplemented, "integer cast target")
}

func convertFromFloat(v float64, to types.Type) (uint64, *EvalError) {
	switch to {
	case types.F64:
		return math.Float64bits(v), nil
	case types.F32:
		return uint64(math.Float32bits(float32(v))), nil
	}
	return 0, abort(NotYetImplemented, "float cast target")
}
