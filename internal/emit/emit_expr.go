package emit

import (
	"math"
	"math/big"

	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/lexer"
	"github.com/icarus-lang/icarus/internal/types"
)

// EmitValue emits expr in value position and returns its value. The
// expected type, when valid, steers literal defaulting and implicit
// conversions; it never overrides the expression's own type.
func (e *Emitter) EmitValue(expr ast.Expr, expected types.Type) (value, bool) {
	switch n := expr.(type) {
	case *ast.IntegerLit:
		return e.emitIntegerLit(n, expected)
	case *ast.BoolLit:
		v := uint64(0)
		if n.Value {
			v = 1
		}
		return value{op: ir.Imm(v), qual: types.Constant(types.Bool), constant: Constant{v}}, true
	case *ast.StringLit:
		return e.emitStringLit(n)
	case *ast.NullLit:
		bits := ir.NullAddress.Pack()
		qual := types.Constant(types.NullPtr)
		if expected.Kind() == types.KindPointer || expected.Kind() == types.KindBufferPointer {
			qual = types.Constant(expected)
		}
		return value{op: ir.Imm(bits), qual: qual, constant: Constant{bits}}, true
	case *ast.TerminalType:
		return e.emitTerminalType(n)
	case *ast.Ident:
		return e.emitIdent(n)
	case *ast.ImportExpr:
		e.errorf(n.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure,
			"module loading is not available in this compilation")
		return errorValue()
	case *ast.UnaryExpr:
		return e.emitUnary(n, expected)
	case *ast.BinaryExpr:
		return e.emitBinary(n, expected)
	case *ast.CastExpr:
		return e.emitCast(n)
	case *ast.CallExpr:
		return e.emitCall(n, expected)
	case *ast.AccessExpr:
		return e.emitAccess(n)
	case *ast.IndexExpr:
		return e.emitIndexValue(n)
	case *ast.IfExpr:
		return e.emitIfValue(n, expected)
	case *ast.ShortFunctionLit:
		return e.emitShortFunctionLit(n)
	case *ast.FunctionLit:
		return e.emitFunctionLit(n)
	case *ast.StructLit:
		return e.emitStructLit(n)
	case *ast.EnumLit:
		return e.emitEnumLit(n)
	case *ast.FlagsLit:
		return e.emitFlagsLit(n)
	case *ast.SliceTypeExpr:
		return e.emitSliceType(n)
	case *ast.ArrayTypeExpr:
		return e.emitArrayType(n)
	default:
		e.errorf(expr.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure,
			"unsupported expression")
		return errorValue()
	}
}

func (e *Emitter) emitIntegerLit(n *ast.IntegerLit, expected types.Type) (value, bool) {
	parsed, ok := new(big.Int).SetString(n.Text, 10)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeUnexpectedToken, "malformed integer literal %q", n.Text)
		return errorValue()
	}

	// The literal's own type is Integer; pick the concrete representation
	// from context, defaulting as the inference rule does.
	target := types.I64
	if types.IsNumeric(expected) {
		target = expected
	}

	var bits uint64
	switch {
	case types.IsSignedInteger(target):
		if !parsed.IsInt64() || !fitsSigned(parsed.Int64(), types.IntegerWidth(target)) {
			e.typeErrorf(n.Span(), diag.CodeInvalidCast, "literal %s does not fit in %s", n.Text, e.Sys.String(target))
			return errorValue()
		}
		bits = uint64(parsed.Int64())
	case types.IsUnsignedInteger(target):
		if !parsed.IsUint64() || !fitsUnsigned(parsed.Uint64(), types.IntegerWidth(target)) {
			e.typeErrorf(n.Span(), diag.CodeInvalidCast, "literal %s does not fit in %s", n.Text, e.Sys.String(target))
			return errorValue()
		}
		bits = parsed.Uint64()
	case target == types.F64:
		f, _ := new(big.Float).SetInt(parsed).Float64()
		bits = math.Float64bits(f)
	case target == types.F32:
		f, _ := new(big.Float).SetInt(parsed).Float32()
		bits = uint64(math.Float32bits(f))
	}
	return value{op: ir.Imm(bits), qual: types.Constant(target), constant: Constant{bits}}, true
}

func fitsSigned(v int64, width int) bool {
	if width == 64 {
		return true
	}
	limit := int64(1) << uint(width-1)
	return v >= -limit && v < limit
}

func fitsUnsigned(v uint64, width int) bool {
	if width == 64 {
		return true
	}
	return v < 1<<uint(width)
}

func (e *Emitter) emitStringLit(n *ast.StringLit) (value, bool) {
	addr := e.Machine.InternString(n.Value)
	c := Constant{addr.Pack(), uint64(len(n.Value))}
	return value{
		op:       e.materialize(c),
		qual:     types.Constant(e.Sys.Slc(types.Char)),
		constant: c,
	}, true
}

func (e *Emitter) emitTerminalType(n *ast.TerminalType) (value, bool) {
	t, ok := types.PrimitiveByName(n.Name)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeNotAType, "unknown type name %q", n.Name)
		return errorValue()
	}
	bits := t.Representation()
	return value{op: ir.Imm(bits), qual: types.Constant(types.Type_), constant: Constant{bits}}, true
}

func (e *Emitter) emitIdent(n *ast.Ident) (value, bool) {
	b := e.scope.Lookup(n.Name)
	if b == nil {
		e.typeErrorf(n.Span(), diag.CodeUndeclaredIdentifier, "undeclared identifier %q", n.Name)
		return errorValue()
	}
	if b.Qual.HasError() {
		return errorValue()
	}
	switch {
	case b.IsFn:
		return value{op: ir.ImmU64(uint64(b.FnID)), qual: b.Qual, fnID: b.FnID, isFn: true}, true
	case b.IsGeneric:
		return value{qual: b.Qual, genericID: b.GenericID, isGeneric: true}, true
	case b.ForeignName != "":
		return value{qual: b.Qual, foreignName: b.ForeignName}, true
	case b.Constant != nil:
		return value{op: e.materialize(b.Constant), qual: b.Qual, constant: b.Constant}, true
	case b.IsReg:
		if b.Owner != e.fn {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeNonConstantTypeMemberAccess,
				"%q is a parameter of an enclosing function and cannot be captured", n.Name)
			return errorValue()
		}
		return value{op: ir.Reg(b.Reg), qual: types.NonConstant(b.Qual.Type)}, true
	default:
		if b.Owner != e.fn {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeNonConstantTypeMemberAccess,
				"%q is a runtime variable of an enclosing function and cannot be captured", n.Name)
			return errorValue()
		}
		out := e.fn.NewWideRegister(e.slotWidth(b.Qual.Type))
		e.emit(&ir.Load{Type: b.Qual.Type, Addr: ir.Reg(b.Slot), Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(b.Qual.Type)}, true
	}
}

func (e *Emitter) emitUnary(n *ast.UnaryExpr, expected types.Type) (value, bool) {
	switch n.Op {
	case lexer.MINUS:
		operand, ok := e.EmitValue(n.Operand, expected)
		if !ok {
			return errorValue()
		}
		t := operand.qual.Type
		if !types.IsSignedInteger(t) && !types.IsFloat(t) {
			e.typeErrorf(n.Span(), diag.CodeComparingIncomparables, "cannot negate a value of type %s", e.Sys.String(t))
			return errorValue()
		}
		out := e.fn.NewRegister()
		e.emit(&ir.Neg{Type: t, Operand: operand.op, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(t)}, true

	case lexer.ASTERISK:
		operand, ok := e.EmitValue(n.Operand, types.Type{})
		if !ok {
			return errorValue()
		}
		// On a type operand `*T` constructs a pointer type; on a pointer
		// operand it dereferences.
		if operand.qual.Type == types.Type_ {
			out := e.fn.NewRegister()
			e.emit(&ir.PtrOf{Operand: operand.op, Out: out})
			return e.typeValue(out, operand)
		}
		if operand.qual.Type.Kind() != types.KindPointer && operand.qual.Type.Kind() != types.KindBufferPointer {
			e.typeErrorf(n.Span(), diag.CodeDereferencingNonPointer,
				"dereferencing a value of non-pointer type %s", e.Sys.String(operand.qual.Type))
			return errorValue()
		}
		pointee := e.Sys.AnyPointee(operand.qual.Type)
		out := e.fn.NewWideRegister(e.slotWidth(pointee))
		e.emit(&ir.Load{Type: pointee, Addr: operand.op, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(pointee)}, true

	case lexer.AMPERSAND:
		addr, qual, ok := e.EmitRef(n.Operand)
		if !ok {
			return errorValue()
		}
		return value{op: addr, qual: types.NonConstant(e.Sys.Ptr(qual.Type))}, true

	case lexer.BUFPTR:
		operand, ok := e.EmitValue(n.Operand, types.Type_)
		if !ok {
			return errorValue()
		}
		if operand.qual.Type != types.Type_ {
			e.typeErrorf(n.Span(), diag.CodeNotAType, "[*] requires a type operand")
			return errorValue()
		}
		out := e.fn.NewRegister()
		e.emit(&ir.BufPtrOf{Operand: operand.op, Out: out})
		return e.typeValue(out, operand)
	}
	e.errorf(n.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure, "unsupported unary operator %s", n.Op)
	return errorValue()
}

// typeValue wraps a register holding a Type, keeping constness when the
// operand was constant.
func (e *Emitter) typeValue(out ir.Register, operands ...value) (value, bool) {
	qual := types.Constant(types.Type_)
	for _, op := range operands {
		if !op.isConstant() {
			qual = types.NonConstant(types.Type_)
		}
	}
	return value{op: ir.Reg(out), qual: qual}, true
}

func (e *Emitter) emitBinary(n *ast.BinaryExpr, expected types.Type) (value, bool) {
	if n.Op == lexer.ARROW {
		return e.emitFunctionTypeArrow(n)
	}

	// Emit the side that pins down a concrete type first so integer
	// literals on the other side adopt it.
	lhsFirst := true
	if isLiteralExpr(n.Left) && !isLiteralExpr(n.Right) {
		lhsFirst = false
	}

	var lhs, rhs value
	var ok bool
	if lhsFirst {
		if lhs, ok = e.EmitValue(n.Left, expected); !ok {
			return errorValue()
		}
		hint := lhs.qual.Type
		if !types.IsNumeric(hint) {
			hint = expected
		}
		if rhs, ok = e.EmitValue(n.Right, hint); !ok {
			return errorValue()
		}
	} else {
		if rhs, ok = e.EmitValue(n.Right, expected); !ok {
			return errorValue()
		}
		hint := rhs.qual.Type
		if !types.IsNumeric(hint) {
			hint = expected
		}
		if lhs, ok = e.EmitValue(n.Left, hint); !ok {
			return errorValue()
		}
	}

	common, ok := e.Sys.Meet(lhs.qual.Type, rhs.qual.Type)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeComparingIncomparables,
			"no common type for %s and %s", e.Sys.String(lhs.qual.Type), e.Sys.String(rhs.qual.Type))
		return errorValue()
	}

	switch n.Op {
	case lexer.PLUS, lexer.MINUS, lexer.ASTERISK, lexer.SLASH, lexer.PERCENT:
		if !types.IsNumeric(common) {
			e.typeErrorf(n.Span(), diag.CodeComparingIncomparables,
				"arithmetic over non-numeric type %s", e.Sys.String(common))
			return errorValue()
		}
		out := e.fn.NewRegister()
		switch n.Op {
		case lexer.PLUS:
			e.emit(&ir.Add{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.MINUS:
			e.emit(&ir.Sub{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.ASTERISK:
			e.emit(&ir.Mul{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.SLASH:
			e.emit(&ir.Div{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.PERCENT:
			e.emit(&ir.Mod{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		}
		return value{op: ir.Reg(out), qual: types.NonConstant(common)}, true

	case lexer.EQ, lexer.NOT_EQ, lexer.LT, lexer.LE, lexer.GT, lexer.GE:
		if !comparable(common) {
			e.typeErrorf(n.Span(), diag.CodeComparingIncomparables,
				"values of type %s are not comparable", e.Sys.String(common))
			return errorValue()
		}
		out := e.fn.NewRegister()
		switch n.Op {
		case lexer.EQ:
			e.emit(&ir.Eq{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.NOT_EQ:
			e.emit(&ir.Ne{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.LT:
			e.emit(&ir.Lt{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.LE:
			e.emit(&ir.Le{Type: common, Lhs: lhs.op, Rhs: rhs.op, Out: out})
		case lexer.GT:
			// Gt/Ge are expressed as swapped Lt/Le.
			e.emit(&ir.Lt{Type: common, Lhs: rhs.op, Rhs: lhs.op, Out: out})
		case lexer.GE:
			e.emit(&ir.Le{Type: common, Lhs: rhs.op, Rhs: lhs.op, Out: out})
		}
		return value{op: ir.Reg(out), qual: types.NonConstant(types.Bool)}, true
	}

	e.errorf(n.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure, "unsupported binary operator %s", n.Op)
	return errorValue()
}

func comparable(t types.Type) bool {
	if types.IsArithmetic(t) || t == types.Char || t == types.Byte || t == types.Bool || t == types.Type_ {
		return true
	}
	switch t.Kind() {
	case types.KindPointer, types.KindBufferPointer, types.KindEnum, types.KindFlags, types.KindFunction:
		return true
	}
	return false
}

func isLiteralExpr(expr ast.Expr) bool {
	switch expr.(type) {
	case *ast.IntegerLit, *ast.NullLit:
		return true
	}
	return false
}

func (e *Emitter) emitFunctionTypeArrow(n *ast.BinaryExpr) (value, bool) {
	lhs, ok := e.EmitValue(n.Left, types.Type_)
	if !ok {
		return errorValue()
	}
	rhs, ok := e.EmitValue(n.Right, types.Type_)
	if !ok {
		return errorValue()
	}
	if lhs.qual.Type != types.Type_ && lhs.qual.Type.Kind() != types.KindParameters {
		e.typeErrorf(n.Left.Span(), diag.CodeNotAType, "the left of -> must name parameter types")
		return errorValue()
	}
	if rhs.qual.Type != types.Type_ {
		e.typeErrorf(n.Right.Span(), diag.CodeNotAType, "the right of -> must be a type")
		return errorValue()
	}
	out := e.fn.NewRegister()
	e.emit(&ir.ConstructFunctionType{Params: lhs.op, Return: rhs.op, Out: out})
	return e.typeValue(out, lhs, rhs)
}

func (e *Emitter) emitCast(n *ast.CastExpr) (value, bool) {
	target, ok := e.EvaluateType(n.Type)
	if !ok {
		return errorValue()
	}

	// Give literals the chance to adopt the target directly.
	var hint types.Type
	if types.IsNumeric(target) {
		hint = target
	}
	operand, ok := e.EmitValue(n.Operand, hint)
	if !ok {
		return errorValue()
	}
	from := operand.qual.Type
	if from == target {
		return value{op: operand.op, qual: types.NonConstant(target), constant: operand.constant}, true
	}
	if !e.Sys.CanCastExplicitly(from, target) {
		e.typeErrorf(n.Span(), diag.CodeInvalidCast,
			"cannot cast %s to %s", e.Sys.String(from), e.Sys.String(target))
		return errorValue()
	}

	switch {
	case e.Sys.CanCastInPlace(from, target):
		// No bytes change; reinterpret the same storage.
		return value{op: operand.op, qual: types.NonConstant(target), constant: operand.constant}, true

	case from == types.NullPtr:
		bits := ir.NullAddress.Pack()
		return value{op: ir.Imm(bits), qual: types.Constant(target), constant: Constant{bits}}, true

	case from.Kind() == types.KindArray && target.Kind() == types.KindSlice:
		return e.emitArrayToSlice(n.Operand, from, target)

	case from == types.EmptyArray:
		if target.Kind() == types.KindSlice {
			c := Constant{ir.NullAddress.Pack(), 0}
			return value{op: e.materialize(c), qual: types.Constant(target), constant: c}, true
		}
		e.typeErrorf(n.Span(), diag.CodeInvalidCast, "cannot materialize an empty array as %s", e.Sys.String(target))
		return errorValue()

	default:
		out := e.fn.NewRegister()
		e.emit(&ir.Cast{From: from, To: target, Operand: operand.op, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(target)}, true
	}
}

// emitArrayToSlice loads the array's address and length and produces the
// slice pair.
func (e *Emitter) emitArrayToSlice(operand ast.Expr, from, target types.Type) (value, bool) {
	addr, _, ok := e.EmitRef(operand)
	if !ok {
		return errorValue()
	}
	length := e.Sys.ArrayLength(from)
	if e.Sys.SliceElem(target) == types.Byte && e.Sys.ArrayElem(from) != types.Byte {
		length = e.Sys.Bytes(from)
	}
	out := e.fn.NewWideRegister(2)
	e.emit(&ir.Pack{Slots: []ir.Operand{addr, ir.ImmU64(length)}, Out: out})
	return value{op: ir.Reg(out), qual: types.NonConstant(target)}, true
}

func (e *Emitter) emitAccess(n *ast.AccessExpr) (value, bool) {
	operand, ok := e.EmitValue(n.Operand, types.Type{})
	if !ok {
		return errorValue()
	}
	t := operand.qual.Type

	switch {
	case t == types.Type_:
		// Member access on a type value: enum and flags members.
		if operand.constant == nil {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeNonConstantTypeMemberAccess,
				"member access requires a compile-time constant type")
			return errorValue()
		}
		named := types.FromRepresentation(operand.constant[0])
		switch named.Kind() {
		case types.KindEnum:
			enum := e.Sys.EnumOf(named)
			v, ok := enum.Get(n.Member.Name)
			if !ok {
				e.typeErrorf(n.Span(), diag.CodeMissingMember, "enum %s has no member %q", enum.Name(), n.Member.Name)
				return errorValue()
			}
			return value{op: ir.Imm(v), qual: types.Constant(named), constant: Constant{v}}, true
		case types.KindFlags:
			flags := e.Sys.FlagsOf(named)
			v, ok := flags.Get(n.Member.Name)
			if !ok {
				e.typeErrorf(n.Span(), diag.CodeMissingMember, "flags %s has no member %q", flags.Name(), n.Member.Name)
				return errorValue()
			}
			return value{op: ir.Imm(v), qual: types.Constant(named), constant: Constant{v}}, true
		default:
			e.typeErrorf(n.Span(), diag.CodeTypeHasNoMembers,
				"type %s has no accessible members", e.Sys.String(named))
			return errorValue()
		}

	case t.Kind() == types.KindSlice:
		// Pair projection: .data and .length.
		switch n.Member.Name {
		case "data":
			out := e.fn.NewRegister()
			e.emit(&ir.Extract{Source: operand.op, Index: 0, Out: out})
			return value{op: ir.Reg(out), qual: types.NonConstant(e.Sys.BufPtr(e.Sys.SliceElem(t)))}, true
		case "length":
			out := e.fn.NewRegister()
			e.emit(&ir.Extract{Source: operand.op, Index: 1, Out: out})
			return value{op: ir.Reg(out), qual: types.NonConstant(types.U64)}, true
		default:
			e.typeErrorf(n.Span(), diag.CodeMissingMember, "slices have members data and length, not %q", n.Member.Name)
			return errorValue()
		}

	case t.Kind() == types.KindStruct:
		addr, qual, ok := e.emitStructMemberAddr(n, operand)
		if !ok {
			return errorValue()
		}
		out := e.fn.NewWideRegister(e.slotWidth(qual.Type))
		e.emit(&ir.Load{Type: qual.Type, Addr: addr, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(qual.Type)}, true

	case t == types.Module:
		e.errorf(n.Span(), diag.CategoryType, diag.CodeNonConstantModuleMemberAccess,
			"module member access requires a loaded module constant")
		return errorValue()

	default:
		e.typeErrorf(n.Span(), diag.CodeTypeHasNoMembers,
			"a value of type %s has no members", e.Sys.String(t))
		return errorValue()
	}
}

// emitStructMemberAddr computes the address of a struct field given an
// already-emitted struct VALUE. The value is always stored into a fresh
// stack slot first.
func (e *Emitter) emitStructMemberAddr(n *ast.AccessExpr, operand value) (ir.Operand, types.QualType, bool) {
	t := operand.qual.Type
	st := e.Sys.StructOf(t)
	if st.Completeness() != types.Complete {
		e.typeErrorf(n.Span(), diag.CodeEvaluationFailure, "use of incomplete struct %s", st.Name())
		return ir.Operand{}, types.ErrorQual(), false
	}
	index, ok := st.FieldIndex(n.Member.Name)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeMissingMember, "struct %s has no field %q", st.Name(), n.Member.Name)
		return ir.Operand{}, types.ErrorQual(), false
	}

	// Spill the value into a stack slot to take field addresses.
	slot := e.fn.NewRegister()
	e.fn.NoteAlloca(slot, t)
	e.emit(&ir.StackAllocate{Type: t, Out: slot})
	e.emit(&ir.Store{Type: t, Value: operand.op, Addr: ir.Reg(slot)})

	out := e.fn.NewRegister()
	e.emit(&ir.StructIndex{Struct: t, Base: ir.Reg(slot), Field: index, Out: out})
	return ir.Reg(out), types.NonConstant(st.Fields()[index].Type), true
}

func (e *Emitter) emitIndexValue(n *ast.IndexExpr) (value, bool) {
	addr, elem, ok := e.emitIndexAddr(n)
	if !ok {
		return errorValue()
	}
	out := e.fn.NewWideRegister(e.slotWidth(elem))
	e.emit(&ir.Load{Type: elem, Addr: addr, Out: out})
	return value{op: ir.Reg(out), qual: types.NonConstant(elem)}, true
}

// emitIndexAddr computes the element address for array, slice, and buffer
// pointer subscripts.
func (e *Emitter) emitIndexAddr(n *ast.IndexExpr) (ir.Operand, types.Type, bool) {
	index, ok := e.EmitValue(n.Index, types.I64)
	if !ok {
		return ir.Operand{}, types.Error, false
	}
	if !types.IsInteger(index.qual.Type) {
		e.typeErrorf(n.Index.Span(), diag.CodeInvalidIndexType,
			"index of type %s is not an integer", e.Sys.String(index.qual.Type))
		return ir.Operand{}, types.Error, false
	}

	// Arrays are indexed through their address; slices and buffer pointers
	// through their data pointer.
	if operandType, ok2 := e.typeOfExpr(n.Operand); ok2 && operandType.Kind() == types.KindArray {
		base, _, ok2 := e.EmitRef(n.Operand)
		if !ok2 {
			return ir.Operand{}, types.Error, false
		}
		elem := e.Sys.ArrayElem(operandType)
		out := e.fn.NewRegister()
		e.emit(&ir.PtrIncr{Pointee: elem, Base: base, Index: index.op, Out: out})
		return ir.Reg(out), elem, true
	}

	operand, ok := e.EmitValue(n.Operand, types.Type{})
	if !ok {
		return ir.Operand{}, types.Error, false
	}
	switch operand.qual.Type.Kind() {
	case types.KindSlice:
		elem := e.Sys.SliceElem(operand.qual.Type)
		data := e.fn.NewRegister()
		e.emit(&ir.Extract{Source: operand.op, Index: 0, Out: data})
		out := e.fn.NewRegister()
		e.emit(&ir.PtrIncr{Pointee: elem, Base: ir.Reg(data), Index: index.op, Out: out})
		return ir.Reg(out), elem, true
	case types.KindBufferPointer:
		elem := e.Sys.BufferPointee(operand.qual.Type)
		out := e.fn.NewRegister()
		e.emit(&ir.PtrIncr{Pointee: elem, Base: operand.op, Index: index.op, Out: out})
		return ir.Reg(out), elem, true
	default:
		e.typeErrorf(n.Span(), diag.CodeIndexingNonArray,
			"cannot index a value of type %s", e.Sys.String(operand.qual.Type))
		return ir.Operand{}, types.Error, false
	}
}

// typeOfExpr performs a cheap syntactic type lookup for expressions whose
// type is known without emission (declared variables).
func (e *Emitter) typeOfExpr(expr ast.Expr) (types.Type, bool) {
	if ident, ok := expr.(*ast.Ident); ok {
		if b := e.scope.Lookup(ident.Name); b != nil {
			return b.Qual.Type, true
		}
	}
	return types.Type{}, false
}

func (e *Emitter) emitIfValue(n *ast.IfExpr, expected types.Type) (value, bool) {
	// An if without an else produces no value; emit it as a statement.
	if n.Else == nil {
		e.emitIfStmt(n)
		return value{op: ir.Imm(0), qual: types.NonConstant(types.Unit)}, true
	}

	cond, ok := e.EmitValue(n.Cond, types.Bool)
	if !ok {
		return errorValue()
	}
	if cond.qual.Type != types.Bool {
		e.typeErrorf(n.Cond.Span(), diag.CodeComparingIncomparables,
			"condition of type %s is not bool", e.Sys.String(cond.qual.Type))
		return errorValue()
	}

	elseBlock, hasElse := n.Else.(*ast.Block)
	thenB := e.newBlock()
	elseB := e.newBlock()
	join := e.newBlock()
	e.block.SetTerminator(&ir.Cond{Cond: cond.op, True: thenB, False: elseB})

	e.setBlock(thenB)
	thenVal, thenOK := e.emitBlockValue(n.Then, expected)
	thenExit := e.block
	if !e.terminated() {
		e.block.SetTerminator(&ir.Uncond{Target: join})
	}

	e.setBlock(elseB)
	var elseVal value
	elseOK := true
	if hasElse {
		elseVal, elseOK = e.emitBlockValue(elseBlock, expected)
	} else if nested, isIf := n.Else.(*ast.IfExpr); isIf {
		elseVal, elseOK = e.emitIfValue(nested, expected)
	}
	elseExit := e.block
	if !e.terminated() {
		e.block.SetTerminator(&ir.Uncond{Target: join})
	}

	e.setBlock(join)
	if !thenOK || !elseOK {
		return errorValue()
	}

	common, ok := e.Sys.Meet(thenVal.qual.Type, elseVal.qual.Type)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeComparingIncomparables,
			"branches have incompatible types %s and %s",
			e.Sys.String(thenVal.qual.Type), e.Sys.String(elseVal.qual.Type))
		return errorValue()
	}
	out := e.fn.NewWideRegister(e.slotWidth(common))
	e.emit(&ir.Phi{Type: common, Out: out, Pairs: []ir.PhiPair{
		{Pred: thenExit, Value: thenVal.op},
		{Pred: elseExit, Value: elseVal.op},
	}})
	return value{op: ir.Reg(out), qual: types.NonConstant(common)}, true
}

// emitBlockValue emits a block whose trailing expression statement is the
// block's value.
func (e *Emitter) emitBlockValue(block *ast.Block, expected types.Type) (value, bool) {
	e.pushScope()
	defer e.popScope()

	for i, stmt := range block.Stmts {
		if i == len(block.Stmts)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				return e.EmitValue(es.E, expected)
			}
		}
		e.EmitStmt(stmt)
	}
	return value{op: ir.Imm(0), qual: types.NonConstant(types.Unit)}, true
}

func (e *Emitter) emitStructLit(n *ast.StructLit) (value, bool) {
	instr := &ir.StructCreate{Module: e.ModuleName}
	constant := true
	for _, field := range n.Fields {
		if field.Type == nil {
			e.typeErrorf(field.Span(), diag.CodeNotAType, "struct fields require a type annotation")
			return errorValue()
		}
		fieldType, ok := e.EmitValue(field.Type, types.Type_)
		if !ok {
			return errorValue()
		}
		if fieldType.qual.Type != types.Type_ {
			e.typeErrorf(field.Type.Span(), diag.CodeNotAType, "struct field type is not a type")
			return errorValue()
		}
		constant = constant && fieldType.isConstant()
		instr.Fields = append(instr.Fields, ir.StructFieldSpec{Name: field.Name.Name, Type: fieldType.op})
	}
	instr.Out = e.fn.NewRegister()
	e.emit(instr)
	qual := types.NonConstant(types.Type_)
	if constant {
		qual = types.Constant(types.Type_)
	}
	return value{op: ir.Reg(instr.Out), qual: qual}, true
}

func (e *Emitter) emitEnumLit(n *ast.EnumLit) (value, bool) {
	instr := &ir.EnumCreate{Module: e.ModuleName, Out: e.fn.NewRegister()}
	for _, m := range n.Members {
		spec := ir.EnumMemberSpec{Name: m.Name.Name}
		if m.Value != nil {
			v, ok := e.EmitValue(m.Value, types.U64)
			if !ok {
				return errorValue()
			}
			spec.Value, spec.HasValue = v.op, true
		}
		instr.Members = append(instr.Members, spec)
	}
	e.emit(instr)
	return value{op: ir.Reg(instr.Out), qual: types.Constant(types.Type_)}, true
}

func (e *Emitter) emitFlagsLit(n *ast.FlagsLit) (value, bool) {
	instr := &ir.FlagsCreate{Module: e.ModuleName, Out: e.fn.NewRegister()}
	for _, m := range n.Members {
		instr.Members = append(instr.Members, ir.EnumMemberSpec{Name: m.Name.Name})
	}
	e.emit(instr)
	return value{op: ir.Reg(instr.Out), qual: types.Constant(types.Type_)}, true
}

func (e *Emitter) emitSliceType(n *ast.SliceTypeExpr) (value, bool) {
	elem, ok := e.EmitValue(n.Elem, types.Type_)
	if !ok {
		return errorValue()
	}
	if elem.qual.Type != types.Type_ {
		e.typeErrorf(n.Elem.Span(), diag.CodeNotAType, "slice element is not a type")
		return errorValue()
	}
	out := e.fn.NewRegister()
	e.emit(&ir.SliceOf{Operand: elem.op, Out: out})
	return e.typeValue(out, elem)
}

func (e *Emitter) emitArrayType(n *ast.ArrayTypeExpr) (value, bool) {
	length, ok := e.EmitValue(n.Length, types.U64)
	if !ok {
		return errorValue()
	}
	if !types.IsInteger(length.qual.Type) {
		e.typeErrorf(n.Length.Span(), diag.CodeInvalidIndexType, "array length is not an integer")
		return errorValue()
	}
	elem, ok := e.EmitValue(n.Elem, types.Type_)
	if !ok {
		return errorValue()
	}
	if elem.qual.Type != types.Type_ {
		e.typeErrorf(n.Elem.Span(), diag.CodeNotAType, "array element is not a type")
		return errorValue()
	}
	out := e.fn.NewRegister()
	e.emit(&ir.ArrayOf{Length: length.op, Elem: elem.op, Out: out})
	return e.typeValue(out, length, elem)
}
