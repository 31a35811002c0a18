package emit

import (
	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/lexer"
	"github.com/icarus-lang/icarus/internal/types"
)

// EmitRef emits expr in lvalue position, producing the address of its
// storage. Only references (declared variables and projections of them)
// are addressable.
func (e *Emitter) EmitRef(expr ast.Expr) (ir.Operand, types.QualType, bool) {
	switch n := expr.(type) {
	case *ast.Ident:
		b := e.scope.Lookup(n.Name)
		if b == nil {
			e.typeErrorf(n.Span(), diag.CodeUndeclaredIdentifier, "undeclared identifier %q", n.Name)
			return ir.Operand{}, types.ErrorQual(), false
		}
		if b.Qual.HasError() {
			return ir.Operand{}, types.ErrorQual(), false
		}
		if b.Qual.IsConstant() || b.Constant != nil || b.IsFn || b.IsGeneric {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeAssigningToConstant,
				"%q is a constant and has no modifiable location", n.Name)
			return ir.Operand{}, types.ErrorQual(), false
		}
		if b.IsReg {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeAssigningToConstant,
				"parameter %q has no modifiable location", n.Name)
			return ir.Operand{}, types.ErrorQual(), false
		}
		if b.Owner != e.fn {
			e.errorf(n.Span(), diag.CategoryValueCategory, diag.CodeNonConstantTypeMemberAccess,
				"%q belongs to an enclosing function", n.Name)
			return ir.Operand{}, types.ErrorQual(), false
		}
		return ir.Reg(b.Slot), types.Reference(b.Qual.Type), true

	case *ast.UnaryExpr:
		// The reference of a dereference is the pointer's value.
		if n.Op == lexer.ASTERISK {
			operand, ok := e.EmitValue(n.Operand, types.Type{})
			if !ok {
				return ir.Operand{}, types.ErrorQual(), false
			}
			kind := operand.qual.Type.Kind()
			if kind != types.KindPointer && kind != types.KindBufferPointer {
				e.typeErrorf(n.Span(), diag.CodeDereferencingNonPointer,
					"dereferencing a value of non-pointer type %s", e.Sys.String(operand.qual.Type))
				return ir.Operand{}, types.ErrorQual(), false
			}
			return operand.op, types.Reference(e.Sys.AnyPointee(operand.qual.Type)), true
		}

	case *ast.IndexExpr:
		addr, elem, ok := e.emitIndexAddr(n)
		if !ok {
			return ir.Operand{}, types.ErrorQual(), false
		}
		return addr, types.Reference(elem), true

	case *ast.AccessExpr:
		return e.emitAccessRef(n)
	}

	e.errorf(expr.Span(), diag.CategoryValueCategory, diag.CodeAssigningToConstant,
		"expression has no modifiable location")
	return ir.Operand{}, types.ErrorQual(), false
}

// emitAccessRef produces the address of a struct field through an
// addressable struct.
func (e *Emitter) emitAccessRef(n *ast.AccessExpr) (ir.Operand, types.QualType, bool) {
	base, qual, ok := e.EmitRef(n.Operand)
	if !ok {
		return ir.Operand{}, types.ErrorQual(), false
	}
	if qual.Type.Kind() != types.KindStruct {
		e.typeErrorf(n.Span(), diag.CodeTypeHasNoMembers,
			"a value of type %s has no addressable members", e.Sys.String(qual.Type))
		return ir.Operand{}, types.ErrorQual(), false
	}
	st := e.Sys.StructOf(qual.Type)
	if st.Completeness() != types.Complete {
		e.typeErrorf(n.Span(), diag.CodeEvaluationFailure, "use of incomplete struct %s", st.Name())
		return ir.Operand{}, types.ErrorQual(), false
	}
	index, ok := st.FieldIndex(n.Member.Name)
	if !ok {
		e.typeErrorf(n.Span(), diag.CodeMissingMember, "struct %s has no field %q", st.Name(), n.Member.Name)
		return ir.Operand{}, types.ErrorQual(), false
	}
	out := e.fn.NewRegister()
	e.emit(&ir.StructIndex{Struct: qual.Type, Base: base, Field: index, Out: out})
	return ir.Reg(out), types.Reference(st.Fields()[index].Type), true
}

// EmitInit emits expr and initializes the storage at addr with its value,
// inserting the implicit conversion to t.
func (e *Emitter) EmitInit(expr ast.Expr, t types.Type, addr ir.Operand) bool {
	v, ok := e.emitConverted(expr, t)
	if !ok {
		return false
	}
	e.emit(&ir.Store{Type: t, Value: v.op, Addr: addr})
	return true
}

// emitConverted emits expr and applies the implicit conversion to t,
// reporting InvalidCast when none exists.
func (e *Emitter) emitConverted(expr ast.Expr, t types.Type) (value, bool) {
	v, ok := e.EmitValue(expr, t)
	if !ok {
		return errorValue()
	}
	return e.convertValue(expr, v, t)
}

func (e *Emitter) convertValue(at ast.Node, v value, t types.Type) (value, bool) {
	from := v.qual.Type
	if from == t {
		return v, true
	}
	if !e.Sys.CanCastImplicitly(from, t) {
		e.typeErrorf(at.Span(), diag.CodeInvalidCast,
			"cannot convert %s to %s", e.Sys.String(from), e.Sys.String(t))
		return errorValue()
	}
	switch {
	case e.Sys.CanCastInPlace(from, t):
		v.qual = types.NonConstant(t)
		return v, true
	case from == types.NullPtr:
		return value{op: v.op, qual: types.Constant(t), constant: v.constant}, true
	case from.Kind() == types.KindArray && t.Kind() == types.KindSlice:
		// Implicit array-to-slice goes through the array's address; the
		// value was already emitted, so spill it.
		slot := e.fn.NewRegister()
		e.fn.NoteAlloca(slot, from)
		e.emit(&ir.StackAllocate{Type: from, Out: slot})
		e.emit(&ir.Store{Type: from, Value: v.op, Addr: ir.Reg(slot)})
		out := e.fn.NewWideRegister(2)
		e.emit(&ir.Pack{Slots: []ir.Operand{ir.Reg(slot), ir.ImmU64(e.Sys.ArrayLength(from))}, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(t)}, true
	default:
		out := e.fn.NewRegister()
		e.emit(&ir.Cast{From: from, To: t, Operand: v.op, Out: out})
		return value{op: ir.Reg(out), qual: types.NonConstant(t)}, true
	}
}
