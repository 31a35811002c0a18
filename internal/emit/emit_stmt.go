package emit

import (
	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// EmitStmt emits one statement into the current block.
func (e *Emitter) EmitStmt(stmt ast.Stmt) {
	if e.terminated() {
		// Unreachable code after a return; skip silently.
		return
	}
	switch n := stmt.(type) {
	case *ast.Declaration:
		e.emitLocalDeclaration(n)
	case *ast.ExprStmt:
		e.EmitValue(n.E, types.Type{})
	case *ast.ReturnStmt:
		e.emitReturn(n)
	case *ast.AssignStmt:
		e.emitAssign(n)
	case *ast.IfExpr:
		e.emitIfStmt(n)
	case *ast.Block:
		e.emitBlock(n)
	default:
		e.errorf(stmt.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure, "unsupported statement")
	}
}

func (e *Emitter) emitBlock(block *ast.Block) {
	e.pushScope()
	defer e.popScope()
	for _, stmt := range block.Stmts {
		e.EmitStmt(stmt)
	}
}

// emitLocalDeclaration handles both constant and variable declarations in
// function bodies.
func (e *Emitter) emitLocalDeclaration(d *ast.Declaration) {
	if e.scope.DeclaredHere(d.Name.Name) {
		e.typeErrorf(d.Name.Span(), diag.CodeShadowingDeclaration,
			"%q is already declared in this scope", d.Name.Name)
		return
	}

	if d.IsConstant() {
		e.bindConstantDeclaration(d)
		return
	}

	// Resolve the declared type: annotation or inference from the
	// initializer.
	var declared types.Type
	if d.Type != nil {
		t, ok := e.EvaluateType(d.Type)
		if !ok {
			e.bindError(d.Name.Name)
			return
		}
		declared = t
	}

	if d.Init == nil {
		if declared == (types.Type{}) || declared == types.Error {
			e.bindError(d.Name.Name)
			return
		}
		if !e.hasDefault(declared) {
			e.typeErrorf(d.Span(), diag.CodeNoDefaultValue,
				"%s has no default value", e.Sys.String(declared))
			e.bindError(d.Name.Name)
			return
		}
		slot := e.alloca(declared)
		e.emit(&ir.Init{Type: declared, Addr: ir.Reg(slot)})
		e.bindVariable(d.Name.Name, declared, slot)
		return
	}

	if declared.Valid() {
		slot := e.alloca(declared)
		if !e.EmitInit(d.Init, declared, ir.Reg(slot)) {
			e.bindError(d.Name.Name)
			return
		}
		e.bindVariable(d.Name.Name, declared, slot)
		return
	}

	// Inferred: emit the initializer, then default literal-carrying types.
	v, ok := e.EmitValue(d.Init, types.Type{})
	if !ok {
		e.bindError(d.Name.Name)
		return
	}
	inferred, ok := e.Sys.Inference(v.qual.Type)
	if !ok {
		e.typeErrorf(d.Span(), diag.CodeUninferrableType,
			"cannot infer a runtime type from %s", e.Sys.String(v.qual.Type))
		e.bindError(d.Name.Name)
		return
	}
	converted, ok := e.convertValue(d, v, inferred)
	if !ok {
		e.bindError(d.Name.Name)
		return
	}
	slot := e.alloca(inferred)
	e.emit(&ir.Store{Type: inferred, Value: converted.op, Addr: ir.Reg(slot)})
	e.bindVariable(d.Name.Name, inferred, slot)
}

// EmitConstantDeclaration binds a file-scope constant declaration.
func (e *Emitter) EmitConstantDeclaration(d *ast.Declaration) {
	if e.scope.DeclaredHere(d.Name.Name) {
		e.typeErrorf(d.Name.Span(), diag.CodeShadowingDeclaration,
			"%q is already declared in this scope", d.Name.Name)
		return
	}
	e.bindConstantDeclaration(d)
}

// bindConstantDeclaration evaluates the initializer at compile time and
// binds the result. Constant function values keep their handle so calls
// resolve directly.
func (e *Emitter) bindConstantDeclaration(d *ast.Declaration) {
	if d.Init == nil {
		e.typeErrorf(d.Span(), diag.CodeNoDefaultValue, "constant %q requires an initializer", d.Name.Name)
		e.bindError(d.Name.Name)
		return
	}

	var expected types.Type
	if d.Type != nil {
		t, ok := e.EvaluateType(d.Type)
		if !ok {
			e.bindError(d.Name.Name)
			return
		}
		expected = t
	}

	// A foreign binding keeps its symbol name so calls lower to foreign
	// call instructions.
	if call, isCall := d.Init.(*ast.CallExpr); isCall {
		if ident, isIdent := call.Callee.(*ast.Ident); isIdent && ident.Name == "foreign" && e.scope.Lookup("foreign") == nil {
			v, ok := e.EmitValue(d.Init, expected)
			if !ok || v.foreignName == "" {
				e.bindError(d.Name.Name)
				return
			}
			e.scope.Bind(&Binding{Name: d.Name.Name, Qual: v.qual, ForeignName: v.foreignName})
			return
		}
	}

	// Function and generic literals bind specially so their handles stay
	// callable without materializing.
	switch init := d.Init.(type) {
	case *ast.ShortFunctionLit, *ast.FunctionLit:
		v, ok := e.EmitValue(init, expected)
		if !ok {
			e.bindError(d.Name.Name)
			return
		}
		b := &Binding{Name: d.Name.Name, Qual: v.qual}
		switch {
		case v.isGeneric:
			b.IsGeneric, b.GenericID = true, v.genericID
		case v.isFn:
			b.IsFn, b.FnID = true, v.fnID
		}
		e.scope.Bind(b)
		return
	}

	c, qual, ok := e.Bridge.EvaluateValue(e, d.Init, expected)
	if !ok {
		e.bindError(d.Name.Name)
		return
	}
	if expected.Valid() && qual.Type != expected {
		if !e.Sys.CanCastImplicitly(qual.Type, expected) {
			e.typeErrorf(d.Span(), diag.CodeInvalidCast,
				"cannot convert %s to %s", e.Sys.String(qual.Type), e.Sys.String(expected))
			e.bindError(d.Name.Name)
			return
		}
		qual = types.Constant(expected)
	}
	e.scope.Bind(&Binding{
		Name:     d.Name.Name,
		Qual:     types.Constant(qual.Type),
		Constant: c,
	})
}

func (e *Emitter) bindVariable(name string, t types.Type, slot ir.Register) {
	e.scope.Bind(&Binding{
		Name:  name,
		Qual:  types.Reference(t),
		Slot:  slot,
		Owner: e.fn,
	})
}

func (e *Emitter) bindError(name string) {
	e.scope.Bind(&Binding{Name: name, Qual: types.ErrorQual()})
}

func (e *Emitter) alloca(t types.Type) ir.Register {
	slot := e.fn.NewRegister()
	e.fn.NoteAlloca(slot, t)
	e.emit(&ir.StackAllocate{Type: t, Out: slot})
	return slot
}

// hasDefault reports whether a type can be default-initialized.
func (e *Emitter) hasDefault(t types.Type) bool {
	switch t.Kind() {
	case types.KindPointer, types.KindBufferPointer:
		return false
	case types.KindPrimitive:
		return t != types.NullPtr && t != types.EmptyArray && t != types.Integer
	default:
		return true
	}
}

func (e *Emitter) emitReturn(n *ast.ReturnStmt) {
	if len(n.Results) != len(e.returns) {
		e.typeErrorf(n.Span(), diag.CodeReturnTypeMismatch,
			"returning %d values from a function with %d results", len(n.Results), len(e.returns))
		return
	}
	for i, result := range n.Results {
		v, ok := e.emitConverted(result, e.returns[i])
		if !ok {
			return
		}
		e.copyToRegister(e.fn.Out(i), v)
	}
	e.block.SetTerminator(&ir.Return{})
}

// emitAssign handles single and parallel assignment. Parallel assignments
// are two-phase: every right-hand side is materialized into a temporary
// before any left-hand side is written, to respect aliasing.
func (e *Emitter) emitAssign(n *ast.AssignStmt) {
	if len(n.Lhs) != len(n.Rhs) {
		e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount,
			"assigning %d values to %d targets", len(n.Rhs), len(n.Lhs))
		return
	}

	if len(n.Lhs) == 1 {
		addr, qual, ok := e.EmitRef(n.Lhs[0])
		if !ok {
			return
		}
		v, ok := e.emitConverted(n.Rhs[0], qual.Type)
		if !ok {
			return
		}
		e.emit(&ir.Store{Type: qual.Type, Value: v.op, Addr: addr})
		return
	}

	type target struct {
		addr ir.Operand
		typ  types.Type
	}
	targets := make([]target, 0, len(n.Lhs))
	for _, lhs := range n.Lhs {
		addr, qual, ok := e.EmitRef(lhs)
		if !ok {
			return
		}
		targets = append(targets, target{addr: addr, typ: qual.Type})
	}

	// Phase one: initialize a temporary per right-hand side.
	temps := make([]ir.Register, len(n.Rhs))
	for i, rhs := range n.Rhs {
		slot := e.alloca(targets[i].typ)
		if !e.EmitInit(rhs, targets[i].typ, ir.Reg(slot)) {
			return
		}
		temps[i] = slot
	}

	// Phase two: move-assign each temporary into its target.
	for i, tgt := range targets {
		e.emit(&ir.MoveAssign{Type: tgt.typ, Dst: tgt.addr, Src: ir.Reg(temps[i])})
	}
}

func (e *Emitter) emitIfStmt(n *ast.IfExpr) {
	cond, ok := e.EmitValue(n.Cond, types.Bool)
	if !ok {
		return
	}
	if cond.qual.Type != types.Bool {
		e.typeErrorf(n.Cond.Span(), diag.CodeComparingIncomparables,
			"condition of type %s is not bool", e.Sys.String(cond.qual.Type))
		return
	}

	thenB := e.newBlock()
	var elseB *ir.Block
	join := e.newBlock()
	if n.Else != nil {
		elseB = e.newBlock()
		e.block.SetTerminator(&ir.Cond{Cond: cond.op, True: thenB, False: elseB})
	} else {
		e.block.SetTerminator(&ir.Cond{Cond: cond.op, True: thenB, False: join})
	}

	e.setBlock(thenB)
	e.emitBlock(n.Then)
	if !e.terminated() {
		e.block.SetTerminator(&ir.Uncond{Target: join})
	}

	if n.Else != nil {
		e.setBlock(elseB)
		switch els := n.Else.(type) {
		case *ast.Block:
			e.emitBlock(els)
		case *ast.IfExpr:
			e.emitIfStmt(els)
		}
		if !e.terminated() {
			e.block.SetTerminator(&ir.Uncond{Target: join})
		}
	}

	e.setBlock(join)
}
