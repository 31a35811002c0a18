package emit

import (
	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/lexer"
	"github.com/icarus-lang/icarus/internal/types"
)

func (e *Emitter) emitShortFunctionLit(n *ast.ShortFunctionLit) (value, bool) {
	if constCount, generic := leadingConstantParams(e, n.Params, n.Span()); generic {
		id := e.Bridge.RegisterGeneric(&GenericDef{
			Params:     n.Params,
			ShortBody:  n.Body,
			Scope:      e.scope,
			ConstCount: constCount,
			Evaluation: types.PreferAtCompileTime,
		})
		t := e.Sys.Generic(types.PreferAtCompileTime, id)
		return value{qual: types.Constant(t), genericID: id, isGeneric: true}, true
	}
	return e.emitConcreteFunction(n.Params, nil, nil, n.Body)
}

func (e *Emitter) emitFunctionLit(n *ast.FunctionLit) (value, bool) {
	if constCount, generic := leadingConstantParams(e, n.Params, n.Span()); generic {
		id := e.Bridge.RegisterGeneric(&GenericDef{
			Params:     n.Params,
			Returns:    n.Returns,
			Body:       n.Body,
			Scope:      e.scope,
			ConstCount: constCount,
			Evaluation: types.PreferAtCompileTime,
		})
		t := e.Sys.Generic(types.PreferAtCompileTime, id)
		return value{qual: types.Constant(t), genericID: id, isGeneric: true}, true
	}
	return e.emitConcreteFunction(n.Params, n.Returns, n.Body, nil)
}

// leadingConstantParams reports whether the parameter list makes the
// function generic, and how many leading parameters are constant. Constant
// parameters must precede runtime ones.
func leadingConstantParams(e *Emitter, params []*ast.Declaration, span lexer.Span) (int, bool) {
	count := 0
	for i, p := range params {
		if p.IsConstant() {
			if i != count {
				e.typeErrorf(span, diag.CodeNonDeclarationInStruct,
					"constant parameters must precede runtime parameters")
				return 0, false
			}
			count++
		}
	}
	return count, count > 0
}

// EmitConcreteFunction compiles a function literal whose parameters are all
// runtime values. It is also the entry point the evaluation bridge uses to
// emit generic specializations once the constant parameters are bound.
func (e *Emitter) EmitConcreteFunction(params []*ast.Declaration, returnExprs []ast.Expr, body *ast.Block, shortBody ast.Expr, scope *Scope) (uint32, types.Type, bool) {
	saved := e.scope
	e.scope = scope
	v, ok := e.emitConcreteFunction(params, returnExprs, body, shortBody)
	e.scope = saved
	if !ok {
		return 0, types.Error, false
	}
	return v.fnID, v.qual.Type, true
}

func (e *Emitter) emitConcreteFunction(params []*ast.Declaration, returnExprs []ast.Expr, body *ast.Block, shortBody ast.Expr) (value, bool) {
	paramTypes := make([]types.Parameter, len(params))
	for i, p := range params {
		if p.Type == nil {
			e.typeErrorf(p.Span(), diag.CodeUninferrableType,
				"parameter %q requires a type annotation", p.Name.Name)
			return errorValue()
		}
		t, ok := e.EvaluateType(p.Type)
		if !ok {
			return errorValue()
		}
		paramTypes[i] = types.Parameter{Name: p.Name.Name, Type: t}
	}

	var returnTypes []types.Type
	for _, r := range returnExprs {
		t, ok := e.EvaluateType(r)
		if !ok {
			return errorValue()
		}
		returnTypes = append(returnTypes, t)
	}

	fn := ir.NewFn(types.Type{}, len(params), 0)
	for _, t := range returnTypes {
		fn.AddOutput(e.slotWidth(t))
	}

	fnType, ok := e.EmitFunctionBody(fn, params, paramTypes, returnTypes, body, shortBody, e.scope)
	if !ok {
		return errorValue()
	}
	id := e.Prog.AddFunction(fn)
	return value{op: ir.ImmU64(uint64(id)), qual: types.Constant(fnType), fnID: id, isFn: true}, true
}

// EmitFunctionBody populates fn from a function literal body: it binds the
// parameters, emits the statements, and installs the function type. The
// evaluation bridge calls this directly when it finishes a deferred generic
// specialization.
func (e *Emitter) EmitFunctionBody(fn *ir.Fn, params []*ast.Declaration, paramTypes []types.Parameter, returnTypes []types.Type, body *ast.Block, shortBody ast.Expr, scope *Scope) (types.Type, bool) {
	sub := e.Fork(fn, NewScope(scope))
	sub.returns = returnTypes
	for i, p := range params {
		fn.SetRegisterSlots(fn.Param(i), e.slotWidth(paramTypes[i].Type))
		sub.scope.Bind(&Binding{
			Name:  p.Name.Name,
			Qual:  types.NonConstant(paramTypes[i].Type),
			Reg:   fn.Param(i),
			IsReg: true,
			Owner: fn,
		})
	}

	if shortBody != nil {
		// The short form infers its return type from the body.
		v, ok := sub.EmitValue(shortBody, types.Type{})
		if !ok {
			return types.Error, false
		}
		inferred, ok := e.Sys.Inference(v.qual.Type)
		if !ok {
			e.typeErrorf(shortBody.Span(), diag.CodeUninferrableType,
				"cannot infer a return type from %s", e.Sys.String(v.qual.Type))
			return types.Error, false
		}
		converted, ok := sub.convertValue(shortBody, v, inferred)
		if !ok {
			return types.Error, false
		}
		out := fn.AddOutput(e.slotWidth(inferred))
		sub.copyToRegister(out, converted)
		sub.block.SetTerminator(&ir.Return{})
		returnTypes = []types.Type{inferred}
	} else {
		sub.emitBlock(body)
		if !sub.terminated() {
			if len(returnTypes) == 0 {
				sub.block.SetTerminator(&ir.Return{})
			} else if len(sub.block.Incoming()) == 0 && sub.block != fn.Entry() {
				// Unreachable join block after both arms returned.
				sub.block.SetTerminator(&ir.Return{})
			} else {
				e.typeErrorf(body.Span(), diag.CodeReturnTypeMismatch,
					"missing return in a function with results")
				return types.Error, false
			}
		}
	}

	fnType := e.Sys.Func(e.Sys.Params(paramTypes), returnTypes, types.PreferRuntime)
	fn.SetType(fnType)
	return fnType, true
}

func (e *Emitter) emitCall(n *ast.CallExpr, expected types.Type) (value, bool) {
	if ident, ok := n.Callee.(*ast.Ident); ok && e.scope.Lookup(ident.Name) == nil {
		if v, handled, ok := e.emitBuiltin(ident.Name, n); handled {
			return v, ok
		}
	}

	callee, ok := e.EmitValue(n.Callee, types.Type{})
	if !ok {
		return errorValue()
	}

	switch {
	case callee.isGeneric:
		fnID, fnType, firstRuntime, ok := e.Bridge.InstantiateGeneric(e, callee.genericID, n)
		if !ok {
			return errorValue()
		}
		return e.emitDirectCall(n, ir.ImmU64(uint64(fnID)), fnType, n.Args[firstRuntime:])

	case callee.foreignName != "":
		return e.emitForeignCall(n, callee)

	case callee.qual.Type.Kind() == types.KindFunction:
		return e.emitDirectCall(n, callee.op, callee.qual.Type, n.Args)

	default:
		e.typeErrorf(n.Span(), diag.CodeComparingIncomparables,
			"calling a value of non-function type %s", e.Sys.String(callee.qual.Type))
		return errorValue()
	}
}

func (e *Emitter) emitDirectCall(n *ast.CallExpr, callee ir.Operand, fnType types.Type, args []ast.Expr) (value, bool) {
	params := e.Sys.ParameterList(e.Sys.FunctionParameters(fnType))
	if len(args) != len(params) {
		e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount,
			"call passes %d arguments, function takes %d", len(args), len(params))
		return errorValue()
	}
	ops := make([]ir.Operand, len(args))
	for i, arg := range args {
		v, ok := e.emitConverted(arg, params[i].Type)
		if !ok {
			return errorValue()
		}
		ops[i] = v.op
	}

	returns := e.Sys.FunctionReturns(fnType)
	outs := make([]ir.Register, len(returns))
	for i, t := range returns {
		outs[i] = e.fn.NewWideRegister(e.slotWidth(t))
	}
	e.emit(&ir.Call{Callee: callee, Args: ops, Outs: outs})

	switch len(returns) {
	case 0:
		return value{op: ir.Imm(0), qual: types.NonConstant(types.Unit)}, true
	case 1:
		return value{op: ir.Reg(outs[0]), qual: types.NonConstant(returns[0])}, true
	default:
		e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount,
			"a call returning %d values cannot be used as a single value", len(returns))
		return errorValue()
	}
}

func (e *Emitter) emitForeignCall(n *ast.CallExpr, callee value) (value, bool) {
	fnType := callee.qual.Type
	params := e.Sys.ParameterList(e.Sys.FunctionParameters(fnType))
	if len(n.Args) != len(params) {
		e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount,
			"call passes %d arguments, foreign function takes %d", len(n.Args), len(params))
		return errorValue()
	}
	ops := make([]ir.Operand, len(n.Args))
	for i, arg := range n.Args {
		v, ok := e.emitConverted(arg, params[i].Type)
		if !ok {
			return errorValue()
		}
		ops[i] = v.op
	}
	returns := e.Sys.FunctionReturns(fnType)
	outs := make([]ir.Register, len(returns))
	for i, t := range returns {
		outs[i] = e.fn.NewWideRegister(e.slotWidth(t))
	}
	e.emit(&ir.ForeignCall{Name: callee.foreignName, Type: fnType, Args: ops, Outs: outs})
	if len(returns) == 1 {
		return value{op: ir.Reg(outs[0]), qual: types.NonConstant(returns[0])}, true
	}
	return value{op: ir.Imm(0), qual: types.NonConstant(types.Unit)}, true
}

// emitBuiltin handles the universe-scope builtins. The second result
// reports whether the name was a builtin at all.
func (e *Emitter) emitBuiltin(name string, n *ast.CallExpr) (value, bool, bool) {
	switch name {
	case "bytes", "alignment":
		if len(n.Args) != 1 {
			e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount, "%s takes one type argument", name)
			v, _ := errorValue()
			return v, true, false
		}
		t, ok := e.EvaluateType(n.Args[0])
		if !ok {
			v, _ := errorValue()
			return v, true, false
		}
		var result uint64
		if name == "bytes" {
			result = e.Sys.Bytes(t)
		} else {
			result = e.Sys.Alignment(t)
		}
		return value{op: ir.ImmU64(result), qual: types.Constant(types.I64), constant: Constant{result}}, true, true

	case "foreign":
		if len(n.Args) != 2 {
			e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount,
				"foreign takes a symbol name and a function type")
			v, _ := errorValue()
			return v, true, false
		}
		lit, ok := n.Args[0].(*ast.StringLit)
		if !ok {
			e.errorf(n.Args[0].Span(), diag.CategoryValueCategory, diag.CodeNonConstantTypeMemberAccess,
				"the foreign symbol name must be a string literal")
			v, _ := errorValue()
			return v, true, false
		}
		t, ok := e.EvaluateType(n.Args[1])
		if !ok {
			v, _ := errorValue()
			return v, true, false
		}
		if t.Kind() != types.KindFunction {
			e.typeErrorf(n.Args[1].Span(), diag.CodeNotAType, "foreign requires a function type")
			v, _ := errorValue()
			return v, true, false
		}
		if err := e.Machine.Foreign().Register(lit.Value, t); err != nil {
			e.errorf(n.Span(), diag.CategoryBuild, diag.CodeEvaluationFailure, "%v", err)
			v, _ := errorValue()
			return v, true, false
		}
		return value{qual: types.Constant(t), foreignName: lit.Value}, true, true

	case "debug_ir":
		e.emit(&ir.DebugIr{})
		return value{op: ir.Imm(0), qual: types.NonConstant(types.Unit)}, true, true

	case "ascii_encode", "ascii_decode":
		if len(n.Args) != 1 {
			e.typeErrorf(n.Span(), diag.CodeMismatchedAssignmentCount, "%s takes one argument", name)
			v, _ := errorValue()
			return v, true, false
		}
		var want, result types.Type
		if name == "ascii_encode" {
			want, result = types.U8, types.Char
		} else {
			want, result = types.Char, types.U8
		}
		arg, ok := e.emitConverted(n.Args[0], want)
		if !ok {
			v, _ := errorValue()
			return v, true, false
		}
		out := e.fn.NewRegister()
		if name == "ascii_encode" {
			e.emit(&ir.AsciiEncode{Operand: arg.op, Out: out})
		} else {
			e.emit(&ir.AsciiDecode{Operand: arg.op, Out: out})
		}
		return value{op: ir.Reg(out), qual: types.NonConstant(result)}, true, true
	}
	return value{}, false, false
}
