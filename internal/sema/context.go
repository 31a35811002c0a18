package sema

import (
	"encoding/binary"
	"strings"

	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/emit"
	"github.com/icarus-lang/icarus/internal/interp"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Context orchestrates compile-time evaluation: it builds a zero-argument
// function around an expression, runs the interpreter on it, and hands the
// typed result back to semantic analysis. It also owns the per-expression
// constant cache and the generic-function specialization cache.
type Context struct {
	Sys        *types.System
	Prog       *ir.Program
	Machine    *interp.Machine
	Consumer   diag.Consumer
	ModuleName string

	fileScope *emit.Scope

	// constants memoizes evaluation results by the source range the
	// expression covers, preventing redundant compile-time evaluation of
	// type-level expressions.
	constants map[constKey]constResult

	generics        []*emit.GenericDef
	specializations []map[string]specialization
}

type constKey struct {
	filename   string
	start, end int
	expected   uint64
	// scope distinguishes evaluations of the same source range under
	// different bindings, e.g. a generic parameter type evaluated per
	// instantiation.
	scope *emit.Scope
}

type constResult struct {
	value emit.Constant
	qual  types.QualType
	ok    bool
}

type specialization struct {
	fnID   uint32
	fnType types.Type
}

// NewContext creates a compilation context over shared state.
func NewContext(sys *types.System, prog *ir.Program, machine *interp.Machine, consumer diag.Consumer, module string) *Context {
	return &Context{
		Sys:        sys,
		Prog:       prog,
		Machine:    machine,
		Consumer:   consumer,
		ModuleName: module,
		constants:  make(map[constKey]constResult),
	}
}

// FileScope returns the file-level scope populated by CompileFile.
func (c *Context) FileScope() *emit.Scope { return c.fileScope }

// CompileFile type-checks and emits a whole file. File-scope declarations
// must be constants; each is evaluated in order, so names must be declared
// before use.
func (c *Context) CompileFile(file *ast.File) *emit.Scope {
	scope := emit.NewScope(nil)
	c.fileScope = scope
	host := emit.New(c.Sys, c.Prog, c.Machine, c.Consumer, c, c.ModuleName, nil, scope)

	for _, imp := range file.Imports {
		d := diag.Diagnostic{
			Category: diag.CategoryBuild,
			Severity: diag.SeverityError,
			Code:     diag.CodeEvaluationFailure,
			Message:  "module loading is not available in this compilation",
		}
		d = d.WithPrimarySpan(diag.Span{
			Filename: imp.Pos.Filename,
			Line:     imp.Pos.Line,
			Column:   imp.Pos.Column,
			Start:    imp.Pos.Start,
			End:      imp.Pos.End,
		}, imp.Path)
		c.Consumer.Consume(d)
	}

	for _, decl := range file.Decls {
		if !decl.IsConstant() {
			d := diag.Diagnostic{
				Category: diag.CategoryType,
				Severity: diag.SeverityError,
				Code:     diag.CodeAssigningToConstant,
				Message:  "file-scope declarations must be constants",
			}
			d = d.WithPrimarySpan(diag.Span{
				Filename: decl.Pos.Filename,
				Line:     decl.Pos.Line,
				Column:   decl.Pos.Column,
				Start:    decl.Pos.Start,
				End:      decl.Pos.End,
			}, decl.Name.Name)
			c.Consumer.Consume(d)
			continue
		}
		host.EmitConstantDeclaration(decl)
	}
	return scope
}

// EvaluateValue implements emit.Evaluator: wrap the expression in a
// zero-argument function, emit it in value position, finalize, run, and
// memoize the typed result.
func (c *Context) EvaluateValue(host *emit.Emitter, expr ast.Expr, expected types.Type) (emit.Constant, types.QualType, bool) {
	span := expr.Span()
	key := constKey{
		filename: span.Filename,
		start:    span.Start,
		end:      span.End,
		expected: expected.Representation(),
		scope:    host.Scope(),
	}
	if cached, ok := c.constants[key]; ok {
		return cached.value, cached.qual, cached.ok
	}

	result := c.evaluateUncached(host, expr, expected)
	c.constants[key] = result
	return result.value, result.qual, result.ok
}

func (c *Context) evaluateUncached(host *emit.Emitter, expr ast.Expr, expected types.Type) constResult {
	fn := ir.NewFn(types.Type{}, 0, 0)
	sub := host.Fork(fn, host.Scope())
	qual, ok := sub.EmitValueInto(expr, expected)
	if !ok {
		return constResult{qual: types.ErrorQual()}
	}

	outs, err := c.Machine.Run(fn, nil)
	if err != nil {
		reason := "unknown"
		if ee, ok := err.(*interp.EvalError); ok {
			reason = string(ee.Reason)
		}
		d := diag.Diagnostic{
			Category: diag.CategoryBuild,
			Severity: diag.SeverityError,
			Code:     diag.CodeEvaluationFailure,
			Message:  "compile-time evaluation failed: " + err.Error(),
		}
		d = d.WithPayload("reason", reason).WithPrimarySpan(diag.Span{
			Filename: expr.Span().Filename,
			Line:     expr.Span().Line,
			Column:   expr.Span().Column,
			Start:    expr.Span().Start,
			End:      expr.Span().End,
		}, "")
		c.Consumer.Consume(d)
		return constResult{qual: types.ErrorQual()}
	}
	return constResult{value: emit.Constant(outs), qual: types.Constant(qual.Type), ok: true}
}

// RegisterGeneric implements emit.Evaluator.
func (c *Context) RegisterGeneric(def *emit.GenericDef) uint32 {
	c.generics = append(c.generics, def)
	c.specializations = append(c.specializations, make(map[string]specialization))
	return uint32(len(c.generics) - 1)
}

// InstantiateGeneric implements emit.Evaluator: bind each constant
// parameter to the corresponding argument's compile-time value, read off
// the concrete function type, emit (or defer) the specialized body, and
// cache the specialization by argument tuple.
func (c *Context) InstantiateGeneric(host *emit.Emitter, body uint32, call *ast.CallExpr) (uint32, types.Type, int, bool) {
	def := c.generics[body]
	if len(call.Args) < def.ConstCount {
		c.Consumer.Consume(diag.Diagnostic{
			Category: diag.CategoryType,
			Severity: diag.SeverityError,
			Code:     diag.CodeMismatchedAssignmentCount,
			Message:  "too few arguments for the generic function's constant parameters",
		})
		return 0, types.Error, 0, false
	}

	scope := emit.NewScope(def.Scope)
	binder := host.Fork(host.Fn(), scope)

	var keyParts []string
	for i := 0; i < def.ConstCount; i++ {
		param := def.Params[i]
		paramType, ok := binder.EvaluateType(param.Type)
		if !ok {
			return 0, types.Error, 0, false
		}
		cval, cqual, ok := c.EvaluateValue(host, call.Args[i], paramType)
		if !ok {
			return 0, types.Error, 0, false
		}
		bound := cqual.Type
		if bound != paramType && !c.Sys.CanCastImplicitly(bound, paramType) {
			c.Consumer.Consume(diag.Diagnostic{
				Category: diag.CategoryType,
				Severity: diag.SeverityError,
				Code:     diag.CodeInvalidCast,
				Message: "constant argument of type " + c.Sys.String(bound) +
					" does not satisfy parameter of type " + c.Sys.String(paramType),
			})
			return 0, types.Error, 0, false
		}
		scope.Bind(&emit.Binding{
			Name:     param.Name.Name,
			Qual:     types.Constant(paramType),
			Constant: cval,
		})
		keyParts = append(keyParts, encodeConstant(cval))
	}
	key := strings.Join(keyParts, "|")

	if spec, ok := c.specializations[body][key]; ok {
		return spec.fnID, spec.fnType, def.ConstCount, true
	}

	residual := def.Params[def.ConstCount:]
	paramTypes := make([]types.Parameter, len(residual))
	for i, p := range residual {
		t, ok := binder.EvaluateType(p.Type)
		if !ok {
			return 0, types.Error, 0, false
		}
		paramTypes[i] = types.Parameter{Name: p.Name.Name, Type: t}
	}

	if def.Body != nil && len(def.Returns) > 0 {
		// The concrete type is fully determined by the annotations, so the
		// body can be completed lazily through the work item the
		// interpreter runs on first call.
		returnTypes := make([]types.Type, len(def.Returns))
		for i, r := range def.Returns {
			t, ok := binder.EvaluateType(r)
			if !ok {
				return 0, types.Error, 0, false
			}
			returnTypes[i] = t
		}
		fnType := c.Sys.Func(c.Sys.Params(paramTypes), returnTypes, types.PreferRuntime)

		fn := ir.NewFn(fnType, len(residual), 0)
		for _, t := range returnTypes {
			fn.AddOutput(c.Sys.RegisterSize(t))
		}
		fnID := c.Prog.AddFunction(fn)
		c.specializations[body][key] = specialization{fnID: fnID, fnType: fnType}

		fn.SetWorkItem(func() error {
			if _, ok := host.EmitFunctionBody(fn, residual, paramTypes, returnTypes, def.Body, nil, scope); !ok {
				return &interp.EvalError{Reason: interp.WorkItemUnresolved, Detail: "specialized body failed to compile"}
			}
			return nil
		})
		return fnID, fnType, def.ConstCount, true
	}

	// Short bodies infer their return type, so the specialization is
	// emitted eagerly.
	fnID, fnType, ok := host.EmitConcreteFunction(residual, def.Returns, def.Body, def.ShortBody, scope)
	if !ok {
		return 0, types.Error, 0, false
	}
	c.specializations[body][key] = specialization{fnID: fnID, fnType: fnType}
	return fnID, fnType, def.ConstCount, true
}

func encodeConstant(c emit.Constant) string {
	buf := make([]byte, 8*len(c))
	for i, v := range c {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	return string(buf)
}
