package emit

import (
	"fmt"

	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/interp"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/lexer"
	"github.com/icarus-lang/icarus/internal/types"
)

// Constant is the register-slot representation of a compile-time value.
type Constant []uint64

// Evaluator is the bridge into compile-time evaluation. The emitter calls
// it for every context that needs a value during semantic analysis: type
// annotations, constant initializers, array lengths, and generic-function
// instantiation.
type Evaluator interface {
	// EvaluateValue runs e on the interpreter and returns its value.
	EvaluateValue(host *Emitter, e ast.Expr, expected types.Type) (Constant, types.QualType, bool)

	// RegisterGeneric records a generic function definition and returns its
	// body id.
	RegisterGeneric(def *GenericDef) uint32

	// InstantiateGeneric specializes a generic function for the constant
	// leading arguments of a call, returning the specialized function, its
	// concrete type, and the index of the first runtime argument.
	InstantiateGeneric(host *Emitter, body uint32, call *ast.CallExpr) (fnID uint32, fnType types.Type, firstRuntimeArg int, ok bool)
}

// GenericDef captures a generic function literal together with the scope it
// closes over. The leading constant parameters are the dependent ones.
type GenericDef struct {
	Params     []*ast.Declaration
	Returns    []ast.Expr
	Body       *ast.Block
	ShortBody  ast.Expr
	Scope      *Scope
	ConstCount int
	Evaluation types.Evaluation
}

// Binding is one declared name.
type Binding struct {
	Name string
	Qual types.QualType

	// Exactly one of the following classes applies.
	Constant    Constant    // compile-time constant slots
	FnID        uint32      // constant function handle
	IsFn        bool
	GenericID   uint32      // generic function body
	IsGeneric   bool
	ForeignName string      // foreign function
	Slot        ir.Register // address register of a stack variable
	Reg         ir.Register // register holding the value directly (parameters)
	IsReg       bool
	Owner       *ir.Fn // function owning Slot or Reg
}

// Scope is a lexical name table.
type Scope struct {
	parent *Scope
	names  map[string]*Binding
}

// NewScope creates a scope nested in parent (nil for the universe scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]*Binding)}
}

// Lookup resolves a name through the scope chain.
func (s *Scope) Lookup(name string) *Binding {
	for scope := s; scope != nil; scope = scope.parent {
		if b, ok := scope.names[name]; ok {
			return b
		}
	}
	return nil
}

// DeclaredHere reports whether name is bound in this scope directly.
func (s *Scope) DeclaredHere(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Bind declares a name in this scope.
func (s *Scope) Bind(b *Binding) { s.names[b.Name] = b }

// value is the result of emitting an expression in value position.
type value struct {
	op   ir.Operand
	qual types.QualType

	constant    Constant
	fnID        uint32
	isFn        bool
	genericID   uint32
	isGeneric   bool
	foreignName string
}

func (v value) isConstant() bool { return v.constant != nil || v.isFn || v.isGeneric }

// errorValue poisons downstream consumers without cascading diagnostics.
func errorValue() (value, bool) {
	return value{qual: types.ErrorQual()}, false
}

// Emitter walks AST fragments and appends IR to the current function. One
// emitter exists per function being emitted; forks share the ambient
// compilation state.
type Emitter struct {
	Sys        *types.System
	Prog       *ir.Program
	Machine    *interp.Machine
	Consumer   diag.Consumer
	Bridge     Evaluator
	ModuleName string

	fn      *ir.Fn
	block   *ir.Block
	scope   *Scope
	returns []types.Type
}

// New creates an emitter targeting fn, with names resolved against scope.
func New(sys *types.System, prog *ir.Program, machine *interp.Machine, consumer diag.Consumer, bridge Evaluator, module string, fn *ir.Fn, scope *Scope) *Emitter {
	e := &Emitter{
		Sys:        sys,
		Prog:       prog,
		Machine:    machine,
		Consumer:   consumer,
		Bridge:     bridge,
		ModuleName: module,
		fn:         fn,
		scope:      scope,
	}
	if fn != nil {
		e.block = fn.Entry()
	}
	return e
}

// Fork creates an emitter for a different function sharing this emitter's
// compilation state and scope chain.
func (e *Emitter) Fork(fn *ir.Fn, scope *Scope) *Emitter {
	sub := New(e.Sys, e.Prog, e.Machine, e.Consumer, e.Bridge, e.ModuleName, fn, scope)
	return sub
}

// Fn returns the function under construction.
func (e *Emitter) Fn() *ir.Fn { return e.fn }

// Scope returns the current scope.
func (e *Emitter) Scope() *Scope { return e.scope }

func (e *Emitter) pushScope() { e.scope = NewScope(e.scope) }
func (e *Emitter) popScope()  { e.scope = e.scope.parent }

func (e *Emitter) emit(instr ir.Instr) { e.block.Append(instr) }

func (e *Emitter) newBlock() *ir.Block { return e.fn.AppendBlock() }

func (e *Emitter) setBlock(b *ir.Block) { e.block = b }

// terminated reports whether the current block already ends in a jump.
func (e *Emitter) terminated() bool { return e.block.Terminator() != nil }

func (e *Emitter) errorf(span lexer.Span, category diag.Category, code diag.Code, format string, args ...any) {
	d := diag.Diagnostic{
		Category: category,
		Severity: diag.SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
	d = d.WithPrimarySpan(diag.Span{
		Filename: span.Filename,
		Line:     span.Line,
		Column:   span.Column,
		Start:    span.Start,
		End:      span.End,
	}, "")
	e.Consumer.Consume(d)
}

func (e *Emitter) typeErrorf(span lexer.Span, code diag.Code, format string, args ...any) {
	e.errorf(span, diag.CategoryType, code, format, args...)
}

// materialize turns a constant into an operand: an immediate for one-slot
// values, a packed wide register otherwise.
func (e *Emitter) materialize(c Constant) ir.Operand {
	if len(c) == 1 {
		return ir.Imm(c[0])
	}
	slots := make([]ir.Operand, len(c))
	for i, s := range c {
		slots[i] = ir.Imm(s)
	}
	out := e.fn.NewWideRegister(len(c))
	e.emit(&ir.Pack{Slots: slots, Out: out})
	return ir.Reg(out)
}

// copyToRegister moves a value (of any width) into the given register.
func (e *Emitter) copyToRegister(dst ir.Register, v value) {
	width := e.fn.RegisterSlots(dst)
	if width == 1 {
		e.emit(&ir.PushValue{Value: v.op, Out: dst})
		return
	}
	slots := make([]ir.Operand, width)
	for i := range slots {
		r := e.fn.NewRegister()
		e.emit(&ir.Extract{Source: v.op, Index: i, Out: r})
		slots[i] = ir.Reg(r)
	}
	e.emit(&ir.Pack{Slots: slots, Out: dst})
}

// slotWidth returns the register width of a type.
func (e *Emitter) slotWidth(t types.Type) int {
	if t == types.Error || !t.Valid() {
		return 1
	}
	return e.Sys.RegisterSize(t)
}

// EmitValueInto emits expr in value position into the emitter's function,
// adds an output register holding the result, and terminates the block
// with a Return. This is the shape the evaluation bridge runs.
func (e *Emitter) EmitValueInto(expr ast.Expr, expected types.Type) (types.QualType, bool) {
	v, ok := e.EmitValue(expr, expected)
	if !ok {
		return types.ErrorQual(), false
	}
	out := e.fn.AddOutput(e.slotWidth(v.qual.Type))
	e.copyToRegister(out, v)
	e.block.SetTerminator(&ir.Return{})
	return v.qual, true
}

// EvaluateType evaluates a type expression to a Type handle, reporting
// NotAType when the expression's value is not a type.
func (e *Emitter) EvaluateType(expr ast.Expr) (types.Type, bool) {
	c, qual, ok := e.Bridge.EvaluateValue(e, expr, types.Type_)
	if !ok {
		return types.Error, false
	}
	if qual.Type != types.Type_ {
		e.typeErrorf(expr.Span(), diag.CodeNotAType, "expression of type %s is not a type", e.Sys.String(qual.Type))
		return types.Error, false
	}
	return types.FromRepresentation(c[0]), true
}
