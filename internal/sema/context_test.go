package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/emit"
	"github.com/icarus-lang/icarus/internal/interp"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/parser"
	"github.com/icarus-lang/icarus/internal/types"
)

type compilation struct {
	ctx      *Context
	scope    *emit.Scope
	consumer *diag.TrackingConsumer
}

func compile(t *testing.T, src string) *compilation {
	t.Helper()
	p := parser.New(src)
	file := p.ParseFile()
	require.Empty(t, p.Errors(), "parse errors: %v", p.Errors())

	sys := types.NewSystem()
	prog := ir.NewProgram()
	machine := interp.NewMachine(sys, prog)
	consumer := diag.NewTrackingConsumer()
	ctx := NewContext(sys, prog, machine, consumer, "test")
	scope := ctx.CompileFile(file)
	return &compilation{ctx: ctx, scope: scope, consumer: consumer}
}

func compileOK(t *testing.T, src string) *compilation {
	t.Helper()
	c := compile(t, src)
	require.Zero(t, c.consumer.ErrorCount(), "diagnostics: %v", c.consumer.Diagnostics)
	return c
}

func (c *compilation) fn(t *testing.T, name string) *ir.Fn {
	t.Helper()
	b := c.scope.Lookup(name)
	require.NotNil(t, b, "no binding %q", name)
	require.True(t, b.IsFn, "%q is not a compiled function", name)
	return c.ctx.Prog.Function(b.FnID)
}

func (c *compilation) run(t *testing.T, name string, args ...uint64) []uint64 {
	t.Helper()
	outs, err := c.ctx.Machine.Run(c.fn(t, name), args)
	require.NoError(t, err)
	return outs
}

func (c *compilation) constant(t *testing.T, name string) emit.Constant {
	t.Helper()
	b := c.scope.Lookup(name)
	require.NotNil(t, b, "no binding %q", name)
	require.NotNil(t, b.Constant, "%q has no constant value", name)
	return b.Constant
}

func TestShortFunctionLiteralNegate(t *testing.T) {
	c := compileOK(t, "negate ::= (n: i64) => -n")
	for _, tc := range []struct{ in, want int64 }{{3, -3}, {0, 0}, {-5, 5}} {
		outs := c.run(t, "negate", uint64(tc.in))
		assert.Equal(t, tc.want, int64(outs[0]))
	}
}

func TestNoParameterBooleanFunction(t *testing.T) {
	c := compileOK(t, "always ::= () => true")
	outs := c.run(t, "always")
	assert.Equal(t, uint64(1), outs[0])
}

func TestConstantFolding(t *testing.T) {
	c := compileOK(t, "three ::= 1 + 2")
	assert.Equal(t, int64(3), int64(c.constant(t, "three")[0]))

	b := c.scope.Lookup("three")
	assert.Equal(t, types.I64, b.Qual.Type)
	assert.True(t, b.Qual.IsConstant())
}

func TestTypeLevelExpressions(t *testing.T) {
	c := compileOK(t, "P ::= *i64")
	b := c.scope.Lookup("P")
	require.Equal(t, types.Type_, b.Qual.Type)
	assert.Equal(t, c.ctx.Sys.Ptr(types.I64), types.FromRepresentation(b.Constant[0]))
}

func TestTypeExpressionRoundTrip(t *testing.T) {
	// Re-evaluating an equal type expression yields an equal value.
	c := compileOK(t, "P1 ::= *i64\nP2 ::= *i64\nS ::= [][*]u8")
	assert.Equal(t, c.constant(t, "P1")[0], c.constant(t, "P2")[0])

	s := types.FromRepresentation(c.constant(t, "S")[0])
	assert.Equal(t, c.ctx.Sys.Slc(c.ctx.Sys.BufPtr(types.U8)), s)
}

func TestFunctionTypeExpression(t *testing.T) {
	c := compileOK(t, "F ::= i64 -> bool")
	got := types.FromRepresentation(c.constant(t, "F")[0])
	require.Equal(t, types.KindFunction, got.Kind())
	returns := c.ctx.Sys.FunctionReturns(got)
	require.Len(t, returns, 1)
	assert.Equal(t, types.Bool, returns[0])
}

func TestBytesAndAlignmentBuiltins(t *testing.T) {
	src := `
bb ::= bytes(bool)
bi ::= bytes(i64)
ab ::= alignment(bool)
ai ::= alignment(i64)
`
	c := compileOK(t, src)
	assert.Equal(t, uint64(1), c.constant(t, "bb")[0])
	assert.Equal(t, uint64(8), c.constant(t, "bi")[0])
	assert.Equal(t, uint64(1), c.constant(t, "ab")[0])
	assert.Equal(t, uint64(8), c.constant(t, "ai")[0])
}

func TestStructDefinition(t *testing.T) {
	src := `
Point ::= struct {
	x: i64
	y: i64
}
`
	c := compileOK(t, src)
	typ := types.FromRepresentation(c.constant(t, "Point")[0])
	require.Equal(t, types.KindStruct, typ.Kind())
	st := c.ctx.Sys.StructOf(typ)
	assert.Equal(t, types.Complete, st.Completeness())
	require.Len(t, st.Fields(), 2)
	assert.Equal(t, uint64(16), c.ctx.Sys.Bytes(typ))
}

func TestEnumDefinitionAndMemberAccess(t *testing.T) {
	src := `
Color ::= enum {
	Red
	Green
	Blue
}
red ::= Color.Red
green ::= Color.Green
`
	c := compileOK(t, src)
	typ := types.FromRepresentation(c.constant(t, "Color")[0])
	require.Equal(t, types.KindEnum, typ.Kind())
	e := c.ctx.Sys.EnumOf(typ)
	require.Len(t, e.Members(), 3)

	red := c.constant(t, "red")[0]
	green := c.constant(t, "green")[0]
	assert.NotEqual(t, red, green)
	name, ok := e.NameOf(red)
	require.True(t, ok)
	assert.Equal(t, "Red", name)
}

func TestFlagsDefinition(t *testing.T) {
	src := `
Mode ::= flags {
	Read
	Write
}
w ::= Mode.Write
`
	c := compileOK(t, src)
	assert.Equal(t, uint64(2), c.constant(t, "w")[0])
}

func TestFunctionWithControlFlow(t *testing.T) {
	src := `
abs ::= fn (n: i64) -> i64 {
	if n < 0 {
		return -n
	}
	return n
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(7), int64(c.run(t, "abs", uint64(int64(-7)))[0]))
	assert.Equal(t, int64(9), int64(c.run(t, "abs", 9)[0]))
}

func TestIfExpressionValue(t *testing.T) {
	src := `
max ::= fn (a: i64, b: i64) -> i64 {
	m := if a < b {
		b
	} else {
		a
	}
	return m
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(5), int64(c.run(t, "max", 3, 5)[0]))
	assert.Equal(t, int64(8), int64(c.run(t, "max", 8, 5)[0]))
}

func TestLocalVariables(t *testing.T) {
	src := `
accumulate ::= fn (n: i64) -> i64 {
	total := n
	total = total + 1
	total = total * 2
	return total
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(8), int64(c.run(t, "accumulate", 3)[0]))
}

func TestParallelAssignmentRespectsAliasing(t *testing.T) {
	src := `
swapdiff ::= fn (n: i64) -> i64 {
	a := n
	b := n * 2
	a, b = b, a
	return a - b
}
`
	c := compileOK(t, src)
	// a becomes 2n, b becomes n.
	assert.Equal(t, int64(5), int64(c.run(t, "swapdiff", 5)[0]))
}

func TestCallsBetweenDeclaredFunctions(t *testing.T) {
	src := `
double ::= (n: i64) => n * 2
quad ::= (n: i64) => double(double(n))
`
	c := compileOK(t, src)
	assert.Equal(t, int64(12), int64(c.run(t, "quad", 3)[0]))
}

func TestCastExpressions(t *testing.T) {
	src := `
narrow ::= (n: i64) => n as u8
tofloat ::= (n: i64) => n as f64
`
	c := compileOK(t, src)
	assert.Equal(t, uint64(255), c.run(t, "narrow", 255)[0])
	assert.Equal(t, ir.ImmF64(3).Immediate(), c.run(t, "tofloat", 3)[0])
}

func TestInvalidCastReported(t *testing.T) {
	c := compile(t, "bad ::= (f: f64) => f as i64")
	require.NotZero(t, c.consumer.ErrorCount())
	found := false
	for _, d := range c.consumer.Diagnostics {
		if d.Code == diag.CodeInvalidCast {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUndeclaredIdentifierReported(t *testing.T) {
	c := compile(t, "x ::= missing + 1")
	found := false
	for _, d := range c.consumer.Diagnostics {
		if d.Code == diag.CodeUndeclaredIdentifier {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGenericIdentity(t *testing.T) {
	src := `
id ::= (T :: type, x: T) => x
use ::= (n: i64) => id(i64, n)
`
	c := compileOK(t, src)
	assert.Equal(t, int64(42), int64(c.run(t, "use", 42)[0]))
}

func TestGenericSpecializationIsCached(t *testing.T) {
	src := `
id ::= (T :: type, x: T) => x
first ::= (n: i64) => id(i64, n)
second ::= (n: i64) => id(i64, n) + id(i64, n)
`
	c := compileOK(t, src)
	before := c.ctx.Prog.NumFunctions()
	assert.Equal(t, int64(7), int64(c.run(t, "first", 7)[0]))
	assert.Equal(t, int64(6), int64(c.run(t, "second", 3)[0]))
	// No further specialization is emitted at run time.
	assert.Equal(t, before, c.ctx.Prog.NumFunctions())

	// Exactly one specialization of id exists: id's calls in first and
	// second share it.
	specs := c.ctx.specializations[c.scope.Lookup("id").GenericID]
	assert.Len(t, specs, 1)
}

func TestGenericFullFormUsesWorkItem(t *testing.T) {
	src := `
scaled ::= fn (T :: type, x: i64) -> i64 {
	return x + x
}
use ::= (n: i64) => scaled(i64, n)
`
	c := compileOK(t, src)
	// The specialized body is completed by the work item on first call.
	specs := c.ctx.specializations[c.scope.Lookup("scaled").GenericID]
	require.Len(t, specs, 1)
	var spec specialization
	for _, s := range specs {
		spec = s
	}
	assert.True(t, c.ctx.Prog.Function(spec.fnID).HasWorkItem())

	assert.Equal(t, int64(10), int64(c.run(t, "use", 5)[0]))
	assert.False(t, c.ctx.Prog.Function(spec.fnID).HasWorkItem())
}

func TestConstantCachePreventsReevaluation(t *testing.T) {
	c := compileOK(t, "A ::= *i64\nB ::= *i64")
	// Both declarations share the pointer flyweight.
	assert.Equal(t, c.constant(t, "A")[0], c.constant(t, "B")[0])
}

func TestForeignStrlenThroughLanguage(t *testing.T) {
	src := `
cstrlen ::= foreign("strlen", [*]char -> i64)
strlength ::= (s: []char) => cstrlen(s.data)
`
	c := compileOK(t, src)
	addr := c.ctx.Machine.InternString("hello")
	outs := c.run(t, "strlength", addr.Pack(), 5)
	assert.Equal(t, int64(5), int64(outs[0]))
}

func TestStringLiteralsAndSliceMembers(t *testing.T) {
	src := `
greeting ::= "hello"
greetlen ::= () => greeting.length
`
	c := compileOK(t, src)
	assert.Equal(t, uint64(5), c.run(t, "greetlen")[0])

	b := c.scope.Lookup("greeting")
	assert.Equal(t, c.ctx.Sys.Slc(types.Char), b.Qual.Type)
}

func TestStructFieldAccessThroughVariable(t *testing.T) {
	src := `
Point ::= struct {
	x: i64
	y: i64
}
sum ::= fn (a: i64, b: i64) -> i64 {
	p: Point
	p.x = a
	p.y = b
	return p.x + p.y
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(11), int64(c.run(t, "sum", 4, 7)[0]))
}

func TestArraysAndIndexing(t *testing.T) {
	src := `
pick ::= fn (i: i64) -> i64 {
	xs: [3; i64]
	xs[0] = 10
	xs[1] = 20
	xs[2] = 30
	return xs[i]
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(20), int64(c.run(t, "pick", 1)[0]))
	assert.Equal(t, int64(30), int64(c.run(t, "pick", 2)[0]))
}

func TestPointersThroughVariables(t *testing.T) {
	src := `
indirect ::= fn (n: i64) -> i64 {
	x := n
	p := &x
	*p = *p + 1
	return x
}
`
	c := compileOK(t, src)
	assert.Equal(t, int64(6), int64(c.run(t, "indirect", 5)[0]))
}

func TestEmittedFunctionsSatisfyCFGInvariants(t *testing.T) {
	src := `
abs ::= fn (n: i64) -> i64 {
	if n < 0 {
		return -n
	}
	return n
}
max ::= fn (a: i64, b: i64) -> i64 {
	m := if a < b {
		b
	} else {
		a
	}
	return m
}
clamp ::= fn (n: i64) -> i64 {
	if n < 0 {
		return 0
	} else {
		if n > 100 {
			return 100
		}
	}
	return n
}
`
	c := compileOK(t, src)
	for id, fn := range c.ctx.Prog.Functions() {
		if fn.HasWorkItem() {
			continue
		}
		require.NoError(t, fn.Validate(), "function %d", id)
	}

	assert.Equal(t, int64(50), int64(c.run(t, "clamp", 50)[0]))
	assert.Equal(t, int64(0), int64(c.run(t, "clamp", uint64(int64(-3)))[0]))
	assert.Equal(t, int64(100), int64(c.run(t, "clamp", 200)[0]))
}

func TestDivisionByZeroSurfacesEvaluationFailure(t *testing.T) {
	c := compile(t, "boom ::= 1 / 0")
	require.NotZero(t, c.consumer.ErrorCount())
	found := false
	for _, d := range c.consumer.Diagnostics {
		if d.Code == diag.CodeEvaluationFailure && d.Payload["reason"] == string(interp.DivideByZero) {
			found = true
		}
	}
	assert.True(t, found, "diagnostics: %v", c.consumer.Diagnostics)
}

func TestEvaluationFailurePoisonsWithoutCascading(t *testing.T) {
	src := `
boom ::= 1 / 0
later ::= boom + 1
`
	c := compile(t, src)
	// Exactly one evaluation failure; the consumer of `boom` does not
	// report a second error for the same root cause.
	count := 0
	for _, d := range c.consumer.Diagnostics {
		if d.Code == diag.CodeEvaluationFailure {
			count++
		}
	}
	assert.Equal(t, 1, count, "diagnostics: %v", c.consumer.Diagnostics)
}
