package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/lexer"
)

func parseFile(t *testing.T, src string) *ast.File {
	t.Helper()
	p := New(src)
	file := p.ParseFile()
	require.Empty(t, p.Errors(), "unexpected parse errors: %v", p.Errors())
	return file
}

func parseDecl(t *testing.T, src string) *ast.Declaration {
	t.Helper()
	file := parseFile(t, src)
	require.Len(t, file.Decls, 1)
	return file.Decls[0]
}

func TestVariableDeclarations(t *testing.T) {
	d := parseDecl(t, "n := 3")
	assert.Equal(t, "n", d.Name.Name)
	assert.Equal(t, ast.DeclVarInfer, d.Kind)
	assert.False(t, d.IsConstant())
	lit, ok := d.Init.(*ast.IntegerLit)
	require.True(t, ok)
	assert.Equal(t, "3", lit.Text)
}

func TestConstantDeclarations(t *testing.T) {
	d := parseDecl(t, "limit ::= 100")
	assert.Equal(t, ast.DeclConstInfer, d.Kind)
	assert.True(t, d.IsConstant())

	d = parseDecl(t, "size :: i64 = 8")
	assert.Equal(t, ast.DeclConst, d.Kind)
	_, ok := d.Type.(*ast.TerminalType)
	assert.True(t, ok)
}

func TestTypedDeclarationWithoutInit(t *testing.T) {
	d := parseDecl(t, "buffer: [4; i64]")
	require.NotNil(t, d.Type)
	arr, ok := d.Type.(*ast.ArrayTypeExpr)
	require.True(t, ok)
	length, ok := arr.Length.(*ast.IntegerLit)
	require.True(t, ok)
	assert.Equal(t, "4", length.Text)
	assert.Nil(t, d.Init)
}

func TestImportDeclaration(t *testing.T) {
	file := parseFile(t, `io ::= import "core/io"`)
	require.Len(t, file.Imports, 1)
	assert.Equal(t, "core/io", file.Imports[0].Path)
	assert.Equal(t, "io", file.Imports[0].Name.Name)
}

func TestShortFunctionLiteral(t *testing.T) {
	d := parseDecl(t, "negate ::= (n: i64) => -n")
	fn, ok := d.Init.(*ast.ShortFunctionLit)
	require.True(t, ok)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "n", fn.Params[0].Name.Name)

	body, ok := fn.Body.(*ast.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.MINUS, body.Op)
}

func TestNoParameterShortFunction(t *testing.T) {
	d := parseDecl(t, "always ::= () => true")
	fn, ok := d.Init.(*ast.ShortFunctionLit)
	require.True(t, ok)
	assert.Empty(t, fn.Params)
	_, ok = fn.Body.(*ast.BoolLit)
	assert.True(t, ok)
}

func TestFullFunctionLiteral(t *testing.T) {
	src := `
abs ::= fn (n: i64) -> i64 {
	if n < 0 {
		return -n
	}
	return n
}
`
	d := parseDecl(t, src)
	fn, ok := d.Init.(*ast.FunctionLit)
	require.True(t, ok)
	require.Len(t, fn.Params, 1)
	require.Len(t, fn.Returns, 1)
	require.Len(t, fn.Body.Stmts, 2)

	cond, ok := fn.Body.Stmts[0].(*ast.IfExpr)
	require.True(t, ok)
	lt, ok := cond.Cond.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.LT, lt.Op)
}

func TestPrecedence(t *testing.T) {
	d := parseDecl(t, "x ::= 1 + 2 * 3")
	add, ok := d.Init.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.PLUS, add.Op)
	mul, ok := add.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.ASTERISK, mul.Op)
}

func TestComparisonBindsLooserThanArithmetic(t *testing.T) {
	d := parseDecl(t, "ok ::= 1 + 2 == 3")
	eq, ok := d.Init.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.EQ, eq.Op)
}

func TestCastExpression(t *testing.T) {
	d := parseDecl(t, "b ::= n as u8")
	cast, ok := d.Init.(*ast.CastExpr)
	require.True(t, ok)
	_, ok = cast.Operand.(*ast.Ident)
	assert.True(t, ok)
	tt, ok := cast.Type.(*ast.TerminalType)
	require.True(t, ok)
	assert.Equal(t, "u8", tt.Name)
}

func TestFunctionTypeArrow(t *testing.T) {
	d := parseDecl(t, "f: i64 -> bool")
	arrow, ok := d.Type.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.ARROW, arrow.Op)

	// Right associative: a -> b -> c is a -> (b -> c).
	d = parseDecl(t, "g: i64 -> i64 -> bool")
	outer, ok := d.Type.(*ast.BinaryExpr)
	require.True(t, ok)
	inner, ok := outer.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.ARROW, inner.Op)
}

func TestPointerTypes(t *testing.T) {
	d := parseDecl(t, "p: *i64")
	star, ok := d.Type.(*ast.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.ASTERISK, star.Op)

	d = parseDecl(t, "q: [*]u8")
	buf, ok := d.Type.(*ast.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, lexer.BUFPTR, buf.Op)
}

func TestSliceType(t *testing.T) {
	d := parseDecl(t, "s: []char")
	slice, ok := d.Type.(*ast.SliceTypeExpr)
	require.True(t, ok)
	_, ok = slice.Elem.(*ast.TerminalType)
	assert.True(t, ok)
}

func TestMemberAccessAndCalls(t *testing.T) {
	d := parseDecl(t, "n ::= s.length")
	access, ok := d.Init.(*ast.AccessExpr)
	require.True(t, ok)
	assert.Equal(t, "length", access.Member.Name)

	d = parseDecl(t, "r ::= f(1, 2)")
	call, ok := d.Init.(*ast.CallExpr)
	require.True(t, ok)
	assert.Len(t, call.Args, 2)
}

func TestIndexing(t *testing.T) {
	d := parseDecl(t, "x ::= xs[3]")
	index, ok := d.Init.(*ast.IndexExpr)
	require.True(t, ok)
	lit, ok := index.Index.(*ast.IntegerLit)
	require.True(t, ok)
	assert.Equal(t, "3", lit.Text)
}

func TestStructLiteral(t *testing.T) {
	src := `
Point ::= struct {
	x: i64
	y: i64
}
`
	d := parseDecl(t, src)
	st, ok := d.Init.(*ast.StructLit)
	require.True(t, ok)
	require.Len(t, st.Fields, 2)
	assert.Equal(t, "x", st.Fields[0].Name.Name)
	assert.Equal(t, "y", st.Fields[1].Name.Name)
}

func TestEnumLiteral(t *testing.T) {
	src := `
Color ::= enum {
	Red
	Green
	Blue
}
`
	d := parseDecl(t, src)
	e, ok := d.Init.(*ast.EnumLit)
	require.True(t, ok)
	require.Len(t, e.Members, 3)
	assert.Equal(t, "Red", e.Members[0].Name.Name)
}

func TestFlagsLiteral(t *testing.T) {
	src := `
Mode ::= flags {
	Read
	Write
}
`
	d := parseDecl(t, src)
	f, ok := d.Init.(*ast.FlagsLit)
	require.True(t, ok)
	assert.Len(t, f.Members, 2)
}

func TestMultipleAssignment(t *testing.T) {
	src := `
swap ::= fn (a: i64, b: i64) {
	a, b = b, a
}
`
	d := parseDecl(t, src)
	fn := d.Init.(*ast.FunctionLit)
	require.Len(t, fn.Body.Stmts, 1)
	assign, ok := fn.Body.Stmts[0].(*ast.AssignStmt)
	require.True(t, ok)
	assert.Len(t, assign.Lhs, 2)
	assert.Len(t, assign.Rhs, 2)
}

func TestNonDeclarationInStructReported(t *testing.T) {
	p := New("S ::= struct { 3 + 4 }")
	p.ParseFile()
	require.NotEmpty(t, p.Errors())
	found := false
	for _, d := range p.Errors() {
		if d.Code == "NON_DECLARATION_IN_STRUCT" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAccessRhsMustBeIdentifier(t *testing.T) {
	p := New("x ::= s.3")
	p.ParseFile()
	found := false
	for _, d := range p.Errors() {
		if d.Code == "ACCESS_RHS_NOT_IDENTIFIER" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestErrorRecoveryContinuesParsing(t *testing.T) {
	p := New("??? bogus\nn := 3\n")
	file := p.ParseFile()
	assert.NotEmpty(t, p.Errors())
	require.Len(t, file.Decls, 1)
	assert.Equal(t, "n", file.Decls[0].Name.Name)
}
