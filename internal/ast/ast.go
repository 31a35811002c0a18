package ast

import "github.com/icarus-lang/icarus/internal/lexer"

// Node represents any AST node with an associated source span.
type Node interface {
	Span() lexer.Span
}

// Expr represents an expression node. Type expressions are ordinary
// expressions whose compile-time value is a type.
type Expr interface {
	Node
	exprNode()
}

// Stmt represents a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// File represents a parsed compilation unit.
type File struct {
	Imports []*ImportDecl
	Decls   []*Declaration
	Pos     lexer.Span
}

func (f *File) Span() lexer.Span { return f.Pos }

// ImportDecl represents an import declaration.
type ImportDecl struct {
	Path string
	Name *Ident // binding introduced by `name ::= import "path"`
	Pos  lexer.Span
}

func (d *ImportDecl) Span() lexer.Span { return d.Pos }

// DeclKind distinguishes the declaration operators.
type DeclKind int

const (
	DeclVar        DeclKind = iota // x: T or x: T = init
	DeclVarInfer                   // x := init or var x := init
	DeclConst                      // x :: T = init
	DeclConstInfer                 // x ::= init
)

// Declaration represents a name binding. It appears at file scope, in
// function bodies, as function parameters, and as struct fields.
type Declaration struct {
	Name *Ident
	Type Expr // nil when the type is inferred
	Init Expr // nil when default-initialized
	Kind DeclKind
	Pos  lexer.Span
}

func (d *Declaration) Span() lexer.Span { return d.Pos }
func (d *Declaration) stmtNode()        {}

// IsConstant reports whether the declaration binds a compile-time constant.
func (d *Declaration) IsConstant() bool {
	return d.Kind == DeclConst || d.Kind == DeclConstInfer
}

// Ident is a reference to a declared name.
type Ident struct {
	Name string
	Pos  lexer.Span
}

func (e *Ident) Span() lexer.Span { return e.Pos }
func (e *Ident) exprNode()        {}

// IntegerLit is an integer literal. Its type is `Integer` until context
// converts it to a concrete numeric type.
type IntegerLit struct {
	Text string
	Pos  lexer.Span
}

func (e *IntegerLit) Span() lexer.Span { return e.Pos }
func (e *IntegerLit) exprNode()        {}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	Pos   lexer.Span
}

func (e *BoolLit) Span() lexer.Span { return e.Pos }
func (e *BoolLit) exprNode()        {}

// StringLit is a string literal; its value lives in read-only data and its
// type is a slice of characters.
type StringLit struct {
	Value string
	Pos   lexer.Span
}

func (e *StringLit) Span() lexer.Span { return e.Pos }
func (e *StringLit) exprNode()        {}

// NullLit is the null pointer literal.
type NullLit struct {
	Pos lexer.Span
}

func (e *NullLit) Span() lexer.Span { return e.Pos }
func (e *NullLit) exprNode()        {}

// ImportExpr is `import "path"`; its compile-time value is a module.
type ImportExpr struct {
	Path string
	Pos  lexer.Span
}

func (e *ImportExpr) Span() lexer.Span { return e.Pos }
func (e *ImportExpr) exprNode()        {}

// TerminalType names a primitive type (`i64`, `bool`, `type`, ...).
type TerminalType struct {
	Name string
	Pos  lexer.Span
}

func (e *TerminalType) Span() lexer.Span { return e.Pos }
func (e *TerminalType) exprNode()        {}

// UnaryExpr covers prefix operators: negation (-), pointer type and
// dereference (*), buffer-pointer type ([*]), and address-of (&).
type UnaryExpr struct {
	Op      lexer.TokenType
	Operand Expr
	Pos     lexer.Span
}

func (e *UnaryExpr) Span() lexer.Span { return e.Pos }
func (e *UnaryExpr) exprNode()        {}

// BinaryExpr covers infix operators, including the function-type arrow
// `params -> result` whose value is a function type.
type BinaryExpr struct {
	Left  Expr
	Op    lexer.TokenType
	Right Expr
	Pos   lexer.Span
}

func (e *BinaryExpr) Span() lexer.Span { return e.Pos }
func (e *BinaryExpr) exprNode()        {}

// CallExpr is a function call.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Pos    lexer.Span
}

func (e *CallExpr) Span() lexer.Span { return e.Pos }
func (e *CallExpr) exprNode()        {}

// CastExpr is an explicit conversion: `operand as type`.
type CastExpr struct {
	Operand Expr
	Type    Expr
	Pos     lexer.Span
}

func (e *CastExpr) Span() lexer.Span { return e.Pos }
func (e *CastExpr) exprNode()        {}

// AccessExpr is member access: `operand.member`.
type AccessExpr struct {
	Operand Expr
	Member  *Ident
	Pos     lexer.Span
}

func (e *AccessExpr) Span() lexer.Span { return e.Pos }
func (e *AccessExpr) exprNode()        {}

// IndexExpr is subscripting: `operand[index]`.
type IndexExpr struct {
	Operand Expr
	Index   Expr
	Pos     lexer.Span
}

func (e *IndexExpr) Span() lexer.Span { return e.Pos }
func (e *IndexExpr) exprNode()        {}

// SliceTypeExpr is `[]elem`.
type SliceTypeExpr struct {
	Elem Expr
	Pos  lexer.Span
}

func (e *SliceTypeExpr) Span() lexer.Span { return e.Pos }
func (e *SliceTypeExpr) exprNode()        {}

// ArrayTypeExpr is `[n; elem]`.
type ArrayTypeExpr struct {
	Length Expr
	Elem   Expr
	Pos    lexer.Span
}

func (e *ArrayTypeExpr) Span() lexer.Span { return e.Pos }
func (e *ArrayTypeExpr) exprNode()        {}

// IfExpr is a conditional. When both arms produce a value the whole
// expression has that value; otherwise it is a statement-level conditional.
type IfExpr struct {
	Cond Expr
	Then *Block
	Else Node // *Block, *IfExpr, or nil
	Pos  lexer.Span
}

func (e *IfExpr) Span() lexer.Span { return e.Pos }
func (e *IfExpr) exprNode()        {}
func (e *IfExpr) stmtNode()        {}

// FunctionLit is a full function literal:
// `fn (n: i64) -> i64 { return -n }`.
type FunctionLit struct {
	Params  []*Declaration
	Returns []Expr // return type expressions
	Body    *Block
	Pos     lexer.Span
}

func (e *FunctionLit) Span() lexer.Span { return e.Pos }
func (e *FunctionLit) exprNode()        {}

// ShortFunctionLit is the short form `(n: i64) => -n`, whose return type is
// inferred from the body.
type ShortFunctionLit struct {
	Params []*Declaration
	Body   Expr
	Pos    lexer.Span
}

func (e *ShortFunctionLit) Span() lexer.Span { return e.Pos }
func (e *ShortFunctionLit) exprNode()        {}

// StructLit is a struct type literal: `struct { x: i64 \n y: i64 }`.
type StructLit struct {
	Fields []*Declaration
	Pos    lexer.Span
}

func (e *StructLit) Span() lexer.Span { return e.Pos }
func (e *StructLit) exprNode()        {}

// EnumMember is one member of an enum or flags literal.
type EnumMember struct {
	Name  *Ident
	Value Expr // nil when the underlying value is unspecified
}

// EnumLit is an enum type literal: `enum { Red \n Green \n Blue }`.
type EnumLit struct {
	Members []EnumMember
	Pos     lexer.Span
}

func (e *EnumLit) Span() lexer.Span { return e.Pos }
func (e *EnumLit) exprNode()        {}

// FlagsLit is the bitset counterpart of EnumLit.
type FlagsLit struct {
	Members []EnumMember
	Pos     lexer.Span
}

func (e *FlagsLit) Span() lexer.Span { return e.Pos }
func (e *FlagsLit) exprNode()        {}

// Block is a brace-delimited statement list.
type Block struct {
	Stmts []Stmt
	Pos   lexer.Span
}

func (b *Block) Span() lexer.Span { return b.Pos }
func (b *Block) stmtNode()        {}

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	E   Expr
	Pos lexer.Span
}

func (s *ExprStmt) Span() lexer.Span { return s.Pos }
func (s *ExprStmt) stmtNode()        {}

// ReturnStmt returns zero or more values.
type ReturnStmt struct {
	Results []Expr
	Pos     lexer.Span
}

func (s *ReturnStmt) Span() lexer.Span { return s.Pos }
func (s *ReturnStmt) stmtNode()        {}

// AssignStmt assigns each rhs to the corresponding lhs reference.
type AssignStmt struct {
	Lhs []Expr
	Rhs []Expr
	Pos lexer.Span
}

func (s *AssignStmt) Span() lexer.Span { return s.Pos }
func (s *AssignStmt) stmtNode()        {}
