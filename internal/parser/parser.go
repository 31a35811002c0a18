package parser

import (
	"fmt"

	"github.com/icarus-lang/icarus/internal/ast"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/lexer"
)

// Parser consumes a token stream and produces an AST. It is a recursive
// descent parser with precedence climbing for expressions.
type Parser struct {
	tokens []lexer.Token
	pos    int

	errors []diag.Diagnostic
}

// Option configures a Parser.
type Option func(*parserConfig)

type parserConfig struct {
	filename string
}

// WithFilename attaches a filename to spans and diagnostics.
func WithFilename(name string) Option {
	return func(c *parserConfig) { c.filename = name }
}

// New creates a parser over src.
func New(src string, opts ...Option) *Parser {
	var cfg parserConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var lexOpts []lexer.Option
	if cfg.filename != "" {
		lexOpts = append(lexOpts, lexer.WithFilename(cfg.filename))
	}
	l := lexer.New(src, lexOpts...)
	p := &Parser{tokens: l.Tokenize()}
	p.errors = append(p.errors, l.Errors()...)
	return p
}

// Errors returns the diagnostics produced while parsing.
func (p *Parser) Errors() []diag.Diagnostic { return p.errors }

func (p *Parser) cur() lexer.Token { return p.tokens[p.pos] }

func (p *Parser) peek() lexer.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) at(t lexer.TokenType) bool { return p.cur().Type == t }

func (p *Parser) accept(t lexer.TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if p.at(t) {
		return p.advance()
	}
	p.errorf(p.cur().Span, "expected %s, found %s", t, p.cur().Type)
	return p.cur()
}

func (p *Parser) errorf(span lexer.Span, format string, args ...any) {
	p.errors = append(p.errors, diag.Diagnostic{
		Category: diag.CategoryParse,
		Severity: diag.SeverityError,
		Code:     diag.CodeUnexpectedToken,
		Message:  fmt.Sprintf(format, args...),
		Span: diag.Span{
			Filename: span.Filename,
			Line:     span.Line,
			Column:   span.Column,
			Start:    span.Start,
			End:      span.End,
		},
	})
}

func (p *Parser) skipNewlines() {
	for p.at(lexer.NEWLINE) || p.at(lexer.SEMICOLON) {
		p.advance()
	}
}

func spanBetween(from, to lexer.Span) lexer.Span {
	from.End = to.End
	return from
}

// ParseFile parses a whole compilation unit.
func (p *Parser) ParseFile() *ast.File {
	file := &ast.File{Pos: p.cur().Span}
	p.skipNewlines()
	for !p.at(lexer.EOF) {
		decl := p.parseDeclaration()
		if decl == nil {
			// Error recovery: skip to the next line.
			for !p.at(lexer.NEWLINE) && !p.at(lexer.EOF) {
				p.advance()
			}
		} else if imp, ok := decl.Init.(*ast.ImportExpr); ok {
			file.Imports = append(file.Imports, &ast.ImportDecl{
				Path: imp.Path,
				Name: decl.Name,
				Pos:  decl.Pos,
			})
		} else {
			file.Decls = append(file.Decls, decl)
		}
		p.skipNewlines()
	}
	return file
}

// parseDeclaration parses one of:
//
//	name := expr        name ::= expr
//	name: Type          name: Type = expr
//	name :: Type = expr
func (p *Parser) parseDeclaration() *ast.Declaration {
	start := p.cur().Span
	if p.accept(lexer.VAR) {
		// `var` is sugar for a non-constant declaration.
	}
	if !p.at(lexer.IDENT) {
		p.errorf(p.cur().Span, "expected a declaration, found %s", p.cur().Type)
		return nil
	}
	name := p.parseIdent()

	switch {
	case p.accept(lexer.WALRUS):
		init := p.parseExpr(precLowest)
		return &ast.Declaration{Name: name, Init: init, Kind: ast.DeclVarInfer, Pos: spanBetween(start, p.prevSpan())}
	case p.accept(lexer.DEFINE):
		init := p.parseExpr(precLowest)
		return &ast.Declaration{Name: name, Init: init, Kind: ast.DeclConstInfer, Pos: spanBetween(start, p.prevSpan())}
	case p.accept(lexer.COLON):
		typeExpr := p.parseExpr(precLowest)
		var init ast.Expr
		if p.accept(lexer.ASSIGN) {
			init = p.parseExpr(precLowest)
		}
		return &ast.Declaration{Name: name, Type: typeExpr, Init: init, Kind: ast.DeclVar, Pos: spanBetween(start, p.prevSpan())}
	case p.accept(lexer.DOUBLE_COLON):
		typeExpr := p.parseExpr(precLowest)
		var init ast.Expr
		if p.accept(lexer.ASSIGN) {
			init = p.parseExpr(precLowest)
		}
		return &ast.Declaration{Name: name, Type: typeExpr, Init: init, Kind: ast.DeclConst, Pos: spanBetween(start, p.prevSpan())}
	default:
		p.errorf(p.cur().Span, "expected a declaration operator after %q, found %s", name.Name, p.cur().Type)
		return nil
	}
}

func (p *Parser) prevSpan() lexer.Span {
	if p.pos == 0 {
		return p.cur().Span
	}
	return p.tokens[p.pos-1].Span
}

func (p *Parser) parseIdent() *ast.Ident {
	tok := p.expect(lexer.IDENT)
	return &ast.Ident{Name: tok.Value, Pos: tok.Span}
}

// Statement parsing.

func (p *Parser) parseBlock() *ast.Block {
	start := p.expect(lexer.LBRACE).Span
	block := &ast.Block{Pos: start}
	p.skipNewlines()
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		stmt := p.parseStmt()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		} else {
			for !p.at(lexer.NEWLINE) && !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
				p.advance()
			}
		}
		p.skipNewlines()
	}
	end := p.expect(lexer.RBRACE).Span
	block.Pos = spanBetween(start, end)
	return block
}

func (p *Parser) parseStmt() ast.Stmt {
	switch {
	case p.at(lexer.RETURN):
		start := p.advance().Span
		stmt := &ast.ReturnStmt{Pos: start}
		if !p.at(lexer.NEWLINE) && !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
			stmt.Results = append(stmt.Results, p.parseExpr(precLowest))
			for p.accept(lexer.COMMA) {
				stmt.Results = append(stmt.Results, p.parseExpr(precLowest))
			}
		}
		stmt.Pos = spanBetween(start, p.prevSpan())
		return stmt

	case p.at(lexer.IF):
		return p.parseIf()

	case p.at(lexer.VAR),
		p.at(lexer.IDENT) && isDeclOperator(p.peek().Type):
		return p.parseDeclaration()

	default:
		start := p.cur().Span
		first := p.parseExpr(precLowest)
		if first == nil {
			return nil
		}
		if p.at(lexer.ASSIGN) || p.at(lexer.COMMA) {
			lhs := []ast.Expr{first}
			for p.accept(lexer.COMMA) {
				lhs = append(lhs, p.parseExpr(precLowest))
			}
			p.expect(lexer.ASSIGN)
			rhs := []ast.Expr{p.parseExpr(precLowest)}
			for p.accept(lexer.COMMA) {
				rhs = append(rhs, p.parseExpr(precLowest))
			}
			return &ast.AssignStmt{Lhs: lhs, Rhs: rhs, Pos: spanBetween(start, p.prevSpan())}
		}
		return &ast.ExprStmt{E: first, Pos: spanBetween(start, p.prevSpan())}
	}
}

func isDeclOperator(t lexer.TokenType) bool {
	switch t {
	case lexer.WALRUS, lexer.DEFINE, lexer.COLON, lexer.DOUBLE_COLON:
		return true
	}
	return false
}

func (p *Parser) parseIf() *ast.IfExpr {
	start := p.expect(lexer.IF).Span
	cond := p.parseExpr(precLowest)
	then := p.parseBlock()
	expr := &ast.IfExpr{Cond: cond, Then: then, Pos: spanBetween(start, p.prevSpan())}
	if p.accept(lexer.ELSE) {
		if p.at(lexer.IF) {
			expr.Else = p.parseIf()
		} else {
			expr.Else = p.parseBlock()
		}
		expr.Pos = spanBetween(start, p.prevSpan())
	}
	return expr
}

// Expression parsing with precedence climbing.

const (
	precLowest     = iota
	precArrow      // -> (function types, right associative)
	precComparison // == != < <= > >=
	precCast       // as
	precAdditive   // + -
	precMultiplicative // * / %
	precUnary
	precPostfix // calls, indexing, member access
)

func infixPrecedence(t lexer.TokenType) int {
	switch t {
	case lexer.ARROW:
		return precArrow
	case lexer.EQ, lexer.NOT_EQ, lexer.LT, lexer.GT, lexer.LE, lexer.GE:
		return precComparison
	case lexer.AS:
		return precCast
	case lexer.PLUS, lexer.MINUS:
		return precAdditive
	case lexer.ASTERISK, lexer.SLASH, lexer.PERCENT:
		return precMultiplicative
	}
	return precLowest
}

func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		opTok := p.cur()
		prec := infixPrecedence(opTok.Type)
		if prec <= minPrec {
			return left
		}

		if opTok.Type == lexer.AS {
			p.advance()
			typeExpr := p.parseUnary()
			left = &ast.CastExpr{Operand: left, Type: typeExpr, Pos: spanBetween(left.Span(), p.prevSpan())}
			continue
		}

		p.advance()
		// The arrow is right associative; everything else associates left.
		rightPrec := prec
		if opTok.Type == lexer.ARROW {
			rightPrec = prec - 1
		}
		right := p.parseExpr(rightPrec)
		left = &ast.BinaryExpr{Left: left, Op: opTok.Type, Right: right, Pos: spanBetween(left.Span(), p.prevSpan())}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.cur().Type {
	case lexer.MINUS, lexer.ASTERISK, lexer.AMPERSAND, lexer.BUFPTR:
		opTok := p.advance()
		operand := p.parseExpr(precUnary)
		return &ast.UnaryExpr{Op: opTok.Type, Operand: operand, Pos: spanBetween(opTok.Span, p.prevSpan())}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for {
		switch p.cur().Type {
		case lexer.LPAREN:
			p.advance()
			call := &ast.CallExpr{Callee: expr}
			for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
				call.Args = append(call.Args, p.parseExpr(precLowest))
				if !p.accept(lexer.COMMA) {
					break
				}
			}
			end := p.expect(lexer.RPAREN).Span
			call.Pos = spanBetween(expr.Span(), end)
			expr = call
		case lexer.LBRACKET:
			p.advance()
			index := p.parseExpr(precLowest)
			end := p.expect(lexer.RBRACKET).Span
			expr = &ast.IndexExpr{Operand: expr, Index: index, Pos: spanBetween(expr.Span(), end)}
		case lexer.DOT:
			p.advance()
			if !p.at(lexer.IDENT) {
				p.errors = append(p.errors, diag.Diagnostic{
					Category: diag.CategoryParse,
					Severity: diag.SeverityError,
					Code:     diag.CodeAccessRhsNotIdentifier,
					Message:  "the right-hand side of `.` must be an identifier",
					Span: diag.Span{
						Filename: p.cur().Span.Filename,
						Line:     p.cur().Span.Line,
						Column:   p.cur().Span.Column,
						Start:    p.cur().Span.Start,
						End:      p.cur().Span.End,
					},
				})
				return expr
			}
			member := p.parseIdent()
			expr = &ast.AccessExpr{Operand: expr, Member: member, Pos: spanBetween(expr.Span(), member.Pos)}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case lexer.INT:
		p.advance()
		return &ast.IntegerLit{Text: tok.Value, Pos: tok.Span}
	case lexer.STRING:
		p.advance()
		return &ast.StringLit{Value: tok.Value, Pos: tok.Span}
	case lexer.TRUE:
		p.advance()
		return &ast.BoolLit{Value: true, Pos: tok.Span}
	case lexer.FALSE:
		p.advance()
		return &ast.BoolLit{Value: false, Pos: tok.Span}
	case lexer.NULL:
		p.advance()
		return &ast.NullLit{Pos: tok.Span}
	case lexer.TYPENAME:
		p.advance()
		return &ast.TerminalType{Name: tok.Value, Pos: tok.Span}
	case lexer.IDENT:
		return p.parseIdent()
	case lexer.IMPORT:
		p.advance()
		path := p.expect(lexer.STRING)
		return &ast.ImportExpr{Path: path.Value, Pos: spanBetween(tok.Span, path.Span)}
	case lexer.IF:
		return p.parseIf()
	case lexer.FN:
		return p.parseFunctionLit()
	case lexer.STRUCT:
		return p.parseStructLit()
	case lexer.ENUM:
		return p.parseEnumLit(false)
	case lexer.FLAGS:
		return p.parseEnumLit(true)
	case lexer.LPAREN:
		return p.parseParenOrShortFn()
	case lexer.LBRACKET:
		return p.parseBracketType()
	case lexer.HASHTAG:
		p.errors = append(p.errors, diag.Diagnostic{
			Category: diag.CategoryParse,
			Severity: diag.SeverityError,
			Code:     diag.CodeUnknownBuiltinHashtag,
			Message:  fmt.Sprintf("unknown builtin hashtag #%s", tok.Value),
			Span: diag.Span{
				Filename: tok.Span.Filename,
				Line:     tok.Span.Line,
				Column:   tok.Span.Column,
				Start:    tok.Span.Start,
				End:      tok.Span.End,
			},
		})
		p.advance()
		return nil
	default:
		p.errorf(tok.Span, "expected an expression, found %s", tok.Type)
		return nil
	}
}

// parseParenOrShortFn distinguishes `(expr)` from a parameter list followed
// by `=>` or a full function signature.
func (p *Parser) parseParenOrShortFn() ast.Expr {
	start := p.expect(lexer.LPAREN).Span

	// `()` must begin a function literal.
	if p.at(lexer.RPAREN) {
		p.advance()
		return p.finishFunctionLit(start, nil)
	}

	// A parameter list starts with `ident:` or `ident ::`.
	if p.at(lexer.IDENT) && (p.peek().Type == lexer.COLON || p.peek().Type == lexer.DOUBLE_COLON) {
		params := p.parseParameterList()
		p.expect(lexer.RPAREN)
		return p.finishFunctionLit(start, params)
	}

	inner := p.parseExpr(precLowest)
	end := p.expect(lexer.RPAREN).Span
	if inner != nil {
		// Re-span the grouped expression.
		switch e := inner.(type) {
		case *ast.BinaryExpr:
			e.Pos = spanBetween(start, end)
		}
	}
	return inner
}

func (p *Parser) parseParameterList() []*ast.Declaration {
	var params []*ast.Declaration
	for {
		name := p.parseIdent()
		kind := ast.DeclVar
		if p.accept(lexer.DOUBLE_COLON) {
			kind = ast.DeclConst
		} else {
			p.expect(lexer.COLON)
		}
		typeExpr := p.parseExpr(precLowest)
		params = append(params, &ast.Declaration{
			Name: name,
			Type: typeExpr,
			Kind: kind,
			Pos:  spanBetween(name.Pos, p.prevSpan()),
		})
		if !p.accept(lexer.COMMA) {
			return params
		}
	}
}

// finishFunctionLit parses the remainder of a function literal after its
// parameter list: `=> body` or `-> returns { body }`.
func (p *Parser) finishFunctionLit(start lexer.Span, params []*ast.Declaration) ast.Expr {
	if p.accept(lexer.FATARROW) {
		body := p.parseExpr(precLowest)
		return &ast.ShortFunctionLit{Params: params, Body: body, Pos: spanBetween(start, p.prevSpan())}
	}

	lit := &ast.FunctionLit{Params: params}
	if p.accept(lexer.ARROW) {
		lit.Returns = append(lit.Returns, p.parseExpr(precLowest))
		for p.accept(lexer.COMMA) {
			lit.Returns = append(lit.Returns, p.parseExpr(precLowest))
		}
	}
	lit.Body = p.parseBlock()
	lit.Pos = spanBetween(start, p.prevSpan())
	return lit
}

// parseFunctionLit parses `fn (params) -> returns { body }`.
func (p *Parser) parseFunctionLit() ast.Expr {
	start := p.expect(lexer.FN).Span
	p.expect(lexer.LPAREN)
	var params []*ast.Declaration
	if !p.at(lexer.RPAREN) {
		params = p.parseParameterList()
	}
	p.expect(lexer.RPAREN)
	return p.finishFunctionLit(start, params)
}

func (p *Parser) parseStructLit() ast.Expr {
	start := p.expect(lexer.STRUCT).Span
	p.expect(lexer.LBRACE)
	lit := &ast.StructLit{}
	p.skipNewlines()
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		if !p.at(lexer.IDENT) || !isDeclOperator(p.peek().Type) {
			p.errors = append(p.errors, diag.Diagnostic{
				Category: diag.CategoryParse,
				Severity: diag.SeverityError,
				Code:     diag.CodeNonDeclarationInStruct,
				Message:  "struct bodies may only contain declarations",
				Span: diag.Span{
					Filename: p.cur().Span.Filename,
					Line:     p.cur().Span.Line,
					Column:   p.cur().Span.Column,
					Start:    p.cur().Span.Start,
					End:      p.cur().Span.End,
				},
			})
			p.advance()
			p.skipNewlines()
			continue
		}
		field := p.parseDeclaration()
		if field != nil {
			lit.Fields = append(lit.Fields, field)
		}
		p.skipNewlines()
	}
	end := p.expect(lexer.RBRACE).Span
	lit.Pos = spanBetween(start, end)
	return lit
}

func (p *Parser) parseEnumLit(isFlags bool) ast.Expr {
	var start lexer.Span
	if isFlags {
		start = p.expect(lexer.FLAGS).Span
	} else {
		start = p.expect(lexer.ENUM).Span
	}
	p.expect(lexer.LBRACE)
	var members []ast.EnumMember
	p.skipNewlines()
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		name := p.parseIdent()
		member := ast.EnumMember{Name: name}
		if p.accept(lexer.DOUBLE_COLON) || p.accept(lexer.ASSIGN) {
			member.Value = p.parseExpr(precLowest)
		}
		members = append(members, member)
		if !p.accept(lexer.COMMA) {
			p.skipNewlines()
		} else {
			p.skipNewlines()
		}
	}
	end := p.expect(lexer.RBRACE).Span
	if isFlags {
		return &ast.FlagsLit{Members: members, Pos: spanBetween(start, end)}
	}
	return &ast.EnumLit{Members: members, Pos: spanBetween(start, end)}
}

// parseBracketType parses `[]elem` and `[n; elem]` type expressions.
func (p *Parser) parseBracketType() ast.Expr {
	start := p.expect(lexer.LBRACKET).Span
	if p.accept(lexer.RBRACKET) {
		elem := p.parseExpr(precUnary)
		return &ast.SliceTypeExpr{Elem: elem, Pos: spanBetween(start, p.prevSpan())}
	}
	length := p.parseExpr(precLowest)
	p.expect(lexer.SEMICOLON)
	elem := p.parseExpr(precLowest)
	end := p.expect(lexer.RBRACKET).Span
	return &ast.ArrayTypeExpr{Length: length, Elem: elem, Pos: spanBetween(start, end)}
}
