package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src string) []Token {
	t.Helper()
	l := New(src)
	tokens := l.Tokenize()
	require.NotEmpty(t, tokens)
	require.Equal(t, EOF, tokens[len(tokens)-1].Type)
	return tokens[:len(tokens)-1]
}

func kinds(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestOperators(t *testing.T) {
	tokens := collect(t, "::= :: := : * [*] - = + / % < > <= >= == !=")
	assert.Equal(t, []TokenType{
		DEFINE, DOUBLE_COLON, WALRUS, COLON, ASTERISK, BUFPTR, MINUS, ASSIGN,
		PLUS, SLASH, PERCENT, LT, GT, LE, GE, EQ, NOT_EQ,
	}, kinds(tokens))
}

func TestDeclarations(t *testing.T) {
	tokens := collect(t, "n := 3")
	require.Len(t, tokens, 3)
	assert.Equal(t, IDENT, tokens[0].Type)
	assert.Equal(t, "n", tokens[0].Value)
	assert.Equal(t, WALRUS, tokens[1].Type)
	assert.Equal(t, INT, tokens[2].Type)
	assert.Equal(t, "3", tokens[2].Value)
}

func TestKeywordsAndTypeNames(t *testing.T) {
	tokens := collect(t, "let var fn if return true false import i64 bool f32 widget")
	assert.Equal(t, []TokenType{
		LET, VAR, FN, IF, RETURN, TRUE, FALSE, IMPORT,
		TYPENAME, TYPENAME, TYPENAME, IDENT,
	}, kinds(tokens))
	assert.Equal(t, "i64", tokens[8].Value)
}

func TestNewlinesAreSignificant(t *testing.T) {
	tokens := collect(t, "a\nb")
	assert.Equal(t, []TokenType{IDENT, NEWLINE, IDENT}, kinds(tokens))
}

func TestShortFunctionLiteral(t *testing.T) {
	tokens := collect(t, "(n: i64) => -n")
	assert.Equal(t, []TokenType{
		LPAREN, IDENT, COLON, TYPENAME, RPAREN, FATARROW, MINUS, IDENT,
	}, kinds(tokens))
}

func TestStringLiteralDecoding(t *testing.T) {
	tokens := collect(t, `"he\"llo\n"`)
	require.Len(t, tokens, 1)
	assert.Equal(t, STRING, tokens[0].Type)
	assert.Equal(t, "he\"llo\n", tokens[0].Value)
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"abc`)
	tok := l.Next()
	assert.Equal(t, ILLEGAL, tok.Type)
	require.Len(t, l.Errors(), 1)
	assert.Equal(t, "UNTERMINATED_STRING", string(l.Errors()[0].Code))
}

func TestLineCommentsSkipped(t *testing.T) {
	tokens := collect(t, "a // comment\nb")
	assert.Equal(t, []TokenType{IDENT, NEWLINE, IDENT}, kinds(tokens))
}

func TestSpans(t *testing.T) {
	l := New("ab + cd", WithFilename("test.ic"))
	tok := l.Next()
	assert.Equal(t, "test.ic", tok.Span.Filename)
	assert.Equal(t, 1, tok.Span.Line)
	assert.Equal(t, 1, tok.Span.Column)
	assert.Equal(t, 0, tok.Span.Start)
	assert.Equal(t, 2, tok.Span.End)

	plus := l.Next()
	assert.Equal(t, PLUS, plus.Type)
	assert.Equal(t, 4, plus.Span.Column)
}

func TestBufferPointerVersusIndex(t *testing.T) {
	tokens := collect(t, "[*]i64 a[3]")
	assert.Equal(t, []TokenType{
		BUFPTR, TYPENAME, IDENT, LBRACKET, INT, RBRACKET,
	}, kinds(tokens))
}

func TestHashtag(t *testing.T) {
	tokens := collect(t, "#builtin")
	require.Len(t, tokens, 1)
	assert.Equal(t, HASHTAG, tokens[0].Type)
	assert.Equal(t, "builtin", tokens[0].Value)
}
