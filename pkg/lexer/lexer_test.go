package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan_BasicTokens(t *testing.T) {
	src := []byte(`( ) { } , . - + ; / *`)

	want := []struct {
		kind Kind
		text string
	}{
		{LeftParen, "("},
		{RightParen, ")"},
		{LeftBrace, "{"},
		{RightBrace, "}"},
		{Comma, ","},
		{Dot, "."},
		{Minus, "-"},
		{Plus, "+"},
		{Semicolon, ";"},
		{Slash, "/"},
		{Star, "*"},
		{EOF, ""},
	}

	l := New(src)
	for i, tt := range want {
		tok := l.Scan()
		assert.Equalf(t, tt.kind, tok.Kind, "token %d", i)
		assert.Equalf(t, tt.text, tok.Text(src), "token %d", i)
	}
}

func TestScan_TwoCharOperators(t *testing.T) {
	src := []byte(`! != = == < <= > >=`)
	want := []Kind{Bang, BangEqual, Equal, EqualEqual, Less, LessEqual, Greater, GreaterEqual, EOF}

	l := New(src)
	for i, kind := range want {
		tok := l.Scan()
		assert.Equalf(t, kind, tok.Kind, "token %d", i)
	}
}

func TestScan_Keywords(t *testing.T) {
	src := []byte(`and class else false for fun if nil or print return super this true var while notakeyword`)
	want := []Kind{And, Class, Else, False, For, Fun, If, Nil, Or, Print, Return, Super, This, True, Var, While, Identifier}

	l := New(src)
	for i, kind := range want {
		tok := l.Scan()
		assert.Equalf(t, kind, tok.Kind, "token %d", i)
	}
}

func TestScan_NumberAndString(t *testing.T) {
	src := []byte(`123 45.6 "hello world"`)
	l := New(src)

	tok := l.Scan()
	assert.Equal(t, Number, tok.Kind)
	assert.Equal(t, "123", tok.Text(src))

	tok = l.Scan()
	assert.Equal(t, Number, tok.Kind)
	assert.Equal(t, "45.6", tok.Text(src))

	tok = l.Scan()
	assert.Equal(t, String, tok.Kind)
	assert.Equal(t, `"hello world"`, tok.Text(src))
}

func TestScan_UnterminatedString(t *testing.T) {
	src := []byte(`"unterminated`)
	l := New(src)
	tok := l.Scan()
	assert.Equal(t, Error, tok.Kind)
	assert.Equal(t, "Unterminated string.", tok.Text(src))
}

func TestScan_LineCounting(t *testing.T) {
	src := []byte("var a = 1;\nvar b = 2;\n// comment\nvar c = 3;")
	l := New(src)

	var lastVarLine int
	for {
		tok := l.Scan()
		if tok.Kind == EOF {
			break
		}
		if tok.Kind == Var {
			lastVarLine = tok.Line
		}
	}
	assert.Equal(t, 4, lastVarLine)
}

func TestScan_EOFIsSticky(t *testing.T) {
	l := New([]byte(``))
	assert.Equal(t, EOF, l.Scan().Kind)
	assert.Equal(t, EOF, l.Scan().Kind)
	assert.Equal(t, EOF, l.Scan().Kind)
}

func TestScan_UnexpectedCharacter(t *testing.T) {
	l := New([]byte(`@`))
	tok := l.Scan()
	assert.Equal(t, Error, tok.Kind)
}
