package compile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString

	tokLet
	tokFn
	tokReturn
	tokIf
	tokElse
	tokWhile
	tokTrue
	tokFalse
	tokNull
	tokExport

	tokAssign
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAndAnd
	tokOrOr
	tokBang
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokSemicolon
	tokDot
)

var keywords = map[string]tokenKind{
	"let":    tokLet,
	"fn":     tokFn,
	"return": tokReturn,
	"if":     tokIf,
	"else":   tokElse,
	"while":  tokWhile,
	"true":   tokTrue,
	"false":  tokFalse,
	"null":   tokNull,
	"export": tokExport,
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (lx *lexer) errorf(line, col int, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Line: line, Col: col}
}

func (lx *lexer) peek() byte {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) advance() byte {
	c := lx.src[lx.pos]
	lx.pos++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		c := lx.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance()
		case c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			for lx.pos < len(lx.src) && lx.peek() != '\n' {
				lx.advance()
			}
		default:
			return
		}
	}
}

// next returns the following token.
func (lx *lexer) next() (token, *Error) {
	lx.skipSpaceAndComments()
	line, col := lx.line, lx.col
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}

	c := lx.peek()
	switch {
	case isIdentStart(c):
		start := lx.pos
		for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
			lx.advance()
		}
		text := lx.src[start:lx.pos]
		if kw, ok := keywords[text]; ok {
			return token{kind: kw, text: text, line: line, col: col}, nil
		}
		return token{kind: tokIdent, text: text, line: line, col: col}, nil

	case c >= '0' && c <= '9':
		start := lx.pos
		isFloat := false
		for lx.pos < len(lx.src) {
			c := lx.peek()
			if c >= '0' && c <= '9' {
				lx.advance()
			} else if c == '.' && !isFloat && lx.pos+1 < len(lx.src) &&
				lx.src[lx.pos+1] >= '0' && lx.src[lx.pos+1] <= '9' {
				isFloat = true
				lx.advance()
			} else {
				break
			}
		}
		kind := tokInt
		if isFloat {
			kind = tokFloat
		}
		return token{kind: kind, text: lx.src[start:lx.pos], line: line, col: col}, nil

	case c == '"':
		lx.advance()
		var sb strings.Builder
		for {
			if lx.pos >= len(lx.src) {
				return token{}, lx.errorf(line, col, "unterminated string literal")
			}
			c := lx.advance()
			if c == '"' {
				break
			}
			if c == '\\' {
				if lx.pos >= len(lx.src) {
					return token{}, lx.errorf(line, col, "unterminated string literal")
				}
				esc := lx.advance()
				switch esc {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case 'r':
					sb.WriteByte('\r')
				case '"':
					sb.WriteByte('"')
				case '\\':
					sb.WriteByte('\\')
				default:
					return token{}, lx.errorf(lx.line, lx.col, "unknown escape \\%c", esc)
				}
				continue
			}
			sb.WriteByte(c)
		}
		return token{kind: tokString, text: sb.String(), line: line, col: col}, nil
	}

	lx.advance()
	two := func(next byte, withNext, without tokenKind) token {
		if lx.peek() == next {
			lx.advance()
			return token{kind: withNext, line: line, col: col}
		}
		return token{kind: without, line: line, col: col}
	}

	switch c {
	case '=':
		return two('=', tokEq, tokAssign), nil
	case '!':
		return two('=', tokNe, tokBang), nil
	case '<':
		return two('=', tokLe, tokLt), nil
	case '>':
		return two('=', tokGe, tokGt), nil
	case '&':
		if lx.peek() == '&' {
			lx.advance()
			return token{kind: tokAndAnd, line: line, col: col}, nil
		}
		return token{}, lx.errorf(line, col, "unexpected character '&'")
	case '|':
		if lx.peek() == '|' {
			lx.advance()
			return token{kind: tokOrOr, line: line, col: col}, nil
		}
		return token{}, lx.errorf(line, col, "unexpected character '|'")
	case '+':
		return token{kind: tokPlus, line: line, col: col}, nil
	case '-':
		return token{kind: tokMinus, line: line, col: col}, nil
	case '*':
		return token{kind: tokStar, line: line, col: col}, nil
	case '/':
		return token{kind: tokSlash, line: line, col: col}, nil
	case '%':
		return token{kind: tokPercent, line: line, col: col}, nil
	case '(':
		return token{kind: tokLParen, line: line, col: col}, nil
	case ')':
		return token{kind: tokRParen, line: line, col: col}, nil
	case '{':
		return token{kind: tokLBrace, line: line, col: col}, nil
	case '}':
		return token{kind: tokRBrace, line: line, col: col}, nil
	case '[':
		return token{kind: tokLBracket, line: line, col: col}, nil
	case ']':
		return token{kind: tokRBracket, line: line, col: col}, nil
	case ',':
		return token{kind: tokComma, line: line, col: col}, nil
	case ':':
		return token{kind: tokColon, line: line, col: col}, nil
	case ';':
		return token{kind: tokSemicolon, line: line, col: col}, nil
	case '.':
		return token{kind: tokDot, line: line, col: col}, nil
	}

	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos-1:])
	return token{}, lx.errorf(line, col, "unexpected character %q", r)
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
