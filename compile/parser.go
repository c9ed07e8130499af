package compile

import (
	"strconv"

	"github.com/fusabi-lang/fusabi-host/value"
)

// The grammar is a small statement language: let bindings, assignments,
// if/else, while, function declarations, return, and expressions with
// C-style precedence. Host functions are called by bare or dotted name.

type expr interface{ exprNode() }

type litExpr struct {
	val value.Value
}

type identExpr struct {
	name string
	line int
	col  int
}

type unaryExpr struct {
	op tokenKind // tokMinus or tokBang
	x  expr
}

type binaryExpr struct {
	op  tokenKind
	lhs expr
	rhs expr
}

type callExpr struct {
	name string // bare "f" or dotted "mod.f"
	args []expr
	line int
	col  int
}

type indexExpr struct {
	x   expr
	idx expr
}

type listExpr struct {
	items []expr
}

type mapExpr struct {
	keys []string
	vals []expr
}

func (litExpr) exprNode()    {}
func (identExpr) exprNode()  {}
func (unaryExpr) exprNode()  {}
func (binaryExpr) exprNode() {}
func (callExpr) exprNode()   {}
func (indexExpr) exprNode()  {}
func (listExpr) exprNode()   {}
func (mapExpr) exprNode()    {}

type stmt interface{ stmtNode() }

type letStmt struct {
	name string
	val  expr
	line int
	col  int
}

type assignStmt struct {
	name string
	val  expr
	line int
	col  int
}

type exprStmt struct {
	x expr
}

type ifStmt struct {
	cond expr
	then []stmt
	els  []stmt // nil when absent
}

type whileStmt struct {
	cond expr
	body []stmt
}

type returnStmt struct {
	val expr // nil for bare return
}

type importStmt struct {
	name string
}

type fnStmt struct {
	name     string
	params   []string
	body     []stmt
	exported bool
	line     int
	col      int
}

func (letStmt) stmtNode()    {}
func (assignStmt) stmtNode() {}
func (exprStmt) stmtNode()   {}
func (ifStmt) stmtNode()     {}
func (whileStmt) stmtNode()  {}
func (returnStmt) stmtNode() {}
func (importStmt) stmtNode() {}
func (fnStmt) stmtNode()     {}

type parser struct {
	lx   *lexer
	cur  token
	next token
}

func newParser(src string) (*parser, *Error) {
	p := &parser{lx: newLexer(src)}
	var err *Error
	if p.cur, err = p.lx.next(); err != nil {
		return nil, err
	}
	if p.next, err = p.lx.next(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() *Error {
	p.cur = p.next
	var err *Error
	p.next, err = p.lx.next()
	return err
}

func (p *parser) expect(kind tokenKind, what string) (token, *Error) {
	if p.cur.kind != kind {
		return token{}, p.errorf("expected %s", what)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) errorf(format string, args ...any) *Error {
	return p.lx.errorf(p.cur.line, p.cur.col, format, args...)
}

func (p *parser) parseProgram() ([]stmt, *Error) {
	var stmts []stmt
	for p.cur.kind != tokEOF {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) parseStmt() (stmt, *Error) {
	switch p.cur.kind {
	case tokLet:
		return p.parseLet()
	case tokExport, tokFn:
		return p.parseFn()
	case tokIf:
		return p.parseIf()
	case tokWhile:
		return p.parseWhile()
	case tokReturn:
		return p.parseReturn()
	case tokIdent:
		if p.cur.text == "import" && p.next.kind == tokIdent {
			return p.parseImport()
		}
		if p.next.kind == tokAssign {
			return p.parseAssign()
		}
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return exprStmt{x: x}, nil
}

func (p *parser) eatSemi() {
	for p.cur.kind == tokSemicolon {
		if err := p.advance(); err != nil {
			return
		}
	}
}

// parseImport consumes "import name". Imports declare a host module
// dependency; they generate no code, the registry resolves dotted calls
// at runtime.
func (p *parser) parseImport() (stmt, *Error) {
	if err := p.advance(); err != nil { // 'import'
		return nil, err
	}
	name, err := p.expect(tokIdent, "module name after import")
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return importStmt{name: name.text}, nil
}

func (p *parser) parseLet() (stmt, *Error) {
	line, col := p.cur.line, p.cur.col
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent, "identifier after let")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign, "'=' in let binding"); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return letStmt{name: name.text, val: val, line: line, col: col}, nil
}

func (p *parser) parseAssign() (stmt, *Error) {
	name := p.cur
	if err := p.advance(); err != nil { // ident
		return nil, err
	}
	if err := p.advance(); err != nil { // '='
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return assignStmt{name: name.text, val: val, line: name.line, col: name.col}, nil
}

func (p *parser) parseFn() (stmt, *Error) {
	line, col := p.cur.line, p.cur.col
	exported := false
	if p.cur.kind == tokExport {
		exported = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokFn {
			return nil, p.errorf("expected fn after export")
		}
	}
	if err := p.advance(); err != nil { // 'fn'
		return nil, err
	}
	name, err := p.expect(tokIdent, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen, "'(' after function name"); err != nil {
		return nil, err
	}
	var params []string
	for p.cur.kind != tokRParen {
		param, err := p.expect(tokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, param.text)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // ')'
		return nil, err
	}
	body, perr := p.parseBlock()
	if perr != nil {
		return nil, perr
	}
	return fnStmt{name: name.text, params: params, body: body, exported: exported, line: line, col: col}, nil
}

func (p *parser) parseBlock() ([]stmt, *Error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []stmt
	for p.cur.kind != tokRBrace {
		if p.cur.kind == tokEOF {
			return nil, p.errorf("unexpected end of input, expected '}'")
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if err := p.advance(); err != nil { // '}'
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseIf() (stmt, *Error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els []stmt
	if p.cur.kind == tokElse {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokIf {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			els = []stmt{nested}
		} else {
			if els, err = p.parseBlock(); err != nil {
				return nil, err
			}
		}
	}
	return ifStmt{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseWhile() (stmt, *Error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return whileStmt{cond: cond, body: body}, nil
}

func (p *parser) parseReturn() (stmt, *Error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	// A bare return before '}', ';' or EOF yields null.
	if p.cur.kind == tokRBrace || p.cur.kind == tokSemicolon || p.cur.kind == tokEOF {
		p.eatSemi()
		return returnStmt{}, nil
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return returnStmt{val: val}, nil
}

// Precedence climbing: || < && < comparison < additive < multiplicative
// < unary < postfix.

func (p *parser) parseExpr() (expr, *Error) { return p.parseOr() }

func (p *parser) parseOr() (expr, *Error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOrOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{op: tokOrOr, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (expr, *Error) {
	lhs, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAndAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{op: tokAndAnd, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseComparison() (expr, *Error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur.kind
		switch op {
		case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
		default:
			return lhs, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{op: op, lhs: lhs, rhs: rhs}
	}
}

func (p *parser) parseAdditive() (expr, *Error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{op: op, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseMultiplicative() (expr, *Error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash || p.cur.kind == tokPercent {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = binaryExpr{op: op, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (expr, *Error) {
	if p.cur.kind == tokMinus || p.cur.kind == tokBang {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (expr, *Error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		x = indexExpr{x: x, idx: idx}
	}
	return x, nil
}

func (p *parser) parsePrimary() (expr, *Error) {
	t := p.cur
	switch t.kind {
	case tokInt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, ok := parseInt(t.text)
		if !ok {
			return nil, p.lx.errorf(t.line, t.col, "integer literal %q out of range", t.text)
		}
		return litExpr{val: value.Int(n)}, nil
	case tokFloat:
		if err := p.advance(); err != nil {
			return nil, err
		}
		f, ok := parseFloat(t.text)
		if !ok {
			return nil, p.lx.errorf(t.line, t.col, "bad float literal %q", t.text)
		}
		return litExpr{val: value.Float(f)}, nil
	case tokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return litExpr{val: value.Str(t.text)}, nil
	case tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return litExpr{val: value.Bool(true)}, nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return litExpr{val: value.Bool(false)}, nil
	case tokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return litExpr{val: value.Null()}, nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		name := t.text
		// Dotted names are host module calls: mod.fn(...).
		for p.cur.kind == tokDot {
			if err := p.advance(); err != nil {
				return nil, err
			}
			part, err := p.expect(tokIdent, "identifier after '.'")
			if err != nil {
				return nil, err
			}
			name = name + "." + part.text
		}
		if p.cur.kind == tokLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return callExpr{name: name, args: args, line: t.line, col: t.col}, nil
		}
		if name != t.text {
			return nil, p.lx.errorf(t.line, t.col, "dotted name %q must be called", name)
		}
		return identExpr{name: name, line: t.line, col: t.col}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return x, nil

	case tokLBracket:
		if err := p.advance(); err != nil {
			return nil, err
		}
		var items []expr
		for p.cur.kind != tokRBracket {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.advance(); err != nil { // ']'
			return nil, err
		}
		return listExpr{items: items}, nil

	case tokLBrace:
		if err := p.advance(); err != nil {
			return nil, err
		}
		var keys []string
		var vals []expr
		for p.cur.kind != tokRBrace {
			if p.cur.kind != tokString && p.cur.kind != tokIdent {
				return nil, p.errorf("expected map key")
			}
			key := p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokColon, "':' after map key"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			vals = append(vals, val)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.advance(); err != nil { // '}'
			return nil, err
		}
		return mapExpr{keys: keys, vals: vals}, nil
	}

	return nil, p.errorf("unexpected token")
}

func (p *parser) parseArgs() ([]expr, *Error) {
	if err := p.advance(); err != nil { // '('
		return nil, err
	}
	var args []expr
	for p.cur.kind != tokRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // ')'
		return nil, err
	}
	return args, nil
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
