package compile

import (
	"fmt"

	"github.com/fusabi-lang/fusabi-host/value"
)

// codegen lowers the AST into a Program. Main statements compile first
// and end with OpHalt; function bodies are appended after and reached
// only through OpCall. The value of each top-level expression statement
// is stored in the result register, so the last one evaluated becomes
// the run result.
type codegen struct {
	prog      *Program
	opts      Options
	funcIndex map[string]int
	nameIndex map[string]int
	constIdx  map[string]int

	// per-function state
	scopes   []map[string]int
	nextSlot int
	maxSlot  int
	inFunc   bool
}

func generate(stmts []stmt, opts Options) (*Program, *Error) {
	g := &codegen{
		prog:      &Program{},
		opts:      opts,
		funcIndex: map[string]int{},
		nameIndex: map[string]int{},
		constIdx:  map[string]int{},
	}

	// Collect function signatures first so calls may appear before the
	// declaration.
	var fns []fnStmt
	for _, s := range stmts {
		if fn, ok := s.(fnStmt); ok {
			if _, dup := g.funcIndex[fn.name]; dup {
				return nil, &Error{Message: fmt.Sprintf("function %q redeclared", fn.name), Line: fn.line, Col: fn.col}
			}
			g.funcIndex[fn.name] = len(fns)
			g.prog.Funcs = append(g.prog.Funcs, FuncInfo{
				Name:      fn.name,
				NumParams: len(fn.params),
				Exported:  fn.exported,
			})
			fns = append(fns, fn)
		}
	}

	g.beginFunc(false)
	for _, s := range stmts {
		if _, ok := s.(fnStmt); ok {
			continue
		}
		if err := g.stmt(s); err != nil {
			return nil, err
		}
	}
	g.emit(OpHalt, 0, 0)
	g.prog.MainLocals = g.maxSlot

	for i, fn := range fns {
		g.beginFunc(true)
		g.prog.Funcs[i].Entry = len(g.prog.Code)
		for _, p := range fn.params {
			g.declare(p)
		}
		for _, s := range fn.body {
			if _, nested := s.(fnStmt); nested {
				return nil, &Error{Message: "nested function declarations are not supported", Line: fn.line, Col: fn.col}
			}
			if err := g.stmt(s); err != nil {
				return nil, err
			}
		}
		// Fall-through returns null.
		g.emit(OpConst, int32(g.constant(value.Null())), 0)
		g.emit(OpReturn, 0, 0)
		g.prog.Funcs[i].NumLocals = g.maxSlot
	}

	return g.prog, nil
}

func (g *codegen) beginFunc(inFunc bool) {
	g.scopes = []map[string]int{{}}
	g.nextSlot = 0
	g.maxSlot = 0
	g.inFunc = inFunc
}

func (g *codegen) emit(op byte, a, b int32) int {
	g.prog.Code = append(g.prog.Code, Instr{Op: op, A: a, B: b})
	return len(g.prog.Code) - 1
}

func (g *codegen) patch(at int, target int) {
	g.prog.Code[at].A = int32(target)
}

func (g *codegen) constant(v value.Value) int {
	key := v.Kind().String() + "|" + v.String()
	if idx, ok := g.constIdx[key]; ok {
		return idx
	}
	idx := len(g.prog.Consts)
	g.prog.Consts = append(g.prog.Consts, v)
	g.constIdx[key] = idx
	return idx
}

func (g *codegen) name(n string) int {
	if idx, ok := g.nameIndex[n]; ok {
		return idx
	}
	idx := len(g.prog.Names)
	g.prog.Names = append(g.prog.Names, n)
	g.nameIndex[n] = idx
	return idx
}

func (g *codegen) declare(name string) int {
	slot := g.nextSlot
	g.scopes[len(g.scopes)-1][name] = slot
	g.nextSlot++
	if g.nextSlot > g.maxSlot {
		g.maxSlot = g.nextSlot
	}
	return slot
}

func (g *codegen) resolve(name string) (int, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if slot, ok := g.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (g *codegen) pushScope() { g.scopes = append(g.scopes, map[string]int{}) }

func (g *codegen) popScope() {
	top := g.scopes[len(g.scopes)-1]
	g.scopes = g.scopes[:len(g.scopes)-1]
	g.nextSlot -= len(top)
}

func (g *codegen) block(stmts []stmt) *Error {
	g.pushScope()
	defer g.popScope()
	for _, s := range stmts {
		if err := g.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) stmt(s stmt) *Error {
	switch s := s.(type) {
	case letStmt:
		if err := g.expr(s.val); err != nil {
			return err
		}
		slot := g.declare(s.name)
		g.emit(OpSetLocal, int32(slot), 0)
		return nil

	case assignStmt:
		slot, ok := g.resolve(s.name)
		if !ok {
			return &Error{Message: fmt.Sprintf("undefined variable %q", s.name), Line: s.line, Col: s.col}
		}
		if err := g.expr(s.val); err != nil {
			return err
		}
		g.emit(OpSetLocal, int32(slot), 0)
		return nil

	case exprStmt:
		if err := g.expr(s.x); err != nil {
			return err
		}
		if g.inFunc {
			g.emit(OpPop, 0, 0)
		} else {
			g.emit(OpStoreResult, 0, 0)
		}
		return nil

	case ifStmt:
		if err := g.expr(s.cond); err != nil {
			return err
		}
		toElse := g.emit(OpJumpIfFalse, 0, 0)
		if err := g.block(s.then); err != nil {
			return err
		}
		if s.els == nil {
			g.patch(toElse, len(g.prog.Code))
			return nil
		}
		toEnd := g.emit(OpJump, 0, 0)
		g.patch(toElse, len(g.prog.Code))
		if err := g.block(s.els); err != nil {
			return err
		}
		g.patch(toEnd, len(g.prog.Code))
		return nil

	case whileStmt:
		start := len(g.prog.Code)
		if err := g.expr(s.cond); err != nil {
			return err
		}
		toEnd := g.emit(OpJumpIfFalse, 0, 0)
		if err := g.block(s.body); err != nil {
			return err
		}
		g.emit(OpJump, int32(start), 0)
		g.patch(toEnd, len(g.prog.Code))
		return nil

	case returnStmt:
		if s.val != nil {
			if err := g.expr(s.val); err != nil {
				return err
			}
		} else {
			g.emit(OpConst, int32(g.constant(value.Null())), 0)
		}
		if g.inFunc {
			g.emit(OpReturn, 0, 0)
		} else {
			// Top-level return ends the run with that value.
			g.emit(OpStoreResult, 0, 0)
			g.emit(OpHalt, 0, 0)
		}
		return nil

	case importStmt:
		// Imports generate no code.
		return nil

	case fnStmt:
		return &Error{Message: "function declarations must be at the top level", Line: s.line, Col: s.col}
	}
	return &Error{Message: "unknown statement"}
}

func (g *codegen) expr(e expr) *Error {
	if g.opts.Optimize {
		e = fold(e)
	}
	switch e := e.(type) {
	case litExpr:
		g.emit(OpConst, int32(g.constant(e.val)), 0)
		return nil

	case identExpr:
		slot, ok := g.resolve(e.name)
		if !ok {
			return &Error{Message: fmt.Sprintf("undefined variable %q", e.name), Line: e.line, Col: e.col}
		}
		g.emit(OpGetLocal, int32(slot), 0)
		return nil

	case unaryExpr:
		if err := g.expr(e.x); err != nil {
			return err
		}
		if e.op == tokMinus {
			g.emit(OpNeg, 0, 0)
		} else {
			g.emit(OpNot, 0, 0)
		}
		return nil

	case binaryExpr:
		if e.op == tokAndAnd || e.op == tokOrOr {
			if err := g.expr(e.lhs); err != nil {
				return err
			}
			op := OpAndJump
			if e.op == tokOrOr {
				op = OpOrJump
			}
			short := g.emit(op, 0, 0)
			if err := g.expr(e.rhs); err != nil {
				return err
			}
			g.patch(short, len(g.prog.Code))
			return nil
		}
		if err := g.expr(e.lhs); err != nil {
			return err
		}
		if err := g.expr(e.rhs); err != nil {
			return err
		}
		g.emit(binaryOp(e.op), 0, 0)
		return nil

	case callExpr:
		if idx, ok := g.funcIndex[e.name]; ok {
			want := g.prog.Funcs[idx].NumParams
			if len(e.args) != want {
				return &Error{
					Message: fmt.Sprintf("function %q takes %d argument(s), got %d", e.name, want, len(e.args)),
					Line:    e.line, Col: e.col,
				}
			}
			for _, a := range e.args {
				if err := g.expr(a); err != nil {
					return err
				}
			}
			g.emit(OpCall, int32(idx), 0)
			return nil
		}
		for _, a := range e.args {
			if err := g.expr(a); err != nil {
				return err
			}
		}
		g.emit(OpCallHost, int32(g.name(e.name)), int32(len(e.args)))
		return nil

	case indexExpr:
		if err := g.expr(e.x); err != nil {
			return err
		}
		if err := g.expr(e.idx); err != nil {
			return err
		}
		g.emit(OpIndex, 0, 0)
		return nil

	case listExpr:
		for _, item := range e.items {
			if err := g.expr(item); err != nil {
				return err
			}
		}
		g.emit(OpMakeList, int32(len(e.items)), 0)
		return nil

	case mapExpr:
		for i := range e.keys {
			g.emit(OpConst, int32(g.constant(value.Str(e.keys[i]))), 0)
			if err := g.expr(e.vals[i]); err != nil {
				return err
			}
		}
		g.emit(OpMakeMap, int32(len(e.keys)), 0)
		return nil
	}
	return &Error{Message: "unknown expression"}
}

func binaryOp(op tokenKind) byte {
	switch op {
	case tokPlus:
		return OpAdd
	case tokMinus:
		return OpSub
	case tokStar:
		return OpMul
	case tokSlash:
		return OpDiv
	case tokPercent:
		return OpMod
	case tokEq:
		return OpEq
	case tokNe:
		return OpNe
	case tokLt:
		return OpLt
	case tokLe:
		return OpLe
	case tokGt:
		return OpGt
	case tokGe:
		return OpGe
	}
	return OpHalt // unreachable; parser only produces the ops above
}

// fold performs constant folding on literal arithmetic. Division and
// modulo are left alone so divide-by-zero stays a runtime error.
func fold(e expr) expr {
	b, ok := e.(binaryExpr)
	if !ok {
		return e
	}
	b.lhs = fold(b.lhs)
	b.rhs = fold(b.rhs)
	ll, lok := b.lhs.(litExpr)
	rl, rok := b.rhs.(litExpr)
	if !lok || !rok {
		return b
	}
	li, liok := ll.val.AsInt()
	ri, riok := rl.val.AsInt()
	if liok && riok {
		switch b.op {
		case tokPlus:
			return litExpr{val: value.Int(li + ri)}
		case tokMinus:
			return litExpr{val: value.Int(li - ri)}
		case tokStar:
			return litExpr{val: value.Int(li * ri)}
		}
	}
	ls, lsok := ll.val.AsString()
	rs, rsok := rl.val.AsString()
	if lsok && rsok && b.op == tokPlus {
		return litExpr{val: value.Str(ls + rs)}
	}
	return b
}
