package engine

import (
	"fmt"

	"github.com/fusabi-lang/fusabi-host/compile"
	"github.com/fusabi-lang/fusabi-host/value"
)

// checkInterval is how many instructions run between limit checks. The
// worst-case reaction latency to a budget, clock, or cancel event is
// therefore checkInterval-1 instructions plus one host call.
const checkInterval = 64

type frame struct {
	retPC  int
	locals []value.Value
}

// run interprets prog to completion under rc's accounting. The ordered
// checks between batches are: instruction budget, wall clock,
// cancellation. Memory is charged at allocation sites only.
func (e *Engine) run(prog *compile.Program, rc *RunContext) (value.Value, error) {
	var (
		stack      = make([]value.Value, 0, 64)
		locals     = make([]value.Value, prog.MainLocals)
		frames     []frame
		result     = value.Null()
		pc         = 0
		sinceCheck = 0
	)

	rtErr := func(format string, args ...any) error {
		return &RuntimeError{Msg: fmt.Sprintf(format, args...), PC: pc}
	}
	push := func(v value.Value) { stack = append(stack, v) }
	pop := func() (value.Value, error) {
		if len(stack) == 0 {
			return value.Null(), rtErr("stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for {
		if sinceCheck >= checkInterval {
			if err := e.checkpoint(rc, sinceCheck); err != nil {
				return value.Null(), err
			}
			sinceCheck = 0
		}
		if pc < 0 || pc >= len(prog.Code) {
			return value.Null(), rtErr("program counter out of range")
		}
		in := prog.Code[pc]
		pc++
		sinceCheck++

		switch in.Op {
		case compile.OpConst:
			if int(in.A) >= len(prog.Consts) {
				return value.Null(), rtErr("constant index out of range")
			}
			push(prog.Consts[in.A])

		case compile.OpPop:
			if _, err := pop(); err != nil {
				return value.Null(), err
			}

		case compile.OpStoreResult:
			v, err := pop()
			if err != nil {
				return value.Null(), err
			}
			result = v

		case compile.OpAdd, compile.OpSub, compile.OpMul, compile.OpDiv, compile.OpMod:
			rhs, err := pop()
			if err != nil {
				return value.Null(), err
			}
			lhs, err := pop()
			if err != nil {
				return value.Null(), err
			}
			v, err := arith(in.Op, lhs, rhs, pc-1)
			if err != nil {
				return value.Null(), err
			}
			// String concatenation allocates; numbers do not.
			if v.Kind() == value.KindString {
				if err := rc.tracker.RecordMemory(v.Size()); err != nil {
					return value.Null(), err
				}
			}
			push(v)

		case compile.OpNeg:
			v, err := pop()
			if err != nil {
				return value.Null(), err
			}
			if i, ok := v.AsInt(); ok {
				push(value.Int(-i))
			} else if f, ok := v.AsFloat(); ok {
				push(value.Float(-f))
			} else {
				return value.Null(), rtErr("cannot negate %s", v.Kind())
			}

		case compile.OpNot:
			v, err := pop()
			if err != nil {
				return value.Null(), err
			}
			push(value.Bool(!v.Truthy()))

		case compile.OpEq, compile.OpNe, compile.OpLt, compile.OpLe, compile.OpGt, compile.OpGe:
			rhs, err := pop()
			if err != nil {
				return value.Null(), err
			}
			lhs, err := pop()
			if err != nil {
				return value.Null(), err
			}
			v, err := compare(in.Op, lhs, rhs, pc-1)
			if err != nil {
				return value.Null(), err
			}
			push(v)

		case compile.OpJump:
			pc = int(in.A)

		case compile.OpJumpIfFalse:
			v, err := pop()
			if err != nil {
				return value.Null(), err
			}
			if !v.Truthy() {
				pc = int(in.A)
			}

		case compile.OpAndJump:
			if len(stack) == 0 {
				return value.Null(), rtErr("stack underflow")
			}
			if !stack[len(stack)-1].Truthy() {
				pc = int(in.A)
			} else {
				stack = stack[:len(stack)-1]
			}

		case compile.OpOrJump:
			if len(stack) == 0 {
				return value.Null(), rtErr("stack underflow")
			}
			if stack[len(stack)-1].Truthy() {
				pc = int(in.A)
			} else {
				stack = stack[:len(stack)-1]
			}

		case compile.OpGetLocal:
			if int(in.A) >= len(locals) {
				return value.Null(), rtErr("local slot out of range")
			}
			push(locals[in.A])

		case compile.OpSetLocal:
			v, err := pop()
			if err != nil {
				return value.Null(), err
			}
			if int(in.A) >= len(locals) {
				return value.Null(), rtErr("local slot out of range")
			}
			locals[in.A] = v

		case compile.OpMakeList:
			n := int(in.A)
			if n > len(stack) {
				return value.Null(), rtErr("stack underflow")
			}
			items := make([]value.Value, n)
			copy(items, stack[len(stack)-n:])
			stack = stack[:len(stack)-n]
			v := value.ListOf(items)
			if err := rc.tracker.RecordMemory(v.Size()); err != nil {
				return value.Null(), err
			}
			push(v)

		case compile.OpMakeMap:
			n := int(in.A)
			if 2*n > len(stack) {
				return value.Null(), rtErr("stack underflow")
			}
			m := make(map[string]value.Value, n)
			base := len(stack) - 2*n
			for i := 0; i < n; i++ {
				k, ok := stack[base+2*i].AsString()
				if !ok {
					return value.Null(), rtErr("map key must be a string")
				}
				m[k] = stack[base+2*i+1]
			}
			stack = stack[:base]
			v := value.Map(m)
			if err := rc.tracker.RecordMemory(v.Size()); err != nil {
				return value.Null(), err
			}
			push(v)

		case compile.OpIndex:
			idx, err := pop()
			if err != nil {
				return value.Null(), err
			}
			container, err := pop()
			if err != nil {
				return value.Null(), err
			}
			v, err := index(container, idx, pc-1)
			if err != nil {
				return value.Null(), err
			}
			push(v)

		case compile.OpCall:
			if int(in.A) >= len(prog.Funcs) {
				return value.Null(), rtErr("function index out of range")
			}
			fn := prog.Funcs[in.A]
			if err := rc.tracker.CheckStackDepth(len(frames) + 1); err != nil {
				return value.Null(), err
			}
			if fn.NumParams > len(stack) {
				return value.Null(), rtErr("stack underflow")
			}
			newLocals := make([]value.Value, fn.NumLocals)
			copy(newLocals, stack[len(stack)-fn.NumParams:])
			stack = stack[:len(stack)-fn.NumParams]
			frames = append(frames, frame{retPC: pc, locals: locals})
			locals = newLocals
			pc = fn.Entry

		case compile.OpReturn:
			ret, err := pop()
			if err != nil {
				return value.Null(), err
			}
			if len(frames) == 0 {
				return value.Null(), rtErr("return outside a function")
			}
			f := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			locals = f.locals
			pc = f.retPC
			push(ret)

		case compile.OpCallHost:
			if int(in.A) >= len(prog.Names) {
				return value.Null(), rtErr("name index out of range")
			}
			name := prog.Names[in.A]
			fn, ok := e.registry.Lookup(name)
			if !ok {
				return value.Null(), rtErr("unknown function %q", name)
			}
			argc := int(in.B)
			if argc > len(stack) {
				return value.Null(), rtErr("stack underflow")
			}
			args := make([]value.Value, argc)
			copy(args, stack[len(stack)-argc:])
			stack = stack[:len(stack)-argc]
			v, err := fn(rc, args)
			if err != nil {
				return value.Null(), err
			}
			push(v)

		case compile.OpHalt:
			// Flush the final partial batch so usage is exact.
			if err := rc.tracker.RecordInstructions(int64(sinceCheck)); err != nil {
				return value.Null(), err
			}
			return result, nil

		default:
			return value.Null(), rtErr("unknown opcode %d", in.Op)
		}
	}
}

// checkpoint applies the ordered between-batch checks.
func (e *Engine) checkpoint(rc *RunContext, executed int) error {
	if err := rc.tracker.RecordInstructions(int64(executed)); err != nil {
		return err
	}
	if err := rc.tracker.CheckTimeout(); err != nil {
		return err
	}
	if e.cancelled.Load() || rc.host.ShouldCancel() || rc.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func arith(op byte, lhs, rhs value.Value, pc int) (value.Value, error) {
	if op == compile.OpAdd {
		if ls, ok := lhs.AsString(); ok {
			if rs, ok := rhs.AsString(); ok {
				return value.Str(ls + rs), nil
			}
		}
	}

	li, lInt := lhs.AsInt()
	ri, rInt := rhs.AsInt()
	if lInt && rInt {
		switch op {
		case compile.OpAdd:
			return value.Int(li + ri), nil
		case compile.OpSub:
			return value.Int(li - ri), nil
		case compile.OpMul:
			return value.Int(li * ri), nil
		case compile.OpDiv:
			if ri == 0 {
				return value.Null(), &RuntimeError{Msg: "division by zero", PC: pc}
			}
			return value.Int(li / ri), nil
		case compile.OpMod:
			if ri == 0 {
				return value.Null(), &RuntimeError{Msg: "division by zero", PC: pc}
			}
			return value.Int(li % ri), nil
		}
	}

	lf, lNum := lhs.AsFloat()
	rf, rNum := rhs.AsFloat()
	if lNum && rNum {
		switch op {
		case compile.OpAdd:
			return value.Float(lf + rf), nil
		case compile.OpSub:
			return value.Float(lf - rf), nil
		case compile.OpMul:
			return value.Float(lf * rf), nil
		case compile.OpDiv:
			if rf == 0 {
				return value.Null(), &RuntimeError{Msg: "division by zero", PC: pc}
			}
			return value.Float(lf / rf), nil
		}
	}

	return value.Null(), &RuntimeError{
		Msg: fmt.Sprintf("unsupported operand types %s and %s", lhs.Kind(), rhs.Kind()),
		PC:  pc,
	}
}

func compare(op byte, lhs, rhs value.Value, pc int) (value.Value, error) {
	if op == compile.OpEq || op == compile.OpNe {
		eq := valuesEqual(lhs, rhs)
		if op == compile.OpNe {
			eq = !eq
		}
		return value.Bool(eq), nil
	}

	// Int pairs order exactly; widening through float64 would lose
	// precision past 2^53.
	if li, ok := lhs.AsInt(); ok {
		if ri, ok := rhs.AsInt(); ok {
			return value.Bool(ordered(op, compareInts(li, ri))), nil
		}
	}
	if lf, ok := lhs.AsFloat(); ok {
		if rf, ok := rhs.AsFloat(); ok {
			return value.Bool(ordered(op, compareFloats(lf, rf))), nil
		}
	}
	if ls, ok := lhs.AsString(); ok {
		if rs, ok := rhs.AsString(); ok {
			cmp := 0
			if ls < rs {
				cmp = -1
			} else if ls > rs {
				cmp = 1
			}
			return value.Bool(ordered(op, cmp)), nil
		}
	}
	return value.Null(), &RuntimeError{
		Msg: fmt.Sprintf("cannot order %s and %s", lhs.Kind(), rhs.Kind()),
		PC:  pc,
	}
}

// valuesEqual is Equal plus cross-kind numeric equality, so 1 == 1.0.
func valuesEqual(lhs, rhs value.Value) bool {
	if lhs.Kind() != rhs.Kind() {
		lf, lok := lhs.AsFloat()
		rf, rok := rhs.AsFloat()
		return lok && rok && lf == rf
	}
	return lhs.Equal(rhs)
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func ordered(op byte, cmp int) bool {
	switch op {
	case compile.OpLt:
		return cmp < 0
	case compile.OpLe:
		return cmp <= 0
	case compile.OpGt:
		return cmp > 0
	case compile.OpGe:
		return cmp >= 0
	}
	return false
}

func index(container, idx value.Value, pc int) (value.Value, error) {
	switch container.Kind() {
	case value.KindList:
		list, _ := container.AsList()
		i, ok := idx.AsInt()
		if !ok {
			return value.Null(), &RuntimeError{Msg: "list index must be an int", PC: pc}
		}
		if i < 0 || i >= int64(len(list)) {
			return value.Null(), &RuntimeError{
				Msg: fmt.Sprintf("index %d out of range for list of %d", i, len(list)),
				PC:  pc,
			}
		}
		return list[i], nil
	case value.KindMap:
		m, _ := container.AsMap()
		k, ok := idx.AsString()
		if !ok {
			return value.Null(), &RuntimeError{Msg: "map key must be a string", PC: pc}
		}
		v, ok := m[k]
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case value.KindString:
		s, _ := container.AsString()
		i, ok := idx.AsInt()
		if !ok {
			return value.Null(), &RuntimeError{Msg: "string index must be an int", PC: pc}
		}
		if i < 0 || i >= int64(len(s)) {
			return value.Null(), &RuntimeError{
				Msg: fmt.Sprintf("index %d out of range for string of %d", i, len(s)),
				PC:  pc,
			}
		}
		return value.Str(string(s[i])), nil
	default:
		return value.Null(), &RuntimeError{
			Msg: fmt.Sprintf("cannot index %s", container.Kind()),
			PC:  pc,
		}
	}
}
