// Package llvm lowers runtime functions to LLVM IR. The lowering is
// optional and partial: compile-time-only constructs (type constructors,
// nominal creation, generic support) never reach it, and functions using
// them are reported rather than silently mis-lowered.
package llvm

import (
	"fmt"
	"math"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	llvmtypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Generator lowers a program's runtime functions.
type Generator struct {
	sys  *types.System
	prog *ir.Program

	// Errors collects lowering diagnostics.
	Errors []diag.Diagnostic

	mod   *llvmir.Module
	fns   map[uint32]*llvmir.Func
	names map[uint32]string
}

// NewGenerator creates a generator for prog against sys.
func NewGenerator(sys *types.System, prog *ir.Program) *Generator {
	return &Generator{
		sys:   sys,
		prog:  prog,
		fns:   make(map[uint32]*llvmir.Func),
		names: make(map[uint32]string),
	}
}

// Name assigns an exported name to a function handle.
func (g *Generator) Name(fnID uint32, name string) { g.names[fnID] = name }

func (g *Generator) errorf(format string, args ...any) {
	g.Errors = append(g.Errors, diag.Diagnostic{
		Category: diag.CategoryBuild,
		Severity: diag.SeverityError,
		Code:     diag.CodeEvaluationFailure,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Generate lowers every function with a concrete runtime function type and
// returns the textual LLVM module.
func (g *Generator) Generate() (string, error) {
	g.mod = llvmir.NewModule()

	// Declare all functions first so calls can reference forward.
	for id, fn := range g.prog.Functions() {
		fnID := uint32(id)
		if !g.lowerable(fn) {
			continue
		}
		decl, err := g.declare(fnID, fn)
		if err != nil {
			g.errorf("%s: %v", g.nameOf(fnID), err)
			continue
		}
		g.fns[fnID] = decl
	}

	for id, fn := range g.prog.Functions() {
		fnID := uint32(id)
		decl, ok := g.fns[fnID]
		if !ok {
			continue
		}
		if err := g.lowerBody(decl, fn); err != nil {
			g.errorf("%s: %v", g.nameOf(fnID), err)
		}
	}

	if len(g.Errors) > 0 {
		return "", fmt.Errorf("llvm lowering failed with %d error(s)", len(g.Errors))
	}
	return g.mod.String(), nil
}

func (g *Generator) nameOf(fnID uint32) string {
	if name, ok := g.names[fnID]; ok {
		return name
	}
	return fmt.Sprintf("fn.%d", fnID)
}

// lowerable reports whether the function is a runtime function: it has a
// concrete function type, no pending work item, and is not compile-time
// only.
func (g *Generator) lowerable(fn *ir.Fn) bool {
	if !fn.Type().Valid() || fn.Type().Kind() != types.KindFunction || fn.HasWorkItem() {
		return false
	}
	return g.sys.FunctionEvaluation(fn.Type()) != types.RequiredAtCompileTime
}

func (g *Generator) declare(fnID uint32, fn *ir.Fn) (*llvmir.Func, error) {
	fnType := fn.Type()
	params := g.sys.ParameterList(g.sys.FunctionParameters(fnType))
	returns := g.sys.FunctionReturns(fnType)

	var retType llvmtypes.Type = llvmtypes.Void
	switch len(returns) {
	case 0:
	case 1:
		t, err := g.mapType(returns[0])
		if err != nil {
			return nil, err
		}
		retType = t
	default:
		return nil, fmt.Errorf("multiple return values")
	}

	var llvmParams []*llvmir.Param
	for _, p := range params {
		t, err := g.mapType(p.Type)
		if err != nil {
			return nil, err
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", len(llvmParams))
		}
		llvmParams = append(llvmParams, llvmir.NewParam(name, t))
	}
	return g.mod.NewFunc(g.nameOf(fnID), retType, llvmParams...), nil
}

// mapType lowers a type to its LLVM representation.
func (g *Generator) mapType(t types.Type) (llvmtypes.Type, error) {
	switch {
	case t == types.Bool:
		return llvmtypes.I1, nil
	case t == types.Char, t == types.Byte, t == types.I8, t == types.U8:
		return llvmtypes.I8, nil
	case t == types.I16, t == types.U16:
		return llvmtypes.I16, nil
	case t == types.I32, t == types.U32:
		return llvmtypes.I32, nil
	case t == types.I64, t == types.U64:
		return llvmtypes.I64, nil
	case t == types.F32:
		return llvmtypes.Float, nil
	case t == types.F64:
		return llvmtypes.Double, nil
	case t.Kind() == types.KindPointer, t.Kind() == types.KindBufferPointer, t == types.NullPtr:
		return llvmtypes.NewPointer(llvmtypes.I8), nil
	case t.Kind() == types.KindSlice:
		return llvmtypes.NewStruct(llvmtypes.NewPointer(llvmtypes.I8), llvmtypes.I64), nil
	default:
		return nil, fmt.Errorf("type %s has no runtime lowering", g.sys.String(t))
	}
}

type loweringState struct {
	values map[ir.Register]value.Value
	blocks map[int]*llvmir.Block

	// phi fixups resolved after all blocks are lowered.
	phis []phiFixup
}

type phiFixup struct {
	phi   *llvmir.InstPhi
	pairs []ir.PhiPair
}

func (g *Generator) lowerBody(decl *llvmir.Func, fn *ir.Fn) error {
	state := &loweringState{
		values: make(map[ir.Register]value.Value),
		blocks: make(map[int]*llvmir.Block),
	}
	for i, p := range decl.Params {
		state.values[fn.Param(i)] = p
	}
	for _, b := range fn.Blocks() {
		state.blocks[b.ID()] = decl.NewBlock(fmt.Sprintf("bb%d", b.ID()))
	}

	for _, b := range fn.Blocks() {
		llb := state.blocks[b.ID()]
		for _, instr := range b.Instrs() {
			if err := g.lowerInstr(llb, fn, state, instr); err != nil {
				return err
			}
		}
		if err := g.lowerTerminator(llb, fn, state, b); err != nil {
			return err
		}
	}

	// Patch phi incomings now that every block's values exist.
	for _, fixup := range state.phis {
		for _, pair := range fixup.pairs {
			v, err := g.operand(fn, state, pair.Value, fixup.phi.Typ)
			if err != nil {
				return err
			}
			fixup.phi.Incs = append(fixup.phi.Incs, llvmir.NewIncoming(v, state.blocks[pair.Pred.ID()]))
		}
	}
	return nil
}

func (g *Generator) operand(fn *ir.Fn, state *loweringState, o ir.Operand, want llvmtypes.Type) (value.Value, error) {
	if o.IsRegister() {
		v, ok := state.values[o.Register()]
		if !ok {
			return nil, fmt.Errorf("register r%d has no lowering", o.Register())
		}
		return v, nil
	}
	switch t := want.(type) {
	case *llvmtypes.IntType:
		return constant.NewInt(t, int64(o.Immediate())), nil
	case *llvmtypes.FloatType:
		if t.Kind == llvmtypes.FloatKindDouble {
			return constant.NewFloat(t, float64FromBits(o.Immediate())), nil
		}
		return constant.NewFloat(t, float64(float32FromBits(uint32(o.Immediate())))), nil
	default:
		return constant.NewInt(llvmtypes.I64, int64(o.Immediate())), nil
	}
}

func (g *Generator) intOperands(fn *ir.Fn, state *loweringState, t types.Type, lhs, rhs ir.Operand) (value.Value, value.Value, error) {
	mapped, err := g.mapType(t)
	if err != nil {
		return nil, nil, err
	}
	a, err := g.operand(fn, state, lhs, mapped)
	if err != nil {
		return nil, nil, err
	}
	b, err := g.operand(fn, state, rhs, mapped)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (g *Generator) lowerInstr(llb *llvmir.Block, fn *ir.Fn, state *loweringState, instr ir.Instr) error {
	switch i := instr.(type) {
	case *ir.Add:
		return g.lowerArith(llb, fn, state, i.Type, i.Lhs, i.Rhs, i.Out, "add")
	case *ir.Sub:
		return g.lowerArith(llb, fn, state, i.Type, i.Lhs, i.Rhs, i.Out, "sub")
	case *ir.Mul:
		return g.lowerArith(llb, fn, state, i.Type, i.Lhs, i.Rhs, i.Out, "mul")
	case *ir.Div:
		return g.lowerArith(llb, fn, state, i.Type, i.Lhs, i.Rhs, i.Out, "div")
	case *ir.Mod:
		return g.lowerArith(llb, fn, state, i.Type, i.Lhs, i.Rhs, i.Out, "mod")

	case *ir.Neg:
		mapped, err := g.mapType(i.Type)
		if err != nil {
			return err
		}
		v, err := g.operand(fn, state, i.Operand, mapped)
		if err != nil {
			return err
		}
		if types.IsFloat(i.Type) {
			state.values[i.Out] = llb.NewFNeg(v)
		} else {
			zero := constant.NewInt(mapped.(*llvmtypes.IntType), 0)
			state.values[i.Out] = llb.NewSub(zero, v)
		}
		return nil

	case *ir.Eq, *ir.Ne, *ir.Lt, *ir.Le:
		return g.lowerCompare(llb, fn, state, instr)

	case *ir.Not:
		v, err := g.operand(fn, state, i.Operand, llvmtypes.I1)
		if err != nil {
			return err
		}
		state.values[i.Out] = llb.NewXor(v, constant.NewInt(llvmtypes.I1, 1))
		return nil
	case *ir.And:
		a, err := g.operand(fn, state, i.Lhs, llvmtypes.I1)
		if err != nil {
			return err
		}
		b, err := g.operand(fn, state, i.Rhs, llvmtypes.I1)
		if err != nil {
			return err
		}
		state.values[i.Out] = llb.NewAnd(a, b)
		return nil
	case *ir.Or:
		a, err := g.operand(fn, state, i.Lhs, llvmtypes.I1)
		if err != nil {
			return err
		}
		b, err := g.operand(fn, state, i.Rhs, llvmtypes.I1)
		if err != nil {
			return err
		}
		state.values[i.Out] = llb.NewOr(a, b)
		return nil

	case *ir.StackAllocate:
		mapped, err := g.mapType(i.Type)
		if err != nil {
			return err
		}
		state.values[i.Out] = llb.NewAlloca(mapped)
		return nil
	case *ir.Load:
		mapped, err := g.mapType(i.Type)
		if err != nil {
			return err
		}
		addr, err := g.pointerOperand(llb, fn, state, i.Addr, mapped)
		if err != nil {
			return err
		}
		state.values[i.Out] = llb.NewLoad(mapped, addr)
		return nil
	case *ir.Store:
		mapped, err := g.mapType(i.Type)
		if err != nil {
			return err
		}
		v, err := g.operand(fn, state, i.Value, mapped)
		if err != nil {
			return err
		}
		addr, err := g.pointerOperand(llb, fn, state, i.Addr, mapped)
		if err != nil {
			return err
		}
		llb.NewStore(v, addr)
		return nil

	case *ir.PushValue:
		v, err := g.operand(fn, state, i.Value, llvmtypes.I64)
		if err != nil {
			return err
		}
		state.values[i.Out] = v
		return nil

	case *ir.Phi:
		mapped, err := g.mapType(i.Type)
		if err != nil {
			return err
		}
		phi := &llvmir.InstPhi{Typ: mapped}
		llb.Insts = append(llb.Insts, phi)
		state.values[i.Out] = phi
		state.phis = append(state.phis, phiFixup{phi: phi, pairs: i.Pairs})
		return nil

	case *ir.Call:
		if !i.Callee.IsRegister() {
			callee, ok := g.fns[uint32(i.Callee.Immediate())]
			if !ok {
				return fmt.Errorf("call target fn.%d has no lowering", i.Callee.Immediate())
			}
			var args []value.Value
			for j, arg := range i.Args {
				v, err := g.operand(fn, state, arg, callee.Params[j].Typ)
				if err != nil {
					return err
				}
				args = append(args, v)
			}
			result := llb.NewCall(callee, args...)
			if len(i.Outs) == 1 {
				state.values[i.Outs[0]] = result
			}
			return nil
		}
		return fmt.Errorf("indirect calls have no lowering")

	default:
		return fmt.Errorf("instruction %T has no runtime lowering", instr)
	}
}

// pointerOperand coerces an address operand to a typed pointer.
func (g *Generator) pointerOperand(llb *llvmir.Block, fn *ir.Fn, state *loweringState, o ir.Operand, elem llvmtypes.Type) (value.Value, error) {
	v, err := g.operand(fn, state, o, llvmtypes.NewPointer(elem))
	if err != nil {
		return nil, err
	}
	if ptr, ok := v.Type().(*llvmtypes.PointerType); ok && ptr.ElemType.Equal(elem) {
		return v, nil
	}
	if _, ok := v.Type().(*llvmtypes.PointerType); ok {
		return llb.NewBitCast(v, llvmtypes.NewPointer(elem)), nil
	}
	return nil, fmt.Errorf("operand is not an address")
}

func (g *Generator) lowerArith(llb *llvmir.Block, fn *ir.Fn, state *loweringState, t types.Type, lhs, rhs ir.Operand, out ir.Register, op string) error {
	a, b, err := g.intOperands(fn, state, t, lhs, rhs)
	if err != nil {
		return err
	}
	switch {
	case types.IsFloat(t):
		switch op {
		case "add":
			state.values[out] = llb.NewFAdd(a, b)
		case "sub":
			state.values[out] = llb.NewFSub(a, b)
		case "mul":
			state.values[out] = llb.NewFMul(a, b)
		case "div":
			state.values[out] = llb.NewFDiv(a, b)
		case "mod":
			state.values[out] = llb.NewFRem(a, b)
		}
	case types.IsSignedInteger(t):
		switch op {
		case "add":
			state.values[out] = llb.NewAdd(a, b)
		case "sub":
			state.values[out] = llb.NewSub(a, b)
		case "mul":
			state.values[out] = llb.NewMul(a, b)
		case "div":
			state.values[out] = llb.NewSDiv(a, b)
		case "mod":
			state.values[out] = llb.NewSRem(a, b)
		}
	case types.IsUnsignedInteger(t):
		switch op {
		case "add":
			state.values[out] = llb.NewAdd(a, b)
		case "sub":
			state.values[out] = llb.NewSub(a, b)
		case "mul":
			state.values[out] = llb.NewMul(a, b)
		case "div":
			state.values[out] = llb.NewUDiv(a, b)
		case "mod":
			state.values[out] = llb.NewURem(a, b)
		}
	default:
		return fmt.Errorf("arithmetic over %s has no lowering", g.sys.String(t))
	}
	return nil
}

func (g *Generator) lowerCompare(llb *llvmir.Block, fn *ir.Fn, state *loweringState, instr ir.Instr) error {
	var t types.Type
	var lhs, rhs ir.Operand
	var out ir.Register
	var op string
	switch i := instr.(type) {
	case *ir.Eq:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "eq"
	case *ir.Ne:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "ne"
	case *ir.Lt:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "lt"
	case *ir.Le:
		t, lhs, rhs, out, op = i.Type, i.Lhs, i.Rhs, i.Out, "le"
	}
	a, b, err := g.intOperands(fn, state, t, lhs, rhs)
	if err != nil {
		return err
	}
	if types.IsFloat(t) {
		pred := map[string]enum.FPred{
			"eq": enum.FPredOEQ, "ne": enum.FPredONE,
			"lt": enum.FPredOLT, "le": enum.FPredOLE,
		}[op]
		state.values[out] = llb.NewFCmp(pred, a, b)
		return nil
	}
	var pred enum.IPred
	signed := types.IsSignedInteger(t)
	switch op {
	case "eq":
		pred = enum.IPredEQ
	case "ne":
		pred = enum.IPredNE
	case "lt":
		pred = enum.IPredULT
		if signed {
			pred = enum.IPredSLT
		}
	case "le":
		pred = enum.IPredULE
		if signed {
			pred = enum.IPredSLE
		}
	}
	state.values[out] = llb.NewICmp(pred, a, b)
	return nil
}

func (g *Generator) lowerTerminator(llb *llvmir.Block, fn *ir.Fn, state *loweringState, b *ir.Block) error {
	switch term := b.Terminator().(type) {
	case *ir.Return:
		returns := g.sys.FunctionReturns(fn.Type())
		if len(returns) == 0 {
			llb.NewRet(nil)
			return nil
		}
		mapped, err := g.mapType(returns[0])
		if err != nil {
			return err
		}
		v, err := g.operand(fn, state, ir.Reg(fn.Out(0)), mapped)
		if err != nil {
			return err
		}
		llb.NewRet(v)
		return nil
	case *ir.Uncond:
		llb.NewBr(state.blocks[term.Target.ID()])
		return nil
	case *ir.Cond:
		cond, err := g.operand(fn, state, term.Cond, llvmtypes.I1)
		if err != nil {
			return err
		}
		llb.NewCondBr(cond, state.blocks[term.True.ID()], state.blocks[term.False.ID()])
		return nil
	default:
		return fmt.Errorf("terminator %T has no lowering", term)
	}
}

func float64FromBits(bits uint64) float64 { return math.Float64frombits(bits) }

func float32FromBits(bits uint32) float32 { return math.Float32frombits(bits) }
