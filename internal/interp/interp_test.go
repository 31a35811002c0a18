package interp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

func newMachine() *Machine {
	return NewMachine(types.NewSystem(), ir.NewProgram())
}

func run(t *testing.T, m *Machine, fn *ir.Fn, args ...uint64) []uint64 {
	t.Helper()
	require.NoError(t, fn.Validate())
	outs, err := m.Run(fn, args)
	require.NoError(t, err)
	return outs
}

func TestNegation(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 1)
	fn.Entry().Append(&ir.Neg{Type: types.I64, Operand: ir.Reg(fn.Param(0)), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	for _, tc := range []struct{ in, want int64 }{{3, -3}, {0, 0}, {-5, 5}} {
		outs := run(t, m, fn, uint64(tc.in))
		assert.Equal(t, tc.want, int64(outs[0]))
	}
}

func TestSignedOverflowTraps(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 2, 1)
	fn.Entry().Append(&ir.Add{Type: types.I8, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.Reg(fn.Param(1)), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	outs := run(t, m, fn, uint64(100), uint64(27))
	assert.Equal(t, int64(127), int64(outs[0]))

	_, err := m.Run(fn, []uint64{100, 28})
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, SignedOverflow, ee.Reason)
}

func TestUnsignedWraps(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 2, 1)
	fn.Entry().Append(&ir.Add{Type: types.U8, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.Reg(fn.Param(1)), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	outs := run(t, m, fn, uint64(250), uint64(10))
	assert.Equal(t, uint64(4), outs[0])
}

func TestDivideByZero(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 2, 1)
	fn.Entry().Append(&ir.Div{Type: types.I64, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.Reg(fn.Param(1)), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	outs := run(t, m, fn, uint64(42), uint64(7))
	assert.Equal(t, int64(6), int64(outs[0]))

	_, err := m.Run(fn, []uint64{1, 0})
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, DivideByZero, ee.Reason)
}

func TestFloatArithmetic(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 2, 1)
	fn.Entry().Append(&ir.Mul{Type: types.F64, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.Reg(fn.Param(1)), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	outs := run(t, m, fn, ir.ImmF64(1.5).Immediate(), ir.ImmF64(4.0).Immediate())
	assert.Equal(t, ir.ImmF64(6.0).Immediate(), outs[0])
}

// Conditional control flow with a phi in the landing block.
func TestCondAndPhi(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 1)
	entry := fn.Entry()
	thenB := fn.AppendBlock()
	elseB := fn.AppendBlock()
	join := fn.AppendBlock()

	cond := fn.NewRegister()
	entry.Append(&ir.Lt{Type: types.I64, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.ImmI64(0), Out: cond})
	entry.SetTerminator(&ir.Cond{Cond: ir.Reg(cond), True: thenB, False: elseB})

	neg := fn.NewRegister()
	thenB.Append(&ir.Neg{Type: types.I64, Operand: ir.Reg(fn.Param(0)), Out: neg})
	thenB.SetTerminator(&ir.Uncond{Target: join})
	elseB.SetTerminator(&ir.Uncond{Target: join})

	join.Append(&ir.Phi{Type: types.I64, Out: fn.Out(0), Pairs: []ir.PhiPair{
		{Pred: thenB, Value: ir.Reg(neg)},
		{Pred: elseB, Value: ir.Reg(fn.Param(0))},
	}})
	join.SetTerminator(&ir.Return{})

	assert.Equal(t, int64(7), int64(run(t, m, fn, uint64(int64(-7)))[0]))
	assert.Equal(t, int64(9), int64(run(t, m, fn, uint64(9))[0]))
}

// A counting loop with a back-edge: sum 1..n.
func TestLoop(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 1)
	entry := fn.Entry()
	header := fn.AppendBlock()
	body := fn.AppendBlock()
	exit := fn.AppendBlock()

	i := fn.NewRegister()
	sum := fn.NewRegister()
	nextI := fn.NewRegister()
	nextSum := fn.NewRegister()
	done := fn.NewRegister()

	entry.SetTerminator(&ir.Uncond{Target: header})

	header.Append(&ir.Phi{Type: types.I64, Out: i, Pairs: []ir.PhiPair{
		{Pred: entry, Value: ir.ImmI64(1)},
		{Pred: body, Value: ir.Reg(nextI)},
	}})
	header.Append(&ir.Phi{Type: types.I64, Out: sum, Pairs: []ir.PhiPair{
		{Pred: entry, Value: ir.ImmI64(0)},
		{Pred: body, Value: ir.Reg(nextSum)},
	}})
	header.Append(&ir.Le{Type: types.I64, Lhs: ir.Reg(i), Rhs: ir.Reg(fn.Param(0)), Out: done})
	header.SetTerminator(&ir.Cond{Cond: ir.Reg(done), True: body, False: exit})

	body.Append(&ir.Add{Type: types.I64, Lhs: ir.Reg(sum), Rhs: ir.Reg(i), Out: nextSum})
	body.Append(&ir.Add{Type: types.I64, Lhs: ir.Reg(i), Rhs: ir.ImmI64(1), Out: nextI})
	body.SetTerminator(&ir.Uncond{Target: header})

	exit.Append(&ir.PushValue{Value: ir.Reg(sum), Out: fn.Out(0)})
	exit.SetTerminator(&ir.Return{})

	assert.Equal(t, int64(55), int64(run(t, m, fn, uint64(10))[0]))
	assert.Equal(t, int64(0), int64(run(t, m, fn, uint64(0))[0]))
}

func TestStackMemory(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 1)
	slot := fn.NewRegister()
	loaded := fn.NewRegister()
	fn.NoteAlloca(slot, types.I64)
	entry := fn.Entry()
	entry.Append(&ir.StackAllocate{Type: types.I64, Out: slot})
	entry.Append(&ir.Store{Type: types.I64, Value: ir.Reg(fn.Param(0)), Addr: ir.Reg(slot)})
	entry.Append(&ir.Load{Type: types.I64, Addr: ir.Reg(slot), Out: loaded})
	entry.Append(&ir.Add{Type: types.I64, Lhs: ir.Reg(loaded), Rhs: ir.ImmI64(1), Out: fn.Out(0)})
	entry.SetTerminator(&ir.Return{})

	assert.Equal(t, int64(42), int64(run(t, m, fn, uint64(41))[0]))
}

func TestNullLoadAborts(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.Entry().Append(&ir.Load{Type: types.I64, Addr: ir.Imm(ir.NullAddress.Pack()), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	_, err := m.Run(fn, nil)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, NullLoad, ee.Reason)
}

func TestCallBetweenFunctions(t *testing.T) {
	m := newMachine()

	callee := ir.NewFn(types.Type{}, 1, 1)
	callee.Entry().Append(&ir.Mul{Type: types.I64, Lhs: ir.Reg(callee.Param(0)), Rhs: ir.ImmI64(2), Out: callee.Out(0)})
	callee.Entry().SetTerminator(&ir.Return{})
	id := m.Program().AddFunction(callee)

	caller := ir.NewFn(types.Type{}, 1, 1)
	doubled := caller.NewRegister()
	caller.Entry().Append(&ir.Call{Callee: ir.ImmU64(uint64(id)), Args: []ir.Operand{ir.Reg(caller.Param(0))}, Outs: []ir.Register{doubled}})
	caller.Entry().Append(&ir.Add{Type: types.I64, Lhs: ir.Reg(doubled), Rhs: ir.ImmI64(1), Out: caller.Out(0)})
	caller.Entry().SetTerminator(&ir.Return{})

	assert.Equal(t, int64(21), int64(run(t, m, caller, uint64(10))[0]))
}

func TestWorkItemRunsOnceOnFirstCall(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 0, 1)
	ran := 0
	fn.SetWorkItem(func() error {
		ran++
		fn.Entry().Append(&ir.PushValue{Value: ir.ImmI64(99), Out: fn.Out(0)})
		fn.Entry().SetTerminator(&ir.Return{})
		return nil
	})

	outs, err := m.Run(fn, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), int64(outs[0]))
	outs, err = m.Run(fn, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), int64(outs[0]))
	assert.Equal(t, 1, ran)
}

func TestForeignStrlen(t *testing.T) {
	m := newMachine()
	sys := m.System()
	addr := m.InternString("hello")

	strlenType := sys.Func(
		sys.Params([]types.Parameter{{Type: sys.BufPtr(types.Char)}}),
		[]types.Type{types.I64}, types.PreferRuntime)
	require.NoError(t, m.Foreign().Register("strlen", strlenType))

	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.Entry().Append(&ir.ForeignCall{
		Name: "strlen",
		Type: strlenType,
		Args: []ir.Operand{ir.Imm(addr.Pack())},
		Outs: []ir.Register{fn.Out(0)},
	})
	fn.Entry().SetTerminator(&ir.Return{})

	assert.Equal(t, int64(5), int64(run(t, m, fn)[0]))
}

func TestForeignUnsupportedSignature(t *testing.T) {
	m := newMachine()
	sys := m.System()

	// (bool) -> bool is not an enumerated foreign shape.
	badType := sys.Func(
		sys.Params([]types.Parameter{{Type: types.Bool}}),
		[]types.Type{types.Bool}, types.PreferRuntime)
	err := m.Foreign().Register("strlen", badType)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ForeignSignatureUnsupported, ee.Reason)
}

func TestForeignUnknownSymbol(t *testing.T) {
	m := newMachine()
	sys := m.System()
	t64 := sys.Func(sys.Params(nil), []types.Type{types.I64}, types.PreferRuntime)
	err := m.Foreign().Register("no_such_symbol", t64)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, UndefinedForeignSymbol, ee.Reason)
}

func TestForeignPutchar(t *testing.T) {
	m := newMachine()
	sys := m.System()
	var out bytes.Buffer
	m.Stdout = &out

	putcharType := sys.Func(
		sys.Params([]types.Parameter{{Type: types.I64}}),
		[]types.Type{types.I64}, types.PreferRuntime)

	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.Entry().Append(&ir.ForeignCall{
		Name: "putchar", Type: putcharType,
		Args: []ir.Operand{ir.ImmI64('A')},
		Outs: []ir.Register{fn.Out(0)},
	})
	fn.Entry().SetTerminator(&ir.Return{})

	run(t, m, fn)
	assert.Equal(t, "A", out.String())
}

func TestTypeConstructorInstructions(t *testing.T) {
	m := newMachine()
	sys := m.System()

	fn := ir.NewFn(types.Type{}, 0, 1)
	elem := fn.NewRegister()
	fn.Entry().Append(&ir.PushType{Type: types.I64, Out: elem})
	fn.Entry().Append(&ir.PtrOf{Operand: ir.Reg(elem), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	outs := run(t, m, fn)
	assert.Equal(t, sys.Ptr(types.I64), types.FromRepresentation(outs[0]))
}

func TestConstructFunctionType(t *testing.T) {
	m := newMachine()
	sys := m.System()

	fn := ir.NewFn(types.Type{}, 0, 1)
	params := fn.NewRegister()
	ret := fn.NewRegister()
	fn.Entry().Append(&ir.ConstructParametersType{
		Types: []ir.Operand{ir.ImmType(types.I64), ir.ImmType(types.Bool)},
		Out:   params,
	})
	fn.Entry().Append(&ir.PushType{Type: types.I64, Out: ret})
	fn.Entry().Append(&ir.ConstructFunctionType{Params: ir.Reg(params), Return: ir.Reg(ret), Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})

	got := types.FromRepresentation(run(t, m, fn)[0])
	want := sys.Func(
		sys.Params([]types.Parameter{{Type: types.I64}, {Type: types.Bool}}),
		[]types.Type{types.I64}, types.PreferRuntime)
	assert.Equal(t, want, got)
}

func TestEnumCreateInstruction(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.Entry().Append(&ir.EnumCreate{
		Module: "demo", Name: "Color",
		Members: []ir.EnumMemberSpec{{Name: "Red"}, {Name: "Green"}, {Name: "Blue"}},
		Out:     fn.Out(0),
	})
	fn.Entry().SetTerminator(&ir.Return{})

	typ := types.FromRepresentation(run(t, m, fn)[0])
	require.Equal(t, types.KindEnum, typ.Kind())
	e := m.System().EnumOf(typ)
	assert.Equal(t, types.Complete, e.Completeness())
	assert.Len(t, e.Members(), 3)
}

func TestSlicesSpanTwoSlots(t *testing.T) {
	m := newMachine()
	sys := m.System()
	slice := sys.Slc(types.Char)

	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.SetRegisterSlots(fn.Out(0), 2)
	addr := m.InternString("abc")
	slot := fn.NewRegister()
	lenAddr := fn.NewRegister()
	fn.NoteAlloca(slot, slice)
	entry := fn.Entry()
	entry.Append(&ir.StackAllocate{Type: slice, Out: slot})
	entry.Append(&ir.Store{Type: types.U64, Value: ir.Imm(addr.Pack()), Addr: ir.Reg(slot)})
	entry.Append(&ir.PtrIncr{Pointee: types.U64, Base: ir.Reg(slot), Index: ir.ImmI64(1), Out: lenAddr})
	entry.Append(&ir.Store{Type: types.U64, Value: ir.ImmU64(3), Addr: ir.Reg(lenAddr)})
	entry.Append(&ir.Load{Type: slice, Addr: ir.Reg(slot), Out: fn.Out(0)})
	entry.SetTerminator(&ir.Return{})

	outs := run(t, m, fn)
	require.Len(t, outs, 2)
	assert.Equal(t, addr.Pack(), outs[0])
	assert.Equal(t, uint64(3), outs[1])
}

func TestInstructionBudget(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 0, 0)
	entry := fn.Entry()
	spin := fn.AppendBlock()
	entry.SetTerminator(&ir.Uncond{Target: spin})
	r := fn.NewRegister()
	spin.Append(&ir.Add{Type: types.U64, Lhs: ir.Reg(r), Rhs: ir.ImmU64(1), Out: r})
	spin.SetTerminator(&ir.Uncond{Target: spin})

	m.SetInstructionBudget(1000)
	_, err := m.Run(fn, nil)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, InstructionBudgetExhausted, ee.Reason)
}

func TestDeterminism(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 1)
	entry := fn.Entry()
	a := fn.NewRegister()
	b := fn.NewRegister()
	entry.Append(&ir.Mul{Type: types.I64, Lhs: ir.Reg(fn.Param(0)), Rhs: ir.ImmI64(3), Out: a})
	entry.Append(&ir.Sub{Type: types.I64, Lhs: ir.Reg(a), Rhs: ir.ImmI64(7), Out: b})
	entry.Append(&ir.Mod{Type: types.I64, Lhs: ir.Reg(b), Rhs: ir.ImmI64(11), Out: fn.Out(0)})
	entry.SetTerminator(&ir.Return{})

	first := run(t, m, fn, uint64(12345))
	second := run(t, m, fn, uint64(12345))
	assert.Equal(t, first, second)
}

func TestCasts(t *testing.T) {
	m := newMachine()

	cast := func(from, to types.Type, in uint64) uint64 {
		fn := ir.NewFn(types.Type{}, 1, 1)
		fn.Entry().Append(&ir.Cast{From: from, To: to, Operand: ir.Reg(fn.Param(0)), Out: fn.Out(0)})
		fn.Entry().SetTerminator(&ir.Return{})
		return run(t, m, fn, in)[0]
	}

	assert.Equal(t, int64(-1), int64(cast(types.I64, types.I8, uint64(int64(255)))))
	assert.Equal(t, uint64(255), cast(types.I64, types.U8, uint64(int64(255))))
	assert.Equal(t, ir.ImmF64(3).Immediate(), cast(types.I64, types.F64, uint64(3)))
	assert.Equal(t, ir.ImmF64(2.5).Immediate(), cast(types.F32, types.F64, ir.ImmF32(2.5).Immediate()))
}

func TestLoadDataSymbol(t *testing.T) {
	m := newMachine()
	addr := m.RegisterDataSymbol("greeting", []byte("hey\x00"))

	fn := ir.NewFn(types.Type{}, 0, 1)
	fn.Entry().Append(&ir.LoadDataSymbol{Name: "greeting", Out: fn.Out(0)})
	fn.Entry().SetTerminator(&ir.Return{})
	assert.Equal(t, addr.Pack(), run(t, m, fn)[0])

	bad := ir.NewFn(types.Type{}, 0, 1)
	bad.Entry().Append(&ir.LoadDataSymbol{Name: "nope", Out: bad.Out(0)})
	bad.Entry().SetTerminator(&ir.Return{})
	_, err := m.Run(bad, nil)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, UndefinedForeignSymbol, ee.Reason)
}

func TestAsciiEncodeDecode(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 1, 2)
	entry := fn.Entry()
	entry.Append(&ir.AsciiEncode{Operand: ir.Reg(fn.Param(0)), Out: fn.Out(0)})
	entry.Append(&ir.AsciiDecode{Operand: ir.Reg(fn.Out(0)), Out: fn.Out(1)})
	entry.SetTerminator(&ir.Return{})

	outs := run(t, m, fn, uint64('x'))
	assert.Equal(t, uint64('x'), outs[0])
	assert.Equal(t, uint64('x'), outs[1])
}

func TestRotate(t *testing.T) {
	m := newMachine()
	fn := ir.NewFn(types.Type{}, 3, 3)
	regs := []ir.Register{fn.Param(0), fn.Param(1), fn.Param(2)}
	entry := fn.Entry()
	entry.Append(&ir.Rotate{Regs: regs})
	for j := 0; j < 3; j++ {
		entry.Append(&ir.PushValue{Value: ir.Reg(regs[j]), Out: fn.Out(j)})
	}
	entry.SetTerminator(&ir.Return{})

	outs := run(t, m, fn, 1, 2, 3)
	assert.Equal(t, []uint64{2, 3, 1}, outs)
}
