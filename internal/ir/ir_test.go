package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-lang/icarus/internal/types"
)

func TestOperands(t *testing.T) {
	r := Reg(3)
	assert.True(t, r.IsRegister())
	assert.Equal(t, Register(3), r.Register())

	imm := ImmI64(-5)
	assert.False(t, imm.IsRegister())
	assert.Equal(t, int64(-5), int64(imm.Immediate()))

	assert.Equal(t, uint64(1), ImmBool(true).Immediate())
	assert.Equal(t, uint64(0), ImmBool(false).Immediate())
}

func TestAddressPacking(t *testing.T) {
	for _, addr := range []Address{
		{Region: RegionStack, Offset: 0},
		{Region: RegionStack, Offset: 4096},
		{Region: RegionHeap, Offset: 123456789},
		{Region: RegionReadOnly, Offset: 7},
	} {
		assert.Equal(t, addr, UnpackAddress(addr.Pack()))
	}
}

func TestEdgeMaintenance(t *testing.T) {
	f := NewFn(types.Type{}, 0, 0)
	entry := f.Entry()
	a := f.AppendBlock()
	b := f.AppendBlock()

	entry.SetTerminator(&Cond{Cond: Reg(0), True: a, False: b})
	assert.True(t, a.HasIncoming(entry))
	assert.True(t, b.HasIncoming(entry))

	// Retargeting repairs both endpoints atomically.
	entry.SetTerminator(&Uncond{Target: a})
	assert.True(t, a.HasIncoming(entry))
	assert.False(t, b.HasIncoming(entry))

	a.SetTerminator(&Return{})
	b.SetTerminator(&Return{})
	require.NoError(t, f.Validate())
}

func TestValidateCatchesStalePhi(t *testing.T) {
	f := NewFn(types.Type{}, 0, 0)
	entry := f.Entry()
	a := f.AppendBlock()
	b := f.AppendBlock()
	join := f.AppendBlock()

	entry.SetTerminator(&Cond{Cond: Reg(0), True: a, False: b})
	a.SetTerminator(&Uncond{Target: join})
	b.SetTerminator(&Uncond{Target: join})

	out := f.NewRegister()
	join.Append(&Phi{Type: types.I64, Out: out, Pairs: []PhiPair{
		{Pred: a, Value: ImmI64(1)},
	}})
	join.SetTerminator(&Return{})

	assert.Error(t, f.Validate(), "phi missing a predecessor pair")

	join.instrs = nil
	join.Append(&Phi{Type: types.I64, Out: out, Pairs: []PhiPair{
		{Pred: a, Value: ImmI64(1)},
		{Pred: b, Value: ImmI64(2)},
	}})
	require.NoError(t, f.Validate())
}

func TestValidateRejectsPhiAfterInstruction(t *testing.T) {
	f := NewFn(types.Type{}, 0, 0)
	entry := f.Entry()
	next := f.AppendBlock()
	entry.SetTerminator(&Uncond{Target: next})

	r := f.NewRegister()
	next.Append(&Add{Type: types.I64, Lhs: ImmI64(1), Rhs: ImmI64(2), Out: r})
	next.Append(&Phi{Type: types.I64, Out: f.NewRegister(), Pairs: []PhiPair{
		{Pred: entry, Value: ImmI64(0)},
	}})
	next.SetTerminator(&Return{})

	assert.Error(t, f.Validate())
}

func TestFinalizeLayout(t *testing.T) {
	sys := types.NewSystem()
	f := NewFn(types.Type{}, 2, 1)

	wide := f.NewWideRegister(2)
	narrow := f.NewRegister()
	f.Entry().SetTerminator(&Return{})
	f.Finalize(sys)

	// Parameters and outputs first, then temporaries in order.
	assert.Equal(t, uint32(0), f.RegisterOffset(f.Param(0)))
	assert.Equal(t, uint32(1), f.RegisterOffset(f.Param(1)))
	assert.Equal(t, uint32(2), f.RegisterOffset(f.Out(0)))
	assert.Equal(t, uint32(3), f.RegisterOffset(wide))
	assert.Equal(t, uint32(5), f.RegisterOffset(narrow))
	assert.Equal(t, 6, f.FrameSlots())
}

func TestFinalizePlacesAllocas(t *testing.T) {
	sys := types.NewSystem()
	f := NewFn(types.Type{}, 0, 0)

	a := f.NewRegister()
	b := f.NewRegister()
	f.Entry().Append(&StackAllocate{Type: types.Bool, Out: a})
	f.Entry().Append(&StackAllocate{Type: types.I64, Out: b})
	f.NoteAlloca(a, types.Bool)
	f.NoteAlloca(b, types.I64)
	f.Entry().SetTerminator(&Return{})
	f.Finalize(sys)

	offA := f.AllocaOffset(a)
	offB := f.AllocaOffset(b)
	assert.NotEqual(t, offA, offB)
	assert.Zero(t, offB%8, "i64 slot must be 8-aligned")
	assert.GreaterOrEqual(t, f.AllocaBytes(), uint64(9))
	assert.Zero(t, f.AllocaBytes()%8)
}

func TestWorkItemLifecycle(t *testing.T) {
	f := NewFn(types.Type{}, 0, 0)
	assert.False(t, f.HasWorkItem())

	ran := false
	f.SetWorkItem(func() error { ran = true; return nil })
	assert.True(t, f.HasWorkItem())

	w := f.TakeWorkItem()
	require.NotNil(t, w)
	require.NoError(t, w())
	assert.True(t, ran)
	assert.False(t, f.HasWorkItem())
	assert.Nil(t, f.TakeWorkItem())
}

func TestPrettyIncludesBlocksAndInstrs(t *testing.T) {
	sys := types.NewSystem()
	f := NewFn(types.Type{}, 1, 1)
	r := f.NewRegister()
	f.Entry().Append(&Neg{Type: types.I64, Operand: Reg(f.Param(0)), Out: r})
	f.Entry().Append(&CopyInit{Type: types.I64, Dst: Reg(f.Out(0)), Src: Reg(r)})
	f.Entry().SetTerminator(&Return{})

	out := f.Pretty(sys)
	assert.Contains(t, out, "bb0:")
	assert.Contains(t, out, "neg<i64>")
	assert.Contains(t, out, "return")
}
