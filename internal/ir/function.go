package ir

import (
	"fmt"

	"github.com/icarus-lang/icarus/internal/types"
)

// Fn is a compiled function: a CFG of basic blocks over virtual registers.
// Block 0 is the entry. Before execution the function is finalized, which
// assigns every register a slot offset in the frame's register buffer and
// places stack allocations at aligned frame offsets.
type Fn struct {
	typ       types.Type // a Function type; zero for synthesized thunks
	numParams int
	outs      []Register

	blocks  []*Block
	regSize map[Register]int // slots; absent means 1
	nextReg Register

	allocas map[Register]types.Type

	// Computed by Finalize.
	finalized    bool
	regOffset    []uint32 // register -> slot offset
	frameSlots   int
	allocaOffset map[Register]uint64
	allocaBytes  uint64

	// workItem is a deferred completion closure used for generics: the
	// interpreter invokes it the first time the function is called, then
	// clears it.
	workItem func() error
}

// NewFn creates a function with the given argument and output register
// counts. Argument registers are 0..params-1 followed by the output
// registers; further outputs may be added with AddOutput before
// finalization.
func NewFn(typ types.Type, params, returns int) *Fn {
	f := &Fn{
		typ:       typ,
		numParams: params,
		regSize:   make(map[Register]int),
		allocas:   make(map[Register]types.Type),
		nextReg:   Register(params),
	}
	for i := 0; i < returns; i++ {
		f.AddOutput(1)
	}
	f.AppendBlock()
	return f
}

// Type returns the function's Function type; may be the zero Type for
// synthesized evaluation thunks.
func (f *Fn) Type() types.Type { return f.typ }

// SetType installs the function type once it is known; short function
// literals learn their return type from their body.
func (f *Fn) SetType(t types.Type) { f.typ = t }

// NumParamSlots returns the number of argument registers.
func (f *Fn) NumParamSlots() int { return f.numParams }

// NumReturnSlots returns the number of output registers.
func (f *Fn) NumReturnSlots() int { return len(f.outs) }

// Param returns the i-th argument register.
func (f *Fn) Param(i int) Register {
	if i >= f.numParams {
		panic(fmt.Sprintf("ir: parameter %d of %d", i, f.numParams))
	}
	return Register(i)
}

// Out returns the i-th output register.
func (f *Fn) Out(i int) Register { return f.outs[i] }

// AddOutput allocates one more output register of the given slot width.
func (f *Fn) AddOutput(slots int) Register {
	r := f.NewWideRegister(slots)
	f.outs = append(f.outs, r)
	return r
}

// RestoreOutputs installs the output register list directly; the module
// reader uses it to reproduce a serialized function's register layout.
func (f *Fn) RestoreOutputs(regs []Register) { f.outs = regs }

// Entry returns the entry block.
func (f *Fn) Entry() *Block { return f.blocks[0] }

// Blocks returns all blocks; index 0 is the entry.
func (f *Fn) Blocks() []*Block { return f.blocks }

// Block returns the block with the given id.
func (f *Fn) Block(id int) *Block { return f.blocks[id] }

// AppendBlock creates a new empty block.
func (f *Fn) AppendBlock() *Block {
	b := &Block{id: len(f.blocks), incoming: make(map[*Block]struct{})}
	f.blocks = append(f.blocks, b)
	return b
}

// NewRegister allocates a fresh single-slot register.
func (f *Fn) NewRegister() Register { return f.NewWideRegister(1) }

// NewWideRegister allocates a register spanning the given number of slots;
// wide registers hold big values such as slices.
func (f *Fn) NewWideRegister(slots int) Register {
	r := f.nextReg
	f.nextReg++
	if slots > 1 {
		f.regSize[r] = slots
	}
	return r
}

// RegisterSlots returns how many slots a register spans.
func (f *Fn) RegisterSlots(r Register) int {
	if n, ok := f.regSize[r]; ok {
		return n
	}
	return 1
}

// NumRegisters returns the number of allocated registers.
func (f *Fn) NumRegisters() int { return int(f.nextReg) }

// SetRegisterSlots widens an existing register, used for argument and
// output slots whose width depends on the function type.
func (f *Fn) SetRegisterSlots(r Register, slots int) {
	if slots > 1 {
		f.regSize[r] = slots
	} else {
		delete(f.regSize, r)
	}
}

// NoteAlloca records that register r holds the address of a stack slot of
// the given type.
func (f *Fn) NoteAlloca(r Register, t types.Type) { f.allocas[r] = t }

// Allocations returns the alloca-register to type table.
func (f *Fn) Allocations() map[Register]types.Type { return f.allocas }

// SetWorkItem attaches a deferred completion closure.
func (f *Fn) SetWorkItem(fn func() error) { f.workItem = fn }

// TakeWorkItem returns and clears the deferred closure, if any.
func (f *Fn) TakeWorkItem() func() error {
	w := f.workItem
	f.workItem = nil
	return w
}

// HasWorkItem reports whether a deferred closure is pending.
func (f *Fn) HasWorkItem() bool { return f.workItem != nil }

// Finalize computes the register layout and stack-allocation placement.
// Idempotent; must run before execution.
func (f *Fn) Finalize(sys *types.System) {
	if f.finalized {
		return
	}
	f.regOffset = make([]uint32, f.nextReg)
	offset := uint32(0)
	for r := Register(0); r < f.nextReg; r++ {
		f.regOffset[r] = offset
		offset += uint32(f.RegisterSlots(r))
	}
	f.frameSlots = int(offset)

	f.allocaOffset = make(map[Register]uint64, len(f.allocas))
	var bytes uint64
	for r, t := range f.allocas {
		align := sys.Alignment(t)
		size := sys.Bytes(t)
		bytes = alignUp(bytes, align)
		f.allocaOffset[r] = bytes
		bytes += size
	}
	f.allocaBytes = alignUp(bytes, 8)
	f.finalized = true
}

// Finalized reports whether the layout has been computed.
func (f *Fn) Finalized() bool { return f.finalized }

// RegisterOffset returns the slot offset of r in the frame's register
// buffer. Defined only after finalization.
func (f *Fn) RegisterOffset(r Register) uint32 { return f.regOffset[r] }

// FrameSlots returns the register buffer size in slots.
func (f *Fn) FrameSlots() int { return f.frameSlots }

// AllocaOffset returns the frame-stack byte offset of an alloca register.
func (f *Fn) AllocaOffset(r Register) uint64 { return f.allocaOffset[r] }

// AllocaBytes returns the total frame-stack bytes the function reserves.
func (f *Fn) AllocaBytes() uint64 { return f.allocaBytes }

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}
