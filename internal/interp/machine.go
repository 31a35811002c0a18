package interp

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Machine is a single-threaded stack-based executor of emitted IR. One
// machine drives all compile-time evaluation for a compilation; its
// read-only region and foreign-symbol cache persist across evaluations.
type Machine struct {
	sys  *types.System
	prog *ir.Program

	// stack holds stack-allocated objects; append-only during a frame.
	stack []byte
	// heap backs foreign allocations. Offset 0 is reserved so that the
	// packed null address never aliases a live object.
	heap []byte
	// rodata holds string literals and other module-level constants;
	// immutable after first write.
	rodata []byte

	stringCache map[string]ir.Address
	dataSymbols map[string]ir.Address

	foreign *ForeignMap

	// Stdout and Stdin back the putchar/getchar foreign symbols.
	Stdout io.Writer
	Stdin  io.Reader

	// budget bounds instructions per Run; zero means unbounded.
	budget uint64
}

// NewMachine creates a machine executing functions of prog against the
// type system sys.
func NewMachine(sys *types.System, prog *ir.Program) *Machine {
	m := &Machine{
		sys:         sys,
		prog:        prog,
		heap:        make([]byte, 8),
		stringCache: make(map[string]ir.Address),
		dataSymbols: make(map[string]ir.Address),
		Stdout:      os.Stdout,
		Stdin:       os.Stdin,
	}
	m.foreign = newForeignMap(m)
	return m
}

// System returns the machine's type system.
func (m *Machine) System() *types.System { return m.sys }

// Program returns the machine's function table.
func (m *Machine) Program() *ir.Program { return m.prog }

// Foreign returns the foreign-function map.
func (m *Machine) Foreign() *ForeignMap { return m.foreign }

// SetInstructionBudget bounds the number of instructions a single Run may
// execute. Zero restores the default of unbounded execution.
func (m *Machine) SetInstructionBudget(n uint64) { m.budget = n }

// InternString places s in the read-only region, NUL-terminated, and
// returns its address. Identical strings share storage.
func (m *Machine) InternString(s string) ir.Address {
	if addr, ok := m.stringCache[s]; ok {
		return addr
	}
	addr := ir.Address{Region: ir.RegionReadOnly, Offset: uint64(len(m.rodata))}
	m.rodata = append(m.rodata, s...)
	m.rodata = append(m.rodata, 0)
	m.stringCache[s] = addr
	return addr
}

// RegisterDataSymbol places bytes in the read-only region under a foreign
// symbol name. Registering a name twice keeps the first entry.
func (m *Machine) RegisterDataSymbol(name string, data []byte) ir.Address {
	if addr, ok := m.dataSymbols[name]; ok {
		return addr
	}
	addr := ir.Address{Region: ir.RegionReadOnly, Offset: uint64(len(m.rodata))}
	m.rodata = append(m.rodata, data...)
	m.dataSymbols[name] = addr
	return addr
}

// allocateHeap reserves n bytes in the heap region.
func (m *Machine) allocateHeap(n uint64) ir.Address {
	addr := ir.Address{Region: ir.RegionHeap, Offset: uint64(len(m.heap))}
	m.heap = append(m.heap, make([]byte, n)...)
	return addr
}

// memory resolves an address to the backing byte window of length n.
func (m *Machine) memory(addr ir.Address, n uint64) ([]byte, *EvalError) {
	var region []byte
	switch addr.Region {
	case ir.RegionStack:
		region = m.stack
	case ir.RegionHeap:
		if addr.Offset == 0 {
			return nil, abort(NullLoad, "dereferencing the null pointer")
		}
		region = m.heap
	case ir.RegionReadOnly:
		region = m.rodata
	default:
		return nil, abort(OutOfBoundsLoad, "address in invalid region")
	}
	if addr.Offset+n > uint64(len(region)) {
		return nil, abort(OutOfBoundsLoad, "%s+%d exceeds %s region of %d bytes",
			addr.Region, n, addr.Region, len(region))
	}
	return region[addr.Offset : addr.Offset+n], nil
}

// loadBytes reads a value of width n at addr into raw slot bits.
func (m *Machine) loadBytes(addr ir.Address, n uint64) (uint64, *EvalError) {
	window, err := m.memory(addr, n)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[:], window)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// storeBytes writes the low n bytes of bits at addr.
func (m *Machine) storeBytes(addr ir.Address, bits uint64, n uint64) *EvalError {
	if addr.Region == ir.RegionReadOnly {
		return abort(OutOfBoundsLoad, "store into read-only region")
	}
	window, err := m.memory(addr, n)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	copy(window, buf[:n])
	return nil
}

// cString reads a NUL-terminated string starting at addr.
func (m *Machine) cString(addr ir.Address) (string, *EvalError) {
	var region []byte
	switch addr.Region {
	case ir.RegionStack:
		region = m.stack
	case ir.RegionHeap:
		if addr.Offset == 0 {
			return "", abort(NullLoad, "dereferencing the null pointer")
		}
		region = m.heap
	case ir.RegionReadOnly:
		region = m.rodata
	}
	for i := addr.Offset; i < uint64(len(region)); i++ {
		if region[i] == 0 {
			return string(region[addr.Offset:i]), nil
		}
	}
	return "", abort(OutOfBoundsLoad, "unterminated string at %s+%d", addr.Region, addr.Offset)
}

// frame is one entry of the call stack.
type frame struct {
	fn        *ir.Fn
	regs      []uint64
	block     *ir.Block
	prev      *ir.Block
	pc        int
	stackBase uint64

	// Where to copy this frame's outputs when it returns; nil for the
	// bottom frame.
	caller   *frame
	outRegs  []ir.Register
}

func (f *frame) slots(r ir.Register) []uint64 {
	off := f.fn.RegisterOffset(r)
	return f.regs[off : off+uint32(f.fn.RegisterSlots(r))]
}

func (f *frame) get(r ir.Register) uint64 { return f.regs[f.fn.RegisterOffset(r)] }

func (f *frame) set(r ir.Register, v uint64) { f.regs[f.fn.RegisterOffset(r)] = v }

// resolve returns the slot bits of a register-or-immediate operand.
func (f *frame) resolve(o ir.Operand) uint64 {
	if o.IsRegister() {
		return f.get(o.Register())
	}
	return o.Immediate()
}

// resolveWide returns all slots of an operand; immediates are one slot.
func (f *frame) resolveWide(o ir.Operand) []uint64 {
	if o.IsRegister() {
		return f.slots(o.Register())
	}
	return []uint64{o.Immediate()}
}

func (m *Machine) newFrame(fn *ir.Fn, caller *frame, outRegs []ir.Register) *frame {
	fn.Finalize(m.sys)
	fr := &frame{
		fn:        fn,
		regs:      make([]uint64, fn.FrameSlots()),
		block:     fn.Entry(),
		stackBase: uint64(len(m.stack)),
		caller:    caller,
		outRegs:   outRegs,
	}
	m.stack = append(m.stack, make([]byte, fn.AllocaBytes())...)
	return fr
}

// Run executes fn with the given argument slots and returns its output
// slots. The interpreter never blocks and has no implicit timeout.
func (m *Machine) Run(fn *ir.Fn, args []uint64) ([]uint64, error) {
	if err := m.runWorkItem(fn); err != nil {
		return nil, err
	}

	bottom := m.newFrame(fn, nil, nil)
	narg := 0
	for i := 0; i < fn.NumParamSlots(); i++ {
		slots := bottom.slots(fn.Param(i))
		for j := range slots {
			if narg >= len(args) {
				return nil, abort(MalformedFunction, "expected %d argument slots, got %d", narg+1, len(args))
			}
			slots[j] = args[narg]
			narg++
		}
	}
	if narg != len(args) {
		return nil, abort(MalformedFunction, "expected %d argument slots, got %d", narg, len(args))
	}

	if err := m.exec(bottom); err != nil {
		return nil, err
	}

	var outs []uint64
	for i := 0; i < fn.NumReturnSlots(); i++ {
		outs = append(outs, bottom.slots(fn.Out(i))...)
	}
	return outs, nil
}

func (m *Machine) runWorkItem(fn *ir.Fn) *EvalError {
	if !fn.HasWorkItem() {
		return nil
	}
	work := fn.TakeWorkItem()
	if err := work(); err != nil {
		return abort(WorkItemUnresolved, "%v", err)
	}
	return nil
}
