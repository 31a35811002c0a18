package interp

import (
	"fmt"
	"os"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// exec drives the frame stack rooted at bottom until bottom returns.
// Within a frame, instructions execute in block order; control flow between
// blocks is determined solely by terminators.
func (m *Machine) exec(bottom *frame) error {
	cur := bottom
	var executed uint64

	for {
		if cur.pc < len(cur.block.Instrs()) {
			instr := cur.block.Instrs()[cur.pc]
			cur.pc++
			executed++
			if m.budget != 0 && executed > m.budget {
				return abort(InstructionBudgetExhausted, "budget of %d instructions", m.budget)
			}
			next, err := m.step(cur, instr)
			if err != nil {
				return err
			}
			if next != nil {
				cur = next
			}
			continue
		}

		switch term := cur.block.Terminator().(type) {
		case *ir.Return:
			m.stack = m.stack[:cur.stackBase]
			caller := cur.caller
			if caller == nil {
				return nil
			}
			for i, out := range cur.outRegs {
				copy(caller.slots(out), cur.slots(cur.fn.Out(i)))
			}
			cur = caller
		case *ir.Uncond:
			cur.prev, cur.block, cur.pc = cur.block, term.Target, 0
		case *ir.Cond:
			target := term.False
			if cur.resolve(term.Cond) != 0 {
				target = term.True
			}
			cur.prev, cur.block, cur.pc = cur.block, target, 0
		case *ir.Choose:
			return abort(NotYetImplemented, "choose terminator reached execution")
		default:
			return abort(MalformedFunction, "block %d has no terminator", cur.block.ID())
		}
	}
}

// step executes one instruction in fr. A non-nil frame return value switches
// execution into a callee frame.
func (m *Machine) step(fr *frame, instr ir.Instr) (*frame, *EvalError) {
	switch i := instr.(type) {
	case *ir.Add, *ir.Sub, *ir.Mul, *ir.Div, *ir.Mod:
		return nil, m.arith(fr, instr)
	case *ir.Neg:
		return nil, m.neg(fr, i)
	case *ir.Eq, *ir.Ne, *ir.Lt, *ir.Le:
		return nil, m.compare(fr, instr)

	case *ir.And:
		fr.set(i.Out, fr.resolve(i.Lhs)&fr.resolve(i.Rhs)&1)
	case *ir.Or:
		fr.set(i.Out, (fr.resolve(i.Lhs)|fr.resolve(i.Rhs))&1)
	case *ir.Xor:
		fr.set(i.Out, (fr.resolve(i.Lhs)^fr.resolve(i.Rhs))&1)
	case *ir.Not:
		fr.set(i.Out, fr.resolve(i.Operand)&1^1)

	case *ir.Cast:
		v, err := m.convert(fr.resolve(i.Operand), i.From, i.To)
		if err != nil {
			return nil, err
		}
		fr.set(i.Out, v)
	case *ir.AsciiEncode:
		fr.set(i.Out, fr.resolve(i.Operand)&0xff)
	case *ir.AsciiDecode:
		fr.set(i.Out, fr.resolve(i.Operand)&0xff)

	case *ir.StackAllocate:
		fr.set(i.Out, ir.Address{
			Region: ir.RegionStack,
			Offset: fr.stackBase + fr.fn.AllocaOffset(i.Out),
		}.Pack())
	case *ir.Load:
		if err := m.checkComplete(i.Type); err != nil {
			return nil, err
		}
		addr := ir.UnpackAddress(fr.resolve(i.Addr))
		return nil, m.loadValue(addr, i.Type, fr.slots(i.Out))
	case *ir.Store:
		if err := m.checkComplete(i.Type); err != nil {
			return nil, err
		}
		addr := ir.UnpackAddress(fr.resolve(i.Addr))
		return nil, m.storeValue(addr, i.Type, fr.resolveWide(i.Value))
	case *ir.PtrIncr:
		base := ir.UnpackAddress(fr.resolve(i.Base))
		index := int64(fr.resolve(i.Index))
		stride := int64(m.strideOf(i.Pointee))
		base.Offset = uint64(int64(base.Offset) + index*stride)
		fr.set(i.Out, base.Pack())
	case *ir.StructIndex:
		st := m.sys.StructOf(i.Struct)
		if st.Completeness() != types.Complete {
			return nil, abort(IncompleteStructUse, "indexing incomplete struct %s", st.Name())
		}
		addr := ir.UnpackAddress(fr.resolve(i.Base))
		addr.Offset += st.Fields()[i.Field].Offset
		fr.set(i.Out, addr.Pack())

	case *ir.Call:
		fn := m.prog.Function(uint32(fr.resolve(i.Callee)))
		if err := m.runWorkItem(fn); err != nil {
			return nil, err
		}
		callee := m.newFrame(fn, fr, i.Outs)
		if err := m.bindArguments(fr, callee, i.Args); err != nil {
			return nil, err
		}
		return callee, nil
	case *ir.ForeignCall:
		outs, err := m.foreign.call(i.Name, i.Type, resolveAll(fr, i.Args))
		if err != nil {
			return nil, err
		}
		for j, out := range i.Outs {
			fr.set(out, outs[j])
		}
	case *ir.LoadDataSymbol:
		addr, ok := m.dataSymbols[i.Name]
		if !ok {
			return nil, abort(UndefinedForeignSymbol, "data symbol %q", i.Name)
		}
		fr.set(i.Out, addr.Pack())

	case *ir.Phi:
		for _, pair := range i.Pairs {
			if pair.Pred == fr.prev {
				copy(fr.slots(i.Out), fr.resolveWide(pair.Value))
				return nil, nil
			}
		}
		return nil, abort(PhiWithoutPredecessor, "block %d phi has no pair for the arriving edge", fr.block.ID())

	case *ir.PtrOf:
		fr.set(i.Out, m.sys.Ptr(types.FromRepresentation(fr.resolve(i.Operand))).Representation())
	case *ir.BufPtrOf:
		fr.set(i.Out, m.sys.BufPtr(types.FromRepresentation(fr.resolve(i.Operand))).Representation())
	case *ir.SliceOf:
		fr.set(i.Out, m.sys.Slc(types.FromRepresentation(fr.resolve(i.Operand))).Representation())
	case *ir.ArrayOf:
		elem := types.FromRepresentation(fr.resolve(i.Elem))
		fr.set(i.Out, m.sys.Arr(fr.resolve(i.Length), elem).Representation())

	case *ir.EnumCreate:
		t, err := m.createEnum(fr, i)
		if err != nil {
			return nil, err
		}
		fr.set(i.Out, t.Representation())
	case *ir.FlagsCreate:
		t, err := m.createFlags(i)
		if err != nil {
			return nil, err
		}
		fr.set(i.Out, t.Representation())
	case *ir.StructCreate:
		t, err := m.createStruct(fr, i)
		if err != nil {
			return nil, err
		}
		fr.set(i.Out, t.Representation())
	case *ir.OpaqueCreate:
		_, t := m.sys.NewOpaque(i.Module, "")
		fr.set(i.Out, t.Representation())

	case *ir.PushType:
		fr.set(i.Out, i.Type.Representation())
	case *ir.PushFunction:
		fr.set(i.Out, uint64(i.Fn))
	case *ir.PushValue:
		fr.set(i.Out, fr.resolve(i.Value))
	case *ir.Rotate:
		if len(i.Regs) > 1 {
			first := fr.get(i.Regs[0])
			for j := 1; j < len(i.Regs); j++ {
				fr.set(i.Regs[j-1], fr.get(i.Regs[j]))
			}
			fr.set(i.Regs[len(i.Regs)-1], first)
		}
	case *ir.ConstructFunctionType:
		params := types.FromRepresentation(fr.resolve(i.Params))
		if params.Kind() != types.KindParameters {
			params = m.sys.Params([]types.Parameter{{Type: params}})
		}
		ret := types.FromRepresentation(fr.resolve(i.Return))
		fr.set(i.Out, m.sys.Func(params, []types.Type{ret}, types.PreferRuntime).Representation())
	case *ir.ConstructParametersType:
		params := make([]types.Parameter, len(i.Types))
		for j, op := range i.Types {
			params[j].Type = types.FromRepresentation(fr.resolve(op))
		}
		fr.set(i.Out, m.sys.Params(params).Representation())
	case *ir.TypeKind:
		fr.set(i.Out, uint64(types.FromRepresentation(fr.resolve(i.Operand)).Kind()))
	case *ir.ConstructOpaqueType:
		_, t := m.sys.NewOpaque(i.Module, "")
		fr.set(i.Out, t.Representation())

	case *ir.Init:
		return nil, m.initValue(fr.resolve(i.Addr), i.Type)
	case *ir.Destroy:
		return nil, m.destroyValue(fr.resolve(i.Addr), i.Type)
	case *ir.CopyAssign:
		return nil, m.memberwise(i.Type, fr.resolve(i.Dst), fr.resolve(i.Src), types.MemberCopyAssign)
	case *ir.MoveAssign:
		return nil, m.memberwise(i.Type, fr.resolve(i.Dst), fr.resolve(i.Src), types.MemberMoveAssign)
	case *ir.CopyInit:
		return nil, m.memberwise(i.Type, fr.resolve(i.Dst), fr.resolve(i.Src), types.MemberCopyInit)
	case *ir.MoveInit:
		return nil, m.memberwise(i.Type, fr.resolve(i.Dst), fr.resolve(i.Src), types.MemberMoveInit)

	case *ir.Pack:
		slots := fr.slots(i.Out)
		for j, op := range i.Slots {
			slots[j] = fr.resolve(op)
		}
	case *ir.Extract:
		fr.set(i.Out, fr.resolveWide(i.Source)[i.Index])

	case *ir.DebugIr:
		fmt.Fprint(os.Stderr, fr.fn.Pretty(m.sys))

	default:
		return nil, abort(NotYetImplemented, "instruction %T", instr)
	}
	return nil, nil
}

func resolveAll(fr *frame, ops []ir.Operand) []uint64 {
	var out []uint64
	for _, op := range ops {
		out = append(out, fr.resolveWide(op)...)
	}
	return out
}

func (m *Machine) bindArguments(caller, callee *frame, args []ir.Operand) *EvalError {
	flat := resolveAll(caller, args)
	n := 0
	for i := 0; i < callee.fn.NumParamSlots(); i++ {
		slots := callee.slots(callee.fn.Param(i))
		for j := range slots {
			if n >= len(flat) {
				return abort(MalformedFunction, "call passes %d slots, callee expects more", len(flat))
			}
			slots[j] = flat[n]
			n++
		}
	}
	if n != len(flat) {
		return abort(MalformedFunction, "call passes %d slots, callee expects %d", len(flat), n)
	}
	return nil
}

// callFunction runs a nested evaluation of fn, used by special-member
// dispatch. The nested frames live on their own sub-stack of the machine.
func (m *Machine) callFunction(fn *ir.Fn, args []uint64) ([]uint64, *EvalError) {
	outs, err := m.Run(fn, args)
	if err != nil {
		if ee, ok := err.(*EvalError); ok {
			return nil, ee
		}
		return nil, abort(MalformedFunction, "%v", err)
	}
	return outs, nil
}

func (m *Machine) checkComplete(t types.Type) *EvalError {
	if t.Kind() == types.KindStruct {
		st := m.sys.StructOf(t)
		if st.Completeness() != types.Complete {
			return abort(IncompleteStructUse, "use of incomplete struct %s", st.Name())
		}
	}
	return nil
}

// loadValue reads a value of type t at addr into register slots.
func (m *Machine) loadValue(addr ir.Address, t types.Type, slots []uint64) *EvalError {
	bytes := m.sys.Bytes(t)
	for i := range slots {
		chunk := bytes - uint64(i)*8
		if chunk > 8 {
			chunk = 8
		}
		v, err := m.loadBytes(ir.Address{Region: addr.Region, Offset: addr.Offset + uint64(i)*8}, chunk)
		if err != nil {
			return err
		}
		slots[i] = v
	}
	return nil
}

// storeValue writes register slots as a value of type t at addr.
func (m *Machine) storeValue(addr ir.Address, t types.Type, slots []uint64) *EvalError {
	bytes := m.sys.Bytes(t)
	for i := range slots {
		chunk := bytes - uint64(i)*8
		if chunk > 8 {
			chunk = 8
		}
		if err := m.storeBytes(ir.Address{Region: addr.Region, Offset: addr.Offset + uint64(i)*8}, slots[i], chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) strideOf(t types.Type) uint64 {
	size := m.sys.Bytes(t)
	align := m.sys.Alignment(t)
	return (size + align - 1) / align * align
}

func (m *Machine) createEnum(fr *frame, i *ir.EnumCreate) (types.Type, *EvalError) {
	e, t := m.sys.NewEnum(i.Module, i.Name)
	for _, member := range i.Members {
		var err error
		if member.HasValue {
			err = e.AppendValued(member.Name, fr.resolve(member.Value), true)
		} else {
			err = e.Append(member.Name)
		}
		if err != nil {
			return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
		}
	}
	if err := e.CompleteDefinition(); err != nil {
		return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
	}
	return t, nil
}

func (m *Machine) createFlags(i *ir.FlagsCreate) (types.Type, *EvalError) {
	f, t := m.sys.NewFlags(i.Module, i.Name)
	for _, member := range i.Members {
		if err := f.Append(member.Name); err != nil {
			return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
		}
	}
	if err := f.CompleteDefinition(); err != nil {
		return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
	}
	return t, nil
}

func (m *Machine) createStruct(fr *frame, i *ir.StructCreate) (types.Type, *EvalError) {
	st, t := m.sys.NewStruct(i.Module, i.Name)
	for _, field := range i.Fields {
		fieldType := types.FromRepresentation(fr.resolve(field.Type))
		if err := st.AppendField(field.Name, fieldType); err != nil {
			return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
		}
	}
	if err := m.sys.CompleteStruct(st); err != nil {
		return types.Type{}, abort(InvalidNominalDefinition, "%v", err)
	}
	return t, nil
}

// initValue runs the registered init of a struct, or default-initializes by
// zeroing the value's bytes. Registered inits of nested struct fields or
// array elements are not run.
func (m *Machine) initValue(addrBits uint64, t types.Type) *EvalError {
	if t.Kind() == types.KindStruct {
		st := m.sys.StructOf(t)
		if st.Completeness() != types.Complete {
			return abort(IncompleteStructUse, "initializing incomplete struct %s", st.Name())
		}
		if fn := st.SpecialMemberFn(types.MemberInit); fn != types.NoFunction {
			_, err := m.callFunction(m.prog.Function(fn), []uint64{addrBits})
			return err
		}
	}
	addr := ir.UnpackAddress(addrBits)
	window, err := m.memory(addr, m.sys.Bytes(t))
	if err != nil {
		return err
	}
	clear(window)
	return nil
}

func (m *Machine) destroyValue(addrBits uint64, t types.Type) *EvalError {
	if t.Kind() == types.KindStruct {
		st := m.sys.StructOf(t)
		if st.Completeness() != types.Complete {
			return abort(IncompleteStructUse, "destroying incomplete struct %s", st.Name())
		}
		if fn := st.SpecialMemberFn(types.MemberDestroy); fn != types.NoFunction {
			_, err := m.callFunction(m.prog.Function(fn), []uint64{addrBits})
			return err
		}
	}
	return nil
}

// memberwise dispatches an assignment or initialization between two
// addresses: the struct's registered function if any, else a byte copy of
// the whole value. Registered members of nested struct fields or array
// elements are not run.
func (m *Machine) memberwise(t types.Type, dstBits, srcBits uint64, member types.SpecialMember) *EvalError {
	if t.Kind() == types.KindStruct {
		st := m.sys.StructOf(t)
		if st.Completeness() != types.Complete {
			return abort(IncompleteStructUse, "assigning incomplete struct %s", st.Name())
		}
		if fn := st.SpecialMemberFn(member); fn != types.NoFunction {
			_, err := m.callFunction(m.prog.Function(fn), []uint64{dstBits, srcBits})
			return err
		}
	}
	dst := ir.UnpackAddress(dstBits)
	src := ir.UnpackAddress(srcBits)
	n := m.sys.Bytes(t)
	srcWindow, err := m.memory(src, n)
	if err != nil {
		return err
	}
	if dst.Region == ir.RegionReadOnly {
		return abort(OutOfBoundsLoad, "assignment into read-only region")
	}
	dstWindow, err := m.memory(dst, n)
	if err != nil {
		return err
	}
	copy(dstWindow, srcWindow)
	return nil
}
