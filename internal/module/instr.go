package module

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Instruction opcodes. Stability across compiler versions is not promised;
// a module file is only read by the compiler that wrote it.
const (
	opAdd = iota + 1
	opSub
	opMul
	opDiv
	opMod
	opNeg
	opEq
	opNe
	opLt
	opLe
	opAnd
	opOr
	opXor
	opNot
	opCast
	opAsciiEncode
	opAsciiDecode
	opStackAllocate
	opLoad
	opStore
	opPtrIncr
	opStructIndex
	opCall
	opForeignCall
	opLoadDataSymbol
	opPhi
	opPtrOf
	opBufPtrOf
	opSliceOf
	opArrayOf
	opEnumCreate
	opFlagsCreate
	opStructCreate
	opOpaqueCreate
	opPushType
	opPushFunction
	opPushValue
	opRotate
	opConstructFunctionType
	opConstructParametersType
	opTypeKind
	opConstructOpaqueType
	opInit
	opDestroy
	opCopyAssign
	opMoveAssign
	opCopyInit
	opMoveInit
	opPack
	opExtract
	opDebugIr
)

// record is the generic wire shape of one instruction: an opcode plus
// homogeneous operand/destination/type/integer/string lists whose meaning
// depends on the opcode.
type record struct {
	op       uint64
	operands []ir.Operand
	dests    []ir.Register
	types    []types.Type
	ints     []uint64
	strs     []string
}

// Field numbers of an instruction record.
const (
	instrFieldOp      = 1
	instrFieldOperand = 2 // repeated: group of (isReg, payload)
	instrFieldDest    = 3 // repeated
	instrFieldType    = 4 // repeated fixed64 representations
	instrFieldInt     = 5 // repeated
	instrFieldStr     = 6 // repeated
)

func (r *record) marshal(buf []byte) []byte {
	buf = protowire.AppendTag(buf, instrFieldOp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, r.op)
	for _, o := range r.operands {
		buf = protowire.AppendTag(buf, instrFieldOperand, protowire.BytesType)
		var inner []byte
		if o.IsRegister() {
			inner = protowire.AppendVarint(inner, 1)
			inner = protowire.AppendVarint(inner, uint64(o.Register()))
		} else {
			inner = protowire.AppendVarint(inner, 0)
			inner = protowire.AppendFixed64(inner, o.Immediate())
		}
		buf = protowire.AppendBytes(buf, inner)
	}
	for _, d := range r.dests {
		buf = protowire.AppendTag(buf, instrFieldDest, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(d))
	}
	for _, t := range r.types {
		buf = protowire.AppendTag(buf, instrFieldType, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, t.Representation())
	}
	for _, v := range r.ints {
		buf = protowire.AppendTag(buf, instrFieldInt, protowire.VarintType)
		buf = protowire.AppendVarint(buf, v)
	}
	for _, s := range r.strs {
		buf = protowire.AppendTag(buf, instrFieldStr, protowire.BytesType)
		buf = protowire.AppendString(buf, s)
	}
	return buf
}

func unmarshalRecord(data []byte) (*record, error) {
	r := &record{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case instrFieldOp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.op = v
			data = data[n:]
		case instrFieldOperand:
			inner, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			isReg, m := protowire.ConsumeVarint(inner)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			inner = inner[m:]
			if isReg == 1 {
				reg, m := protowire.ConsumeVarint(inner)
				if m < 0 {
					return nil, protowire.ParseError(m)
				}
				r.operands = append(r.operands, ir.Reg(ir.Register(reg)))
			} else {
				imm, m := protowire.ConsumeFixed64(inner)
				if m < 0 {
					return nil, protowire.ParseError(m)
				}
				r.operands = append(r.operands, ir.Imm(imm))
			}
		case instrFieldDest:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.dests = append(r.dests, ir.Register(v))
			data = data[n:]
		case instrFieldType:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.types = append(r.types, types.FromRepresentation(v))
			data = data[n:]
		case instrFieldInt:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.ints = append(r.ints, v)
			data = data[n:]
		case instrFieldStr:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.strs = append(r.strs, v)
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return r, nil
}

// encodeInstr lowers an instruction to its record.
func encodeInstr(instr ir.Instr) (*record, error) {
	bin := func(op uint64, t types.Type, lhs, rhs ir.Operand, out ir.Register) *record {
		return &record{op: op, types: []types.Type{t}, operands: []ir.Operand{lhs, rhs}, dests: []ir.Register{out}}
	}
	switch i := instr.(type) {
	case *ir.Add:
		return bin(opAdd, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Sub:
		return bin(opSub, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Mul:
		return bin(opMul, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Div:
		return bin(opDiv, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Mod:
		return bin(opMod, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Neg:
		return &record{op: opNeg, types: []types.Type{i.Type}, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.Eq:
		return bin(opEq, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Ne:
		return bin(opNe, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Lt:
		return bin(opLt, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.Le:
		return bin(opLe, i.Type, i.Lhs, i.Rhs, i.Out), nil
	case *ir.And:
		return &record{op: opAnd, operands: []ir.Operand{i.Lhs, i.Rhs}, dests: []ir.Register{i.Out}}, nil
	case *ir.Or:
		return &record{op: opOr, operands: []ir.Operand{i.Lhs, i.Rhs}, dests: []ir.Register{i.Out}}, nil
	case *ir.Xor:
		return &record{op: opXor, operands: []ir.Operand{i.Lhs, i.Rhs}, dests: []ir.Register{i.Out}}, nil
	case *ir.Not:
		return &record{op: opNot, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.Cast:
		return &record{op: opCast, types: []types.Type{i.From, i.To}, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.AsciiEncode:
		return &record{op: opAsciiEncode, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.AsciiDecode:
		return &record{op: opAsciiDecode, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.StackAllocate:
		return &record{op: opStackAllocate, types: []types.Type{i.Type}, dests: []ir.Register{i.Out}}, nil
	case *ir.Load:
		return &record{op: opLoad, types: []types.Type{i.Type}, operands: []ir.Operand{i.Addr}, dests: []ir.Register{i.Out}}, nil
	case *ir.Store:
		return &record{op: opStore, types: []types.Type{i.Type}, operands: []ir.Operand{i.Value, i.Addr}}, nil
	case *ir.PtrIncr:
		return &record{op: opPtrIncr, types: []types.Type{i.Pointee}, operands: []ir.Operand{i.Base, i.Index}, dests: []ir.Register{i.Out}}, nil
	case *ir.StructIndex:
		return &record{op: opStructIndex, types: []types.Type{i.Struct}, operands: []ir.Operand{i.Base}, ints: []uint64{uint64(i.Field)}, dests: []ir.Register{i.Out}}, nil
	case *ir.Call:
		return &record{op: opCall, operands: append([]ir.Operand{i.Callee}, i.Args...), dests: i.Outs}, nil
	case *ir.ForeignCall:
		return &record{op: opForeignCall, strs: []string{i.Name}, types: []types.Type{i.Type}, operands: i.Args, dests: i.Outs}, nil
	case *ir.LoadDataSymbol:
		return &record{op: opLoadDataSymbol, strs: []string{i.Name}, dests: []ir.Register{i.Out}}, nil
	case *ir.Phi:
		r := &record{op: opPhi, types: []types.Type{i.Type}, dests: []ir.Register{i.Out}}
		for _, pair := range i.Pairs {
			r.ints = append(r.ints, uint64(pair.Pred.ID()))
			r.operands = append(r.operands, pair.Value)
		}
		return r, nil
	case *ir.PtrOf:
		return &record{op: opPtrOf, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.BufPtrOf:
		return &record{op: opBufPtrOf, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.SliceOf:
		return &record{op: opSliceOf, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.ArrayOf:
		return &record{op: opArrayOf, operands: []ir.Operand{i.Length, i.Elem}, dests: []ir.Register{i.Out}}, nil
	case *ir.EnumCreate:
		r := &record{op: opEnumCreate, strs: []string{i.Module, i.Name}, dests: []ir.Register{i.Out}}
		for _, m := range i.Members {
			r.strs = append(r.strs, m.Name)
			if m.HasValue {
				r.ints = append(r.ints, 1)
				r.operands = append(r.operands, m.Value)
			} else {
				r.ints = append(r.ints, 0)
				r.operands = append(r.operands, ir.Imm(0))
			}
		}
		return r, nil
	case *ir.FlagsCreate:
		r := &record{op: opFlagsCreate, strs: []string{i.Module, i.Name}, dests: []ir.Register{i.Out}}
		for _, m := range i.Members {
			r.strs = append(r.strs, m.Name)
		}
		return r, nil
	case *ir.StructCreate:
		r := &record{op: opStructCreate, strs: []string{i.Module, i.Name}, dests: []ir.Register{i.Out}}
		for _, f := range i.Fields {
			r.strs = append(r.strs, f.Name)
			r.operands = append(r.operands, f.Type)
		}
		return r, nil
	case *ir.OpaqueCreate:
		return &record{op: opOpaqueCreate, strs: []string{i.Module}, dests: []ir.Register{i.Out}}, nil
	case *ir.PushType:
		return &record{op: opPushType, types: []types.Type{i.Type}, dests: []ir.Register{i.Out}}, nil
	case *ir.PushFunction:
		return &record{op: opPushFunction, ints: []uint64{uint64(i.Fn)}, dests: []ir.Register{i.Out}}, nil
	case *ir.PushValue:
		return &record{op: opPushValue, operands: []ir.Operand{i.Value}, dests: []ir.Register{i.Out}}, nil
	case *ir.Rotate:
		return &record{op: opRotate, dests: i.Regs}, nil
	case *ir.ConstructFunctionType:
		return &record{op: opConstructFunctionType, operands: []ir.Operand{i.Params, i.Return}, dests: []ir.Register{i.Out}}, nil
	case *ir.ConstructParametersType:
		return &record{op: opConstructParametersType, operands: i.Types, dests: []ir.Register{i.Out}}, nil
	case *ir.TypeKind:
		return &record{op: opTypeKind, operands: []ir.Operand{i.Operand}, dests: []ir.Register{i.Out}}, nil
	case *ir.ConstructOpaqueType:
		return &record{op: opConstructOpaqueType, strs: []string{i.Module}, dests: []ir.Register{i.Out}}, nil
	case *ir.Init:
		return &record{op: opInit, types: []types.Type{i.Type}, operands: []ir.Operand{i.Addr}}, nil
	case *ir.Destroy:
		return &record{op: opDestroy, types: []types.Type{i.Type}, operands: []ir.Operand{i.Addr}}, nil
	case *ir.CopyAssign:
		return &record{op: opCopyAssign, types: []types.Type{i.Type}, operands: []ir.Operand{i.Dst, i.Src}}, nil
	case *ir.MoveAssign:
		return &record{op: opMoveAssign, types: []types.Type{i.Type}, operands: []ir.Operand{i.Dst, i.Src}}, nil
	case *ir.CopyInit:
		return &record{op: opCopyInit, types: []types.Type{i.Type}, operands: []ir.Operand{i.Dst, i.Src}}, nil
	case *ir.MoveInit:
		return &record{op: opMoveInit, types: []types.Type{i.Type}, operands: []ir.Operand{i.Dst, i.Src}}, nil
	case *ir.Pack:
		return &record{op: opPack, operands: i.Slots, dests: []ir.Register{i.Out}}, nil
	case *ir.Extract:
		return &record{op: opExtract, operands: []ir.Operand{i.Source}, ints: []uint64{uint64(i.Index)}, dests: []ir.Register{i.Out}}, nil
	case *ir.DebugIr:
		return &record{op: opDebugIr}, nil
	default:
		return nil, fmt.Errorf("module: unencodable instruction %T", instr)
	}
}

// decodeInstr raises a record back to an instruction. Block references in
// phis resolve against the function's block list; type handles are
// rewritten through remap.
func decodeInstr(r *record, blocks []*ir.Block, remap func(types.Type) types.Type) (ir.Instr, error) {
	t := func(i int) types.Type {
		if i < len(r.types) {
			return remap(r.types[i])
		}
		return types.Type{}
	}
	operand := func(i int) ir.Operand {
		if i < len(r.operands) {
			return r.operands[i]
		}
		return ir.Operand{}
	}
	dest := func(i int) ir.Register {
		if i < len(r.dests) {
			return r.dests[i]
		}
		return 0
	}

	switch r.op {
	case opAdd:
		return &ir.Add{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opSub:
		return &ir.Sub{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opMul:
		return &ir.Mul{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opDiv:
		return &ir.Div{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opMod:
		return &ir.Mod{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opNeg:
		return &ir.Neg{Type: t(0), Operand: operand(0), Out: dest(0)}, nil
	case opEq:
		return &ir.Eq{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opNe:
		return &ir.Ne{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opLt:
		return &ir.Lt{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opLe:
		return &ir.Le{Type: t(0), Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opAnd:
		return &ir.And{Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opOr:
		return &ir.Or{Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opXor:
		return &ir.Xor{Lhs: operand(0), Rhs: operand(1), Out: dest(0)}, nil
	case opNot:
		return &ir.Not{Operand: operand(0), Out: dest(0)}, nil
	case opCast:
		return &ir.Cast{From: t(0), To: t(1), Operand: operand(0), Out: dest(0)}, nil
	case opAsciiEncode:
		return &ir.AsciiEncode{Operand: operand(0), Out: dest(0)}, nil
	case opAsciiDecode:
		return &ir.AsciiDecode{Operand: operand(0), Out: dest(0)}, nil
	case opStackAllocate:
		return &ir.StackAllocate{Type: t(0), Out: dest(0)}, nil
	case opLoad:
		return &ir.Load{Type: t(0), Addr: operand(0), Out: dest(0)}, nil
	case opStore:
		return &ir.Store{Type: t(0), Value: operand(0), Addr: operand(1)}, nil
	case opPtrIncr:
		return &ir.PtrIncr{Pointee: t(0), Base: operand(0), Index: operand(1), Out: dest(0)}, nil
	case opStructIndex:
		return &ir.StructIndex{Struct: t(0), Base: operand(0), Field: int(r.ints[0]), Out: dest(0)}, nil
	case opCall:
		return &ir.Call{Callee: operand(0), Args: r.operands[1:], Outs: r.dests}, nil
	case opForeignCall:
		return &ir.ForeignCall{Name: r.strs[0], Type: t(0), Args: r.operands, Outs: r.dests}, nil
	case opLoadDataSymbol:
		return &ir.LoadDataSymbol{Name: r.strs[0], Out: dest(0)}, nil
	case opPhi:
		phi := &ir.Phi{Type: t(0), Out: dest(0)}
		for i, pred := range r.ints {
			if int(pred) >= len(blocks) {
				return nil, fmt.Errorf("module: phi references block %d of %d", pred, len(blocks))
			}
			phi.Pairs = append(phi.Pairs, ir.PhiPair{Pred: blocks[pred], Value: operand(i)})
		}
		return phi, nil
	case opPtrOf:
		return &ir.PtrOf{Operand: operand(0), Out: dest(0)}, nil
	case opBufPtrOf:
		return &ir.BufPtrOf{Operand: operand(0), Out: dest(0)}, nil
	case opSliceOf:
		return &ir.SliceOf{Operand: operand(0), Out: dest(0)}, nil
	case opArrayOf:
		return &ir.ArrayOf{Length: operand(0), Elem: operand(1), Out: dest(0)}, nil
	case opEnumCreate:
		instr := &ir.EnumCreate{Module: r.strs[0], Name: r.strs[1], Out: dest(0)}
		for i, name := range r.strs[2:] {
			spec := ir.EnumMemberSpec{Name: name}
			if i < len(r.ints) && r.ints[i] == 1 {
				spec.HasValue, spec.Value = true, operand(i)
			}
			instr.Members = append(instr.Members, spec)
		}
		return instr, nil
	case opFlagsCreate:
		instr := &ir.FlagsCreate{Module: r.strs[0], Name: r.strs[1], Out: dest(0)}
		for _, name := range r.strs[2:] {
			instr.Members = append(instr.Members, ir.EnumMemberSpec{Name: name})
		}
		return instr, nil
	case opStructCreate:
		instr := &ir.StructCreate{Module: r.strs[0], Name: r.strs[1], Out: dest(0)}
		for i, name := range r.strs[2:] {
			instr.Fields = append(instr.Fields, ir.StructFieldSpec{Name: name, Type: operand(i)})
		}
		return instr, nil
	case opOpaqueCreate:
		return &ir.OpaqueCreate{Module: r.strs[0], Out: dest(0)}, nil
	case opPushType:
		return &ir.PushType{Type: t(0), Out: dest(0)}, nil
	case opPushFunction:
		return &ir.PushFunction{Fn: uint32(r.ints[0]), Out: dest(0)}, nil
	case opPushValue:
		return &ir.PushValue{Value: operand(0), Out: dest(0)}, nil
	case opRotate:
		return &ir.Rotate{Regs: r.dests}, nil
	case opConstructFunctionType:
		return &ir.ConstructFunctionType{Params: operand(0), Return: operand(1), Out: dest(0)}, nil
	case opConstructParametersType:
		return &ir.ConstructParametersType{Types: r.operands, Out: dest(0)}, nil
	case opTypeKind:
		return &ir.TypeKind{Operand: operand(0), Out: dest(0)}, nil
	case opConstructOpaqueType:
		return &ir.ConstructOpaqueType{Module: r.strs[0], Out: dest(0)}, nil
	case opInit:
		return &ir.Init{Type: t(0), Addr: operand(0)}, nil
	case opDestroy:
		return &ir.Destroy{Type: t(0), Addr: operand(0)}, nil
	case opCopyAssign:
		return &ir.CopyAssign{Type: t(0), Dst: operand(0), Src: operand(1)}, nil
	case opMoveAssign:
		return &ir.MoveAssign{Type: t(0), Dst: operand(0), Src: operand(1)}, nil
	case opCopyInit:
		return &ir.CopyInit{Type: t(0), Dst: operand(0), Src: operand(1)}, nil
	case opMoveInit:
		return &ir.MoveInit{Type: t(0), Dst: operand(0), Src: operand(1)}, nil
	case opPack:
		return &ir.Pack{Slots: r.operands, Out: dest(0)}, nil
	case opExtract:
		return &ir.Extract{Source: operand(0), Index: int(r.ints[0]), Out: dest(0)}, nil
	case opDebugIr:
		return &ir.DebugIr{}, nil
	default:
		return nil, fmt.Errorf("module: unknown opcode %d", r.op)
	}
}
