package module

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// magic identifies a compiled module file.
var magic = []byte("icmod\x01")

// Write serializes a module: its build id and name, the type system, the
// exported symbols, and every compiled function of the program.
func Write(w io.Writer, sys *types.System, prog *ir.Program, mod *Module) error {
	if mod.BuildID == "" {
		mod.BuildID = uuid.NewString()
	}

	var buf []byte
	buf = protowire.AppendTag(buf, fieldBuildID, protowire.BytesType)
	buf = protowire.AppendString(buf, mod.BuildID)
	buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, mod.Name)

	for _, rec := range sys.Export() {
		buf = protowire.AppendTag(buf, fieldType, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalTypeRecord(rec))
	}

	for _, sym := range mod.Symbols {
		buf = protowire.AppendTag(buf, fieldSymbol, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalSymbol(sym))
	}

	for _, fn := range prog.Functions() {
		encoded, err := marshalFunction(fn)
		if err != nil {
			return err
		}
		buf = protowire.AppendTag(buf, fieldFunction, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encoded)
	}

	if _, err := w.Write(magic); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

func marshalTypeRecord(r types.Record) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, typeFieldRepr, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, r.Repr)
	buf = protowire.AppendTag(buf, typeFieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Kind))
	if r.Elem != 0 {
		buf = protowire.AppendTag(buf, typeFieldElem, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, r.Elem)
	}
	if r.Length != 0 {
		buf = protowire.AppendTag(buf, typeFieldLength, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.Length)
	}
	for _, name := range r.Names {
		buf = protowire.AppendTag(buf, typeFieldName, protowire.BytesType)
		buf = protowire.AppendString(buf, name)
	}
	for _, v := range r.Values {
		buf = protowire.AppendTag(buf, typeFieldValue, protowire.VarintType)
		buf = protowire.AppendVarint(buf, v)
	}
	for _, t := range r.Types {
		buf = protowire.AppendTag(buf, typeFieldReturn, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, t)
	}
	if r.Module != "" {
		buf = protowire.AppendTag(buf, typeFieldModule, protowire.BytesType)
		buf = protowire.AppendString(buf, r.Module)
	}
	if r.Name != "" {
		buf = protowire.AppendTag(buf, typeFieldDisplay, protowire.BytesType)
		buf = protowire.AppendString(buf, r.Name)
	}
	buf = protowire.AppendTag(buf, typeFieldEval, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Eval))
	if r.Params != 0 {
		buf = protowire.AppendTag(buf, typeFieldBody, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.Params)
	}
	// Size, alignment, and generic body share a small frame appended at
	// the end; absent fields decode as zero.
	buf = appendSizeFrame(buf, r)
	return buf
}

const (
	typeFieldSize  = 12
	typeFieldAlign = 13
	typeFieldGBody = 14
)

func appendSizeFrame(buf []byte, r types.Record) []byte {
	if r.Size != 0 {
		buf = protowire.AppendTag(buf, typeFieldSize, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.Size)
	}
	if r.Align != 0 {
		buf = protowire.AppendTag(buf, typeFieldAlign, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.Align)
	}
	if r.Body != 0 {
		buf = protowire.AppendTag(buf, typeFieldGBody, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(r.Body))
	}
	return buf
}

func marshalSymbol(sym Symbol) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, symFieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, sym.Name)
	buf = protowire.AppendTag(buf, symFieldType, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, sym.Type.Representation())
	for _, slot := range sym.Value {
		buf = protowire.AppendTag(buf, symFieldValue, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, slot)
	}
	if sym.IsFn {
		buf = protowire.AppendTag(buf, symFieldFnID, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(sym.FnID))
		buf = protowire.AppendTag(buf, symFieldIsFn, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

func marshalFunction(fn *ir.Fn) ([]byte, error) {
	if fn.HasWorkItem() {
		return nil, fmt.Errorf("module: function with an unresolved work item cannot be written")
	}
	var buf []byte
	if fn.Type().Valid() {
		buf = protowire.AppendTag(buf, fnFieldType, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, fn.Type().Representation())
	}
	buf = protowire.AppendTag(buf, fnFieldNumParams, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(fn.NumParamSlots()))
	buf = protowire.AppendTag(buf, fnFieldNumRegs, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(fn.NumRegisters()))
	for i := 0; i < fn.NumReturnSlots(); i++ {
		buf = protowire.AppendTag(buf, fnFieldOut, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(fn.Out(i)))
	}
	for r := ir.Register(0); int(r) < fn.NumRegisters(); r++ {
		if width := fn.RegisterSlots(r); width > 1 {
			buf = protowire.AppendTag(buf, fnFieldWideReg, protowire.BytesType)
			var inner []byte
			inner = protowire.AppendVarint(inner, uint64(r))
			inner = protowire.AppendVarint(inner, uint64(width))
			buf = protowire.AppendBytes(buf, inner)
		}
	}
	allocas := fn.Allocations()
	allocaRegs := make([]ir.Register, 0, len(allocas))
	for r := range allocas {
		allocaRegs = append(allocaRegs, r)
	}
	sort.Slice(allocaRegs, func(i, j int) bool { return allocaRegs[i] < allocaRegs[j] })
	for _, r := range allocaRegs {
		buf = protowire.AppendTag(buf, fnFieldAlloca, protowire.BytesType)
		var inner []byte
		inner = protowire.AppendVarint(inner, uint64(r))
		inner = protowire.AppendFixed64(inner, allocas[r].Representation())
		buf = protowire.AppendBytes(buf, inner)
	}
	for _, block := range fn.Blocks() {
		encoded, err := marshalBlock(block)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, fnFieldBlock, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encoded)
	}
	return buf, nil
}

func marshalBlock(block *ir.Block) ([]byte, error) {
	var buf []byte
	for _, instr := range block.Instrs() {
		rec, err := encodeInstr(instr)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, blockFieldInstr, protowire.BytesType)
		buf = protowire.AppendBytes(buf, rec.marshal(nil))
	}

	switch term := block.Terminator().(type) {
	case *ir.Return:
		buf = appendTerm(buf, termReturn, nil, ir.Operand{})
	case *ir.Uncond:
		buf = appendTerm(buf, termUncond, []int{term.Target.ID()}, ir.Operand{})
	case *ir.Cond:
		buf = appendTerm(buf, termCond, []int{term.True.ID(), term.False.ID()}, term.Cond)
	case *ir.Choose:
		targets := make([]int, len(term.Targets))
		for i, t := range term.Targets {
			targets[i] = t.ID()
		}
		buf = appendTerm(buf, termChoose, targets, ir.Operand{})
	case nil:
		return nil, fmt.Errorf("module: block %d has no terminator", block.ID())
	}
	return buf, nil
}

func appendTerm(buf []byte, op int, targets []int, cond ir.Operand) []byte {
	buf = protowire.AppendTag(buf, blockFieldTermOp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op))
	for _, t := range targets {
		buf = protowire.AppendTag(buf, blockFieldTermTarget, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(t))
	}
	if op == termCond {
		buf = protowire.AppendTag(buf, blockFieldTermCond, protowire.BytesType)
		var inner []byte
		if cond.IsRegister() {
			inner = protowire.AppendVarint(inner, 1)
			inner = protowire.AppendVarint(inner, uint64(cond.Register()))
		} else {
			inner = protowire.AppendVarint(inner, 0)
			inner = protowire.AppendFixed64(inner, cond.Immediate())
		}
		buf = protowire.AppendBytes(buf, inner)
	}
	return buf
}
