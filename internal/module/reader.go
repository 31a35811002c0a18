package module

import (
	"bytes"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// Read deserializes a module file into a fresh type system and program.
// Type handles embedded in the compiled code are valid against the
// returned system.
func Read(r io.Reader) (*types.System, *ir.Program, *Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, nil, err
	}
	if !bytes.HasPrefix(data, magic) {
		return nil, nil, nil, fmt.Errorf("module: bad magic")
	}
	data = data[len(magic):]

	sys := types.NewSystem()
	prog := ir.NewProgram()
	mod := &Module{}
	var typeRecords []types.Record

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, nil, nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case fieldBuildID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			mod.BuildID = v
			data = data[n:]
		case fieldName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			mod.Name = v
			data = data[n:]
		case fieldType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			rec, err := unmarshalTypeRecord(v)
			if err != nil {
				return nil, nil, nil, err
			}
			typeRecords = append(typeRecords, rec)
			data = data[n:]
		case fieldSymbol:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			sym, err := unmarshalSymbol(v)
			if err != nil {
				return nil, nil, nil, err
			}
			mod.Symbols = append(mod.Symbols, sym)
			data = data[n:]
		case fieldFunction:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			fn, err := unmarshalFunction(v)
			if err != nil {
				return nil, nil, nil, err
			}
			prog.AddFunction(fn)
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, nil, nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if err := sys.Import(typeRecords); err != nil {
		return nil, nil, nil, err
	}
	return sys, prog, mod, nil
}

func unmarshalTypeRecord(data []byte) (types.Record, error) {
	var r types.Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		data = data[n:]
		var consumed int
		switch num {
		case typeFieldRepr:
			r.Repr, consumed = consumeFixed64(data)
		case typeFieldKind:
			var v uint64
			v, consumed = consumeVarint(data)
			r.Kind = types.Kind(v)
		case typeFieldElem:
			r.Elem, consumed = consumeFixed64(data)
		case typeFieldLength:
			r.Length, consumed = consumeVarint(data)
		case typeFieldName:
			var s string
			s, consumed = consumeString(data)
			r.Names = append(r.Names, s)
		case typeFieldValue:
			var v uint64
			v, consumed = consumeVarint(data)
			r.Values = append(r.Values, v)
		case typeFieldReturn:
			var v uint64
			v, consumed = consumeFixed64(data)
			r.Types = append(r.Types, v)
		case typeFieldModule:
			r.Module, consumed = consumeString(data)
		case typeFieldDisplay:
			r.Name, consumed = consumeString(data)
		case typeFieldEval:
			var v uint64
			v, consumed = consumeVarint(data)
			r.Eval = types.Evaluation(v)
		case typeFieldBody:
			r.Params, consumed = consumeVarint(data)
		case typeFieldSize:
			r.Size, consumed = consumeVarint(data)
		case typeFieldAlign:
			r.Align, consumed = consumeVarint(data)
		case typeFieldGBody:
			var v uint64
			v, consumed = consumeVarint(data)
			r.Body = uint32(v)
		default:
			consumed = protowire.ConsumeFieldValue(num, typ, data)
		}
		if consumed < 0 {
			return r, protowire.ParseError(consumed)
		}
		data = data[consumed:]
	}
	return r, nil
}

func unmarshalSymbol(data []byte) (Symbol, error) {
	var sym Symbol
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return sym, protowire.ParseError(n)
		}
		data = data[n:]
		var consumed int
		switch num {
		case symFieldName:
			sym.Name, consumed = consumeString(data)
		case symFieldType:
			var v uint64
			v, consumed = consumeFixed64(data)
			sym.Type = types.FromRepresentation(v)
		case symFieldValue:
			var v uint64
			v, consumed = consumeFixed64(data)
			sym.Value = append(sym.Value, v)
		case symFieldFnID:
			var v uint64
			v, consumed = consumeVarint(data)
			sym.FnID = uint32(v)
		case symFieldIsFn:
			var v uint64
			v, consumed = consumeVarint(data)
			sym.IsFn = v == 1
		default:
			consumed = protowire.ConsumeFieldValue(num, typ, data)
		}
		if consumed < 0 {
			return sym, protowire.ParseError(consumed)
		}
		data = data[consumed:]
	}
	return sym, nil
}

type rawBlock struct {
	instrs      []*record
	termOp      uint64
	termTargets []int
	termCond    ir.Operand
}

func unmarshalFunction(data []byte) (*ir.Fn, error) {
	var fnType types.Type
	var numParams, numRegs int
	var outs []ir.Register
	widths := make(map[ir.Register]int)
	allocas := make(map[ir.Register]types.Type)
	var blocks []rawBlock

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case fnFieldType:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fnType = types.FromRepresentation(v)
			data = data[n:]
		case fnFieldNumParams:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			numParams = int(v)
			data = data[n:]
		case fnFieldNumRegs:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			numRegs = int(v)
			data = data[n:]
		case fnFieldOut:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			outs = append(outs, ir.Register(v))
			data = data[n:]
		case fnFieldWideReg:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			reg, m := protowire.ConsumeVarint(v)
			v = v[m:]
			width, _ := protowire.ConsumeVarint(v)
			widths[ir.Register(reg)] = int(width)
			data = data[n:]
		case fnFieldAlloca:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			reg, m := protowire.ConsumeVarint(v)
			v = v[m:]
			t, _ := protowire.ConsumeFixed64(v)
			allocas[ir.Register(reg)] = types.FromRepresentation(t)
			data = data[n:]
		case fnFieldBlock:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			block, err := unmarshalBlock(v)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	fn := ir.NewFn(fnType, numParams, 0)
	for fn.NumRegisters() < numRegs {
		fn.NewRegister()
	}
	for reg, width := range widths {
		fn.SetRegisterSlots(reg, width)
	}
	fn.RestoreOutputs(outs)
	for reg, t := range allocas {
		fn.NoteAlloca(reg, t)
	}

	// First materialize every block so instruction and terminator targets
	// can resolve, then fill them in.
	irBlocks := []*ir.Block{fn.Entry()}
	for i := 1; i < len(blocks); i++ {
		irBlocks = append(irBlocks, fn.AppendBlock())
	}
	identity := func(t types.Type) types.Type { return t }
	for i, raw := range blocks {
		block := irBlocks[i]
		for _, rec := range raw.instrs {
			instr, err := decodeInstr(rec, irBlocks, identity)
			if err != nil {
				return nil, err
			}
			block.Append(instr)
		}
		switch raw.termOp {
		case termReturn:
			block.SetTerminator(&ir.Return{})
		case termUncond:
			block.SetTerminator(&ir.Uncond{Target: irBlocks[raw.termTargets[0]]})
		case termCond:
			block.SetTerminator(&ir.Cond{
				Cond:  raw.termCond,
				True:  irBlocks[raw.termTargets[0]],
				False: irBlocks[raw.termTargets[1]],
			})
		case termChoose:
			targets := make([]*ir.Block, len(raw.termTargets))
			for j, t := range raw.termTargets {
				targets[j] = irBlocks[t]
			}
			block.SetTerminator(&ir.Choose{Targets: targets})
		default:
			return nil, fmt.Errorf("module: block %d has unknown terminator %d", i, raw.termOp)
		}
	}
	return fn, nil
}

func unmarshalBlock(data []byte) (rawBlock, error) {
	var raw rawBlock
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return raw, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case blockFieldInstr:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return raw, protowire.ParseError(n)
			}
			rec, err := unmarshalRecord(v)
			if err != nil {
				return raw, err
			}
			raw.instrs = append(raw.instrs, rec)
			data = data[n:]
		case blockFieldTermOp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return raw, protowire.ParseError(n)
			}
			raw.termOp = v
			data = data[n:]
		case blockFieldTermTarget:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return raw, protowire.ParseError(n)
			}
			raw.termTargets = append(raw.termTargets, int(v))
			data = data[n:]
		case blockFieldTermCond:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return raw, protowire.ParseError(n)
			}
			isReg, m := protowire.ConsumeVarint(v)
			v = v[m:]
			if isReg == 1 {
				reg, _ := protowire.ConsumeVarint(v)
				raw.termCond = ir.Reg(ir.Register(reg))
			} else {
				imm, _ := protowire.ConsumeFixed64(v)
				raw.termCond = ir.Imm(imm)
			}
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return raw, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return raw, nil
}

func consumeVarint(data []byte) (uint64, int) { return protowire.ConsumeVarint(data) }

func consumeFixed64(data []byte) (uint64, int) { return protowire.ConsumeFixed64(data) }

func consumeString(data []byte) (string, int) { return protowire.ConsumeString(data) }
