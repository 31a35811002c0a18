package ir

import (
	"fmt"
	"strings"

	"github.com/icarus-lang/icarus/internal/types"
)

// Pretty renders the function for debugging and the DebugIr instruction.
func (f *Fn) Pretty(sys *types.System) string {
	var sb strings.Builder
	name := "fn"
	if f.typ.Valid() {
		name = "fn " + sys.String(f.typ)
	}
	fmt.Fprintf(&sb, "%s {\n", name)
	for _, b := range f.blocks {
		preds := ""
		if len(b.incoming) > 0 {
			ids := make([]string, 0, len(b.incoming))
			for _, p := range b.Incoming() {
				ids = append(ids, fmt.Sprintf("bb%d", p.id))
			}
			preds = " ; preds " + strings.Join(ids, ", ")
		}
		fmt.Fprintf(&sb, "bb%d:%s\n", b.id, preds)
		for _, instr := range b.instrs {
			fmt.Fprintf(&sb, "  %s\n", formatInstr(instr, sys))
		}
		fmt.Fprintf(&sb, "  %s\n", formatTerminator(b.term))
	}
	sb.WriteString("}\n")
	return sb.String()
}

func formatOperand(o Operand) string {
	if o.IsRegister() {
		return fmt.Sprintf("r%d", o.Register())
	}
	return fmt.Sprintf("#%#x", o.Immediate())
}

func formatOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = formatOperand(o)
	}
	return strings.Join(parts, ", ")
}

func formatInstr(instr Instr, sys *types.System) string {
	bin := func(op string, t types.Type, lhs, rhs Operand, out Register) string {
		return fmt.Sprintf("r%d = %s<%s> %s, %s", out, op, sys.String(t), formatOperand(lhs), formatOperand(rhs))
	}
	switch i := instr.(type) {
	case *Add:
		return bin("add", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Sub:
		return bin("sub", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Mul:
		return bin("mul", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Div:
		return bin("div", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Mod:
		return bin("mod", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Neg:
		return fmt.Sprintf("r%d = neg<%s> %s", i.Out, sys.String(i.Type), formatOperand(i.Operand))
	case *Eq:
		return bin("eq", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Ne:
		return bin("ne", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Lt:
		return bin("lt", i.Type, i.Lhs, i.Rhs, i.Out)
	case *Le:
		return bin("le", i.Type, i.Lhs, i.Rhs, i.Out)
	case *And:
		return fmt.Sprintf("r%d = and %s, %s", i.Out, formatOperand(i.Lhs), formatOperand(i.Rhs))
	case *Or:
		return fmt.Sprintf("r%d = or %s, %s", i.Out, formatOperand(i.Lhs), formatOperand(i.Rhs))
	case *Xor:
		return fmt.Sprintf("r%d = xor %s, %s", i.Out, formatOperand(i.Lhs), formatOperand(i.Rhs))
	case *Not:
		return fmt.Sprintf("r%d = not %s", i.Out, formatOperand(i.Operand))
	case *Cast:
		return fmt.Sprintf("r%d = cast<%s, %s> %s", i.Out, sys.String(i.From), sys.String(i.To), formatOperand(i.Operand))
	case *AsciiEncode:
		return fmt.Sprintf("r%d = ascii-encode %s", i.Out, formatOperand(i.Operand))
	case *AsciiDecode:
		return fmt.Sprintf("r%d = ascii-decode %s", i.Out, formatOperand(i.Operand))
	case *StackAllocate:
		return fmt.Sprintf("r%d = stack-allocate %s", i.Out, sys.String(i.Type))
	case *Load:
		return fmt.Sprintf("r%d = load<%s> %s", i.Out, sys.String(i.Type), formatOperand(i.Addr))
	case *Store:
		return fmt.Sprintf("store<%s> %s -> %s", sys.String(i.Type), formatOperand(i.Value), formatOperand(i.Addr))
	case *PtrIncr:
		return fmt.Sprintf("r%d = ptr-incr<%s> %s, %s", i.Out, sys.String(i.Pointee), formatOperand(i.Base), formatOperand(i.Index))
	case *StructIndex:
		return fmt.Sprintf("r%d = struct-index<%s> %s, %d", i.Out, sys.String(i.Struct), formatOperand(i.Base), i.Field)
	case *Call:
		outs := make([]string, len(i.Outs))
		for j, r := range i.Outs {
			outs[j] = fmt.Sprintf("r%d", r)
		}
		prefix := ""
		if len(outs) > 0 {
			prefix = strings.Join(outs, ", ") + " = "
		}
		return fmt.Sprintf("%scall %s(%s)", prefix, formatOperand(i.Callee), formatOperands(i.Args))
	case *ForeignCall:
		return fmt.Sprintf("foreign-call %q (%s)", i.Name, formatOperands(i.Args))
	case *LoadDataSymbol:
		return fmt.Sprintf("r%d = load-data-symbol %q", i.Out, i.Name)
	case *Phi:
		parts := make([]string, len(i.Pairs))
		for j, p := range i.Pairs {
			parts[j] = fmt.Sprintf("[bb%d: %s]", p.Pred.id, formatOperand(p.Value))
		}
		return fmt.Sprintf("r%d = phi<%s> %s", i.Out, sys.String(i.Type), strings.Join(parts, " "))
	case *PtrOf:
		return fmt.Sprintf("r%d = ptr-of %s", i.Out, formatOperand(i.Operand))
	case *BufPtrOf:
		return fmt.Sprintf("r%d = buf-ptr-of %s", i.Out, formatOperand(i.Operand))
	case *SliceOf:
		return fmt.Sprintf("r%d = slice-of %s", i.Out, formatOperand(i.Operand))
	case *ArrayOf:
		return fmt.Sprintf("r%d = array-of %s, %s", i.Out, formatOperand(i.Length), formatOperand(i.Elem))
	case *EnumCreate:
		return fmt.Sprintf("r%d = enum-create %q (%d members)", i.Out, i.Name, len(i.Members))
	case *FlagsCreate:
		return fmt.Sprintf("r%d = flags-create %q (%d members)", i.Out, i.Name, len(i.Members))
	case *StructCreate:
		return fmt.Sprintf("r%d = struct-create %q (%d fields)", i.Out, i.Name, len(i.Fields))
	case *OpaqueCreate:
		return fmt.Sprintf("r%d = opaque-create", i.Out)
	case *PushType:
		return fmt.Sprintf("r%d = push-type %s", i.Out, sys.String(i.Type))
	case *PushFunction:
		return fmt.Sprintf("r%d = push-function f%d", i.Out, i.Fn)
	case *PushValue:
		return fmt.Sprintf("r%d = push-value %s", i.Out, formatOperand(i.Value))
	case *Rotate:
		parts := make([]string, len(i.Regs))
		for j, r := range i.Regs {
			parts[j] = fmt.Sprintf("r%d", r)
		}
		return "rotate " + strings.Join(parts, ", ")
	case *ConstructFunctionType:
		return fmt.Sprintf("r%d = construct-function-type %s, %s", i.Out, formatOperand(i.Params), formatOperand(i.Return))
	case *ConstructParametersType:
		return fmt.Sprintf("r%d = construct-parameters-type %s", i.Out, formatOperands(i.Types))
	case *TypeKind:
		return fmt.Sprintf("r%d = type-kind %s", i.Out, formatOperand(i.Operand))
	case *ConstructOpaqueType:
		return fmt.Sprintf("r%d = construct-opaque-type", i.Out)
	case *Init:
		return fmt.Sprintf("init<%s> %s", sys.String(i.Type), formatOperand(i.Addr))
	case *Destroy:
		return fmt.Sprintf("destroy<%s> %s", sys.String(i.Type), formatOperand(i.Addr))
	case *CopyAssign:
		return fmt.Sprintf("copy-assign<%s> %s <- %s", sys.String(i.Type), formatOperand(i.Dst), formatOperand(i.Src))
	case *MoveAssign:
		return fmt.Sprintf("move-assign<%s> %s <- %s", sys.String(i.Type), formatOperand(i.Dst), formatOperand(i.Src))
	case *CopyInit:
		return fmt.Sprintf("copy-init<%s> %s <- %s", sys.String(i.Type), formatOperand(i.Dst), formatOperand(i.Src))
	case *MoveInit:
		return fmt.Sprintf("move-init<%s> %s <- %s", sys.String(i.Type), formatOperand(i.Dst), formatOperand(i.Src))
	case *Pack:
		return fmt.Sprintf("r%d = pack %s", i.Out, formatOperands(i.Slots))
	case *Extract:
		return fmt.Sprintf("r%d = extract %s, %d", i.Out, formatOperand(i.Source), i.Index)
	case *DebugIr:
		return "debug-ir"
	default:
		return fmt.Sprintf("<%T>", instr)
	}
}

func formatTerminator(term Terminator) string {
	switch t := term.(type) {
	case nil:
		return "<unterminated>"
	case *Return:
		return "return"
	case *Uncond:
		return fmt.Sprintf("jump bb%d", t.Target.id)
	case *Cond:
		return fmt.Sprintf("branch %s, bb%d, bb%d", formatOperand(t.Cond), t.True.id, t.False.id)
	case *Choose:
		ids := make([]string, len(t.Targets))
		for i, b := range t.Targets {
			ids[i] = fmt.Sprintf("bb%d", b.id)
		}
		return "choose " + strings.Join(ids, ", ")
	default:
		return fmt.Sprintf("<%T>", term)
	}
}
