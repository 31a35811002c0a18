package interp

import (
	"fmt"
	"math"
	"strings"

	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/types"
)

// argClass is the marshalling class of one foreign parameter or return.
type argClass string

const (
	classI64 argClass = "i64"
	classU64 argClass = "u64"
	classU8  argClass = "u8"
	classF64 argClass = "f64"
	classF32 argClass = "f32"
	classPtr argClass = "ptr"
)

// supportedSignatures is the closed set of foreign call shapes. Anything
// else fails fast with ForeignSignatureUnsupported rather than being
// silently lowered.
var supportedSignatures = map[string]bool{
	"() -> i64":         true,
	"(i64) -> i64":      true,
	"(i64) -> ()":       true,
	"(f64) -> f64":      true,
	"(f32) -> f32":      true,
	"(u8) -> i64":       true,
	"(ptr) -> i64":      true,
	"(ptr, ptr) -> ptr": true,
	"(i64, ptr) -> i64": true,
	"(i64) -> ptr":      true,
	"(u64) -> ptr":      true,
	"(ptr) -> ()":       true,
}

// hostFn is an installed thunk: it receives the language-side argument
// slots and produces the return slots.
type hostFn func(m *Machine, args []uint64) ([]uint64, *EvalError)

type foreignKey struct {
	name string
	typ  types.Type
}

// ForeignMap is the write-once flyweight of registered foreign functions.
// The first lookup of a (name, type) pair resolves the symbol against the
// host table and installs the thunk.
type ForeignMap struct {
	machine  *Machine
	resolved map[foreignKey]hostFn
	symbols  map[string]hostSymbol
}

type hostSymbol struct {
	signature string
	fn        hostFn
}

func newForeignMap(m *Machine) *ForeignMap {
	fm := &ForeignMap{
		machine:  m,
		resolved: make(map[foreignKey]hostFn),
		symbols:  make(map[string]hostSymbol),
	}
	fm.installHostSymbols()
	return fm
}

// signatureOf renders the marshalling shape of a function type, or fails
// when a parameter or return has no marshalling class.
func (fm *ForeignMap) signatureOf(t types.Type) (string, *EvalError) {
	sys := fm.machine.sys
	if t.Kind() != types.KindFunction {
		return "", abort(ForeignSignatureUnsupported, "foreign callee of non-function type %s", sys.String(t))
	}
	var classes []string
	for _, p := range sys.ParameterList(sys.FunctionParameters(t)) {
		c, ok := classify(p.Type)
		if !ok {
			return "", abort(ForeignSignatureUnsupported, "parameter type %s", sys.String(p.Type))
		}
		classes = append(classes, string(c))
	}
	returns := sys.FunctionReturns(t)
	ret := "()"
	switch len(returns) {
	case 0:
	case 1:
		c, ok := classify(returns[0])
		if !ok {
			return "", abort(ForeignSignatureUnsupported, "return type %s", sys.String(returns[0]))
		}
		ret = string(c)
	default:
		return "", abort(ForeignSignatureUnsupported, "%d return values", len(returns))
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(classes, ", "), ret), nil
}

func classify(t types.Type) (argClass, bool) {
	switch {
	case t == types.I64:
		return classI64, true
	case t == types.U64:
		return classU64, true
	case t == types.U8:
		return classU8, true
	case t == types.F64:
		return classF64, true
	case t == types.F32:
		return classF32, true
	case t.Kind() == types.KindPointer, t.Kind() == types.KindBufferPointer, t == types.NullPtr:
		return classPtr, true
	}
	return "", false
}

// Register resolves a (name, function-type) pair eagerly, surfacing
// unsupported signatures and unknown symbols at registration time.
func (fm *ForeignMap) Register(name string, t types.Type) error {
	_, err := fm.lookup(name, t)
	return err
}

func (fm *ForeignMap) lookup(name string, t types.Type) (hostFn, *EvalError) {
	key := foreignKey{name: name, typ: t}
	if fn, ok := fm.resolved[key]; ok {
		return fn, nil
	}
	sig, err := fm.signatureOf(t)
	if err != nil {
		return nil, err
	}
	if !supportedSignatures[sig] {
		return nil, abort(ForeignSignatureUnsupported, "%s has signature %s", name, sig)
	}
	sym, ok := fm.symbols[name]
	if !ok {
		return nil, abort(UndefinedForeignSymbol, "%s", name)
	}
	if sym.signature != sig {
		return nil, abort(ForeignSignatureUnsupported,
			"%s resolves with signature %s, requested %s", name, sym.signature, sig)
	}
	fm.resolved[key] = sym.fn
	return sym.fn, nil
}

func (fm *ForeignMap) call(name string, t types.Type, args []uint64) ([]uint64, *EvalError) {
	fn, err := fm.lookup(name, t)
	if err != nil {
		return nil, err
	}
	return fn(fm.machine, args)
}

// installHostSymbols registers the libc subset the interpreter ships. Each
// operates on interpreter memory rather than host pointers, keeping
// compile-time evaluation hermetic.
func (fm *ForeignMap) installHostSymbols() {
	add := func(name, signature string, fn hostFn) {
		fm.symbols[name] = hostSymbol{signature: signature, fn: fn}
	}

	add("strlen", "(ptr) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		s, err := m.cString(ir.UnpackAddress(args[0]))
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(len(s))}, nil
	})

	add("puts", "(ptr) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		s, err := m.cString(ir.UnpackAddress(args[0]))
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(m.Stdout, s)
		return []uint64{uint64(len(s) + 1)}, nil
	})

	add("putchar", "(i64) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		c := byte(args[0])
		if _, err := m.Stdout.Write([]byte{c}); err != nil {
			return []uint64{uint64(math.MaxUint32)}, nil
		}
		return []uint64{uint64(c)}, nil
	})

	add("getchar", "() -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		var buf [1]byte
		n, err := m.Stdin.Read(buf[:])
		if err != nil || n == 0 {
			return []uint64{^uint64(0)}, nil // EOF
		}
		return []uint64{uint64(buf[0])}, nil
	})

	add("abs", "(i64) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		v := int64(args[0])
		if v < 0 {
			v = -v
		}
		return []uint64{uint64(v)}, nil
	})

	add("exit", "(i64) -> ()", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		return nil, abort(NotYetImplemented, "exit(%d) during compile-time evaluation", int64(args[0]))
	})

	add("fabs", "(f64) -> f64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		return []uint64{math.Float64bits(math.Abs(math.Float64frombits(args[0])))}, nil
	})

	add("sqrtf", "(f32) -> f32", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		v := math.Sqrt(float64(math.Float32frombits(uint32(args[0]))))
		return []uint64{uint64(math.Float32bits(float32(v)))}, nil
	})

	add("toupper", "(u8) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		c := byte(args[0])
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		return []uint64{uint64(c)}, nil
	})

	add("malloc", "(u64) -> ptr", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		return []uint64{m.allocateHeap(args[0]).Pack()}, nil
	})

	add("calloc", "(i64) -> ptr", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		return []uint64{m.allocateHeap(args[0]).Pack()}, nil
	})

	add("free", "(ptr) -> ()", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		// The heap region is an arena; free is a no-op.
		return nil, nil
	})

	add("strcpy", "(ptr, ptr) -> ptr", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		s, err := m.cString(ir.UnpackAddress(args[1]))
		if err != nil {
			return nil, err
		}
		dst := ir.UnpackAddress(args[0])
		if dst.Region == ir.RegionReadOnly {
			return nil, abort(OutOfBoundsLoad, "strcpy into read-only region")
		}
		window, err := m.memory(dst, uint64(len(s)+1))
		if err != nil {
			return nil, err
		}
		copy(window, s)
		window[len(s)] = 0
		return []uint64{args[0]}, nil
	})

	add("write", "(i64, ptr) -> i64", func(m *Machine, args []uint64) ([]uint64, *EvalError) {
		s, err := m.cString(ir.UnpackAddress(args[1]))
		if err != nil {
			return nil, err
		}
		fmt.Fprint(m.Stdout, s)
		return []uint64{uint64(len(s))}, nil
	})
}
