package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlyweightEquality(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, s.Ptr(I64), s.Ptr(I64))
	assert.NotEqual(t, s.Ptr(I64), s.Ptr(I32))
	assert.NotEqual(t, s.Ptr(I64), s.BufPtr(I64))

	assert.Equal(t, s.Slc(Bool), s.Slc(Bool))
	assert.NotEqual(t, s.Slc(Bool), s.Slc(Byte))

	assert.Equal(t, s.Arr(3, U8), s.Arr(3, U8))
	assert.NotEqual(t, s.Arr(3, U8), s.Arr(4, U8))
	assert.NotEqual(t, s.Arr(3, U8), s.Arr(3, U16))

	assert.Equal(t, s.Pat(I64), s.Pat(I64))
	assert.NotEqual(t, s.Pat(I64), s.Pat(Bool))

	nested := s.Ptr(s.Slc(s.Arr(2, F64)))
	assert.Equal(t, nested, s.Ptr(s.Slc(s.Arr(2, F64))))
}

func TestFunctionTypeInterning(t *testing.T) {
	s := NewSystem()

	f1 := s.Func(s.Params([]Parameter{{Name: "n", Type: I64}}), []Type{I64}, PreferRuntime)
	f2 := s.Func(s.Params([]Parameter{{Name: "n", Type: I64}}), []Type{I64}, PreferRuntime)
	f3 := s.Func(s.Params([]Parameter{{Name: "m", Type: I64}}), []Type{I64}, PreferRuntime)
	f4 := s.Func(s.Params([]Parameter{{Name: "n", Type: I64}}), []Type{I64}, RequiredAtCompileTime)

	assert.Equal(t, f1, f2)
	assert.NotEqual(t, f1, f3)
	assert.NotEqual(t, f1, f4)

	params := s.ParameterList(s.FunctionParameters(f1))
	require.Len(t, params, 1)
	assert.Equal(t, "n", params[0].Name)
	assert.Equal(t, I64, params[0].Type)
	assert.Equal(t, []Type{I64}, s.FunctionReturns(f1))
}

func TestDecomposition(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, I64, s.Pointee(s.Ptr(I64)))
	assert.Equal(t, Bool, s.BufferPointee(s.BufPtr(Bool)))
	assert.Equal(t, Char, s.SliceElem(s.Slc(Char)))
	assert.Equal(t, uint64(7), s.ArrayLength(s.Arr(7, F32)))
	assert.Equal(t, F32, s.ArrayElem(s.Arr(7, F32)))
}

func TestKindTags(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, KindPrimitive, I64.Kind())
	assert.Equal(t, KindPointer, s.Ptr(I64).Kind())
	assert.Equal(t, KindBufferPointer, s.BufPtr(I64).Kind())
	assert.Equal(t, KindSlice, s.Slc(I64).Kind())
	assert.Equal(t, KindArray, s.Arr(1, I64).Kind())
	assert.Equal(t, KindFunction, s.FuncOf(nil, nil).Kind())
	assert.Equal(t, KindPattern, s.Pat(I64).Kind())
}

func TestRepresentationRoundTrip(t *testing.T) {
	s := NewSystem()
	for _, typ := range []Type{Bool, I64, s.Ptr(Bool), s.Slc(U8), s.Arr(9, I32)} {
		assert.Equal(t, typ, FromRepresentation(typ.Representation()))
	}
}

func TestSizes(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, uint64(1), s.Bytes(Bool))
	assert.Equal(t, uint64(8), s.Bytes(I64))
	assert.Equal(t, uint64(1), s.Alignment(Bool))
	assert.Equal(t, uint64(8), s.Alignment(I64))
	assert.Equal(t, uint64(16), s.Bytes(s.Slc(I64)))
	assert.Equal(t, uint64(24), s.Bytes(s.Arr(3, I64)))
	assert.Equal(t, uint64(8), s.Bytes(s.Ptr(s.Arr(100, I64))))
}

func TestRegisterSizeAndBigness(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, 1, s.RegisterSize(Bool))
	assert.Equal(t, 1, s.RegisterSize(I64))
	assert.Equal(t, 1, s.RegisterSize(s.Ptr(I64)))
	assert.Equal(t, 1, s.RegisterSize(s.FuncOf(nil, nil)))
	assert.Equal(t, 1, s.RegisterSize(Type_))
	assert.Equal(t, 2, s.RegisterSize(s.Slc(U8)))
	assert.Equal(t, 4, s.RegisterSize(s.Arr(4, I64)))

	assert.False(t, s.Big(I64))
	assert.False(t, s.Big(s.Ptr(I64)))
	assert.True(t, s.Big(s.Slc(U8)))
	assert.True(t, s.Big(s.Arr(4, I64)))
	assert.False(t, s.Big(s.Arr(1, I64)))
}

func TestStructLayout(t *testing.T) {
	s := NewSystem()
	st, typ := s.NewStruct("demo", "Pair")
	require.NoError(t, st.AppendField("flag", Bool))
	require.NoError(t, st.AppendField("count", I64))
	require.NoError(t, s.CompleteStruct(st))

	fields := st.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, uint64(0), fields[0].Offset)
	assert.Equal(t, uint64(8), fields[1].Offset)
	assert.Equal(t, uint64(16), s.Bytes(typ))
	assert.Equal(t, uint64(8), s.Alignment(typ))
	assert.True(t, s.Big(typ))
}

func TestStructRejectsMutationAfterCompletion(t *testing.T) {
	s := NewSystem()
	st, _ := s.NewStruct("demo", "Frozen")
	require.NoError(t, st.AppendField("x", I64))
	require.NoError(t, s.CompleteStruct(st))
	assert.Error(t, st.AppendField("y", I64))
}

func TestStructSpecialMembers(t *testing.T) {
	s := NewSystem()
	st, _ := s.NewStruct("demo", "Managed")
	require.NoError(t, st.SetSpecialMember(MemberInit, 7))
	assert.Equal(t, uint32(7), st.SpecialMemberFn(MemberInit))
	assert.Equal(t, NoFunction, st.SpecialMemberFn(MemberDestroy))
	assert.Error(t, st.SetSpecialMember(MemberInit, 9))
}

func TestEnumRoundTrip(t *testing.T) {
	s := NewSystem()
	e, _ := s.NewEnum("demo", "Color")
	require.NoError(t, e.Append("Red"))
	require.NoError(t, e.Append("Green"))
	require.NoError(t, e.Append("Blue"))
	require.NoError(t, e.CompleteDefinition())

	seen := make(map[uint64]bool)
	for _, name := range e.Members() {
		v, ok := e.Get(name)
		require.True(t, ok, "member %s", name)
		assert.False(t, seen[v], "value %d assigned twice", v)
		seen[v] = true

		back, ok := e.NameOf(v)
		require.True(t, ok)
		assert.Equal(t, name, back)
	}
	assert.Len(t, seen, 3)
}

func TestEnumExplicitValues(t *testing.T) {
	s := NewSystem()
	e, _ := s.NewEnum("demo", "Status")
	require.NoError(t, e.AppendValued("Ok", 0, true))
	require.NoError(t, e.Append("Pending"))
	require.NoError(t, e.AppendValued("Failed", 1, true))
	require.NoError(t, e.CompleteDefinition())

	ok, _ := e.Get("Ok")
	pending, _ := e.Get("Pending")
	failed, _ := e.Get("Failed")
	assert.Equal(t, uint64(0), ok)
	assert.Equal(t, uint64(1), failed)
	assert.NotEqual(t, ok, pending)
	assert.NotEqual(t, failed, pending)

	assert.Error(t, e.Append("Late"))
}

func TestFlagsBits(t *testing.T) {
	s := NewSystem()
	f, _ := s.NewFlags("demo", "Mode")
	require.NoError(t, f.Append("Read"))
	require.NoError(t, f.Append("Write"))
	require.NoError(t, f.Append("Execute"))
	require.NoError(t, f.CompleteDefinition())

	read, _ := f.Get("Read")
	write, _ := f.Get("Write")
	execute, _ := f.Get("Execute")
	assert.Equal(t, uint64(1), read)
	assert.Equal(t, uint64(2), write)
	assert.Equal(t, uint64(4), execute)

	name, ok := f.NameOf(2)
	require.True(t, ok)
	assert.Equal(t, "Write", name)
}

func TestTypeStrings(t *testing.T) {
	s := NewSystem()

	assert.Equal(t, "i64", s.String(I64))
	assert.Equal(t, "*bool", s.String(s.Ptr(Bool)))
	assert.Equal(t, "[*]u8", s.String(s.BufPtr(U8)))
	assert.Equal(t, "[]char", s.String(s.Slc(Char)))
	assert.Equal(t, "[3; i64]", s.String(s.Arr(3, I64)))
	fn := s.Func(s.Params([]Parameter{{Name: "n", Type: I64}}), []Type{Bool}, PreferRuntime)
	assert.Equal(t, "(n: i64) -> (bool)", s.String(fn))
}

func TestPrimitiveByName(t *testing.T) {
	typ, ok := PrimitiveByName("i64")
	require.True(t, ok)
	assert.Equal(t, I64, typ)

	_, ok = PrimitiveByName("quux")
	assert.False(t, ok)
}
