package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanCastInPlace(t *testing.T) {
	s := NewSystem()

	assert.True(t, s.CanCastInPlace(U8, U8))
	assert.False(t, s.CanCastInPlace(U8, I8))
	assert.True(t, s.CanCastInPlace(s.Ptr(U8), s.Ptr(U8)))
	assert.True(t, s.CanCastInPlace(s.BufPtr(U8), s.Ptr(U8)))
	assert.False(t, s.CanCastInPlace(s.Ptr(U8), s.BufPtr(U8)))
	assert.True(t, s.CanCastInPlace(s.BufPtr(s.BufPtr(U8)), s.Ptr(s.Ptr(U8))))
	assert.False(t, s.CanCastInPlace(s.Arr(3, s.BufPtr(U8)), s.Slc(s.Ptr(U8))))

	assert.False(t, s.CanCastInPlace(NullPtr, s.BufPtr(I64)))
	assert.False(t, s.CanCastInPlace(NullPtr, s.Ptr(I64)))

	assert.False(t, s.CanCastInPlace(s.Arr(3, s.BufPtr(U8)), s.Arr(3, s.Ptr(U8))))
	assert.True(t, s.CanCastInPlace(s.Slc(s.BufPtr(U8)), s.Slc(s.Ptr(U8))))

	assert.True(t, s.CanCastInPlace(s.Slc(U8), s.Slc(Byte)))
	assert.True(t, s.CanCastInPlace(s.Slc(Byte), s.Slc(U8)))
}

func TestCanCastImplicitly(t *testing.T) {
	s := NewSystem()

	assert.True(t, s.CanCastImplicitly(U8, U8))
	assert.True(t, s.CanCastImplicitly(s.BufPtr(U8), s.Ptr(U8)))

	assert.True(t, s.CanCastImplicitly(NullPtr, s.BufPtr(I64)))
	assert.True(t, s.CanCastImplicitly(NullPtr, s.Ptr(I64)))

	assert.False(t, s.CanCastImplicitly(U8, Char))
	assert.False(t, s.CanCastImplicitly(Char, U8))

	assert.True(t, s.CanCastImplicitly(s.Arr(3, U64), s.Slc(U64)))

	assert.True(t, s.CanCastImplicitly(s.Arr(3, U64), s.Ptr(s.Arr(3, U64))))
	assert.False(t, s.CanCastImplicitly(s.Arr(3, U64), s.BufPtr(s.Arr(3, U64))))

	assert.True(t, s.CanCastImplicitly(s.Arr(3, U64), s.Slc(Byte)))
	assert.True(t, s.CanCastImplicitly(s.Slc(Char), s.Slc(Byte)))

	assert.True(t, s.CanCastImplicitly(Type_, Interface))
	assert.False(t, s.CanCastImplicitly(Interface, Type_))

	assert.True(t, s.CanCastImplicitly(Integer, F64))
	assert.True(t, s.CanCastImplicitly(Integer, I8))
}

func TestImplicitWidenings(t *testing.T) {
	s := NewSystem()

	assert.True(t, s.CanCastImplicitly(I8, I64))
	assert.True(t, s.CanCastImplicitly(U16, U32))
	assert.False(t, s.CanCastImplicitly(I64, I8))
	assert.False(t, s.CanCastImplicitly(U8, I16))
	assert.False(t, s.CanCastImplicitly(I8, U64))
	assert.True(t, s.CanCastImplicitly(F32, F64))
	assert.False(t, s.CanCastImplicitly(F64, F32))
	assert.True(t, s.CanCastImplicitly(I16, F32))
	assert.True(t, s.CanCastImplicitly(I32, F64))
	assert.False(t, s.CanCastImplicitly(I64, F64))
}

func TestCanCastExplicitlyChar(t *testing.T) {
	s := NewSystem()

	for _, intType := range []Type{U8, U64, I64} {
		assert.False(t, s.CanCastExplicitly(intType, Char), "from %s", s.String(intType))
		assert.False(t, s.CanCastExplicitly(Char, intType), "to %s", s.String(intType))
	}
}

func TestCanCastExplicitlyIntegral(t *testing.T) {
	s := NewSystem()
	ints := []Type{U8, U16, U32, U64, I8, I16, I32, I64}

	for _, from := range ints {
		for _, to := range ints {
			assert.True(t, s.CanCastExplicitly(from, to),
				"%s as %s", s.String(from), s.String(to))
		}
		assert.True(t, s.CanCastExplicitly(from, F32))
		assert.True(t, s.CanCastExplicitly(from, F64))
	}
	assert.True(t, s.CanCastExplicitly(Integer, F64))
}

func TestCanCastExplicitlyFloats(t *testing.T) {
	s := NewSystem()
	ints := []Type{U8, U16, U32, U64, I8, I16, I32, I64}

	for _, from := range []Type{F32, F64} {
		for _, to := range ints {
			assert.False(t, s.CanCastExplicitly(from, to),
				"%s as %s", s.String(from), s.String(to))
		}
	}
	assert.True(t, s.CanCastExplicitly(F32, F64))
	assert.True(t, s.CanCastExplicitly(F64, F32))
}

func TestCanCastExplicitlyPointers(t *testing.T) {
	s := NewSystem()

	assert.True(t, s.CanCastExplicitly(s.BufPtr(Byte), s.Ptr(Bool)))
	assert.True(t, s.CanCastExplicitly(s.BufPtr(Byte), s.BufPtr(Bool)))
	assert.False(t, s.CanCastExplicitly(s.BufPtr(Byte), NullPtr))

	assert.True(t, s.CanCastExplicitly(s.Ptr(Bool), s.Ptr(Byte)))
	assert.True(t, s.CanCastExplicitly(s.BufPtr(Bool), s.BufPtr(Byte)))
	assert.True(t, s.CanCastExplicitly(NullPtr, s.BufPtr(Byte)))

	assert.True(t, s.CanCastExplicitly(s.Ptr(Byte), s.Ptr(Bool)))
	assert.False(t, s.CanCastExplicitly(s.Ptr(Byte), s.BufPtr(Bool)))
	assert.False(t, s.CanCastExplicitly(NullPtr, I64))

	assert.True(t, s.CanCastExplicitly(s.BufPtr(I8), s.Ptr(I8)))
	assert.False(t, s.CanCastExplicitly(s.Ptr(I8), s.BufPtr(I8)))
	assert.True(t, s.CanCastExplicitly(s.Ptr(s.BufPtr(I8)), s.Ptr(s.Ptr(I8))))
	assert.True(t, s.CanCastExplicitly(s.BufPtr(s.Ptr(I8)), s.Ptr(s.Ptr(I8))))

	assert.False(t, s.CanCastExplicitly(s.Ptr(I8), s.Ptr(I16)))
	assert.False(t, s.CanCastExplicitly(s.BufPtr(I8), s.BufPtr(I16)))
	assert.False(t, s.CanCastExplicitly(s.BufPtr(I8), s.Ptr(I16)))
}

func TestCanCastExplicitlyArrays(t *testing.T) {
	s := NewSystem()

	assert.False(t, s.CanCastExplicitly(EmptyArray, s.Arr(5, I64)))
	assert.True(t, s.CanCastExplicitly(EmptyArray, s.Arr(0, Bool)))
	assert.False(t, s.CanCastExplicitly(EmptyArray, s.Ptr(Bool)))

	assert.True(t, s.CanCastExplicitly(s.Arr(5, s.BufPtr(Bool)), s.Arr(5, s.Ptr(Bool))))
	assert.False(t, s.CanCastExplicitly(s.Arr(4, s.BufPtr(Bool)), s.Arr(5, s.Ptr(Bool))))
	assert.False(t, s.CanCastExplicitly(s.Arr(5, s.Ptr(Bool)), s.Arr(5, s.BufPtr(Bool))))

	assert.False(t, s.CanCastExplicitly(s.Arr(5, I32), s.Arr(5, I64)))

	assert.True(t, s.CanCastExplicitly(EmptyArray, s.Slc(Bool)))
	assert.True(t, s.CanCastExplicitly(EmptyArray, s.Slc(I64)))

	assert.True(t, s.CanCastExplicitly(s.Arr(5, I64), s.Slc(I64)))
	assert.False(t, s.CanCastExplicitly(s.Arr(3, Bool), s.Slc(I64)))

	assert.True(t, s.CanCastExplicitly(s.Arr(3, s.BufPtr(Bool)), s.Slc(s.Ptr(Bool))))
}

func TestCanCastEnums(t *testing.T) {
	s := NewSystem()
	_, color := s.NewEnum("demo", "Color")
	_, mode := s.NewFlags("demo", "Mode")

	assert.True(t, s.CanCastExplicitly(color, U64))
	assert.True(t, s.CanCastExplicitly(U64, color))
	assert.True(t, s.CanCastExplicitly(mode, I64))
	assert.False(t, s.CanCastImplicitly(color, U64))
	assert.False(t, s.CanCastImplicitly(U64, color))
}

func TestFunctionCasts(t *testing.T) {
	s := NewSystem()
	fn := func(params []Parameter, returns []Type) Type {
		return s.Func(s.Params(params), returns, PreferRuntime)
	}

	assert.True(t, s.CanCastInPlace(fn(nil, nil), fn(nil, nil)))
	assert.False(t, s.CanCastInPlace(fn(nil, []Type{Bool}), fn(nil, []Type{I64})))
	assert.False(t, s.CanCastInPlace(
		fn([]Parameter{{Type: Bool}}, nil),
		fn([]Parameter{{Type: I64}}, nil)))

	// A named parameter matches an anonymous one but not a different name.
	assert.True(t, s.CanCastInPlace(
		fn([]Parameter{{Name: "name", Type: Bool}}, nil),
		fn([]Parameter{{Type: Bool}}, nil)))
	assert.False(t, s.CanCastInPlace(
		fn([]Parameter{{Name: "name1", Type: Bool}}, nil),
		fn([]Parameter{{Name: "name2", Type: Bool}}, nil)))

	// Parameter types may strengthen in place.
	assert.True(t, s.CanCastInPlace(
		fn([]Parameter{{Name: "name", Type: s.BufPtr(Bool)}}, nil),
		fn([]Parameter{{Type: s.Ptr(Bool)}}, nil)))
}

func TestCastLatticeContainment(t *testing.T) {
	s := NewSystem()
	corpus := []Type{
		Bool, Char, Byte, I8, I16, I32, I64, U8, U16, U32, U64, F32, F64,
		Integer, Type_, NullPtr, EmptyArray, Interface,
		s.Ptr(U8), s.Ptr(Byte), s.BufPtr(U8), s.Ptr(s.Ptr(U8)),
		s.Slc(U8), s.Slc(Byte), s.Slc(Char),
		s.Arr(3, U64), s.Arr(0, Bool),
		s.FuncOf(nil, nil),
	}

	for _, from := range corpus {
		for _, to := range corpus {
			if s.CanCastInPlace(from, to) {
				require.True(t, s.CanCastImplicitly(from, to),
					"in-place but not implicit: %s -> %s", s.String(from), s.String(to))
			}
			if s.CanCastImplicitly(from, to) {
				require.True(t, s.CanCastExplicitly(from, to),
					"implicit but not explicit: %s -> %s", s.String(from), s.String(to))
			}
		}
	}
}

func TestMeet(t *testing.T) {
	s := NewSystem()

	check := func(a, b, want Type) {
		t.Helper()
		got, ok := s.Meet(a, b)
		require.True(t, ok, "Meet(%s, %s)", s.String(a), s.String(b))
		assert.Equal(t, want, got)
	}

	check(Integer, Integer, Integer)
	check(Integer, I8, I8)
	check(Integer, U16, U16)
	check(U16, Integer, U16)
	check(I8, Integer, I8)
	check(I8, I64, I64)
	check(NullPtr, s.Ptr(I64), s.Ptr(I64))

	_, ok := s.Meet(Bool, I64)
	assert.False(t, ok)
	_, ok = s.Meet(I8, U8)
	assert.False(t, ok)
}

func TestMeetIsImplicitUpperBound(t *testing.T) {
	s := NewSystem()
	corpus := []Type{Bool, I8, I64, U8, U64, F32, F64, Integer, NullPtr, s.Ptr(I64), s.Slc(U8)}

	for _, a := range corpus {
		for _, b := range corpus {
			c, ok := s.Meet(a, b)
			if !ok {
				continue
			}
			assert.True(t, s.CanCastImplicitly(a, c),
				"Meet(%s, %s) = %s not reachable from left", s.String(a), s.String(b), s.String(c))
			assert.True(t, s.CanCastImplicitly(b, c),
				"Meet(%s, %s) = %s not reachable from right", s.String(a), s.String(b), s.String(c))
		}
	}
}

func TestInference(t *testing.T) {
	s := NewSystem()

	check := func(from, want Type) {
		t.Helper()
		got, ok := s.Inference(from)
		require.True(t, ok, "Inference(%s)", s.String(from))
		assert.Equal(t, want, got)
	}

	check(Integer, I64)
	check(I64, I64)
	check(s.Arr(5, Integer), s.Arr(5, I64))
	check(s.Ptr(I64), s.Ptr(I64))

	fail := func(from Type) {
		t.Helper()
		_, ok := s.Inference(from)
		assert.False(t, ok, "Inference(%s) should fail", s.String(from))
	}
	fail(NullPtr)
	fail(EmptyArray)
	fail(s.Ptr(Integer))
}
