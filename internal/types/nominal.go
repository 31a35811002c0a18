package types

import "fmt"

// Completeness tracks the definition lifecycle of a nominal type. Nominal
// types are created incomplete by an explicit IR instruction, populated
// during compile-time evaluation, and frozen once complete.
type Completeness uint8

const (
	Incomplete Completeness = iota
	Complete
)

// SpecialMember identifies the cached special-member functions of a struct.
type SpecialMember uint8

const (
	MemberInit SpecialMember = iota
	MemberDestroy
	MemberCopyAssign
	MemberMoveAssign
	MemberCopyInit
	MemberMoveInit
	numSpecialMembers
)

// NoFunction is the absent special-member function id.
const NoFunction uint32 = 0

// Enum is a nominal type whose values are named constants over an unsigned
// underlying representation. Mutable until completed.
type Enum struct {
	module       string
	name         string
	completeness Completeness

	members []string
	values  map[string]uint64
	byValue map[uint64]string
}

// NewEnum allocates an incomplete enum in the system's arena and returns the
// nominal object together with its type handle.
func (s *System) NewEnum(module, name string) (*Enum, Type) {
	e := &Enum{
		module:  module,
		name:    name,
		values:  make(map[string]uint64),
		byValue: make(map[uint64]string),
	}
	t := makeType(KindEnum, uint64(len(s.enums)))
	s.enums = append(s.enums, e)
	return e, t
}

// EnumOf resolves an Enum type handle to its nominal object.
func (s *System) EnumOf(t Type) *Enum {
	mustKind(t, KindEnum)
	return s.enums[t.payload()]
}

// Module returns the defining module's name.
func (e *Enum) Module() string { return e.module }

// Name returns the enum's display name.
func (e *Enum) Name() string {
	if e.name == "" {
		return "enum"
	}
	return e.name
}

// Completeness reports the definition state.
func (e *Enum) Completeness() Completeness { return e.completeness }

// Append adds a member with an unspecified underlying value.
func (e *Enum) Append(name string) error {
	return e.AppendValued(name, 0, false)
}

// AppendValued adds a member, optionally with an explicit underlying value.
func (e *Enum) AppendValued(name string, value uint64, explicit bool) error {
	if e.completeness == Complete {
		return fmt.Errorf("enum %s: appending member %q after completion", e.Name(), name)
	}
	if _, dup := e.values[name]; dup {
		return fmt.Errorf("enum %s: duplicate member %q", e.Name(), name)
	}
	e.members = append(e.members, name)
	if explicit {
		e.values[name] = value
	}
	return nil
}

// CompleteDefinition assigns distinct underlying values to every member with
// an unspecified value and freezes the enum.
func (e *Enum) CompleteDefinition() error {
	if e.completeness == Complete {
		return nil
	}
	used := make(map[uint64]bool, len(e.members))
	for _, v := range e.values {
		if used[v] {
			return fmt.Errorf("enum %s: duplicate underlying value %d", e.Name(), v)
		}
		used[v] = true
	}
	var next uint64
	for _, name := range e.members {
		if _, ok := e.values[name]; ok {
			continue
		}
		for used[next] {
			next++
		}
		e.values[name] = next
		used[next] = true
	}
	for name, v := range e.values {
		e.byValue[v] = name
	}
	e.completeness = Complete
	return nil
}

// Get returns the underlying value of a member. Defined only after
// completion.
func (e *Enum) Get(name string) (uint64, bool) {
	v, ok := e.values[name]
	return v, ok
}

// NameOf is the inverse of Get over all members.
func (e *Enum) NameOf(value uint64) (string, bool) {
	n, ok := e.byValue[value]
	return n, ok
}

// Members returns the member names in declaration order.
func (e *Enum) Members() []string { return e.members }

// Flags is the bitset counterpart of Enum: each member holds a distinct bit.
type Flags struct {
	module       string
	name         string
	completeness Completeness

	members []string
	values  map[string]uint64
	byValue map[uint64]string
}

// NewFlags allocates an incomplete flags type in the system's arena.
func (s *System) NewFlags(module, name string) (*Flags, Type) {
	f := &Flags{
		module:  module,
		name:    name,
		values:  make(map[string]uint64),
		byValue: make(map[uint64]string),
	}
	t := makeType(KindFlags, uint64(len(s.flags)))
	s.flags = append(s.flags, f)
	return f, t
}

// FlagsOf resolves a Flags type handle to its nominal object.
func (s *System) FlagsOf(t Type) *Flags {
	mustKind(t, KindFlags)
	return s.flags[t.payload()]
}

// Module returns the defining module's name.
func (f *Flags) Module() string { return f.module }

// Name returns the flags type's display name.
func (f *Flags) Name() string {
	if f.name == "" {
		return "flags"
	}
	return f.name
}

// Completeness reports the definition state.
func (f *Flags) Completeness() Completeness { return f.completeness }

// Append adds a member with an unspecified bit.
func (f *Flags) Append(name string) error {
	if f.completeness == Complete {
		return fmt.Errorf("flags %s: appending member %q after completion", f.Name(), name)
	}
	if _, dup := f.values[name]; dup {
		return fmt.Errorf("flags %s: duplicate member %q", f.Name(), name)
	}
	f.members = append(f.members, name)
	return nil
}

// CompleteDefinition assigns each member a distinct bit and freezes the
// type.
func (f *Flags) CompleteDefinition() error {
	if f.completeness == Complete {
		return nil
	}
	if len(f.members) > 64 {
		return fmt.Errorf("flags %s: %d members exceed the 64-bit representation", f.Name(), len(f.members))
	}
	for i, name := range f.members {
		v := uint64(1) << uint(i)
		f.values[name] = v
		f.byValue[v] = name
	}
	f.completeness = Complete
	return nil
}

// Get returns the bit of a member.
func (f *Flags) Get(name string) (uint64, bool) {
	v, ok := f.values[name]
	return v, ok
}

// NameOf returns the member holding exactly the given bit.
func (f *Flags) NameOf(value uint64) (string, bool) {
	n, ok := f.byValue[value]
	return n, ok
}

// Members returns the member names in declaration order.
func (f *Flags) Members() []string { return f.members }

// StructField is one field of a struct.
type StructField struct {
	Name string
	Type Type

	// Offset in bytes from the start of the struct; computed at completion.
	Offset uint64
}

// Struct is a nominal aggregate. Its flyweight key carries no function
// handles; the completed object caches at most one id per special member,
// filled in after the corresponding functions are emitted.
type Struct struct {
	module       string
	name         string
	completeness Completeness

	fields []StructField
	size   uint64
	align  uint64

	special [numSpecialMembers]uint32
}

// NewStruct allocates an incomplete struct in the system's arena.
func (s *System) NewStruct(module, name string) (*Struct, Type) {
	st := &Struct{module: module, name: name}
	t := makeType(KindStruct, uint64(len(s.structs)))
	s.structs = append(s.structs, st)
	return st, t
}

// StructOf resolves a Struct type handle to its nominal object.
func (s *System) StructOf(t Type) *Struct {
	mustKind(t, KindStruct)
	return s.structs[t.payload()]
}

// Module returns the defining module's name.
func (st *Struct) Module() string { return st.module }

// Name returns the struct's display name.
func (st *Struct) Name() string {
	if st.name == "" {
		return "struct"
	}
	return st.name
}

// Completeness reports the definition state.
func (st *Struct) Completeness() Completeness { return st.completeness }

// AppendField adds a field. Only legal before completion.
func (st *Struct) AppendField(name string, t Type) error {
	if st.completeness == Complete {
		return fmt.Errorf("struct %s: appending field %q after completion", st.Name(), name)
	}
	for _, f := range st.fields {
		if f.Name == name {
			return fmt.Errorf("struct %s: duplicate field %q", st.Name(), name)
		}
	}
	st.fields = append(st.fields, StructField{Name: name, Type: t})
	return nil
}

// CompleteStruct lays out the struct's fields and freezes it. Field types
// must themselves be complete.
func (s *System) CompleteStruct(st *Struct) error {
	if st.completeness == Complete {
		return nil
	}
	var offset, maxAlign uint64
	maxAlign = 1
	for i := range st.fields {
		f := &st.fields[i]
		align := s.Alignment(f.Type)
		size := s.Bytes(f.Type)
		offset = alignUp(offset, align)
		f.Offset = offset
		offset += size
		if align > maxAlign {
			maxAlign = align
		}
	}
	st.size = alignUp(offset, maxAlign)
	st.align = maxAlign
	st.completeness = Complete
	return nil
}

// Fields returns the laid-out fields. Offsets are valid only after
// completion.
func (st *Struct) Fields() []StructField { return st.fields }

// FieldIndex locates a field by name.
func (st *Struct) FieldIndex(name string) (int, bool) {
	for i, f := range st.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// SetSpecialMember records the function id implementing a special member.
// At most one function per member is ever registered.
func (st *Struct) SetSpecialMember(m SpecialMember, fn uint32) error {
	if st.special[m] != NoFunction {
		return fmt.Errorf("struct %s: special member %d registered twice", st.Name(), m)
	}
	st.special[m] = fn
	return nil
}

// SpecialMemberFn returns the registered function id, or NoFunction.
func (st *Struct) SpecialMemberFn(m SpecialMember) uint32 { return st.special[m] }

// Opaque is a nominal type whose members are unknown.
type Opaque struct {
	module string
	name   string
}

// NewOpaque allocates an opaque type in the system's arena.
func (s *System) NewOpaque(module, name string) (*Opaque, Type) {
	o := &Opaque{module: module, name: name}
	t := makeType(KindOpaque, uint64(len(s.opaques)))
	s.opaques = append(s.opaques, o)
	return o, t
}

// OpaqueOf resolves an Opaque type handle to its nominal object.
func (s *System) OpaqueOf(t Type) *Opaque {
	mustKind(t, KindOpaque)
	return s.opaques[t.payload()]
}

// Module returns the defining module's name.
func (o *Opaque) Module() string { return o.module }

// Name returns the opaque type's display name.
func (o *Opaque) Name() string {
	if o.name == "" {
		return "opaque"
	}
	return o.name
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}
