package types

import "fmt"

// Record is the serialization form of one interned type. Exporting a
// system and importing the records into an empty system reproduces every
// type with an identical 64-bit representation, so handles embedded in
// compiled code survive a round-trip byte-for-byte.
type Record struct {
	Repr uint64
	Kind Kind

	// Flyweight payloads, keyed by kind.
	Elem    uint64 // pointer / buffer-pointer / slice / pattern / array element
	Length  uint64 // array
	Names   []string
	Types   []uint64 // parameter types, function returns, struct field types
	Params  uint64   // function parameters type
	Eval    Evaluation
	Body    uint32 // generic function

	// Nominal payloads.
	Module string
	Name   string
	Values []uint64 // enum/flags member values; struct field offsets
	Size   uint64
	Align  uint64
}

// Export returns every non-primitive type in the system, ordered so that
// Import re-interns each kind's entries at their original indices.
func (s *System) Export() []Record {
	var records []Record

	for i, e := range s.enums {
		r := Record{Repr: makeType(KindEnum, uint64(i)).Representation(), Kind: KindEnum, Module: e.module, Name: e.name}
		for _, name := range e.members {
			r.Names = append(r.Names, name)
			r.Values = append(r.Values, e.values[name])
		}
		records = append(records, r)
	}
	for i, f := range s.flags {
		r := Record{Repr: makeType(KindFlags, uint64(i)).Representation(), Kind: KindFlags, Module: f.module, Name: f.name}
		for _, name := range f.members {
			r.Names = append(r.Names, name)
			r.Values = append(r.Values, f.values[name])
		}
		records = append(records, r)
	}
	for i, st := range s.structs {
		r := Record{
			Repr: makeType(KindStruct, uint64(i)).Representation(), Kind: KindStruct,
			Module: st.module, Name: st.name, Size: st.size, Align: st.align,
		}
		for _, f := range st.fields {
			r.Names = append(r.Names, f.Name)
			r.Types = append(r.Types, f.Type.Representation())
			r.Values = append(r.Values, f.Offset)
		}
		records = append(records, r)
	}
	for i, o := range s.opaques {
		records = append(records, Record{
			Repr: makeType(KindOpaque, uint64(i)).Representation(), Kind: KindOpaque,
			Module: o.module, Name: o.name,
		})
	}

	for i, elem := range s.pointers.elems {
		records = append(records, Record{
			Repr: makeType(KindPointer, uint64(i)).Representation(), Kind: KindPointer,
			Elem: elem.Representation(),
		})
	}
	for i, elem := range s.bufferPtrs.elems {
		records = append(records, Record{
			Repr: makeType(KindBufferPointer, uint64(i)).Representation(), Kind: KindBufferPointer,
			Elem: elem.Representation(),
		})
	}
	for i, elem := range s.slices.elems {
		records = append(records, Record{
			Repr: makeType(KindSlice, uint64(i)).Representation(), Kind: KindSlice,
			Elem: elem.Representation(),
		})
	}
	for i, key := range s.arrays.elems {
		records = append(records, Record{
			Repr: makeType(KindArray, uint64(i)).Representation(), Kind: KindArray,
			Elem: key.elem.Representation(), Length: key.length,
		})
	}
	for i, elem := range s.patterns.elems {
		records = append(records, Record{
			Repr: makeType(KindPattern, uint64(i)).Representation(), Kind: KindPattern,
			Elem: elem.Representation(),
		})
	}
	for i, list := range s.parameterLists {
		r := Record{Repr: makeType(KindParameters, uint64(i)).Representation(), Kind: KindParameters}
		for _, p := range list {
			r.Names = append(r.Names, p.Name)
			r.Types = append(r.Types, p.Type.Representation())
		}
		records = append(records, r)
	}
	for i, key := range s.functions.elems {
		r := Record{
			Repr: makeType(KindFunction, uint64(i)).Representation(), Kind: KindFunction,
			Params: key.parameters.Representation(), Eval: key.evaluation,
		}
		for _, ret := range unpackTypes(key.returns) {
			r.Types = append(r.Types, ret.Representation())
		}
		records = append(records, r)
	}
	for i, key := range s.generics.elems {
		records = append(records, Record{
			Repr: makeType(KindGenericFunction, uint64(i)).Representation(), Kind: KindGenericFunction,
			Eval: key.evaluation, Body: key.body,
		})
	}
	return records
}

// Import re-creates exported records into an empty system. Every record
// must reproduce its original representation; a mismatch means the record
// stream was reordered or the system was not empty.
func (s *System) Import(records []Record) error {
	for _, r := range records {
		var t Type
		switch r.Kind {
		case KindEnum:
			e, typ := s.NewEnum(r.Module, r.Name)
			for i, name := range r.Names {
				if err := e.AppendValued(name, r.Values[i], true); err != nil {
					return err
				}
			}
			if err := e.CompleteDefinition(); err != nil {
				return err
			}
			t = typ
		case KindFlags:
			f, typ := s.NewFlags(r.Module, r.Name)
			for _, name := range r.Names {
				if err := f.Append(name); err != nil {
					return err
				}
			}
			f.completeness = Complete
			for i, name := range r.Names {
				f.values[name] = r.Values[i]
				f.byValue[r.Values[i]] = name
			}
			t = typ
		case KindStruct:
			st, typ := s.NewStruct(r.Module, r.Name)
			for i, name := range r.Names {
				st.fields = append(st.fields, StructField{
					Name:   name,
					Type:   FromRepresentation(r.Types[i]),
					Offset: r.Values[i],
				})
			}
			st.size, st.align = r.Size, r.Align
			st.completeness = Complete
			t = typ
		case KindOpaque:
			_, typ := s.NewOpaque(r.Module, r.Name)
			t = typ
		case KindPointer:
			t = s.Ptr(FromRepresentation(r.Elem))
		case KindBufferPointer:
			t = s.BufPtr(FromRepresentation(r.Elem))
		case KindSlice:
			t = s.Slc(FromRepresentation(r.Elem))
		case KindArray:
			t = s.Arr(r.Length, FromRepresentation(r.Elem))
		case KindPattern:
			t = s.Pat(FromRepresentation(r.Elem))
		case KindParameters:
			params := make([]Parameter, len(r.Names))
			for i := range r.Names {
				params[i] = Parameter{Name: r.Names[i], Type: FromRepresentation(r.Types[i])}
			}
			t = s.Params(params)
		case KindFunction:
			returns := make([]Type, len(r.Types))
			for i := range r.Types {
				returns[i] = FromRepresentation(r.Types[i])
			}
			t = s.Func(FromRepresentation(r.Params), returns, r.Eval)
		case KindGenericFunction:
			t = s.Generic(r.Eval, r.Body)
		default:
			return fmt.Errorf("types: importing record of kind %v", r.Kind)
		}
		if t.Representation() != r.Repr {
			return fmt.Errorf("types: record for %s reproduced a different handle", s.String(t))
		}
	}
	return nil
}
