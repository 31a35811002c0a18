package types

// Qualifiers track the value category of an expression during semantic
// analysis.
type Qualifiers uint8

const (
	// QualConstant marks a compile-time constant.
	QualConstant Qualifiers = 1 << iota
	// QualReference marks an addressable expression.
	QualReference
	// QualBuffer marks a reference into a contiguous buffer, which admits
	// indexing past the first element.
	QualBuffer
	// QualError marks an expression poisoned by a reported error.
	QualError
)

// QualType pairs a type with its qualifiers.
type QualType struct {
	Type       Type
	Qualifiers Qualifiers
}

// NonConstant is an unqualified value of type t.
func NonConstant(t Type) QualType { return QualType{Type: t} }

// Constant is a compile-time constant of type t.
func Constant(t Type) QualType { return QualType{Type: t, Qualifiers: QualConstant} }

// Reference is an addressable expression of type t.
func Reference(t Type) QualType { return QualType{Type: t, Qualifiers: QualReference} }

// ErrorQual is the poisoned qualified type: consumers propagate it without
// reporting further diagnostics.
func ErrorQual() QualType { return QualType{Type: Error, Qualifiers: QualError} }

// IsConstant reports whether the expression is a compile-time constant.
func (q QualType) IsConstant() bool { return q.Qualifiers&QualConstant != 0 }

// IsReference reports whether the expression is addressable.
func (q QualType) IsReference() bool { return q.Qualifiers&QualReference != 0 }

// HasError reports whether the expression is poisoned.
func (q QualType) HasError() bool {
	return q.Qualifiers&QualError != 0 || q.Type == Error
}
