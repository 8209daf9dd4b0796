// Package extract recovers passport identity fields from raw OCR text.
package extract

// FieldKind names one identity field recovered from a passport scan.
type FieldKind string

const (
	FullName         FieldKind = "fullName"
	PassportNumber   FieldKind = "passportNumber"
	IssueDate        FieldKind = "issueDate"
	DivisionCode     FieldKind = "divisionCode"
	IssuingAuthority FieldKind = "issuingAuthority"
)

// AllKinds lists every field kind in display order.
var AllKinds = []FieldKind{FullName, PassportNumber, IssueDate, DivisionCode, IssuingAuthority}

var kindLabels = map[FieldKind]string{
	FullName:         "ФИО",
	PassportNumber:   "Серия и номер",
	IssueDate:        "Дата выдачи",
	DivisionCode:     "Код подразделения",
	IssuingAuthority: "Кем выдан",
}

// Label returns the human-readable (Russian) caption for the field.
func (k FieldKind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// Valid reports whether k is one of the known field kinds.
func (k FieldKind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// ParseFieldKind resolves a field kind from its name.
func ParseFieldKind(s string) (FieldKind, bool) {
	k := FieldKind(s)
	return k, k.Valid()
}

// Fields maps a field kind to the value found for it. A kind missing from
// the map was not found in the text.
type Fields map[FieldKind]string

// Get returns the value for kind and whether it was found.
func (f Fields) Get(kind FieldKind) (string, bool) {
	v, ok := f[kind]
	return v, ok
}

// Has reports whether kind was found.
func (f Fields) Has(kind FieldKind) bool {
	_, ok := f[kind]
	return ok
}

// Kinds returns the found kinds in display order.
func (f Fields) Kinds() []FieldKind {
	kinds := make([]FieldKind, 0, len(f))
	for _, k := range AllKinds {
		if f.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Len returns the number of found fields.
func (f Fields) Len() int {
	return len(f)
}
