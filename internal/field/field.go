// Package field holds the typed, ordered registry of signable fields for one
// signing session.
package field

import (
	"fmt"
)

// Type is the kind of value a field accepts.
type Type string

const (
	TypeSignature Type = "signature"
	TypeInitial   Type = "initial"
	TypeDate      Type = "date"
	TypeText      Type = "text"
)

// Valid reports whether t is a known field type.
func (t Type) Valid() bool {
	switch t {
	case TypeSignature, TypeInitial, TypeDate, TypeText:
		return true
	}
	return false
}

// Drawn reports whether values of this type are captured on the stroke pad.
func (t Type) Drawn() bool {
	return t == TypeSignature || t == TypeInitial
}

// Field is one signable slot. Value is nil until the field is completed or
// pre-populated; Completed implies Value != nil.
type Field struct {
	ID             string  `json:"id"`
	Type           Type    `json:"type"`
	Label          string  `json:"label"`
	SectionContext string  `json:"sectionContext,omitempty"`
	Required       bool    `json:"required"`
	Value          *string `json:"value"`
	Completed      bool    `json:"completed"`
}

// Clone returns a copy that shares no memory with f.
func (f Field) Clone() Field {
	if f.Value != nil {
		v := *f.Value
		f.Value = &v
	}
	return f
}

// Set is the ordered field registry. Order is fixed by Initialize.
// Set is not safe for concurrent use; its owner serialises access.
type Set struct {
	fields []Field
	index  map[string]int
}

// NewSet returns an initialised Set.
func NewSet(defs []Field) *Set {
	s := &Set{}
	s.Initialize(defs)
	return s
}

// Initialize replaces the field list wholesale. A definition that arrives
// with a non-empty value is treated as resumed and starts completed; all
// others start empty.
func (s *Set) Initialize(defs []Field) {
	s.fields = make([]Field, len(defs))
	s.index = make(map[string]int, len(defs))
	for i, d := range defs {
		f := d.Clone()
		f.Completed = f.Value != nil && *f.Value != ""
		if !f.Completed {
			f.Value = nil
		}
		s.fields[i] = f
		s.index[f.ID] = i
	}
}

// Complete stores value for the field with the given id and marks it done.
// Unknown ids and empty values are ignored; the return value reports whether
// anything changed.
func (s *Set) Complete(id, value string) bool {
	i, ok := s.index[id]
	if !ok || value == "" {
		return false
	}
	v := value
	s.fields[i].Value = &v
	s.fields[i].Completed = true
	return true
}

// Reset returns the field to its empty, incomplete state. It reports false
// for unknown ids and for fields that are already empty.
func (s *Set) Reset(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	if !s.fields[i].Completed && s.fields[i].Value == nil {
		return false
	}
	s.fields[i].Value = nil
	s.fields[i].Completed = false
	return true
}

// Len is the number of fields.
func (s *Set) Len() int { return len(s.fields) }

// At returns a copy of the i-th field.
func (s *Set) At(i int) (Field, error) {
	if i < 0 || i >= len(s.fields) {
		return Field{}, fmt.Errorf("field index %d out of range [0,%d)", i, len(s.fields))
	}
	return s.fields[i].Clone(), nil
}

// Get returns a copy of the field with the given id.
func (s *Set) Get(id string) (Field, bool) {
	i, ok := s.index[id]
	if !ok {
		return Field{}, false
	}
	return s.fields[i].Clone(), true
}

// IndexOf returns the position of id, or -1.
func (s *Set) IndexOf(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Fields returns copies of all fields in order.
func (s *Set) Fields() []Field {
	out := make([]Field, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Clone()
	}
	return out
}

// CompletedCount counts completed fields, required or not.
func (s *Set) CompletedCount() int {
	n := 0
	for _, f := range s.fields {
		if f.Completed {
			n++
		}
	}
	return n
}

// CompletedRequired counts completed required fields.
func (s *Set) CompletedRequired() int {
	n := 0
	for _, f := range s.fields {
		if f.Required && f.Completed {
			n++
		}
	}
	return n
}

// TotalRequired counts required fields.
func (s *Set) TotalRequired() int {
	n := 0
	for _, f := range s.fields {
		if f.Required {
			n++
		}
	}
	return n
}

// AllComplete reports whether every required field is completed. Optional
// fields never block.
func (s *Set) AllComplete() bool {
	for _, f := range s.fields {
		if f.Required && !f.Completed {
			return false
		}
	}
	return true
}

// MissingRequired lists required fields that are not completed, in order.
func (s *Set) MissingRequired() []Field {
	var out []Field
	for _, f := range s.fields {
		if f.Required && !f.Completed {
			out = append(out, f.Clone())
		}
	}
	return out
}

// NextIncomplete returns the first incomplete field at or after from,
// wrapping around. ok is false when every field is complete.
func (s *Set) NextIncomplete(from int) (int, bool) {
	n := len(s.fields)
	for k := 0; k < n; k++ {
		i := ((from+k)%n + n) % n
		if !s.fields[i].Completed {
			return i, true
		}
	}
	return 0, false
}
