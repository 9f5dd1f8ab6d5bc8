package identifier

import "strings"

// NameSet is a case-insensitive set of identifiers that remembers insertion
// order. The zero value is not usable; use NewNameSet.
type NameSet struct {
	keys  map[string]struct{}
	order []string
}

// NewNameSet returns a set pre-populated with names.
func NewNameSet(names ...string) *NameSet {
	s := &NameSet{keys: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add registers name. It reports false if the name was already present.
func (s *NameSet) Add(name string) bool {
	k := strings.ToLower(name)
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	s.order = append(s.order, name)
	return true
}

// Contains reports whether name is present, ignoring case. A nil set is empty.
func (s *NameSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[strings.ToLower(name)]
	return ok
}

// Len returns the number of names.
func (s *NameSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns a copy of the names in insertion order.
func (s *NameSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Clone returns an independent copy.
func (s *NameSet) Clone() *NameSet {
	return NewNameSet(s.Names()...)
}
