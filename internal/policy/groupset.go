package policy

import (
	"sort"
	"strings"
)

// GroupSet is a set of group names. The zero value is an empty set ready to use with Add.
type GroupSet map[string]struct{}

// NewGroupSet builds a set from names, trimming whitespace and dropping blank entries.
func NewGroupSet(names ...string) GroupSet {
	s := make(GroupSet, len(names))
	for _, n := range names {
		s.Add(n)
	}

	return s
}

// ParseList parses a comma separated list such as "ADMIN, USER".
func ParseList(csv string) GroupSet {
	return NewGroupSet(strings.Split(csv, ",")...)
}

// Add inserts name after trimming it. Blank names are ignored.
func (s GroupSet) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	s[name] = struct{}{}
}

// Has reports whether name is in the set.
func (s GroupSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether both sets share at least one member.
func (s GroupSet) Intersects(other GroupSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}

	for n := range small {
		if large.Has(n) {
			return true
		}
	}

	return false
}

// Diff returns the members of s missing from other.
func (s GroupSet) Diff(other GroupSet) GroupSet {
	out := make(GroupSet)

	for n := range s {
		if !other.Has(n) {
			out[n] = struct{}{}
		}
	}

	return out
}

// Union returns a new set holding the members of both sets.
func (s GroupSet) Union(other GroupSet) GroupSet {
	out := make(GroupSet, len(s)+len(other))

	for n := range s {
		out[n] = struct{}{}
	}

	for n := range other {
		out[n] = struct{}{}
	}

	return out
}

// Sorted returns the members in lexical order.
func (s GroupSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}

	sort.Strings(out)

	return out
}

// String joins the sorted members with commas.
func (s GroupSet) String() string {
	return strings.Join(s.Sorted(), ",")
}
