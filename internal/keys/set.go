package keys

import (
	"math/bits"
	"strings"
)

// Set is a fixed-size bit set over every ScanCode.
// The zero value is empty and ready to use. Set is a value type; copying
// it copies the membership.
type Set struct {
	w [4]uint64
}

// Of returns a set containing the given codes. None is skipped.
func Of(codes ...ScanCode) Set {
	var s Set
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add inserts c. Adding None is a no-op.
func (s *Set) Add(c ScanCode) {
	if c == None {
		return
	}
	s.w[c>>6] |= 1 << (c & 63)
}

// Remove deletes c.
func (s *Set) Remove(c ScanCode) {
	s.w[c>>6] &^= 1 << (c & 63)
}

// Has reports membership of c.
func (s Set) Has(c ScanCode) bool {
	return s.w[c>>6]&(1<<(c&63)) != 0
}

// Clear empties the set.
func (s *Set) Clear() {
	s.w = [4]uint64{}
}

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool {
	return s.w == [4]uint64{}
}

// Len returns the number of members.
func (s Set) Len() int {
	n := 0
	for _, w := range s.w {
		n += bits.OnesCount64(w)
	}
	return n
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	for i := range s.w {
		s.w[i] |= o.w[i]
	}
	return s
}

// Intersect returns s ∩ o.
func (s Set) Intersect(o Set) Set {
	for i := range s.w {
		s.w[i] &= o.w[i]
	}
	return s
}

// Minus returns the members of s not in o.
func (s Set) Minus(o Set) Set {
	for i := range s.w {
		s.w[i] &^= o.w[i]
	}
	return s
}

// Codes returns the members in ascending order.
func (s Set) Codes() []ScanCode {
	out := make([]ScanCode, 0, s.Len())
	for i, w := range s.w {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, ScanCode(i*64+b))
			w &= w - 1
		}
	}
	return out
}

// String renders the members as "{j, l}".
func (s Set) String() string {
	codes := s.Codes()
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = c.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
