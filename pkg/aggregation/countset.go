package aggregation

// RemoveResult describes the effect of [CountSet.Remove].
type RemoveResult int

const (
	// Removed means the count dropped to zero or below and the item left the set.
	Removed RemoveResult = iota
	// Decremented means the item is still present with a smaller count.
	Decremented
	// NotPresent means the item was not present. A negative count was recorded
	// so that a later matching add cancels out.
	NotPresent
)

func (r RemoveResult) String() string {
	switch r {
	case Removed:
		return "removed"
	case Decremented:
		return "decremented"
	case NotPresent:
		return "not-present"
	default:
		return "unknown"
	}
}

// CountSet is a multiset with signed counts.
//
// An item is present while its count is positive. Negative counts are kept
// so that a removal racing ahead of its add is balanced out later. Entries
// with count zero are deleted. The zero value is an empty set.
type CountSet[T comparable] struct {
	m map[T]int
}

// Add increments the count of v by n and reports whether v became present.
func (s *CountSet[T]) Add(v T, n int) bool {
	if n <= 0 {
		return false
	}
	if s.m == nil {
		s.m = make(map[T]int)
	}
	prev := s.m[v]
	next := prev + n
	if next == 0 {
		delete(s.m, v)
	} else {
		s.m[v] = next
	}
	return prev <= 0 && next > 0
}

// Remove decrements the count of v by n.
func (s *CountSet[T]) Remove(v T, n int) RemoveResult {
	if s.m == nil {
		s.m = make(map[T]int)
	}
	prev := s.m[v]
	next := prev - n
	if next == 0 {
		delete(s.m, v)
	} else {
		s.m[v] = next
	}
	switch {
	case prev <= 0:
		return NotPresent
	case next <= 0:
		return Removed
	default:
		return Decremented
	}
}

// RemoveAll deletes v and returns the count it had.
func (s *CountSet[T]) RemoveAll(v T) int {
	n, ok := s.m[v]
	if !ok {
		return 0
	}
	delete(s.m, v)
	return n
}

// Count returns the count of v. Absent items have count zero.
func (s *CountSet[T]) Count(v T) int {
	return s.m[v]
}

// Contains reports whether v is present (count > 0).
func (s *CountSet[T]) Contains(v T) bool {
	return s.m[v] > 0
}

// Len returns the number of present items.
func (s *CountSet[T]) Len() int {
	n := 0
	for _, c := range s.m {
		if c > 0 {
			n++
		}
	}
	return n
}

// Items returns a snapshot of the present items in unspecified order.
func (s *CountSet[T]) Items() []T {
	out := make([]T, 0, len(s.m))
	for v, c := range s.m {
		if c > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Counts returns a copy of all entries, including negative ones.
func (s *CountSet[T]) Counts() map[T]int {
	out := make(map[T]int, len(s.m))
	for v, c := range s.m {
		out[v] = c
	}
	return out
}
