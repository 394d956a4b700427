package monitor

// SeenSet records item identities observed by one monitor. It only grows.
// It is owned by the monitor goroutine and is not synchronised.
type SeenSet struct {
	items map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{items: map[string]struct{}{}}
}

// IsNew reports whether id had not been seen before, and marks it seen.
func (s *SeenSet) IsNew(id string) bool {
	if _, ok := s.items[id]; ok {
		return false
	}
	s.items[id] = struct{}{}
	return true
}

func (s *SeenSet) Len() int { return len(s.items) }
