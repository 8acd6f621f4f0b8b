package ds

import (
	"fmt"
	"iter"
)

// Set holds unique values and iterates them in insertion order.
type Set[T comparable] struct {
	members map[T]struct{}
	order   []T
}

func NewSet[T comparable](capacity int) *Set[T] {
	return &Set[T]{
		members: make(map[T]struct{}, capacity),
		order:   make([]T, 0, capacity),
	}
}

func SetOf[T comparable](vs ...T) *Set[T] {
	s := NewSet[T](len(vs))
	s.Add(vs...)
	return s
}

// Add appends values not already present.
func (s *Set[T]) Add(vs ...T) {
	for _, v := range vs {
		if _, ok := s.members[v]; ok {
			continue
		}
		s.members[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *Set[T]) Has(v T) bool {
	_, ok := s.members[v]
	return ok
}

func (s *Set[T]) Size() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if s == nil {
			return
		}
		for _, v := range s.order {
			if !yield(v) {
				return
			}
		}
	}
}

func (s *Set[T]) String() string {
	return fmt.Sprintf("%v", s.order)
}
