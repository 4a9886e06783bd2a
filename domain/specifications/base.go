package specifications

// Specification encapsulates a predicate over T that can be composed
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

// BaseSpecification adapts a predicate function to Specification
type BaseSpecification[T any] struct {
	evaluator func(T) bool
}

// NewBaseSpecification creates a specification backed by evaluator
func NewBaseSpecification[T any](evaluator func(T) bool) *BaseSpecification[T] {
	return &BaseSpecification[T]{evaluator: evaluator}
}

// IsSatisfiedBy checks if the specification is satisfied
func (s *BaseSpecification[T]) IsSatisfiedBy(candidate T) bool {
	return s.evaluator(candidate)
}

// And is satisfied when both s and other are
func (s *BaseSpecification[T]) And(other Specification[T]) Specification[T] {
	return NewBaseSpecification(func(c T) bool {
		return s.IsSatisfiedBy(c) && other.IsSatisfiedBy(c)
	})
}

// Or is satisfied when either s or other is
func (s *BaseSpecification[T]) Or(other Specification[T]) Specification[T] {
	return NewBaseSpecification(func(c T) bool {
		return s.IsSatisfiedBy(c) || other.IsSatisfiedBy(c)
	})
}

// Not inverts s
func (s *BaseSpecification[T]) Not() Specification[T] {
	return NewBaseSpecification(func(c T) bool {
		return !s.IsSatisfiedBy(c)
	})
}

// Select returns the candidates satisfying spec, preserving order
func Select[T any](candidates []T, spec Specification[T]) []T {
	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if spec.IsSatisfiedBy(c) {
			out = append(out, c)
		}
	}
	return out
}
