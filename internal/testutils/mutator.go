package testutils

// NewMutator returns a builder producing a fresh base value on every call,
// with the given mutations applied in order.
func NewMutator[T any](base func() T) func(mutators ...func(*T)) T {
	return func(mutators ...func(*T)) T {
		v := base()
		for _, m := range mutators {
			m(&v)
		}

		return v
	}
}
