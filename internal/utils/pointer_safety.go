package utils

// Value dereferences v, returning the zero value of T when v is nil. Optional
// command flags use it to read a value only once they know it was set.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Ptr returns a pointer to a copy of v, marking an optional value as present
func Ptr[T any](v T) *T {
	return &v
}
