package randx

// TryN calls try with attempt indices 0..n-1 and returns the first value for
// which try reports success. The zero value and false are returned when all
// attempts fail.
func TryN[T any](n int, try func(attempt int) (T, bool)) (T, bool) {
	for i := 0; i < n; i++ {
		if v, ok := try(i); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
