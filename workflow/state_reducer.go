package workflow

// Reducer defines how to merge a field update into the current value.
type Reducer[T any] func(current T, update T) T

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		if len(update) == 0 {
			return current
		}
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		return current + update
	}
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		if update > current {
			return update
		}
		return current
	}
}

// OptionalReducer replaces the current value only when the update is set.
func OptionalReducer[T any]() Reducer[*T] {
	return func(current, update *T) *T {
		if update == nil {
			return current
		}
		return update
	}
}
