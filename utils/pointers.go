package utils

// Ref returns a pointer to a copy of val, for optional arguments.
func Ref[T any](val T) *T {
	return &val
}

// DerefOr returns *val, or def when val is nil.
func DerefOr[T any](val *T, def T) T {
	if val == nil {
		return def
	}
	return *val
}
