//go:build debug_mem_utils

package memutils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckRange will verify that value lies within [0, limit), and panics if it does not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckRange[T Number](value T, limit T, name string) {
	err := CheckRange[T](value, limit, name)
	if err != nil {
		panic(err)
	}
}
