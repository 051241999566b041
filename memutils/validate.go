package memutils

// Validatable is implemented by structures that can check their own invariants, such as an arena's block
// chain. DebugValidate calls it after every mutation in debug builds.
type Validatable interface {
	Validate() error
}
