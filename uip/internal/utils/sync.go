package utils

import (
	"sync"
)

// OptionalMutex serializes callers only when UseMutex is set. A Stack created with
// CreateExternallySynchronized leaves it unset and relies on the caller to serialize access.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
