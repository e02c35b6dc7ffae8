package utils

import (
	"sync"
)

// OptionalMutex is a sync.Mutex that can be switched off when the owner has been told its caller
// synchronizes access externally.
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
