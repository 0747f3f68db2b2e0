package secureio

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// ZeroBytes overwrites a byte slice in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// MemoryGuard tracks sensitive buffers and cleanup callbacks so they can be
// wiped together when a processing scope ends. All methods are serialized.
type MemoryGuard struct {
	mu       sync.Mutex
	buffers  [][]byte
	cleanups []func()
}

// NewMemoryGuard builds an empty guard. The composition root creates one
// per process and passes it down; there is no package-level instance.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{}
}

// RegisterBuffer tracks a sensitive byte slice for zeroing.
func (m *MemoryGuard) RegisterBuffer(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers = append(m.buffers, b)
}

// RegisterCleanup tracks a callback to run during CleanupAll.
func (m *MemoryGuard) RegisterCleanup(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, fn)
}

// Tracked returns the number of registered buffers and callbacks.
func (m *MemoryGuard) Tracked() (buffers, cleanups int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers), len(m.cleanups)
}

// CleanupAll zeroes every registered buffer, runs the callbacks in reverse
// registration order, drops the registry, and hints the collector to
// reclaim the large freed objects.
func (m *MemoryGuard) CleanupAll() {
	m.mu.Lock()
	buffers := m.buffers
	cleanups := m.cleanups
	m.buffers = nil
	m.cleanups = nil
	m.mu.Unlock()

	for _, b := range buffers {
		ZeroBytes(b)
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	runtime.GC()
	debug.FreeOSMemory()
}
