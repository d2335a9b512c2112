package platform

import "sync"

// irqFlagsSaved is the simulated saved interrupt state returned by
// LockIRQSave on hosted builds.
const irqFlagsSaved uint32 = 0x1

// SpinLock serializes allocator state across cores and interrupt contexts.
// On hardware the lock spins with interrupts masked on the current core; on a
// hosted build the irq-save flags are simulated and the lock reduces to a
// mutex. Callers must pass the flags returned by LockIRQSave back to
// UnlockIRQRestore.
type SpinLock struct {
	mu sync.Mutex
}

// Init prepares the lock for use. The zero value is also ready; Init exists
// because the firmware initializes locks explicitly during heap init.
func (l *SpinLock) Init() {
	l.mu = sync.Mutex{}
}

// LockIRQSave acquires the lock and returns the saved interrupt state.
func (l *SpinLock) LockIRQSave() uint32 {
	l.mu.Lock()
	return irqFlagsSaved
}

// UnlockIRQRestore releases the lock and restores the interrupt state saved
// by the matching LockIRQSave.
func (l *SpinLock) UnlockIRQRestore(flags uint32) {
	_ = flags
	l.mu.Unlock()
}
