// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import "sync"

// Lock is the read/write lock a sequence shares with every view derived
// from it.
//
// Description:
//
//	The lock is advisory. No sequence, view, selection or undo operation
//	acquires it; callers bracket multi-step reads ("check size then get
//	size-1") with the read lock and every mutation or transaction with the
//	write lock, including the construction of views when other goroutines
//	may mutate concurrently.
//
// Limitations:
//   - Not reentrant. Go has no goroutine identity to track the holder, so a
//     goroutine must not acquire the lock again while holding it.
//
// Thread Safety: Safe for concurrent use.
type Lock struct {
	mu sync.RWMutex
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{}
}

// AcquireRead blocks until the read lock is held.
func (l *Lock) AcquireRead() {
	l.mu.RLock()
}

// ReleaseRead releases the read lock.
func (l *Lock) ReleaseRead() {
	l.mu.RUnlock()
}

// AcquireWrite blocks until the write lock is held.
func (l *Lock) AcquireWrite() {
	l.mu.Lock()
}

// ReleaseWrite releases the write lock.
func (l *Lock) ReleaseWrite() {
	l.mu.Unlock()
}

// Read runs fn while holding the read lock.
func (l *Lock) Read(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// Write runs fn while holding the write lock.
func (l *Lock) Write(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// ReadLocker returns a sync.Locker for the read side.
func (l *Lock) ReadLocker() sync.Locker {
	return l.mu.RLocker()
}

// WriteLocker returns a sync.Locker for the write side.
func (l *Lock) WriteLocker() sync.Locker {
	return &l.mu
}
