// Package corelock provides a timed mutex and condition variable used
// by components that need a bounded wait instead of sync's unbounded
// Lock/Wait.
package corelock

import (
	"sync"
	"time"
)

// TimedMutex is a mutual-exclusion lock that additionally supports a
// bounded-wait acquisition.
type TimedMutex struct {
	ch chan struct{}
	once sync.Once
}

func (m *TimedMutex) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
		m.ch <- struct{}{}
	})
}

// Lock blocks until the mutex is acquired.
func (m *TimedMutex) Lock() {
	m.init()
	<-m.ch
}

// Unlock releases the mutex. Unlock of an unlocked TimedMutex panics,
// matching sync.Mutex.
func (m *TimedMutex) Unlock() {
	m.init()
	select {
	case m.ch <- struct{}{}:
	default:
		panic("corelock: unlock of unlocked TimedMutex")
	}
}

// TryLock acquires the mutex without blocking, reporting success.
func (m *TimedMutex) TryLock() bool {
	m.init()
	select {
	case <-m.ch:
		return true
	default:
		return false
	}
}

// TimedLock attempts to acquire the mutex, giving up after d if it
// remains contended. Reports whether the lock was acquired.
func (m *TimedMutex) TimedLock(d time.Duration) bool {
	m.init()
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-m.ch:
		return true
	case <-t.C:
		return false
	}
}

// Cond is a condition variable with a bounded wait, built on
// sync.Cond plus a timer goroutine that issues a spurious broadcast
// at the deadline.
type Cond struct {
	L  sync.Locker
	c  *sync.Cond
	once sync.Once
}

func (c *Cond) init() {
	c.once.Do(func() {
		c.c = sync.NewCond(c.L)
	})
}

// Wait blocks until Broadcast/Signal is called. Caller must hold L.
func (c *Cond) Wait() {
	c.init()
	c.c.Wait()
}

// TimedWait blocks until Broadcast/Signal or the deadline elapses,
// reporting false on timeout. Caller must hold L.
func (c *Cond) TimedWait(d time.Duration) bool {
	c.init()

	woke := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		c.c.Broadcast()
	})
	defer timer.Stop()

	go func() {
		c.c.Wait()
		close(woke)
	}()

	// The Wait above already reacquires L before returning, so by the
	// time we observe the close we hold the lock again; nothing left
	// to do but report whether the timer already fired.
	<-woke
	return timer.Stop()
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() {
	c.init()
	c.c.Broadcast()
}

// Signal wakes one waiter.
func (c *Cond) Signal() {
	c.init()
	c.c.Signal()
}
