// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package counter provides a small atomic counter, shared by the engine's
// listener (live connection count) and the front-end pool (checked-out
// connection count).
package counter

import "sync/atomic"

// Counter is a count that can be incremented or decremented synchronously
// from multiple goroutines. The zero value is a counter holding zero.
type Counter struct {
	v atomic.Uint64
}

// Increment adds 1 to the counter and returns the new value.
func (c *Counter) Increment() uint64 {
	return c.v.Add(1)
}

// Decrement subtracts 1 from the counter and returns the new value.
func (c *Counter) Decrement() uint64 {
	return c.v.Add(^uint64(0))
}

// Uint64 returns the current value.
func (c *Counter) Uint64() uint64 {
	return c.v.Load()
}

// IsZero reports whether the counter currently holds zero.
func (c *Counter) IsZero() bool {
	return c.v.Load() == 0
}
