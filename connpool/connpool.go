// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connpool is the front-end worker's cache of established TCP
// connections to the issuance engine: checkout/return semantics, lazy
// expansion up to a configured maximum, FIFO waiters, and broken-connection
// detection on checkout.
package connpool

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stockvault/certissuer/counter"
	"github.com/stockvault/certissuer/fault"
)

// Conn wraps a net.Conn with the bookkeeping the pool needs to hand it back
// out safely.
type Conn struct {
	net.Conn
	pool *Pool
}

// Pool is a fixed-target-size cache of connections to one engine address.
type Pool struct {
	mutex sync.Mutex

	addr       string
	dialTimeout time.Duration
	maxSize    int

	idle  []*Conn
	total int // idle + checked-out; never exceeds maxSize

	// waitQueue holds one token channel per blocked Checkout, oldest first.
	// Return (and any other event that frees a slot) pops the front entry
	// and signals it, so waiters are served in the order they arrived
	// rather than racing each other for the next free connection.
	waitQueue []chan struct{}

	checked counter.Counter
	limiter *rate.Limiter
}

// Options configures a Pool. Max is the hard ceiling on the sum of idle and
// checked-out connections. CheckoutWait bounds how long Checkout will wait
// for a returned connection before surfacing fault.ErrBackendUnavailable.
type Options struct {
	Addr         string
	Max          int
	DialTimeout  time.Duration
	CheckoutWait time.Duration
}

// New constructs a Pool. No connections are dialed until the first
// Checkout — the pool expands lazily up to Max.
func New(opts Options) *Pool {
	if opts.Max <= 0 {
		opts.Max = 20
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.CheckoutWait <= 0 {
		opts.CheckoutWait = time.Second
	}
	return &Pool{
		addr:        opts.Addr,
		dialTimeout: opts.DialTimeout,
		maxSize:     opts.Max,
		limiter:     rate.NewLimiter(rate.Every(opts.CheckoutWait), 1),
	}
}

// Checkout returns a ready connection: an idle one if available, a newly
// dialed one if under the configured maximum, or — if neither is possible
// — it joins the FIFO wait queue and blocks until a Return (or a discarded
// broken connection) wakes it in turn. It never hands the same live
// connection to two concurrent callers.
func (p *Pool) Checkout() (*Conn, error) {
	deadline := time.Now().Add(p.waitBudget())

	for {
		conn, err := p.tryCheckout()
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fault.ErrBackendUnavailable
		}

		wait := make(chan struct{}, 1)
		p.mutex.Lock()
		p.waitQueue = append(p.waitQueue, wait)
		p.mutex.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
			// a slot may now be free; loop back and race tryCheckout again.
		case <-timer.C:
			p.removeWaiter(wait)
			return nil, fault.ErrBackendUnavailable
		}
	}
}

// waitBudget returns how long a caller may keep retrying before giving up:
// Options.CheckoutWait, which New stores as the checkout limiter's interval.
func (p *Pool) waitBudget() time.Duration {
	return time.Duration(float64(time.Second) / float64(p.limiter.Limit()))
}

// wakeOneWaiter signals the longest-waiting blocked Checkout, if any, that
// a slot may now be free. It must be called without p.mutex held.
func (p *Pool) wakeOneWaiter() {
	p.mutex.Lock()
	if len(p.waitQueue) == 0 {
		p.mutex.Unlock()
		return
	}
	wait := p.waitQueue[0]
	p.waitQueue = p.waitQueue[1:]
	p.mutex.Unlock()

	wait <- struct{}{}
}

// removeWaiter drops wait from the queue after it has timed out, so a
// later wakeOneWaiter does not hand a signal to a caller who has already
// given up.
func (p *Pool) removeWaiter(wait chan struct{}) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for i, w := range p.waitQueue {
		if w == wait {
			p.waitQueue = append(p.waitQueue[:i], p.waitQueue[i+1:]...)
			return
		}
	}
}

// tryCheckout finds or makes one connection. p.total counts every
// connection the pool currently owns, idle or checked out, so it is
// incremented exactly once when a connection is first dialed and
// decremented exactly once when that connection is finally closed —
// moving a connection between idle and checked-out never touches it. A
// connection found dead while idle was already counted in p.total by its
// earlier dial, so discarding it here decrements p.total; it must not be
// decremented again later, since Return() already excludes closed
// connections from the idle set it manages.
func (p *Pool) tryCheckout() (*Conn, error) {
	for {
		p.mutex.Lock()
		if len(p.idle) == 0 {
			break
		}
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mutex.Unlock()

		if !isHealthy(conn) {
			conn.Conn.Close()
			p.mutex.Lock()
			p.total--
			p.mutex.Unlock()
			p.wakeOneWaiter() // discarding it freed a dial slot for someone else
			continue
		}

		p.checked.Increment()
		return conn, nil
	}

	if p.total < p.maxSize {
		p.total++
		p.mutex.Unlock()

		rawConn, err := net.DialTimeout("tcp", p.addr, p.dialTimeout)
		if err != nil {
			p.mutex.Lock()
			p.total--
			p.mutex.Unlock()
			p.wakeOneWaiter()
			return nil, err
		}
		p.checked.Increment()
		return &Conn{Conn: rawConn, pool: p}, nil
	}

	p.mutex.Unlock()
	return nil, nil // caller should wait and retry
}

// Return hands a connection back to the pool. If healthy is false, the
// connection is closed and discarded rather than returned to the idle set,
// and p.total drops by one since the pool no longer owns it. Either way,
// the longest-waiting blocked Checkout, if any, is woken to try again.
func (p *Pool) Return(conn *Conn, healthy bool) {
	p.checked.Decrement()
	p.mutex.Lock()

	if !healthy {
		conn.Conn.Close()
		p.total--
		p.mutex.Unlock()
		p.wakeOneWaiter()
		return
	}
	p.idle = append(p.idle, conn)
	p.mutex.Unlock()
	p.wakeOneWaiter()
}

// Close closes every idle connection. Connections currently checked out are
// left for their callers to Return; Close does not mark the pool closed, so
// a connection Returned healthy after Close goes back into the idle set and
// is not closed by the pool.
func (p *Pool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, conn := range p.idle {
		conn.Conn.Close()
	}
	p.idle = nil
}

// Outstanding returns the current number of checked-out connections, for
// diagnostics and tests.
func (p *Pool) Outstanding() uint64 {
	return p.checked.Uint64()
}

// isHealthy detects a broken connection on checkout with a one-byte read
// under a one-millisecond deadline: if the peer has already closed or reset
// the connection, the read fails at once with an error other than a
// timeout; on a live, quiet connection it times out.
func isHealthy(conn *Conn) bool {
	if err := conn.Conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false
	}
	defer conn.Conn.SetReadDeadline(time.Time{})

	var probe [1]byte
	_, err := conn.Conn.Read(probe[:])
	if err == nil {
		// unexpected: the engine never sends unsolicited bytes, so any
		// data here means the protocol is desynchronized.
		return false
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
