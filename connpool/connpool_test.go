// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connpool_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvault/certissuer/connpool"
)

// startEchoServer accepts connections and holds them open without reading
// or writing, which is enough for pool bookkeeping tests — the wire
// protocol itself is exercised in the engine and wire packages.
func startEchoServer(t *testing.T) (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 1)
				for {
					if _, err := conn.Read(buf); err != nil {
						conn.Close()
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestCheckoutDialsUpToMax(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	p := connpool.New(connpool.Options{Addr: addr, Max: 2, CheckoutWait: 50 * time.Millisecond})

	c1, err := p.Checkout()
	require.NoError(t, err)
	c2, err := p.Checkout()
	require.NoError(t, err)

	assert.EqualValues(t, 2, p.Outstanding())

	_, err = p.Checkout()
	assert.Error(t, err, "third checkout should time out waiting for a free slot")

	p.Return(c1, true)
	p.Return(c2, true)
}

func TestReturnedConnectionIsReused(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	p := connpool.New(connpool.Options{Addr: addr, Max: 1, CheckoutWait: 50 * time.Millisecond})

	c1, err := p.Checkout()
	require.NoError(t, err)
	p.Return(c1, true)

	c2, err := p.Checkout()
	require.NoError(t, err)
	assert.Same(t, c1, c2, "a single-slot pool must hand back the connection it just received")
	p.Return(c2, true)
}

func TestUnhealthyReturnIsNotReused(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	p := connpool.New(connpool.Options{Addr: addr, Max: 1, CheckoutWait: 50 * time.Millisecond})

	c1, err := p.Checkout()
	require.NoError(t, err)
	p.Return(c1, false)

	c2, err := p.Checkout()
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	p.Return(c2, true)
}

func TestClosedPeerConnectionIsDetectedOnCheckout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close() // peer closes immediately
	}()

	p := connpool.New(connpool.Options{Addr: ln.Addr().String(), Max: 2, CheckoutWait: 200 * time.Millisecond})

	c1, err := p.Checkout()
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // give the peer time to close
	p.Return(c1, true)                // caller didn't notice the close yet

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1)
		conn.Read(buf)
	}()

	c2, err := p.Checkout()
	require.NoError(t, err)
	assert.NotSame(t, c1, c2, "a dead idle connection must be discarded, not reused")
	p.Return(c2, true)
}

func TestBrokenIdleConnectionReplacementStaysWithinMax(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close() // this one peer closes immediately; it will go idle, then be found dead
	}()

	p := connpool.New(connpool.Options{Addr: ln.Addr().String(), Max: 2, CheckoutWait: 100 * time.Millisecond})

	c1, err := p.Checkout()
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // give the peer time to close
	p.Return(c1, true)                // caller didn't notice the close yet; conn goes idle

	live := make([]net.Conn, 0, 2)
	var mu sync.Mutex
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			live = append(live, conn)
			mu.Unlock()
		}
	}()

	// Two checkouts: the first must discover the dead idle connection and
	// replace it by dialing; the second must dial fresh since the pool
	// started with only one live connection. Both must succeed without
	// the pool ever exceeding its configured maximum of 2.
	c2, err := p.Checkout()
	require.NoError(t, err)
	assert.NotSame(t, c1, c2, "a dead idle connection must be discarded, not reused")
	assert.LessOrEqual(t, p.Outstanding(), uint64(2))

	c3, err := p.Checkout()
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Outstanding(), uint64(2))

	// A third concurrent checkout must now fail: the replacement cycle must
	// not have let the pool dial past Max.
	_, err = p.Checkout()
	assert.Error(t, err, "pool must not dial beyond Max after replacing a broken idle connection")

	p.Return(c2, true)
	p.Return(c3, true)
}

func TestCheckoutServesWaitersInFIFOOrder(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	p := connpool.New(connpool.Options{Addr: addr, Max: 1, CheckoutWait: 2 * time.Second})

	c0, err := p.Checkout()
	require.NoError(t, err)

	type result struct {
		id   int
		conn *connpool.Conn
		err  error
	}
	results := make(chan result, 2)
	waitFor := func(id int) {
		c, err := p.Checkout()
		results <- result{id: id, conn: c, err: err}
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		waitFor(1)
	}()
	time.Sleep(60 * time.Millisecond) // the first waiter is queued well before the second joins
	go waitFor(2)
	time.Sleep(60 * time.Millisecond) // the second waiter is queued before any slot frees

	p.Return(c0, true)
	first := <-results
	require.NoError(t, first.err)
	p.Return(first.conn, true)
	second := <-results
	require.NoError(t, second.err)
	p.Return(second.conn, true)

	assert.Equal(t, 1, first.id, "the earliest-queued waiter must be served first")
	assert.Equal(t, 2, second.id, "the later-queued waiter must be served second")
}

func TestOutstandingNeverExceedsMax(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	p := connpool.New(connpool.Options{Addr: addr, Max: 3, CheckoutWait: 50 * time.Millisecond})

	conns := make([]*connpool.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.Checkout()
		require.NoError(t, err)
		conns = append(conns, c)
		assert.LessOrEqual(t, p.Outstanding(), uint64(3))
	}

	_, err := p.Checkout()
	assert.Error(t, err)

	for _, c := range conns {
		p.Return(c, true)
	}
	assert.EqualValues(t, 0, p.Outstanding())
}
