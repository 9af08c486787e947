// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// certissuer-load drives a fixed number of grant requests against an
// engine with a fixed number of concurrent connections, apache-bench
// style (`ab -n 5000 -c 20`). It reports the request count and
// concurrency, how many grants succeeded, were rejected or failed, the
// total elapsed time, the request rate, and p50/p99 latency.
package main

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"

	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/wire"
)

var version = "zero"

func main() {
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "number", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'n'},
		{Long: "concurrency", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
		{Long: "class", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 's'},
	}

	program, options, arguments, err := getoptions.GetOS(flags)
	if err != nil {
		exitwithstatus.Message("option parse error: %s", err)
	}

	if len(options["version"]) > 0 {
		exitwithstatus.Message("%s: version: %s", program, version)
	}

	if len(options["help"]) > 0 || len(arguments) != 1 {
		exitwithstatus.Message("usage: %s [--help] -n COUNT -c CONCURRENCY -s CLASS host:port", program)
	}
	hostPort := arguments[0]

	number := 5000
	if len(options["number"]) > 0 {
		number = atoiOrDie(program, options["number"][0])
	}

	concurrency := 20
	if len(options["concurrency"]) > 0 {
		concurrency = atoiOrDie(program, options["concurrency"][0])
	}

	class := "CS"
	if len(options["class"]) > 0 {
		class = options["class"][0]
	}

	jobs := make(chan int, number)
	for i := 0; i < number; i++ {
		jobs <- i
	}
	close(jobs)

	latencies := make([]time.Duration, 0, number)
	var mutex sync.Mutex
	var succeeded, rejected, failed int

	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn, err := net.DialTimeout("tcp", hostPort, 5*time.Second)
			if err != nil {
				// leave this worker's share of jobs for the others to drain
				return
			}
			defer conn.Close()

			for range jobs {
				t0 := time.Now()
				reply, err := sendOne(conn, class)
				elapsed := time.Since(t0)

				mutex.Lock()
				latencies = append(latencies, elapsed)
				switch {
				case err != nil:
					failed++
				case reply.Reason == fault.ReasonOK:
					succeeded++
				default:
					rejected++
				}
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	total := time.Since(start)
	report(number, concurrency, total, latencies, succeeded, rejected, failed)
}

func sendOne(conn net.Conn, class string) (*wire.Reply, error) {
	payload, err := wire.EncodeRequest(&wire.Request{ClassTag: class, Amount: 1, HolderName: "loadtest"})
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return nil, err
	}
	replyPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	return wire.DecodeReply(replyPayload)
}

func report(number, concurrency int, total time.Duration, latencies []time.Duration, succeeded, rejected, failed int) {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	percentile := func(p float64) time.Duration {
		if len(latencies) == 0 {
			return 0
		}
		idx := int(p * float64(len(latencies)-1))
		return latencies[idx]
	}

	fmt.Printf("requests:    %8d  concurrency: %4d\n", number, concurrency)
	fmt.Printf("succeeded:   %8d  rejected: %8d  failed: %8d\n", succeeded, rejected, failed)
	fmt.Printf("total time:  %8.3f seconds\n", total.Seconds())
	fmt.Printf("rate:        %8.1f requests/second\n", float64(number)/total.Seconds())
	fmt.Printf("latency p50: %8s  p99: %8s\n", percentile(0.50), percentile(0.99))
}

func atoiOrDie(program, s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			exitwithstatus.Message("%s: invalid integer: %q", program, s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
