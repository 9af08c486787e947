// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine is the issuance engine: the single authoritative writer
// over per-class inventory. Its Grant method is the one decision path in
// the whole system — everything else (the listener, the front-end pool,
// the HTTP adapter) exists to get a request to Grant and a reply back.
//
// Grant takes one lock acquisition per request over all classes rather
// than a lock per class: the critical section is dominated by the
// journal's fsync, which already serializes everything behind it, so a
// finer-grained lock would only add bookkeeping without buying real
// concurrency.
package engine

import (
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/inventory"
	"github.com/stockvault/certissuer/journal"
)

// MaxHolderNameLength bounds the holder name the engine will accept: an
// opaque printable string, capped well short of what the journal's
// line-oriented format could technically hold.
const MaxHolderNameLength = 255

// Engine is the authoritative in-memory inventory plus the durable journal
// backing it. One Engine owns exactly one journal file and one fixed set of
// share classes, both fixed at construction time.
type Engine struct {
	mutex   sync.Mutex
	classes map[string]*inventory.ClassState
	journal *journal.Journal
	log     *logger.L
}

// GrantResult is the successful outcome of a grant decision.
type GrantResult struct {
	ClassTag          string
	CertificateNumber uint64
}

// New constructs an Engine over the given authorized-shares configuration
// and an already-open Journal. It does not replay the journal; call
// Recover for that, before accepting any requests.
func New(authorized map[string]uint64, j *journal.Journal, log *logger.L) *Engine {
	classes := make(map[string]*inventory.ClassState, len(authorized))
	for tag, amount := range authorized {
		classes[tag] = inventory.NewClassState(tag, amount)
	}
	return &Engine{classes: classes, journal: j, log: log}
}

// Grant is the engine's one public operation: validate, check capacity,
// commit to the journal, then mutate in-memory state and reply. Concurrent
// calls are linearized — two callers racing for the same class always
// observe a consistent issued/next-number pair because the whole decision
// happens under Engine's mutex.
func (e *Engine) Grant(classTag, holderName string, amount uint64) (*GrantResult, *fault.GrantError) {
	if amount == 0 || amount > 0xFFFFFFFF {
		return nil, fault.NewGrantError(fault.ReasonInvalidAmount)
	}
	if len(holderName) > MaxHolderNameLength {
		return nil, fault.NewGrantError(fault.ReasonMalformed)
	}
	if err := journal.ValidateHolderName(holderName); err != nil {
		return nil, fault.NewGrantError(fault.ReasonFor(err))
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	class, ok := e.classes[classTag]
	if !ok {
		return nil, fault.NewGrantError(fault.ReasonFor(fault.ErrUnknownClass))
	}

	if !class.CanGrant(amount) {
		// rejected before any state change, nothing journaled.
		return nil, fault.NewGrantError(fault.ReasonFor(fault.ErrInsufficientShares))
	}

	certNumber := class.NextCertNum
	record := journal.Record{
		ClassTag:          classTag,
		CertificateNumber: certNumber,
		Amount:            amount,
		HolderName:        holderName,
	}

	if err := e.journal.Append(record); err != nil {
		// A journal write failure is fatal to the process, not just to this
		// request: in-memory state must never diverge from the durable log.
		// fault.Panic unwinds this goroutine uncaught, which terminates the
		// whole process; any other in-flight connection simply sees its
		// read or write fail, which the pool and HTTP adapter already
		// treat as BACKEND_UNAVAILABLE.
		if e.log != nil {
			e.log.Criticalf("journal append failed for class %q: %s", classTag, err)
		}
		fault.Panic("journal append failed for class %q: %s", classTag, err)
	}

	class.Commit(amount)

	if e.log != nil {
		e.log.Infof("granted %s-%d: %d shares to %q", classTag, certNumber, amount, holderName)
	}

	return &GrantResult{ClassTag: classTag, CertificateNumber: certNumber}, nil
}

// Classes returns a defensive snapshot of the configured class tags, used
// only for diagnostics/tests — never for deciding a grant.
func (e *Engine) Classes() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	tags := make([]string, 0, len(e.classes))
	for tag := range e.classes {
		tags = append(tags, tag)
	}
	return tags
}

// Snapshot returns a copy of one class's state, used by tests and by
// diagnostics commands — never consulted by Grant itself.
func (e *Engine) Snapshot(classTag string) (inventory.ClassState, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	class, ok := e.classes[classTag]
	if !ok {
		return inventory.ClassState{}, false
	}
	return *class, true
}

// Close closes the underlying journal. The caller must ensure no Grant call
// is in flight — the listener's accept loop must have fully stopped first —
// or a concurrent Append could fail against an already-closed file.
func (e *Engine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.journal.Close()
}
