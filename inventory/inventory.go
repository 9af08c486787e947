// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package inventory holds the per-class bookkeeping: authorized/issued
// totals and the next certificate number. It is pure domain state with no
// I/O — the engine package is the only caller, and it is the only caller
// that may mutate a ClassState, always while holding its own single-writer
// lock. There is no separate "pending" stage: a grant recorded here is
// never provisional, so issued moves straight from zero to committed.
package inventory

import "github.com/stockvault/certissuer/fault"

// ClassState is the authoritative in-memory record for one share class.
type ClassState struct {
	Tag         string
	Authorized  uint64
	Issued      uint64
	NextCertNum uint64 // the number the next successful grant will carry
}

// NewClassState returns the initial state for a freshly configured class:
// nothing issued yet, numbering starting at 1.
func NewClassState(tag string, authorized uint64) *ClassState {
	return &ClassState{
		Tag:         tag,
		Authorized:  authorized,
		Issued:      0,
		NextCertNum: 1,
	}
}

// CanGrant reports whether amount more shares fit within the authorized
// total.
func (c *ClassState) CanGrant(amount uint64) bool {
	return c.Issued+amount <= c.Authorized
}

// Commit applies a successful grant: it must only be called after the
// journal has durably recorded the grant, and assumes the caller already
// verified CanGrant. It returns the certificate number the grant carries.
func (c *ClassState) Commit(amount uint64) uint64 {
	n := c.NextCertNum
	c.Issued += amount
	c.NextCertNum++
	return n
}

// ApplyReplayedRecord folds one journal record into class state during
// startup recovery. certNumber may arrive out of numeric order across
// classes, but never out of order within a class, since the journal itself
// is ordered.
func (c *ClassState) ApplyReplayedRecord(amount uint64, certNumber uint64) {
	c.Issued += amount
	if certNumber+1 > c.NextCertNum {
		c.NextCertNum = certNumber + 1
	}
}

// VerifyAfterReplay checks the two invariants that must hold after startup
// replay completes: the certificate sequence has no gaps relative to the
// recorded count, and issued never exceeds authorized.
func (c *ClassState) VerifyAfterReplay(recordCount uint64) error {
	if c.NextCertNum != recordCount+1 {
		return fault.ErrJournalCorrupt
	}
	if c.Issued > c.Authorized {
		return fault.ErrJournalCorrupt
	}
	return nil
}
