// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/inventory"
	"github.com/stockvault/certissuer/journal"
)

// Recover replays journalPath end-to-end and constructs an Engine whose
// in-memory state matches it exactly. It verifies, per class, that the
// certificate sequence has no gaps and that issued never exceeds
// authorized; either failure aborts startup with a corruption error rather
// than starting the engine against state it cannot trust.
func Recover(authorized map[string]uint64, journalPath string, log *logger.L) (*Engine, error) {
	e := &Engine{classes: make(map[string]*inventory.ClassState, len(authorized)), log: log}
	for tag, amount := range authorized {
		e.classes[tag] = inventory.NewClassState(tag, amount)
	}

	counts := make(map[string]uint64, len(authorized))

	err := journal.Replay(journalPath, func(r journal.Record) error {
		class, ok := e.classes[r.ClassTag]
		if !ok {
			// a record for a class no longer configured is corruption: the
			// set of classes is fixed at configuration time.
			return fault.ErrJournalCorrupt
		}
		class.ApplyReplayedRecord(r.Amount, r.CertificateNumber)
		counts[r.ClassTag]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	for tag, class := range e.classes {
		if err := class.VerifyAfterReplay(counts[tag]); err != nil {
			if log != nil {
				log.Criticalf("journal corruption detected for class %q", tag)
			}
			return nil, err
		}
	}

	j, err := journal.Open(journalPath, log)
	if err != nil {
		return nil, err
	}
	e.journal = j

	return e, nil
}
