// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package journal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvault/certissuer/journal"
)

func tempJournalPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "journal.log")
}

func TestAppendAndReplay(t *testing.T) {
	path := tempJournalPath(t)

	j, err := journal.Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, j.Append(journal.Record{ClassTag: "CS", CertificateNumber: 1, Amount: 10, HolderName: "Alice"}))
	require.NoError(t, j.Append(journal.Record{ClassTag: "PS", CertificateNumber: 1, Amount: 5, HolderName: "Bob"}))
	require.NoError(t, j.Append(journal.Record{ClassTag: "CS", CertificateNumber: 2, Amount: 10, HolderName: "Salt Bae"}))
	require.NoError(t, j.Close())

	var records []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error {
		records = append(records, r)
		return nil
	}))

	require.Len(t, records, 3)
	assert.Equal(t, "Salt Bae", records[2].HolderName)
	assert.EqualValues(t, 2, records[2].CertificateNumber)
}

func TestReplayEmptyJournal(t *testing.T) {
	path := tempJournalPath(t)

	var records []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error {
		records = append(records, r)
		return nil
	}))
	assert.Empty(t, records)
}

func TestReplayIdempotent(t *testing.T) {
	path := tempJournalPath(t)
	j, err := journal.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(journal.Record{ClassTag: "CS", CertificateNumber: 1, Amount: 10, HolderName: "Alice"}))
	require.NoError(t, j.Close())

	var first, second []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error { first = append(first, r); return nil }))
	require.NoError(t, journal.Replay(path, func(r journal.Record) error { second = append(second, r); return nil }))
	assert.Equal(t, first, second)
}

func TestTornFinalLineDiscarded(t *testing.T) {
	path := tempJournalPath(t)

	content := "CS 1 10 Alice\nCS 2 5 Bob\nCS 3 1 Tor" // no trailing newline
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))

	var records []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error {
		records = append(records, r)
		return nil
	}))

	require.Len(t, records, 2)
	assert.EqualValues(t, 2, records[1].CertificateNumber)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CS 1 10 Alice\nCS 2 5 Bob\n", string(data))
}

func TestTornOnlyLineDiscardsEverything(t *testing.T) {
	path := tempJournalPath(t)
	require.NoError(t, os.WriteFile(path, []byte("CS 1 10 Alice"), 0640))

	var records []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error {
		records = append(records, r)
		return nil
	}))
	assert.Empty(t, records)
}

func TestCorruptInternalLineAbortsReplay(t *testing.T) {
	path := tempJournalPath(t)
	content := "CS 1 10 Alice\nnot-a-valid-record\nCS 2 5 Bob\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))

	err := journal.Replay(path, func(r journal.Record) error { return nil })
	assert.Error(t, err)
}

func TestHolderNameWithSpacesRoundTrips(t *testing.T) {
	path := tempJournalPath(t)
	j, err := journal.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(journal.Record{ClassTag: "CS", CertificateNumber: 1, Amount: 1, HolderName: "Salt Bae the Third"}))
	require.NoError(t, j.Close())

	var records []journal.Record
	require.NoError(t, journal.Replay(path, func(r journal.Record) error {
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, 1)
	assert.Equal(t, "Salt Bae the Third", records[0].HolderName)
}

func TestValidateHolderNameRejectsNewline(t *testing.T) {
	assert.Error(t, journal.ValidateHolderName("bad\nname"))
	assert.Error(t, journal.ValidateHolderName("bad\rname"))
	assert.NoError(t, journal.ValidateHolderName("Salt Bae"))
}
