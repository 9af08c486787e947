// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvault/certissuer/inventory"
)

func TestCanGrantAndCommit(t *testing.T) {
	cs := inventory.NewClassState("CS", 100)

	assert.True(t, cs.CanGrant(100))
	assert.False(t, cs.CanGrant(101))

	n := cs.Commit(10)
	assert.EqualValues(t, 1, n)
	assert.EqualValues(t, 10, cs.Issued)
	assert.EqualValues(t, 2, cs.NextCertNum)

	n = cs.Commit(90)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 100, cs.Issued)
	assert.False(t, cs.CanGrant(1))
}

func TestZeroAuthorizedAlwaysFails(t *testing.T) {
	cs := inventory.NewClassState("CS", 0)
	assert.False(t, cs.CanGrant(1))
}

func TestReplayAndVerify(t *testing.T) {
	cs := inventory.NewClassState("CS", 100)

	cs.ApplyReplayedRecord(10, 1)
	cs.ApplyReplayedRecord(20, 2)
	cs.ApplyReplayedRecord(5, 3)

	require.NoError(t, cs.VerifyAfterReplay(3))
	assert.EqualValues(t, 35, cs.Issued)
	assert.EqualValues(t, 4, cs.NextCertNum)
}

func TestVerifyAfterReplayDetectsGap(t *testing.T) {
	cs := inventory.NewClassState("CS", 100)
	cs.ApplyReplayedRecord(10, 1)
	cs.ApplyReplayedRecord(10, 3) // certificate 2 is missing

	assert.Error(t, cs.VerifyAfterReplay(2))
}

func TestVerifyAfterReplayDetectsOverissue(t *testing.T) {
	cs := inventory.NewClassState("CS", 5)
	cs.ApplyReplayedRecord(10, 1) // more than authorized

	assert.Error(t, cs.VerifyAfterReplay(1))
}
