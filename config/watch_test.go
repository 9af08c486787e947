// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockvault/certissuer/config"
)

// TestWatchForChangesStartsWithoutError exercises the watcher's setup and
// its internal event-draining goroutine; the goroutine itself (and its log
// line) is not independently observable from here since it owns the only
// receiver on watcher.Events, so this only confirms the watch starts,
// survives a real file rewrite, and closes cleanly.
func TestWatchForChangesStartsWithoutError(t *testing.T) {
	path := writeConfig(t, `
journal_file = "journal.log"

class {
  tag = "CS"
  authorized = 1
}
`)

	watcher, err := config.WatchForChanges(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("journal_file = \"other.log\"\n"), 0600))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, watcher.Close())
}
