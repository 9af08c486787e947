// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bitmark-inc/logger"
)

// WatchForChanges watches fileName's directory and logs a warning whenever
// the file is rewritten, without re-reading it: the engine's class set and
// journal path are fixed at startup, so a later edit to the configuration
// file takes effect only on the next restart. The caller is responsible for
// closing the returned watcher on shutdown.
func WatchForChanges(fileName string, log *logger.L) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(fileName)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for event := range watcher.Events {
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if log != nil {
					log.Warnf("configuration file %q changed on disk; restart to apply", absPath)
				}
			}
		}
	}()

	return watcher, nil
}
