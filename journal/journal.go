// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package journal implements the append-only, line-oriented, fsync-before-
// ack durable log that is the issuance engine's source of truth. Every
// Append blocks until the operating system confirms the write is durable,
// so the engine can treat a successful Append as a promise that the grant
// survives a crash.
package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/fault"
)

// Journal owns the single append-mode file descriptor for the engine's
// durable log. Exactly one Journal may be open on a given path at a time:
// it is opened exclusively by the engine and no other process writes to
// it.
type Journal struct {
	mutex sync.Mutex
	file  *os.File
	log   *logger.L
}

// Open opens (creating if necessary) the journal file at path in append
// mode. It does not replay the file; call Replay separately during startup
// recovery, before any grants are accepted.
func Open(path string, log *logger.L) (*Journal, error) {
	if err := truncateTornFinalLine(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}

	return &Journal{file: file, log: log}, nil
}

// Append writes one record to the journal and blocks until the operating
// system confirms the bytes are durable. This is the engine's one blocking
// operation in the decision path.
func (j *Journal) Append(r Record) error {
	line := formatLine(r) + "\n"

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if _, err := j.file.WriteString(line); err != nil {
		if j.log != nil {
			j.log.Errorf("journal write failed: %s", err)
		}
		return fault.ErrJournalFault
	}
	if err := j.file.Sync(); err != nil {
		if j.log != nil {
			j.log.Errorf("journal sync failed: %s", err)
		}
		return fault.ErrJournalFault
	}
	return nil
}

// Close closes the underlying file descriptor.
func (j *Journal) Close() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.file.Close()
}

// Replay reads the journal from the start and calls visit once per record
// in file order. It is used only at startup, before the engine begins
// serving requests. Replay truncates a torn final line itself, the same
// way Open does, so a caller that replays before ever opening the journal
// (startup recovery) still discards a partial write instead of feeding it
// to visit.
func Replay(path string, visit func(Record) error) error {
	if err := truncateTornFinalLine(path); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // a brand-new journal has nothing to replay
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if line == "" {
			continue
		}
		record, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("journal: corrupt record at line %d: %w", lineNumber, fault.ErrJournalCorrupt)
		}
		if err := visit(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// truncateTornFinalLine discards a torn write: if the file exists and its
// last line lacks a trailing newline, a crash interrupted that Append
// between WriteString and Sync, and the partial line is dropped before
// replay begins.
func truncateTornFinalLine(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0640)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	var lastByte [1]byte
	if _, err := file.ReadAt(lastByte[:], size-1); err != nil {
		return err
	}
	if lastByte[0] == '\n' {
		return nil
	}

	// scan backwards for the previous newline (or the start of file) and
	// truncate the torn tail after it.
	truncateAt := int64(0)
	buf := make([]byte, 1)
	for pos := size - 1; pos > 0; pos-- {
		if _, err := file.ReadAt(buf, pos-1); err != nil {
			return err
		}
		if buf[0] == '\n' {
			truncateAt = pos
			break
		}
	}

	return file.Truncate(truncateAt)
}
