// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fault provides a single set of named error values so that callers
// can compare by identity rather than by string matching, and so that the
// same value can be mapped to a wire status byte or an HTTP status code.
package fault

import "fmt"

// GenericError is the common underlying type for every error class below.
type GenericError string

// InvalidError marks a request rejected for its content: a bad amount, a
// bad holder name, a malformed frame, or more shares than remain.
type InvalidError GenericError

// NotFoundError marks a lookup that found nothing.
type NotFoundError GenericError

// ProcessError marks a failure internal to the engine's own processing.
type ProcessError GenericError

func (e GenericError) Error() string { return string(e) }
func (e InvalidError) Error() string { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProcessError) Error() string { return string(e) }

// common errors - keep in alphabetic order
var (
	ErrAlreadyInitialised  = ProcessError("already initialised")
	ErrBackendUnavailable  = ProcessError("backend unavailable")
	ErrInsufficientShares  = InvalidError("insufficient shares")
	ErrInvalidAmount       = InvalidError("invalid amount")
	ErrInvalidHolderName   = InvalidError("invalid holder name")
	ErrJournalCorrupt      = ProcessError("journal corrupt")
	ErrJournalFault        = ProcessError("journal fault")
	ErrMalformedFrame      = InvalidError("malformed frame")
	ErrNotInitialised      = ProcessError("not initialised")
	ErrUnknownClass        = NotFoundError("unknown share class")
)

// IsErrInvalid reports whether err belongs to the InvalidError class.
func IsErrInvalid(e error) bool { _, ok := e.(InvalidError); return ok }

// IsErrNotFound reports whether err belongs to the NotFoundError class.
func IsErrNotFound(e error) bool { _, ok := e.(NotFoundError); return ok }

// IsErrProcess reports whether err belongs to the ProcessError class.
func IsErrProcess(e error) bool { _, ok := e.(ProcessError); return ok }

// Panic signals an invariant that must never be false at runtime. Use it
// only for conditions the caller has already proven cannot occur — corrupt
// in-memory state, not bad input, which should return an error instead.
func Panic(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// PanicIfError panics with context if err is non-nil.
func PanicIfError(context string, err error) {
	if err != nil {
		Panic("%s: %s", context, err)
	}
}
