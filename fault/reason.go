// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

// Reason is a grant-decision rejection code, shared verbatim between the
// wire codec (as a single status byte) and the HTTP adapter (as an HTTP
// status code mapping).
type Reason byte

const (
	// ReasonOK means the grant succeeded; a certificate number follows it
	// on the wire. ReasonOK is never surfaced as an error.
	ReasonOK Reason = 0x00

	ReasonUnknownClass       Reason = 0x01
	ReasonInvalidAmount      Reason = 0x02
	ReasonInsufficientShares Reason = 0x03
	ReasonMalformed          Reason = 0x04
)

// String names a reason the way a log line or a JSON error body would.
func (r Reason) String() string {
	switch r {
	case ReasonOK:
		return "OK"
	case ReasonUnknownClass:
		return "UNKNOWN_CLASS"
	case ReasonInvalidAmount:
		return "INVALID_AMOUNT"
	case ReasonInsufficientShares:
		return "INSUFFICIENT_SHARES"
	case ReasonMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN_REASON"
	}
}

// GrantError is the error type the engine's decision path returns for every
// rejected grant. It carries the wire-level Reason so engine, wire, and
// httpadapter never have to re-derive it from an error string.
type GrantError struct {
	Reason Reason
}

func (e *GrantError) Error() string { return e.Reason.String() }

// ReasonFor classifies a generic error (as produced by inventory/journal
// validation helpers) into a wire Reason. Errors that are not recognised
// fall back to ReasonMalformed, matching the engine's rule that anything it
// cannot classify is treated as a malformed request.
func ReasonFor(err error) Reason {
	switch err {
	case ErrUnknownClass:
		return ReasonUnknownClass
	case ErrInvalidAmount:
		return ReasonInvalidAmount
	case ErrInvalidHolderName:
		return ReasonMalformed
	case ErrInsufficientShares:
		return ReasonInsufficientShares
	default:
		return ReasonMalformed
	}
}

// NewGrantError wraps a Reason as the error type engine.Grant returns.
func NewGrantError(r Reason) *GrantError {
	return &GrantError{Reason: r}
}
