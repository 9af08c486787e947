// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stockvault/certissuer/fault"
)

// Record is one committed grant, matching the journal's line format:
//
//	<class_tag> <certificate_number> <amount> <holder_name>
//
// holder_name is the final field and may itself contain spaces.
type Record struct {
	ClassTag          string
	CertificateNumber uint64
	Amount            uint64
	HolderName        string
}

// formatLine renders a Record as one journal line, without its trailing
// newline.
func formatLine(r Record) string {
	return fmt.Sprintf("%s %d %d %s", r.ClassTag, r.CertificateNumber, r.Amount, r.HolderName)
}

// parseLine parses one journal line (no trailing newline) back into a
// Record. It reads the first three whitespace-delimited tokens and treats
// the remainder of the line as the holder name, so that a name containing
// spaces round-trips correctly.
func parseLine(line string) (Record, error) {
	first := strings.IndexByte(line, ' ')
	if first < 0 {
		return Record{}, fault.ErrJournalCorrupt
	}
	rest := line[first+1:]

	second := strings.IndexByte(rest, ' ')
	if second < 0 {
		return Record{}, fault.ErrJournalCorrupt
	}
	certField := rest[:second]
	rest = rest[second+1:]

	third := strings.IndexByte(rest, ' ')
	if third < 0 {
		return Record{}, fault.ErrJournalCorrupt
	}
	amountField := rest[:third]
	holderName := rest[third+1:]

	classTag := line[:first]
	if classTag == "" {
		return Record{}, fault.ErrJournalCorrupt
	}

	certNumber, err := strconv.ParseUint(certField, 10, 64)
	if err != nil {
		return Record{}, fault.ErrJournalCorrupt
	}
	amount, err := strconv.ParseUint(amountField, 10, 64)
	if err != nil {
		return Record{}, fault.ErrJournalCorrupt
	}

	return Record{
		ClassTag:          classTag,
		CertificateNumber: certNumber,
		Amount:            amount,
		HolderName:        holderName,
	}, nil
}

// ValidateHolderName rejects a holder name that would corrupt the
// line-oriented journal format.
func ValidateHolderName(name string) error {
	if strings.ContainsAny(name, "\n\r") {
		return fault.ErrInvalidHolderName
	}
	return nil
}
