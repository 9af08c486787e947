// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire implements the bit-exact binary framing between a front-end
// worker's connection pool and the issuance engine: a 4-byte big-endian
// length prefix, followed by a request or reply payload packed field by
// field with encoding/binary, manually rather than through reflection, so
// the wire format stays fixed regardless of how the Go structs evolve.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/stockvault/certissuer/fault"
)

const (
	// MaxClassTagLength is the largest class tag the 1-byte length prefix
	// can represent.
	MaxClassTagLength = 255

	// MaxHolderNameLength is the largest holder name the 2-byte length
	// prefix can represent.
	MaxHolderNameLength = 65535

	// MaxFrameLength caps the 4-byte frame length prefix well below its
	// theoretical 4 GiB range, rejecting corrupt or hostile frames early.
	MaxFrameLength = 1 << 20
)

// Request is the decoded form of a grant request frame.
type Request struct {
	ClassTag   string
	Amount     uint32
	HolderName string
}

// Reply is the decoded form of a grant reply frame.
type Reply struct {
	Reason            fault.Reason
	CertificateNumber uint64
}

// ReadFrame reads one length-prefixed frame from r and returns its payload.
// It is the single blocking read point per request; a connection that sends
// a length of zero, a negative-looking length, or a length above
// MaxFrameLength is treated as sending a malformed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 || length > MaxFrameLength {
		return nil, fault.ErrMalformedFrame
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its 4-byte big-endian
// length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// EncodeRequest packs a Request: 1-byte class tag length, class tag bytes,
// 4-byte amount, 2-byte holder name length, holder name bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if len(req.ClassTag) > MaxClassTagLength {
		return nil, errors.New("wire: class tag too long")
	}
	if len(req.HolderName) > MaxHolderNameLength {
		return nil, errors.New("wire: holder name too long")
	}

	buf := make([]byte, 0, 1+len(req.ClassTag)+4+2+len(req.HolderName))
	buf = append(buf, byte(len(req.ClassTag)))
	buf = append(buf, req.ClassTag...)

	var amountBuf [4]byte
	binary.BigEndian.PutUint32(amountBuf[:], req.Amount)
	buf = append(buf, amountBuf[:]...)

	var nameLenBuf [2]byte
	binary.BigEndian.PutUint16(nameLenBuf[:], uint16(len(req.HolderName)))
	buf = append(buf, nameLenBuf[:]...)
	buf = append(buf, req.HolderName...)

	return buf, nil
}

// DecodeRequest unpacks a Request payload. Any truncation or out-of-range
// length field is reported as fault.ErrMalformedFrame, the engine's signal
// to close the connection rather than try to resynchronize.
func DecodeRequest(payload []byte) (*Request, error) {
	pos := 0

	classTagLen, ok := readByte(payload, &pos)
	if !ok {
		return nil, fault.ErrMalformedFrame
	}
	classTag, ok := readBytes(payload, &pos, int(classTagLen))
	if !ok {
		return nil, fault.ErrMalformedFrame
	}

	amount, ok := readUint32(payload, &pos)
	if !ok {
		return nil, fault.ErrMalformedFrame
	}

	nameLen, ok := readUint16(payload, &pos)
	if !ok {
		return nil, fault.ErrMalformedFrame
	}
	holderName, ok := readBytes(payload, &pos, int(nameLen))
	if !ok {
		return nil, fault.ErrMalformedFrame
	}

	if pos != len(payload) {
		return nil, fault.ErrMalformedFrame
	}

	return &Request{
		ClassTag:   string(classTag),
		Amount:     amount,
		HolderName: string(holderName),
	}, nil
}

// EncodeReply packs a Reply: 1-byte status, then, only on success, an
// 8-byte big-endian certificate number.
func EncodeReply(reply *Reply) []byte {
	if reply.Reason != fault.ReasonOK {
		return []byte{byte(reply.Reason)}
	}
	buf := make([]byte, 9)
	buf[0] = byte(fault.ReasonOK)
	binary.BigEndian.PutUint64(buf[1:], reply.CertificateNumber)
	return buf
}

// DecodeReply unpacks a Reply payload.
func DecodeReply(payload []byte) (*Reply, error) {
	if len(payload) == 0 {
		return nil, fault.ErrMalformedFrame
	}
	reason := fault.Reason(payload[0])
	if reason == fault.ReasonOK {
		if len(payload) != 9 {
			return nil, fault.ErrMalformedFrame
		}
		return &Reply{
			Reason:            fault.ReasonOK,
			CertificateNumber: binary.BigEndian.Uint64(payload[1:]),
		}, nil
	}
	if len(payload) != 1 {
		return nil, fault.ErrMalformedFrame
	}
	return &Reply{Reason: reason}, nil
}

func readByte(payload []byte, pos *int) (byte, bool) {
	if *pos+1 > len(payload) {
		return 0, false
	}
	b := payload[*pos]
	*pos++
	return b, true
}

func readUint16(payload []byte, pos *int) (uint16, bool) {
	if *pos+2 > len(payload) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(payload[*pos : *pos+2])
	*pos += 2
	return v, true
}

func readUint32(payload []byte, pos *int) (uint32, bool) {
	if *pos+4 > len(payload) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(payload[*pos : *pos+4])
	*pos += 4
	return v, true
}

func readBytes(payload []byte, pos *int, n int) ([]byte, bool) {
	if n < 0 || *pos+n > len(payload) {
		return nil, false
	}
	b := payload[*pos : *pos+n]
	*pos += n
	return b, true
}
