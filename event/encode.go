package event

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// encodeBody produces the canonical byte encoding of the fields that are
// signed: creator, timestamp, transactions, parents, in that fixed order
// with fixed-width integers and length-prefixed variable fields. This
// encoder is used exclusively for hashing and signing; it is never used
// as the wire format — gossip uses its own JSON codec so a future change
// to one never silently reopens a signature-verification gap in the
// other.
func encodeBody(b Body) ([]byte, error) {
	creatorBytes, err := hex.DecodeString(b.Creator)
	if err != nil {
		return nil, fmt.Errorf("event: decode creator: %w", err)
	}

	var buf bytes.Buffer
	writeChunk(&buf, creatorBytes)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(b.Timestamp))
	buf.Write(tsBuf[:])

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.Transactions)))
	buf.Write(countBuf[:])
	for _, tx := range b.Transactions {
		writeChunk(&buf, tx)
	}

	buf.WriteByte(byte(b.Parents.Kind))
	selfBytes, err := decodeHashField(b.Parents.SelfParent)
	if err != nil {
		return nil, fmt.Errorf("event: decode self_parent: %w", err)
	}
	otherBytes, err := decodeHashField(b.Parents.OtherParent)
	if err != nil {
		return nil, fmt.Errorf("event: decode other_parent: %w", err)
	}
	writeChunk(&buf, selfBytes)
	writeChunk(&buf, otherBytes)

	return buf.Bytes(), nil
}

// encodeFull produces the canonical byte encoding of the complete event
// (body plus signature). SHA-256 of this output is the event's identity
// hash.
func encodeFull(e *Event) ([]byte, error) {
	bodyBytes, err := encodeBody(e.Body)
	if err != nil {
		return nil, err
	}
	sigBytes, err := hex.DecodeString(e.Signature)
	if err != nil {
		return nil, fmt.Errorf("event: decode signature: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(bodyBytes)
	writeChunk(&buf, sigBytes)
	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

// decodeHashField decodes a hex-encoded hash, treating the empty string
// (genesis parents) as a zero-length field rather than an error.
func decodeHashField(h string) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	return hex.DecodeString(h)
}
