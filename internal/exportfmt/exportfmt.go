// Package exportfmt defines the on-disk manifest format gsetool's encap
// and demo commands write a run's emitted packets to, and its deencap and
// stats commands read back for offline inspection, encoded with the same reflection-based
// XDR codec the wider codebase uses for its own wire structures.
package exportfmt

import (
	"bytes"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Manifest records one encapsulation or de-encapsulation run: its
// records in emission order, each carrying enough metadata to
// reconstruct the packet/PDU boundary without re-parsing GSE headers.
type Manifest struct {
	RunID   string
	Records []Record
}

// Record describes one emitted packet or reassembled PDU.
type Record struct {
	Sequence     uint32
	QoS          uint32
	FragID       uint32
	PayloadType  uint32 // mirrors gse.PayloadType
	ProtocolType uint32
	Label        []byte
	Payload      []byte
}

// Encode writes m to w in XDR wire format.
func Encode(w io.Writer, m *Manifest) error {
	if _, err := xdr.Marshal(w, m); err != nil {
		return fmt.Errorf("exportfmt: marshal: %w", err)
	}
	return nil
}

// Decode reads a Manifest from r.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if _, err := xdr.Unmarshal(r, &m); err != nil {
		return nil, fmt.Errorf("exportfmt: unmarshal: %w", err)
	}
	return &m, nil
}

// EncodeToBytes is a convenience wrapper around Encode for callers that
// want the manifest as an in-memory buffer rather than written to an
// io.Writer.
func EncodeToBytes(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
