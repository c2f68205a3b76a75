package gse

import "encoding/binary"

// PayloadType distinguishes the four GSE header variants, selected by
// the (S, E) bit pair.
type PayloadType int

const (
	// Complete carries an entire, unfragmented PDU.
	Complete PayloadType = iota
	// First carries the first fragment of a PDU.
	First
	// Subsequent carries a middle fragment of a PDU.
	Subsequent
	// Last carries the final fragment of a PDU, trailed by its CRC32.
	Last
)

func (pt PayloadType) s() bool { return pt == Complete || pt == First }
func (pt PayloadType) e() bool { return pt == Complete || pt == Last }

func payloadTypeFromSE(s, e bool) PayloadType {
	switch {
	case s && e:
		return Complete
	case s && !e:
		return First
	case !s && e:
		return Last
	default:
		return Subsequent
	}
}

// LabelType selects the label encoding per the fixed header's 2-bit LT
// field. LT6Byte and LT3Byte carry a label inline; LTNone carries none;
// LTReUse carries none but tells the de-encapsulator to reuse the label
// recorded for this FragID by an earlier first fragment, and is only
// legal on Subsequent/Last headers.
type LabelType int

const (
	LT6Byte LabelType = 0
	LT3Byte LabelType = 1
	LTNone  LabelType = 2
	LTReUse LabelType = 3
)

// LabelLen returns the number of inline label bytes for lt (0 for
// LTNone and LTReUse).
func LabelLen(lt LabelType) int {
	switch lt {
	case LT6Byte:
		return 6
	case LT3Byte:
		return 3
	default:
		return 0
	}
}

// FixedHeaderLen is the size in bytes of the mandatory S/E/LT/GSE_Length
// word present on every GSE packet.
const FixedHeaderLen = 2

// MinPacketLength is the smallest legal GSE packet: a fixed header plus
// at least the FragID byte of a subsequent/last fragment, per §4.E
// step 1 (LENGTH_TOO_SMALL below this).
const MinPacketLength = 3

// MaxGSELength is the largest value the 12-bit GSE_Length field can
// hold, giving MaxPacketLength = MaxGSELength + 2.
const MaxGSELength = 0x0FFF

// MaxPacketLength is the largest legal GSE packet length (4097 bytes).
const MaxPacketLength = MaxGSELength + FixedHeaderLen

// HeaderLen returns the number of header bytes (everything before the
// payload) for the given payload type and label type. It is fully
// determined by (payloadType, labelType), per §4.C.
func HeaderLen(pt PayloadType, lt LabelType) int {
	switch pt {
	case Complete:
		return FixedHeaderLen + 2 + LabelLen(lt)
	case First:
		return FixedHeaderLen + 1 + 2 + 2 + LabelLen(lt)
	default: // Subsequent, Last
		return FixedHeaderLen + 1
	}
}

// Header is the parsed content of a GSE packet header (everything
// before the opaque payload bytes).
type Header struct {
	PayloadType  PayloadType
	LabelType    LabelType
	GSELength    int // total packet length - 2
	FragID       byte
	TotalLength  uint16 // First only: label + protocol-type + PDU length
	ProtocolType uint16 // Complete/First only: real EtherType, or an extension chain head
	Label        [6]byte
}

// Len returns HeaderLen(h.PayloadType, h.LabelType).
func (h *Header) Len() int { return HeaderLen(h.PayloadType, h.LabelType) }

// parseFixedHeader decodes the two-byte S/E/LT/GSE_Length word. Per
// §4.C the word is big-endian with S as its most significant bit:
// bit0=S bit1=E bits2-3=LT bits4-15=GSE_Length.
func parseFixedHeader(word uint16) (s, e bool, lt LabelType, gseLength int) {
	s = word&0x8000 != 0
	e = word&0x4000 != 0
	lt = LabelType((word >> 12) & 0x3)
	gseLength = int(word & 0x0FFF)
	return
}

func buildFixedHeader(s, e bool, lt LabelType, gseLength int) uint16 {
	var word uint16
	if s {
		word |= 0x8000
	}
	if e {
		word |= 0x4000
	}
	word |= uint16(lt&0x3) << 12
	word |= uint16(gseLength) & 0x0FFF
	return word
}

// ParseHeader parses a GSE packet's header from data, the full packet
// bytes. It validates GSE_Length against len(data), label type validity,
// and (for Complete/First headers, which carry an inline label) rejects
// well-known invalid label patterns via validateLabel (§4.G steps 3-4).
// It does not walk extension chains -- see ParseExtensions, invoked by
// Deencapsulator.Packet.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < MinPacketLength {
		return nil, newErr("ParseHeader", StatusPacketTooSmall)
	}
	word := binary.BigEndian.Uint16(data[0:2])
	if word == 0 {
		// All-zero first word: padding marker, not a header. Callers
		// that need PADDING_DETECTED semantics check this before
		// calling ParseHeader; ParseHeader itself returns it as an
		// error carrying StatusPaddingDetected, since a padding marker
		// carries no packet.
		return nil, newErr("ParseHeader", StatusPaddingDetected)
	}
	s, e, lt, gseLength := parseFixedHeader(word)
	if gseLength+FixedHeaderLen != len(data) {
		return nil, newErr("ParseHeader", StatusInvalidGSELength)
	}
	pt := payloadTypeFromSE(s, e)
	if pt != Subsequent && pt != Last && lt == LTReUse {
		// LTReUse ("label re-use") is only meaningful once a first
		// fragment has registered a label for this FragID.
		return nil, newErr("ParseHeader", StatusInvalidLT)
	}

	h := &Header{PayloadType: pt, LabelType: lt, GSELength: gseLength}
	off := FixedHeaderLen

	switch pt {
	case Complete:
		if len(data) < off+2+LabelLen(lt) {
			return nil, newErr("ParseHeader", StatusInvalidHeader)
		}
		h.ProtocolType = binary.BigEndian.Uint16(data[off : off+2])
		off += 2
		copy(h.Label[:LabelLen(lt)], data[off:off+LabelLen(lt)])
		if err := validateLabel(lt, h.Label); err != nil {
			return nil, err
		}
	case First:
		if len(data) < off+1+2+2+LabelLen(lt) {
			return nil, newErr("ParseHeader", StatusInvalidHeader)
		}
		h.FragID = data[off]
		off++
		h.TotalLength = binary.BigEndian.Uint16(data[off : off+2])
		off += 2
		h.ProtocolType = binary.BigEndian.Uint16(data[off : off+2])
		off += 2
		copy(h.Label[:LabelLen(lt)], data[off:off+LabelLen(lt)])
		if err := validateLabel(lt, h.Label); err != nil {
			return nil, err
		}
	default: // Subsequent, Last
		if len(data) < off+1 {
			return nil, newErr("ParseHeader", StatusInvalidHeader)
		}
		h.FragID = data[off]
		off++
	}
	return h, nil
}

// validateLabel rejects well-known invalid label patterns per §4.G
// step 4. LTNone and LTReUse carry no inline label and are never
// subject to this check. An all-zero label never identifies a real
// sender, and an all-ones label is the broadcast address reserved by
// the MAC-like 6/3-byte label conventions GSE labels borrow from --
// neither is a value a first/complete fragment should legally carry.
func validateLabel(lt LabelType, label [6]byte) error {
	n := LabelLen(lt)
	if n == 0 {
		return nil
	}
	allZero, allOnes := true, true
	for _, b := range label[:n] {
		if b != 0x00 {
			allZero = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}
	if allZero || allOnes {
		return newErr("ParseHeader", StatusInvalidLabel)
	}
	return nil
}

// Encode writes h's header bytes (fixed header plus variant tail) into
// buf, which must be at least h.Len() bytes, and returns the number of
// bytes written.
func (h *Header) Encode(buf []byte) (int, error) {
	n := h.Len()
	if len(buf) < n {
		return 0, newErr("Encode", StatusInvalidHeader)
	}
	word := buildFixedHeader(h.PayloadType.s(), h.PayloadType.e(), h.LabelType, h.GSELength)
	binary.BigEndian.PutUint16(buf[0:2], word)
	off := FixedHeaderLen

	switch h.PayloadType {
	case Complete:
		binary.BigEndian.PutUint16(buf[off:off+2], h.ProtocolType)
		off += 2
		off += copy(buf[off:off+LabelLen(h.LabelType)], h.Label[:LabelLen(h.LabelType)])
	case First:
		buf[off] = h.FragID
		off++
		binary.BigEndian.PutUint16(buf[off:off+2], h.TotalLength)
		off += 2
		binary.BigEndian.PutUint16(buf[off:off+2], h.ProtocolType)
		off += 2
		off += copy(buf[off:off+LabelLen(h.LabelType)], h.Label[:LabelLen(h.LabelType)])
	default:
		buf[off] = h.FragID
		off++
	}
	return off, nil
}

// IsPadding reports whether the first two bytes of data are the
// all-zero padding marker (S=E=LT=0, GSE_Length=0) described in §6.
func IsPadding(data []byte) bool {
	return len(data) >= FixedHeaderLen && binary.BigEndian.Uint16(data[0:2]) == 0
}
