package gse

import (
	"encoding/binary"
	"log/slog"
)

// RefragHeadroom is the largest number of bytes any in-place
// refragmentation rewrite grows a header by: splitting a Complete
// packet into First+Last adds a FragID byte and a TotalLength word to
// the surviving First header (§4.C). Callers that intend to pass a
// Complete packet to Refragment must reserve at least this much head
// offset when allocating it, or the in-place Shift that grows the
// header backward will fail with StatusPtrOutsideBuff.
const RefragHeadroom = 3

// crcReserve is the number of trailing bytes a Last fragment's CRC32
// trailer occupies.
const crcReserve = 4

// Refragmenter splits an already-emitted GSE packet into two smaller
// packets at a caller-chosen boundary, per §4.F. Splitting happens
// in-place on packet1's backing buffer where possible; packet2 is freshly
// allocated since the bytes it carries (trailing payload behind a fresh
// 3-byte Subsequent/Last header, plus a freshly computed CRC32 trailer
// when a Complete packet is split) did not previously exist as a
// standalone packet.
type Refragmenter struct {
	log *slog.Logger
	rec Recorder
}

// RefragOption configures a Refragmenter at construction time.
type RefragOption func(*Refragmenter)

// WithRefragLogger attaches a structured logger; a nil *slog.Logger is
// equivalent to not calling WithRefragLogger (slog.Default() is used).
func WithRefragLogger(l *slog.Logger) RefragOption {
	return func(r *Refragmenter) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRefragRecorder attaches a metrics Recorder.
func WithRefragRecorder(rec Recorder) RefragOption {
	return func(r *Refragmenter) { r.rec = rec }
}

// NewRefragmenter returns a ready-to-use Refragmenter.
func NewRefragmenter(opts ...RefragOption) *Refragmenter {
	r := &Refragmenter{log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refragment splits packet, a complete parsed GSE packet of the given
// labelType, so that packet1 (returned, rewritten in place) is at most
// newLen1 bytes and packet2 (freshly allocated with headOff/trailOff
// headroom reserved) carries the remainder, per §4.F.
//
// qos becomes the FragID carried on every header this call writes or
// rewrites (FragID equals qos by convention throughout the protocol).
// If packet already carries a FragID -- true of every PayloadType but
// Complete, which has none on the wire -- it must equal qos, else
// StatusInvalidQoS. headOff/trailOff are only consulted when packet2 is
// freshly allocated; they let the caller reserve headroom around
// packet2 the same way it did around packet1.
//
// newLen1 must leave at least HeaderLen bytes for packet1's own header
// plus at least one payload byte, and packet must have at least one
// payload byte left over for packet2. If packet2 ends up a Last
// fragment, packet1 is shortened as needed to guarantee packet2's
// trailing 4-byte CRC is never split across the two outputs.
func (r *Refragmenter) Refragment(packet *Fragment, labelType LabelType, headOff, trailOff, qos, newLen1 int) (packet1, packet2 *Fragment, err error) {
	if qos < 0 || qos > 255 {
		return nil, nil, newErr("Refragment", StatusInvalidQoS)
	}

	hdr, err := ParseHeader(packet.Bytes())
	if err != nil {
		return nil, nil, err
	}
	if hdr.LabelType != labelType && hdr.PayloadType != Subsequent && hdr.PayloadType != Last {
		return nil, nil, newErr("Refragment", StatusInvalidLT)
	}
	if hdr.PayloadType != Complete && hdr.FragID != byte(qos) {
		return nil, nil, newErr("Refragment", StatusInvalidQoS)
	}

	switch hdr.PayloadType {
	case Complete:
		packet1, packet2, err = r.splitComplete(packet, hdr, labelType, headOff, trailOff, byte(qos), newLen1)
	case First:
		packet1, packet2, err = r.splitFirst(packet, hdr, headOff, trailOff, byte(qos), newLen1)
	case Subsequent:
		packet1, packet2, err = r.splitMiddle(packet, hdr, headOff, trailOff, byte(qos), newLen1, Subsequent)
	case Last:
		packet1, packet2, err = r.splitMiddle(packet, hdr, headOff, trailOff, byte(qos), newLen1, Last)
	default:
		return nil, nil, newErr("Refragment", StatusInvalidHeader)
	}
	if err != nil {
		return nil, nil, err
	}

	if r.rec != nil {
		r.rec.Refragmented(qos)
	}
	r.log.Debug("gse: refrag-split", "qos", qos, "new_len1", newLen1,
		"packet1_len", packet1.Length(), "packet2_len", packet2.Length())
	return packet1, packet2, nil
}

// splitPoint validates newLen1 against packet's header length h1 and
// total length: too small for even one payload byte past the header is
// StatusLengthTooSmall, already fitting in one packet is
// StatusRefragUnnecessary.
func splitPoint(packet *Fragment, h1 int, newLen1 int) (int, error) {
	total := packet.Length()
	if newLen1 < h1+1 {
		return 0, newErr("Refragment", StatusLengthTooSmall)
	}
	if newLen1 >= total {
		return 0, newErr("Refragment", StatusRefragUnnecessary)
	}
	return newLen1, nil
}

// splitComplete turns a Complete packet into First+Last: packet1 becomes
// a First fragment over the leading bytes, packet2 a Last fragment
// (carrying a freshly computed CRC32) over the rest.
func (r *Refragmenter) splitComplete(packet *Fragment, hdr *Header, lt LabelType, headOff, trailOff int, fragID byte, newLen1 int) (*Fragment, *Fragment, error) {
	hc := HeaderLen(Complete, hdr.LabelType)
	hf := HeaderLen(First, hdr.LabelType)
	hl := HeaderLen(Last, LTReUse)

	split, err := splitPoint(packet, hf, newLen1)
	if err != nil {
		return nil, nil, err
	}
	payload := packet.Bytes()[hc:]
	pduLen := len(payload)
	payload1Len := split - hf
	if payload1Len < 1 || payload1Len >= pduLen {
		return nil, nil, newErr("Refragment", StatusLengthTooSmall)
	}
	// packet2 is always a Last fragment here: guarantee its CRC never
	// ends up split across packet1 and packet2.
	if pduLen-payload1Len < crcReserve {
		payload1Len = pduLen - crcReserve
		if payload1Len < 1 {
			return nil, nil, newErr("Refragment", StatusLengthTooSmall)
		}
	}
	payload2Len := pduLen - payload1Len

	totalLength := uint16(LabelLen(hdr.LabelType) + 2 + pduLen)

	p2, err := Create(hl+payload2Len+crcReserve, headOff, trailOff)
	if err != nil {
		return nil, nil, err
	}
	p2h := &Header{PayloadType: Last, LabelType: LTReUse, GSELength: hl + payload2Len + crcReserve - FixedHeaderLen, FragID: fragID}
	if _, err := p2h.Encode(p2.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	copy(p2.Bytes()[hl:hl+payload2Len], payload[payload1Len:])
	crc := CRC32(buildCRCInput(totalLength, hdr.ProtocolType, hdr.Label[:LabelLen(hdr.LabelType)], payload))
	binary.BigEndian.PutUint32(p2.Bytes()[hl+payload2Len:], crc)

	if err := packet.Shift(hc-hf, -(pduLen - payload1Len)); err != nil {
		p2.Free()
		return nil, nil, err
	}
	p1h := &Header{PayloadType: First, LabelType: hdr.LabelType, GSELength: packet.Length() - FixedHeaderLen,
		FragID: fragID, TotalLength: totalLength, ProtocolType: hdr.ProtocolType, Label: hdr.Label}
	copy(packet.Bytes()[hf:hf+payload1Len], payload[:payload1Len])
	if _, err := p1h.Encode(packet.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	return packet, p2, nil
}

// splitFirst turns a First fragment into First+Subsequent: packet1 keeps
// the First header over a shorter payload prefix; packet2 is a fresh
// Subsequent fragment over the remaining payload bytes (no CRC present
// yet -- it travels in the eventual Last fragment, so no CRC-reserve
// guard is needed here).
func (r *Refragmenter) splitFirst(packet *Fragment, hdr *Header, headOff, trailOff int, fragID byte, newLen1 int) (*Fragment, *Fragment, error) {
	hf := HeaderLen(First, hdr.LabelType)
	hs := HeaderLen(Subsequent, LTReUse)

	split, err := splitPoint(packet, hf, newLen1)
	if err != nil {
		return nil, nil, err
	}
	oldPayload := append([]byte(nil), packet.Bytes()[hf:]...)
	payload1Len := split - hf
	if payload1Len < 1 || payload1Len >= len(oldPayload) {
		return nil, nil, newErr("Refragment", StatusLengthTooSmall)
	}
	rest := oldPayload[payload1Len:]

	p2, err := Create(hs+len(rest), headOff, trailOff)
	if err != nil {
		return nil, nil, err
	}
	p2h := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: hs + len(rest) - FixedHeaderLen, FragID: fragID}
	if _, err := p2h.Encode(p2.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	copy(p2.Bytes()[hs:], rest)

	if err := packet.Shift(0, -len(rest)); err != nil {
		p2.Free()
		return nil, nil, err
	}
	hdr.FragID = fragID
	hdr.GSELength = packet.Length() - FixedHeaderLen
	if _, err := hdr.Encode(packet.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	return packet, p2, nil
}

// splitMiddle handles Subsequent->Subsequent+Subsequent and
// Last->Subsequent+Last: both variants share the 3-byte header shape, so
// the split only moves trailing bytes into a freshly allocated second
// packet of the same terminal PayloadType as the original. When tailType
// is Last, packet1 is shortened as needed so packet2's trailing CRC is
// never split across the two outputs.
func (r *Refragmenter) splitMiddle(packet *Fragment, hdr *Header, headOff, trailOff int, fragID byte, newLen1 int, tailType PayloadType) (*Fragment, *Fragment, error) {
	h := HeaderLen(Subsequent, LTReUse)
	split, err := splitPoint(packet, h, newLen1)
	if err != nil {
		return nil, nil, err
	}
	oldPayload := append([]byte(nil), packet.Bytes()[h:]...)
	len1 := split - h
	if len1 < 1 || len1 >= len(oldPayload) {
		return nil, nil, newErr("Refragment", StatusLengthTooSmall)
	}
	if tailType == Last && len(oldPayload)-len1 < crcReserve {
		len1 = len(oldPayload) - crcReserve
		if len1 < 1 {
			return nil, nil, newErr("Refragment", StatusLengthTooSmall)
		}
	}
	rest := oldPayload[len1:]

	p2, err := Create(h+len(rest), headOff, trailOff)
	if err != nil {
		return nil, nil, err
	}
	p2h := &Header{PayloadType: tailType, LabelType: LTReUse, GSELength: h + len(rest) - FixedHeaderLen, FragID: fragID}
	if _, err := p2h.Encode(p2.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	copy(p2.Bytes()[h:], rest)

	if err := packet.Shift(0, -len(rest)); err != nil {
		p2.Free()
		return nil, nil, err
	}
	p1h := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: packet.Length() - FixedHeaderLen, FragID: fragID}
	if _, err := p1h.Encode(packet.Bytes()); err != nil {
		p2.Free()
		return nil, nil, err
	}
	return packet, p2, nil
}

func buildCRCInput(totalLength, protocolType uint16, label []byte, pdu []byte) []byte {
	out := make([]byte, 0, 4+len(label)+len(pdu))
	var head [4]byte
	binary.BigEndian.PutUint16(head[0:2], totalLength)
	binary.BigEndian.PutUint16(head[2:4], protocolType)
	out = append(out, head[:]...)
	out = append(out, label...)
	out = append(out, pdu...)
	return out
}
