package gse

import (
	"bytes"
	"errors"
	"testing"
)

// buildCompletePacket encapsulates a single small PDU into one Complete
// packet via a real Encapsulator, the same way production code would, so
// the Refragmenter is exercised against a packet with a genuine header.
func buildCompletePacket(t *testing.T, pdu []byte, label [6]byte, protocolType uint16) *Fragment {
	t.Helper()
	e, err := NewEncapsulator(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	f, err := CreateWithData(len(pdu), 16, 8, pdu)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReceivePDU(f, label, LT6Byte, protocolType, 0); err != nil {
		t.Fatal(err)
	}
	// GetPacket (not GetPacketCopy) so the returned window keeps the
	// headroom reserved ahead of the PDU -- refragmenting a Complete
	// packet into First+Last grows the header by 3 bytes in place, which
	// needs that headroom (see RefragHeadroom).
	pkt, err := e.GetPacket(MaxPacketLength, 0)
	if err != nil {
		t.Fatal(err)
	}
	return pkt
}

func TestRefragmentCompleteSplitsIntoFirstAndLast(t *testing.T) {
	pdu := bytes.Repeat([]byte("abcdefgh"), 4) // 32 bytes
	label := [6]byte{1, 2, 3, 4, 5, 6}
	pkt := buildCompletePacket(t, pdu, label, 0x0800)

	r := NewRefragmenter()
	p1, p2, err := r.Refragment(pkt, LT6Byte, RefragHeadroom, 0, 0, HeaderLen(First, LT6Byte)+10)
	if err != nil {
		t.Fatal(err)
	}

	h1, err := ParseHeader(p1.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if h1.PayloadType != First {
		t.Fatalf("packet1 PayloadType = %v, want First", h1.PayloadType)
	}
	if h1.FragID != 0 {
		t.Fatalf("packet1 FragID = %d, want 0 (qos)", h1.FragID)
	}
	h2, err := ParseHeader(p2.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if h2.PayloadType != Last {
		t.Fatalf("packet2 PayloadType = %v, want Last", h2.PayloadType)
	}
	if h2.FragID != 0 {
		t.Fatalf("packet2 FragID = %d, want 0 (qos)", h2.FragID)
	}

	d := NewDeencapsulator()
	res1, err := d.Packet(p1.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if res1.PDU != nil {
		t.Fatal("first fragment must not complete reassembly")
	}
	res2, err := d.Packet(p2.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if res2.PDU == nil {
		t.Fatal("expected reassembly to complete after the last fragment")
	}
	defer res2.PDU.Free()
	if !bytes.Equal(res2.PDU.Bytes(), pdu) {
		t.Fatalf("reassembled PDU = %q, want %q", res2.PDU.Bytes(), pdu)
	}

	p1.Free()
	p2.Free()
}

func TestRefragmentRejectsSplitTooSmall(t *testing.T) {
	pdu := []byte("0123456789")
	pkt := buildCompletePacket(t, pdu, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800)
	defer pkt.Free()

	r := NewRefragmenter()
	if _, _, err := r.Refragment(pkt, LT6Byte, RefragHeadroom, 0, 0, 1); !errors.Is(err, StatusLengthTooSmall) {
		t.Fatalf("expected StatusLengthTooSmall for a split before the header ends, got %v", err)
	}
}

func TestRefragmentUnnecessaryWhenAlreadyFits(t *testing.T) {
	pdu := []byte("0123456789")
	pkt := buildCompletePacket(t, pdu, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800)
	defer pkt.Free()

	r := NewRefragmenter()
	if _, _, err := r.Refragment(pkt, LT6Byte, RefragHeadroom, 0, 0, pkt.Length()); !errors.Is(err, StatusRefragUnnecessary) {
		t.Fatalf("expected StatusRefragUnnecessary when newLen1 >= packet length, got %v", err)
	}
}

func TestRefragmentRejectsQoSMismatch(t *testing.T) {
	h := HeaderLen(Subsequent, LTReUse)
	payload := bytes.Repeat([]byte{0x42}, 20)
	pkt, err := CreateWithData(h+len(payload), 0, 0, append(make([]byte, h), payload...))
	if err != nil {
		t.Fatal(err)
	}
	defer pkt.Free()
	hdr := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: h + len(payload) - FixedHeaderLen, FragID: 3}
	if _, err := hdr.Encode(pkt.Bytes()); err != nil {
		t.Fatal(err)
	}

	r := NewRefragmenter()
	if _, _, err := r.Refragment(pkt, LTReUse, 0, 0, 7, h+8); !errors.Is(err, StatusInvalidQoS) {
		t.Fatalf("expected StatusInvalidQoS when qos disagrees with the packet's FragID, got %v", err)
	}
}

func TestRefragmentSubsequentIntoTwoSubsequents(t *testing.T) {
	h := HeaderLen(Subsequent, LTReUse)
	payload := bytes.Repeat([]byte{0x42}, 20)
	pkt, err := CreateWithData(h+len(payload), 0, 0, append(make([]byte, h), payload...))
	if err != nil {
		t.Fatal(err)
	}
	hdr := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: h + len(payload) - FixedHeaderLen, FragID: 3}
	if _, err := hdr.Encode(pkt.Bytes()); err != nil {
		t.Fatal(err)
	}

	r := NewRefragmenter()
	p1, p2, err := r.Refragment(pkt, LTReUse, 0, 0, 3, h+8)
	if err != nil {
		t.Fatal(err)
	}
	h1, err := ParseHeader(p1.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ParseHeader(p2.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if h1.PayloadType != Subsequent || h2.PayloadType != Subsequent {
		t.Fatalf("expected both halves to stay Subsequent: %v, %v", h1.PayloadType, h2.PayloadType)
	}
	if h1.FragID != 3 || h2.FragID != 3 {
		t.Fatalf("FragID must be preserved across the split: %d, %d", h1.FragID, h2.FragID)
	}
	p1.Free()
	p2.Free()
}

func TestRefragmentLastNeverSplitsCRC(t *testing.T) {
	h := HeaderLen(Subsequent, LTReUse)
	payload := bytes.Repeat([]byte{0x42}, 20) // last 4 bytes are the CRC trailer
	pkt, err := CreateWithData(h+len(payload), 0, 0, append(make([]byte, h), payload...))
	if err != nil {
		t.Fatal(err)
	}
	hdr := &Header{PayloadType: Last, LabelType: LTReUse, GSELength: h + len(payload) - FixedHeaderLen, FragID: 9}
	if _, err := hdr.Encode(pkt.Bytes()); err != nil {
		t.Fatal(err)
	}

	// Ask for a split point 2 bytes before the end of the payload: naive
	// slicing would leave packet2 (the Last fragment) only 2 CRC bytes.
	r := NewRefragmenter()
	p1, p2, err := r.Refragment(pkt, LTReUse, 0, 0, 9, h+len(payload)-2)
	if err != nil {
		t.Fatal(err)
	}
	defer p1.Free()
	defer p2.Free()

	if got := p2.Length() - HeaderLen(Last, LTReUse); got < 4 {
		t.Fatalf("packet2 payload = %d bytes, want >= 4 for an intact CRC trailer", got)
	}
}

func TestRefragmentRecordsMetric(t *testing.T) {
	pdu := []byte("0123456789abcdef")
	pkt := buildCompletePacket(t, pdu, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800)

	rec := &fakeRefragRecorder{}
	r := NewRefragmenter(WithRefragRecorder(rec))
	p1, p2, err := r.Refragment(pkt, LT6Byte, RefragHeadroom, 0, 5, HeaderLen(First, LT6Byte)+8)
	if err != nil {
		t.Fatal(err)
	}
	defer p1.Free()
	defer p2.Free()

	if rec.refragmentedQoS != 5 {
		t.Fatalf("Recorder.Refragmented called with qos=%d, want 5", rec.refragmentedQoS)
	}
}

type fakeRefragRecorder struct {
	refragmentedQoS int
}

func (f *fakeRefragRecorder) PDUReceived(int)              {}
func (f *fakeRefragRecorder) PacketEmitted(int, PayloadType) {}
func (f *fakeRefragRecorder) Refragmented(qos int)         { f.refragmentedQoS = qos }
func (f *fakeRefragRecorder) CRCFailure(int)                {}
func (f *fakeRefragRecorder) DataOverwritten(int)           {}
func (f *fakeRefragRecorder) ContextTimeout(int)            {}
func (f *fakeRefragRecorder) FIFODepth(int, int)            {}
