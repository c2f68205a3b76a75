package gse

import (
	"errors"
	"testing"
)

func TestDeencapPaddingDetected(t *testing.T) {
	d := NewDeencapsulator()
	res, err := d.Packet(make([]byte, 10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusPaddingDetected || res.PDU != nil {
		t.Fatalf("got %+v, want PaddingDetected with no PDU", res)
	}
}

func TestDeencapSubsequentWithoutFirstIsRejected(t *testing.T) {
	h := HeaderLen(Subsequent, LTReUse)
	buf := make([]byte, h+4)
	hdr := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: len(buf) - FixedHeaderLen, FragID: 1}
	hdr.Encode(buf)

	d := NewDeencapsulator()
	if _, err := d.Packet(buf); !errors.Is(err, StatusCtxNotInit) {
		t.Fatalf("got %v, want StatusCtxNotInit", err)
	}
}

func TestDeencapCorruptedCRCIsRejected(t *testing.T) {
	e, err := NewEncapsulator(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	pdu := make([]byte, 300)
	for i := range pdu {
		pdu[i] = byte(i)
	}
	f, err := CreateWithData(len(pdu), 16, 8, pdu)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReceivePDU(f, [6]byte{}, LTNone, 0x0800, 0); err != nil {
		t.Fatal(err)
	}

	d := NewDeencapsulator()
	var sawCRCFailure bool
	for {
		depth, _ := e.FIFODepth(0)
		if depth == 0 {
			break
		}
		pkt, err := e.GetPacketCopy(64, 0)
		if err != nil {
			t.Fatal(err)
		}
		if nextDepth, _ := e.FIFODepth(0); nextDepth == 0 {
			// Last fragment about to be consumed: corrupt a payload byte
			// so the trailing CRC32 no longer validates.
			pkt.Bytes()[HeaderLen(Last, LTReUse)] ^= 0xFF
		}

		res, perr := d.Packet(pkt.Bytes())
		pkt.Free()
		if res.PDU != nil {
			res.PDU.Free()
		}
		if perr != nil {
			if !errors.Is(perr, StatusInvalidCRC) {
				t.Fatal(perr)
			}
			sawCRCFailure = true
		}
	}
	if !sawCRCFailure {
		t.Fatal("expected a StatusInvalidCRC somewhere in the stream")
	}
}

func TestDeencapContextTimeout(t *testing.T) {
	h := HeaderLen(First, LT6Byte)
	buf := make([]byte, h+10)
	hdr := &Header{PayloadType: First, LabelType: LT6Byte, FragID: 5, TotalLength: uint16(8 + 10), ProtocolType: 0x0800, Label: [6]byte{1, 2, 3, 4, 5, 6}}
	hdr.GSELength = len(buf) - FixedHeaderLen
	hdr.Encode(buf)

	d := NewDeencapsulator()
	if _, err := d.Packet(buf); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < defaultBBFrameTimeout+1; i++ {
		d.NewBBFrame()
	}

	h2 := HeaderLen(Subsequent, LTReUse)
	buf2 := make([]byte, h2+4)
	hdr2 := &Header{PayloadType: Last, LabelType: LTReUse, FragID: 5, GSELength: len(buf2) - FixedHeaderLen}
	hdr2.Encode(buf2)
	if _, err := d.Packet(buf2); !errors.Is(err, StatusCtxNotInit) {
		t.Fatalf("got %v, want StatusCtxNotInit after the reassembly context timed out", err)
	}
}

func TestDeencapWithBBFrameTimeoutOverride(t *testing.T) {
	h := HeaderLen(First, LT6Byte)
	buf := make([]byte, h+10)
	hdr := &Header{PayloadType: First, LabelType: LT6Byte, FragID: 5, TotalLength: uint16(8 + 10), ProtocolType: 0x0800, Label: [6]byte{1, 2, 3, 4, 5, 6}}
	hdr.GSELength = len(buf) - FixedHeaderLen
	hdr.Encode(buf)

	d := NewDeencapsulator(WithBBFrameTimeout(2))
	if _, err := d.Packet(buf); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		d.NewBBFrame()
	}

	h2 := HeaderLen(Subsequent, LTReUse)
	buf2 := make([]byte, h2+4)
	hdr2 := &Header{PayloadType: Last, LabelType: LTReUse, FragID: 5, GSELength: len(buf2) - FixedHeaderLen}
	hdr2.Encode(buf2)
	if _, err := d.Packet(buf2); !errors.Is(err, StatusCtxNotInit) {
		t.Fatalf("got %v, want StatusCtxNotInit after the overridden timeout elapsed", err)
	}
}

func TestDeencapFirstPreemptsStaleContext(t *testing.T) {
	h := HeaderLen(First, LT6Byte)
	buf := make([]byte, h+10)
	hdr := &Header{PayloadType: First, LabelType: LT6Byte, FragID: 5, TotalLength: uint16(8 + 10), ProtocolType: 0x0800, Label: [6]byte{1, 2, 3, 4, 5, 6}}
	hdr.GSELength = len(buf) - FixedHeaderLen
	hdr.Encode(buf)

	d := NewDeencapsulator()
	if _, err := d.Packet(buf); err != nil {
		t.Fatal(err)
	}
	// A second First fragment for the same FragID must not be rejected;
	// it silently discards the stale partial reassembly.
	if _, err := d.Packet(buf); err != nil {
		t.Fatal(err)
	}
}
