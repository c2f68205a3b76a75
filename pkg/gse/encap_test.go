package gse

import (
	"bytes"
	"testing"
)

func TestNewEncapsulatorValidation(t *testing.T) {
	if _, err := NewEncapsulator(0, 4); err == nil {
		t.Fatal("expected error for zero QoS count")
	}
	if _, err := NewEncapsulator(1, 0); err == nil {
		t.Fatal("expected error for zero FIFO capacity")
	}
}

func TestReceivePDUValidation(t *testing.T) {
	e, err := NewEncapsulator(2, 4)
	if err != nil {
		t.Fatal(err)
	}

	f, _ := CreateWithData(4, 16, 8, []byte("data"))
	if err := e.ReceivePDU(f, [6]byte{}, LT6Byte, 0x0100, 0); err == nil {
		t.Fatal("expected StatusWrongProtocol for a sub-threshold protocol type")
	}

	f2, _ := CreateWithData(4, 16, 8, []byte("data"))
	if err := e.ReceivePDU(f2, [6]byte{}, LT6Byte, 0x0800, 9); err == nil {
		t.Fatal("expected StatusInvalidQoS for an out-of-range QoS")
	}
}

func TestEncapsulateCompletePDURoundTrip(t *testing.T) {
	e, err := NewEncapsulator(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	pdu := []byte("a short PDU that fits in one packet")
	f, err := CreateWithData(len(pdu), 16, 8, pdu)
	if err != nil {
		t.Fatal(err)
	}
	label := [6]byte{1, 2, 3, 4, 5, 6}
	if err := e.ReceivePDU(f, label, LT6Byte, 0x0800, 0); err != nil {
		t.Fatal(err)
	}

	pkt, err := e.GetPacketCopy(MaxPacketLength, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer pkt.Free()

	hdr, err := ParseHeader(pkt.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if hdr.PayloadType != Complete {
		t.Fatalf("PayloadType = %v, want Complete", hdr.PayloadType)
	}
	if hdr.ProtocolType != 0x0800 || hdr.Label != label {
		t.Fatalf("header mismatch: %+v", hdr)
	}

	d := NewDeencapsulator()
	res, err := d.Packet(pkt.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	defer res.PDU.Free()
	if !bytes.Equal(res.PDU.Bytes(), pdu) {
		t.Fatalf("reassembled PDU = %q, want %q", res.PDU.Bytes(), pdu)
	}
	if res.Label != label {
		t.Fatalf("reassembled label = %+v, want %+v", res.Label, label)
	}
}

func TestEncapsulateFragmentedPDURoundTrip(t *testing.T) {
	e, err := NewEncapsulator(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	pdu := bytes.Repeat([]byte("0123456789"), 50) // 500 bytes, forces fragmentation
	f, err := CreateWithData(len(pdu), 16, 8, pdu)
	if err != nil {
		t.Fatal(err)
	}
	label := [6]byte{9, 9, 9, 9, 9, 9}
	if err := e.ReceivePDU(f, label, LT6Byte, 0x86DD, 0); err != nil {
		t.Fatal(err)
	}

	d := NewDeencapsulator()
	var reassembled *Fragment
	for {
		depth, _ := e.FIFODepth(0)
		if depth == 0 {
			break
		}
		pkt, err := e.GetPacketCopy(64, 0)
		if err != nil {
			t.Fatal(err)
		}
		res, err := d.Packet(pkt.Bytes())
		pkt.Free()
		if err != nil {
			t.Fatal(err)
		}
		if res.PDU != nil {
			reassembled = res.PDU
		}
	}
	if reassembled == nil {
		t.Fatal("never received a reassembled PDU")
	}
	defer reassembled.Free()
	if !bytes.Equal(reassembled.Bytes(), pdu) {
		t.Fatalf("reassembled PDU length = %d, want %d", reassembled.Length(), len(pdu))
	}
}

func TestGetPacketExtensionCallback(t *testing.T) {
	e, err := NewEncapsulator(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	const realProto = uint16(0x0800)
	extBody := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	e.SetExtensionCallback(func(protocolType uint16) ([]byte, uint16, bool, error) {
		if protocolType != realProto {
			t.Fatalf("callback saw protocolType 0x%04x, want 0x%04x", protocolType, realProto)
		}
		buf := make([]byte, len(extBody)+2)
		copy(buf, extBody)
		head, n, err := BuildExtensions(
			[]Extension{{HLen: 2, HType: 0x05, Data: extBody}},
			realProto, buf)
		if err != nil {
			return nil, 0, false, err
		}
		return buf[:n], head, true, nil
	})

	pdu := []byte("pdu data")
	f, err := CreateWithData(len(pdu), 16, 8, pdu)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReceivePDU(f, [6]byte{}, LTNone, realProto, 0); err != nil {
		t.Fatal(err)
	}

	pkt, err := e.GetPacketCopy(MaxPacketLength, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer pkt.Free()

	d := NewDeencapsulator()
	res, err := d.Packet(pkt.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	defer res.PDU.Free()
	if !bytes.Equal(res.PDU.Bytes(), pdu) {
		t.Fatalf("reassembled PDU = %q, want %q", res.PDU.Bytes(), pdu)
	}
	if res.ProtocolType != realProto {
		t.Fatalf("ProtocolType = 0x%04x, want 0x%04x", res.ProtocolType, realProto)
	}
	if len(res.Extensions) != 1 || res.Extensions[0].HType != 0x05 {
		t.Fatalf("extensions = %+v", res.Extensions)
	}
}

func TestGetPacketEmptyFIFO(t *testing.T) {
	e, err := NewEncapsulator(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetPacket(100, 0); err == nil {
		t.Fatal("expected StatusFIFOEmpty")
	}
}
