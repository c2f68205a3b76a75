package gse

import "testing"

func TestExtensionChainRoundTrip(t *testing.T) {
	exts := []Extension{
		{HLen: 1, HType: 0x01, Data: []byte{0xAA, 0xBB}},
		{HLen: 2, HType: 0x02, Data: []byte{0x01, 0x02, 0x03, 0x04}},
	}
	const etherType = uint16(0x0800)

	buf := make([]byte, 64)
	head, n, err := BuildExtensions(exts, etherType, buf)
	if err != nil {
		t.Fatal(err)
	}
	if head >= EtherTypeThreshold {
		t.Fatalf("chain head 0x%04x should be below the EtherType threshold", head)
	}

	gotExts, gotEtherType, consumed, err := ParseExtensions(head, buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if consumed != n {
		t.Fatalf("consumed = %d, want %d", consumed, n)
	}
	if gotEtherType != etherType {
		t.Fatalf("gotEtherType = 0x%04x, want 0x%04x", gotEtherType, etherType)
	}
	if len(gotExts) != len(exts) {
		t.Fatalf("got %d extensions, want %d", len(gotExts), len(exts))
	}
	for i, e := range gotExts {
		if e.HLen != exts[i].HLen || e.HType != exts[i].HType {
			t.Fatalf("extension %d mismatch: got %+v, want %+v", i, e, exts[i])
		}
	}
}

func TestParseExtensionsNoChain(t *testing.T) {
	exts, etherType, consumed, err := ParseExtensions(0x0800, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if exts != nil || etherType != 0x0800 || consumed != 0 {
		t.Fatalf("expected a no-op pass-through, got (%v, 0x%04x, %d)", exts, etherType, consumed)
	}
}

func TestBuildExtensionsRejectsSubThresholdEtherType(t *testing.T) {
	exts := []Extension{{HLen: 1, HType: 0, Data: []byte{0, 0}}}
	buf := make([]byte, 16)
	if _, _, err := BuildExtensions(exts, 0x0100, buf); err == nil {
		t.Fatal("expected error for an EtherType below the threshold")
	}
}

func TestParseExtensionsRejectsTruncatedChain(t *testing.T) {
	// hLen=1 claims 2 payload bytes plus a following word, but data is empty.
	head := encodeExtWord(1, 0x01)
	if _, _, _, err := ParseExtensions(head, nil); err == nil {
		t.Fatal("expected error for truncated extension chain")
	}
}
