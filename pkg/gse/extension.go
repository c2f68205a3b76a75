package gse

import "encoding/binary"

// EtherTypeThreshold is the boundary the ProtocolType field is tested
// against: values at or above it are a real EtherType; values below it
// are the (H-LEN, H-TYPE) word of the first header extension in a
// chain, per §4.C.
const EtherTypeThreshold = 0x0600

// MaxExtensionChainBytes bounds the total size of an extension chain a
// single Deencapsulator.Packet call will walk, guarding against a
// malformed chain that never terminates within the packet. The limit
// counts each extension's data bytes plus the 2-byte word that follows
// it, so at most six extensions of the largest H-LEN (12 bytes each) fit.
const MaxExtensionChainBytes = 2 * 5 * 8 // 80 bytes

// Extension is one decoded header-extension word: an (H-LEN, H-TYPE)
// tag followed by 2*H-LEN payload bytes it introduces into the header.
type Extension struct {
	HLen  int // 1..5
	HType uint16
	Data  []byte // 2*HLen bytes
}

// encodeExtWord packs (hLen, hType) the way this implementation chooses
// to lay out the tagged ProtocolType variant (§9 Design Notes: "expose
// this as a tagged variant"): hLen in bits 10-8, hType in bits 7-0. This
// keeps every non-terminal word's numeric value below
// EtherTypeThreshold, the only externally-observable contract the
// protocol imposes on the encoding.
func encodeExtWord(hLen int, hType uint16) uint16 {
	return uint16(hLen&0x7)<<8 | (hType & 0x00FF)
}

func decodeExtWord(word uint16) (hLen int, hType uint16) {
	return int((word >> 8) & 0x7), word & 0x00FF
}

// ParseExtensions walks the extension chain starting at protocolType,
// reading successive (H-LEN, H-TYPE) words and their payload bytes from
// data, until a word whose value is >= EtherTypeThreshold is reached --
// that word is the chain's terminating real EtherType. It returns the
// decoded extensions, the terminating EtherType, and the number of
// payload bytes consumed from data.
func ParseExtensions(protocolType uint16, data []byte) (exts []Extension, etherType uint16, consumed int, err error) {
	if protocolType >= EtherTypeThreshold {
		return nil, protocolType, 0, nil
	}
	word := protocolType
	for {
		hLen, hType := decodeExtWord(word)
		if hLen == 0 || hLen > 5 {
			return nil, 0, 0, newErr("ParseExtensions", StatusInvalidExtensions)
		}
		n := 2 * hLen
		if consumed+n > len(data) {
			return nil, 0, 0, newErr("ParseExtensions", StatusInvalidExtensions)
		}
		if consumed+n > MaxExtensionChainBytes {
			return nil, 0, 0, newErr("ParseExtensions", StatusExtensionNotSupported)
		}
		extData := data[consumed : consumed+n]
		exts = append(exts, Extension{HLen: hLen, HType: hType, Data: extData})
		consumed += n

		if consumed+2 > len(data) {
			return nil, 0, 0, newErr("ParseExtensions", StatusInvalidExtensions)
		}
		word = binary.BigEndian.Uint16(data[consumed : consumed+2])
		consumed += 2
		if word >= EtherTypeThreshold {
			return exts, word, consumed, nil
		}
	}
}

// BuildExtensions encodes exts followed by the terminating etherType
// into buf, returning the chain head value to store in the packet's
// ProtocolType field and the number of bytes written to buf (the chain
// body, not counting the head word itself, which the caller writes into
// the ordinary ProtocolType slot).
func BuildExtensions(exts []Extension, etherType uint16, buf []byte) (head uint16, n int, err error) {
	if len(exts) == 0 {
		return etherType, 0, nil
	}
	if etherType < EtherTypeThreshold {
		return 0, 0, newErr("BuildExtensions", StatusInvalidExtensions)
	}
	head = encodeExtWord(exts[0].HLen, exts[0].HType)

	off := 0
	for i, ext := range exts {
		need := len(ext.Data)
		if need != 2*ext.HLen {
			return 0, 0, newErr("BuildExtensions", StatusInvalidExtensions)
		}
		if off+need > len(buf) {
			return 0, 0, newErr("BuildExtensions", StatusExtensionNotSupported)
		}
		off += copy(buf[off:off+need], ext.Data)

		var nextWord uint16
		if i+1 < len(exts) {
			nextWord = encodeExtWord(exts[i+1].HLen, exts[i+1].HType)
		} else {
			nextWord = etherType
		}
		if off+2 > len(buf) {
			return 0, 0, newErr("BuildExtensions", StatusExtensionNotSupported)
		}
		binary.BigEndian.PutUint16(buf[off:off+2], nextWord)
		off += 2
	}
	return head, off, nil
}

// ExtensionBuilder is the user-supplied callback contract from §6: given
// the real protocol type the PDU declares, it returns the extension
// chain to prefix onto the packet: the already-encoded chain body bytes
// (as BuildExtensions writes them, ending with the terminating EtherType
// word, which must equal protocolType) and the chain head's encoded
// (H-LEN, H-TYPE) word. Returning ok=false means "no extensions for this
// PDU". GetPacket prefixes the body as given; it does not parse or check
// the chain.
type ExtensionBuilder func(protocolType uint16) (chainBody []byte, head uint16, ok bool, err error)
