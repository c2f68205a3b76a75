package gse

// CRC32 is the ETSI-GSE CRC: the standard reversed polynomial
// 0xEDB88320, initial value 0xFFFFFFFF, no final XOR, LSB-first, fed one
// byte at a time. It covers (TotalLength, ProtocolType, Label, PDU) of a
// reassembled PDU and is written into the trailer of the last fragment;
// a complete-PDU packet carries no CRC.
//
// CRCState is the running CRC as a plain value, so a caller can compute
// it incrementally over chunks and finalize it once every byte has been
// seen. The Encapsulator computes the CRC in one pass when it emits a
// first fragment; the Deencapsulator keeps one CRCState per reassembly
// context and updates it as each fragment arrives.
type CRCState uint32

// CRCSeed is the ETSI-GSE initial CRC value.
const CRCSeed CRCState = 0xFFFFFFFF

var crc32Table = buildCRC32Table()

func buildCRC32Table() [256]uint32 {
	const poly = 0xEDB88320
	var table [256]uint32
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for bit := 0; bit < 8; bit++ {
			if c&1 != 0 {
				c = poly ^ (c >> 1)
			} else {
				c = c >> 1
			}
		}
		table[i] = c
	}
	return table
}

// Seed returns the ETSI-GSE initial CRC state, ready for Update.
func Seed() CRCState { return CRCSeed }

// Update folds data into the running CRC state and returns the new
// state. crc(c1‖c2‖…‖cn, Seed()) == Seed().Update(c1).Update(c2)…
// Update(cn) for any partition of the input into chunks c1…cn.
func (s CRCState) Update(data []byte) CRCState {
	c := uint32(s)
	for _, b := range data {
		c = crc32Table[byte(c)^b] ^ (c >> 8)
	}
	return CRCState(c)
}

// Final returns the trailer value to write on the wire: the running
// state with no final XOR applied, per the ETSI-GSE definition.
func (s CRCState) Final() uint32 { return uint32(s) }

// CRC32 computes the ETSI-GSE CRC of data in a single call, starting
// from Seed(). It is a convenience wrapper over Seed().Update(data).
func CRC32(data []byte) uint32 {
	return Seed().Update(data).Final()
}
