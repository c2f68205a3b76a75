// Package gse implements the Generic Stream Encapsulation protocol
// (ETSI TS 102 606 / DVB A134): encapsulation of variable-length PDUs
// into fixed-size GSE packets, refragmentation of an already-emitted
// packet, and de-encapsulation with CRC32 validation and FragID timeout
// recovery.
//
// The package does not assemble or parse BBFrames; callers pack
// individual GSE packets into whatever baseband-frame transport they
// use and call NewBBFrame once per received frame.
package gse

import "fmt"

// Status is a GSE library result code. Every exported operation returns
// one; families are distinguished by the top byte per the protocol's
// error taxonomy:
//
//	0x00 success / informative   0x01 alloc & pointer   0x02 virtual buffer
//	0x03 FIFO                    0x04 length             0x05 header
//	0x06 de-encap context        0x07 received PDU       0x08 extension
type Status int

// Family returns the top-byte family a Status belongs to.
func (s Status) Family() byte {
	return byte(int(s) >> 8)
}

// IsInformative reports whether s is a recoverable/non-error outcome
// (OK, PDU_RECEIVED, DATA_OVERWRITTEN, PARTIAL_CRC, PADDING_DETECTED),
// as opposed to a hard failure that leaves no result to use.
func (s Status) IsInformative() bool {
	switch s {
	case StatusOK, StatusPDUReceived, StatusDataOverwritten,
		StatusPartialCRC, StatusPaddingDetected:
		return true
	default:
		return false
	}
}

const (
	// 0x00 -- success / informative
	StatusOK              Status = 0x0000
	StatusPDUReceived     Status = 0x0001
	StatusPartialCRC      Status = 0x0002
	StatusPaddingDetected Status = 0x0003

	// 0x01 -- alloc & pointer
	StatusNullPtr        Status = 0x0100
	StatusMallocFailed   Status = 0x0101
	StatusInternalError  Status = 0x0102
	StatusBuffLengthNull Status = 0x0103

	// 0x02 -- virtual buffer
	StatusMultipleVBufAccess Status = 0x0200
	StatusEmptyFrag          Status = 0x0201
	StatusFragNbr            Status = 0x0202
	StatusPtrOutsideBuff     Status = 0x0203
	StatusFragPtrs           Status = 0x0204
	StatusOffsetTooHigh      Status = 0x0205
	StatusDataTooLong        Status = 0x0206

	// 0x03 -- FIFO
	StatusFIFOFull     Status = 0x0300
	StatusFIFOEmpty    Status = 0x0301
	StatusFIFOZeroSize Status = 0x0302
	StatusZeroQoS      Status = 0x0303

	// 0x04 -- length
	StatusPDULength       Status = 0x0400
	StatusLengthTooSmall  Status = 0x0401
	StatusLengthTooHigh   Status = 0x0402
	StatusRefragUnnecessary Status = 0x0403

	// 0x05 -- header
	StatusInvalidLT         Status = 0x0500
	StatusInvalidGSELength  Status = 0x0501
	StatusInvalidQoS        Status = 0x0502
	StatusInvalidExtensions Status = 0x0503
	StatusInvalidLabel      Status = 0x0504
	StatusInvalidHeader     Status = 0x0505
	StatusWrongProtocol     Status = 0x0506

	// 0x06 -- de-encap context
	StatusCtxNotInit      Status = 0x0600
	StatusTimeout         Status = 0x0601
	StatusNoSpaceInBuff   Status = 0x0602
	StatusPacketTooSmall  Status = 0x0603
	StatusDataOverwritten Status = 0x0604

	// 0x07 -- received PDU
	StatusInvalidDataLength Status = 0x0700
	StatusInvalidCRC        Status = 0x0701
	StatusCRCFragmented     Status = 0x0702

	// 0x08 -- extension
	StatusExtensionFieldAbsent Status = 0x0800
	StatusExtensionUnavailable Status = 0x0801
	StatusExtensionCBFailed    Status = 0x0802
	StatusExtensionNotSupported Status = 0x0803
)

var statusNames = map[Status]string{
	StatusOK:              "OK",
	StatusPDUReceived:     "PDU_RECEIVED",
	StatusPartialCRC:      "PARTIAL_CRC",
	StatusPaddingDetected: "PADDING_DETECTED",

	StatusNullPtr:        "NULL_PTR",
	StatusMallocFailed:   "MALLOC_FAILED",
	StatusInternalError:  "INTERNAL_ERROR",
	StatusBuffLengthNull: "BUFF_LENGTH_NULL",

	StatusMultipleVBufAccess: "MULTIPLE_VBUF_ACCESS",
	StatusEmptyFrag:          "EMPTY_FRAG",
	StatusFragNbr:            "FRAG_NBR",
	StatusPtrOutsideBuff:     "PTR_OUTSIDE_BUFF",
	StatusFragPtrs:           "FRAG_PTRS",
	StatusOffsetTooHigh:      "OFFSET_TOO_HIGH",
	StatusDataTooLong:        "DATA_TOO_LONG",

	StatusFIFOFull:     "FIFO_FULL",
	StatusFIFOEmpty:    "FIFO_EMPTY",
	StatusFIFOZeroSize: "FIFO_ZERO_SIZE",
	StatusZeroQoS:      "ZERO_QOS",

	StatusPDULength:         "PDU_LENGTH",
	StatusLengthTooSmall:    "LENGTH_TOO_SMALL",
	StatusLengthTooHigh:     "LENGTH_TOO_HIGH",
	StatusRefragUnnecessary: "REFRAG_UNNECESSARY",

	StatusInvalidLT:         "INVALID_LT",
	StatusInvalidGSELength:  "INVALID_GSE_LENGTH",
	StatusInvalidQoS:        "INVALID_QOS",
	StatusInvalidExtensions: "INVALID_EXTENSIONS",
	StatusInvalidLabel:      "INVALID_LABEL",
	StatusInvalidHeader:     "INVALID_HEADER",
	StatusWrongProtocol:     "WRONG_PROTOCOL",

	StatusCtxNotInit:      "CTX_NOT_INIT",
	StatusTimeout:         "CTX_TIMEOUT",
	StatusNoSpaceInBuff:   "NO_SPACE_IN_BUFF",
	StatusPacketTooSmall:  "PACKET_TOO_SMALL",
	StatusDataOverwritten: "DATA_OVERWRITTEN",

	StatusInvalidDataLength: "INVALID_DATA_LENGTH",
	StatusInvalidCRC:        "INVALID_CRC",
	StatusCRCFragmented:     "CRC_FRAGMENTED",

	StatusExtensionFieldAbsent:  "EXTENSION_FIELD_ABSENT",
	StatusExtensionUnavailable:  "EXTENSION_UNAVAILABLE",
	StatusExtensionCBFailed:     "EXTENSION_CALLBACK_FAILED",
	StatusExtensionNotSupported: "EXTENSION_NOT_SUPPORTED",
}

// String returns the protocol's canonical status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_STATUS(0x%04x)", int(s))
}

// Error wraps a failing Status with the operation that produced it and,
// where available, an underlying cause. Error satisfies the error
// interface so callers can use errors.Is against a bare Status (Error
// also implements Is) or errors.As against *Error for the Op context.
type Error struct {
	Status Status
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gse: %s: %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gse: %s: %s", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, someStatus) match regardless of Op/Err, by
// treating a bare Status value on the right-hand side as a target.
func (e *Error) Is(target error) bool {
	s, ok := target.(Status)
	return ok && e.Status == s
}

// Error implements the error interface directly on Status so a Status
// can be returned/compared as an error on its own when no Op/cause
// context is useful (e.g. deep inside length arithmetic helpers).
func (s Status) Error() string { return s.String() }

func newErr(op string, status Status) *Error {
	return &Error{Op: op, Status: status}
}

func wrapErr(op string, status Status, cause error) *Error {
	return &Error{Op: op, Status: status, Err: cause}
}
