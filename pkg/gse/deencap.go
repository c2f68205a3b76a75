package gse

import (
	"encoding/binary"
	"log/slog"
)

// defaultBBFrameTimeout is the number of BBFrames (§4.G step 7) a
// reassembly context may persist across without receiving its next
// fragment before it is dropped; any later Subsequent/Last fragment with
// that FragID is then rejected with CTX_NOT_INIT. The protocol fixes this at 256;
// WithBBFrameTimeout overrides it for test harnesses that can't afford
// to feed 256 real BBFrames to exercise the timeout path.
const defaultBBFrameTimeout = 256

// deencapContext tracks one in-progress reassembly, indexed by FragID.
// vfrag holds the raw (header-extensions ‖ PDU) stream exactly as the
// encapsulator CRC'd it; extLen is how many leading bytes of that stream
// are header-extension bytes, trimmed off once reassembly completes.
type deencapContext struct {
	inUse        bool
	vfrag        *Fragment
	extLen       int
	label        [6]byte
	labelType    LabelType
	totalLength  uint16
	protocolType uint16
	extensions   []Extension
	received     int
	crc          CRCState
	lastBBFrame  uint64
}

// Deencapsulator reassembles PDUs from a stream of GSE packets, one
// reassembly context per FragID (0-255), per §4.G.
type Deencapsulator struct {
	contexts       [256]deencapContext
	bbFrameCount   uint64
	bbFrameTimeout uint64
	headOffset     int
	trailOffset    int
	log            *slog.Logger
	rec            Recorder
}

// DeencapOption configures a Deencapsulator at construction time.
type DeencapOption func(*Deencapsulator)

// WithDeencapLogger attaches a structured logger.
func WithDeencapLogger(l *slog.Logger) DeencapOption {
	return func(d *Deencapsulator) {
		if l != nil {
			d.log = l
		}
	}
}

// WithDeencapRecorder attaches a metrics Recorder.
func WithDeencapRecorder(r Recorder) DeencapOption {
	return func(d *Deencapsulator) { d.rec = r }
}

// WithBBFrameTimeout overrides the number of BBFrames a reassembly
// context may persist across before it times out. n <= 0 is ignored
// (the default of 256 stands).
func WithBBFrameTimeout(n int) DeencapOption {
	return func(d *Deencapsulator) {
		if n > 0 {
			d.bbFrameTimeout = uint64(n)
		}
	}
}

// NewDeencapsulator returns a ready-to-use Deencapsulator. Reassembled
// PDU Fragments are allocated with no head/trail offset reserved; call
// SetOffsets before the first Packet call if callers need headroom
// around reassembled PDUs (e.g. to prepend a link-layer header before
// handing the PDU onward).
func NewDeencapsulator(opts ...DeencapOption) *Deencapsulator {
	d := &Deencapsulator{log: slog.Default(), bbFrameTimeout: defaultBBFrameTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetOffsets configures the head/trail offsets reserved on every
// reassembled PDU Fragment this Deencapsulator allocates from then on.
func (d *Deencapsulator) SetOffsets(headOffset, trailOffset int) {
	d.headOffset = headOffset
	d.trailOffset = trailOffset
}

// NewBBFrame advances the BBFrame counter used for the 256-frame context
// timeout. Callers invoke it exactly once per received baseband frame,
// before feeding that frame's packets to Packet.
func (d *Deencapsulator) NewBBFrame() {
	d.bbFrameCount++
	for fragID := range d.contexts {
		ctx := &d.contexts[fragID]
		if ctx.inUse && d.bbFrameCount-ctx.lastBBFrame > d.bbFrameTimeout {
			if d.rec != nil {
				d.rec.ContextTimeout(fragID)
			}
			d.log.Warn("gse: reassembly context timed out", "frag_id", fragID)
			ctx.vfrag.Free()
			*ctx = deencapContext{}
		}
	}
}

// PacketResult is the outcome of a single Packet call: either a
// completed, CRC-validated PDU (PDU != nil) or an informative/partial
// status with no PDU yet available.
type PacketResult struct {
	PDU          *Fragment
	Label        [6]byte
	LabelType    LabelType
	ProtocolType uint16
	Extensions   []Extension
	Status       Status
}

// Packet feeds one received GSE packet (header plus payload, CRC
// trailer included for Last/Complete) into the reassembly state
// machine. Padding is reported as Status: StatusPaddingDetected with a
// nil PDU, not an error.
func (d *Deencapsulator) Packet(data []byte) (PacketResult, error) {
	if IsPadding(data) {
		return PacketResult{Status: StatusPaddingDetected}, nil
	}
	hdr, err := ParseHeader(data)
	if err != nil {
		return PacketResult{}, err
	}
	payload := data[hdr.Len():]

	switch hdr.PayloadType {
	case Complete:
		return d.handleComplete(hdr, payload)
	case First:
		return d.handleFirst(hdr, payload)
	case Subsequent:
		return d.handleMiddle(hdr, payload, false)
	case Last:
		return d.handleMiddle(hdr, payload, true)
	default:
		return PacketResult{}, newErr("Packet", StatusInvalidHeader)
	}
}

func (d *Deencapsulator) handleComplete(hdr *Header, payload []byte) (PacketResult, error) {
	exts, etherType, consumed, err := ParseExtensions(hdr.ProtocolType, payload)
	if err != nil {
		return PacketResult{}, err
	}
	pdu := payload[consumed:]
	f, err := CreateWithData(len(pdu), d.headOffset, d.trailOffset, pdu)
	if err != nil {
		return PacketResult{}, err
	}
	return PacketResult{
		PDU: f, Label: hdr.Label, LabelType: hdr.LabelType,
		ProtocolType: etherType, Extensions: exts, Status: StatusOK,
	}, nil
}

func (d *Deencapsulator) handleFirst(hdr *Header, payload []byte) (PacketResult, error) {
	ctx := &d.contexts[hdr.FragID]
	status := StatusPartialCRC
	if ctx.inUse {
		// A new first fragment pre-empts whatever this FragID was
		// reassembling; the previous partial PDU is discarded and
		// reported once, informatively, on this call.
		ctx.vfrag.Free()
		*ctx = deencapContext{}
		if d.rec != nil {
			d.rec.DataOverwritten(int(hdr.FragID))
		}
		status = StatusDataOverwritten
	}

	exts, etherType, consumed, err := ParseExtensions(hdr.ProtocolType, payload)
	if err != nil {
		return PacketResult{}, err
	}
	// streamLen covers the raw (extensions ‖ PDU) bytes, matching exactly
	// what the encapsulator ran its CRC32 over.
	streamLen := int(hdr.TotalLength) - 2 - LabelLen(hdr.LabelType)
	if streamLen < len(payload) {
		return PacketResult{}, newErr("Packet", StatusInvalidDataLength)
	}

	f, err := Create(streamLen, 0, 0)
	if err != nil {
		return PacketResult{}, err
	}
	copy(f.Bytes()[:len(payload)], payload)

	head := buildCRCInput(hdr.TotalLength, hdr.ProtocolType, hdr.Label[:LabelLen(hdr.LabelType)], nil)
	*ctx = deencapContext{
		inUse:        true,
		vfrag:        f,
		extLen:       consumed,
		label:        hdr.Label,
		labelType:    hdr.LabelType,
		totalLength:  hdr.TotalLength,
		protocolType: etherType,
		extensions:   exts,
		received:     len(payload),
		crc:          Seed().Update(head),
		lastBBFrame:  d.bbFrameCount,
	}
	ctx.crc = ctx.crc.Update(payload)

	return PacketResult{Status: status, Extensions: exts}, nil
}

func (d *Deencapsulator) handleMiddle(hdr *Header, payload []byte, isLast bool) (PacketResult, error) {
	ctx := &d.contexts[hdr.FragID]
	if !ctx.inUse {
		return PacketResult{}, newErr("Packet", StatusCtxNotInit)
	}
	ctx.lastBBFrame = d.bbFrameCount

	chunk := payload
	if isLast {
		if len(payload) < 4 {
			ctx.vfrag.Free()
			*ctx = deencapContext{}
			return PacketResult{}, newErr("Packet", StatusCRCFragmented)
		}
		chunk = payload[:len(payload)-4]
	}

	if ctx.received+len(chunk) > ctx.vfrag.Length() {
		ctx.vfrag.Free()
		*ctx = deencapContext{}
		return PacketResult{}, newErr("Packet", StatusInvalidDataLength)
	}
	copy(ctx.vfrag.Bytes()[ctx.received:ctx.received+len(chunk)], chunk)
	ctx.received += len(chunk)
	ctx.crc = ctx.crc.Update(chunk)

	if !isLast {
		return PacketResult{Status: StatusPartialCRC}, nil
	}

	wantCRC := binary.BigEndian.Uint32(payload[len(payload)-4:])
	gotCRC := ctx.crc.Final()
	if ctx.received != ctx.vfrag.Length() {
		ctx.vfrag.Free()
		*ctx = deencapContext{}
		return PacketResult{}, newErr("Packet", StatusInvalidDataLength)
	}
	raw := ctx.vfrag
	extLen := ctx.extLen
	label, labelType, protocolType, exts := ctx.label, ctx.labelType, ctx.protocolType, ctx.extensions
	*ctx = deencapContext{}

	if wantCRC != gotCRC {
		if d.rec != nil {
			d.rec.CRCFailure(int(hdr.FragID))
		}
		raw.Free()
		return PacketResult{}, newErr("Packet", StatusInvalidCRC)
	}

	pdu, err := CreateWithData(raw.Length()-extLen, d.headOffset, d.trailOffset, raw.Bytes()[extLen:])
	raw.Free()
	if err != nil {
		return PacketResult{}, err
	}
	return PacketResult{
		PDU: pdu, Label: label, LabelType: labelType,
		ProtocolType: protocolType, Extensions: exts, Status: StatusOK,
	}, nil
}

// Release frees every in-progress reassembly context's Fragment.
func (d *Deencapsulator) Release() {
	for i := range d.contexts {
		if d.contexts[i].inUse {
			d.contexts[i].vfrag.Free()
			d.contexts[i] = deencapContext{}
		}
	}
}
