package gse

import (
	"encoding/binary"
	"log/slog"
)

// Recorder receives encapsulator/refragmenter/de-encapsulator events for
// an ambient metrics layer (internal/metrics implements it). A nil
// Recorder is a valid no-op.
type Recorder interface {
	PDUReceived(qos int)
	PacketEmitted(qos int, pt PayloadType)
	Refragmented(qos int)
	CRCFailure(qos int)
	DataOverwritten(qos int)
	ContextTimeout(qos int)
	FIFODepth(qos int, depth int)
}

// Encapsulator accepts PDUs into per-QoS FIFOs and emits GSE packets of
// a caller-requested length, per §4.E.
type Encapsulator struct {
	fifos      []*fifo
	extBuilder ExtensionBuilder
	log        *slog.Logger
	rec        Recorder
}

// EncapOption configures an Encapsulator at construction time.
type EncapOption func(*Encapsulator)

// WithLogger attaches a structured logger; a nil *slog.Logger is
// equivalent to not calling WithLogger (slog.Default() is used).
func WithLogger(l *slog.Logger) EncapOption {
	return func(e *Encapsulator) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecorder attaches a metrics Recorder.
func WithRecorder(r Recorder) EncapOption {
	return func(e *Encapsulator) { e.rec = r }
}

// NewEncapsulator allocates qosCount per-QoS FIFOs, each of the given
// capacity.
func NewEncapsulator(qosCount, fifoCapacity int, opts ...EncapOption) (*Encapsulator, error) {
	if qosCount <= 0 {
		return nil, newErr("NewEncapsulator", StatusZeroQoS)
	}
	if fifoCapacity <= 0 {
		return nil, newErr("NewEncapsulator", StatusFIFOZeroSize)
	}
	e := &Encapsulator{
		fifos: make([]*fifo, qosCount),
		log:   slog.Default(),
	}
	for i := range e.fifos {
		e.fifos[i] = newFIFO(fifoCapacity)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetExtensionCallback installs the header-extension builder invoked at
// the first GetPacket call for each PDU. Passing nil disables extension
// building.
func (e *Encapsulator) SetExtensionCallback(cb ExtensionBuilder) {
	e.extBuilder = cb
}

// Release frees every PDU Fragment still queued across all QoS FIFOs.
func (e *Encapsulator) Release() {
	for _, f := range e.fifos {
		f.release()
	}
}

// QoSCount returns the number of QoS FIFOs this Encapsulator was
// configured with.
func (e *Encapsulator) QoSCount() int { return len(e.fifos) }

// FIFODepth returns the number of PDUs currently queued for qos.
func (e *Encapsulator) FIFODepth(qos int) (int, error) {
	if qos < 0 || qos >= len(e.fifos) {
		return 0, newErr("FIFODepth", StatusInvalidQoS)
	}
	return e.fifos[qos].size(), nil
}

// ReceivePDU validates and queues a PDU for encapsulation under the
// given QoS. On any validation failure the PDU Fragment is freed and an
// error is returned; label must be exactly 6 bytes long regardless of
// labelType (only the first LabelLen(labelType) bytes are significant).
func (e *Encapsulator) ReceivePDU(vfrag *Fragment, label [6]byte, labelType LabelType, protocolType uint16, qos int) error {
	fail := func(status Status) error {
		vfrag.Free()
		return newErr("ReceivePDU", status)
	}

	if protocolType < EtherTypeThreshold {
		return fail(StatusWrongProtocol)
	}
	if labelType != LT6Byte && labelType != LT3Byte && labelType != LTNone {
		return fail(StatusInvalidLT)
	}
	if qos < 0 || qos >= len(e.fifos) {
		return fail(StatusInvalidQoS)
	}
	labelLen := LabelLen(labelType)
	if vfrag.Length() > 65535-2-labelLen {
		return fail(StatusPDULength)
	}

	ctx := &encapContext{
		vfrag:        vfrag,
		label:        label,
		labelType:    labelType,
		protocolType: protocolType,
		qos:          qos,
		totalLength:  uint16(labelLen + 2 + vfrag.Length()),
	}
	if err := e.fifos[qos].push(ctx); err != nil {
		vfrag.Free()
		return err
	}
	if e.rec != nil {
		e.rec.PDUReceived(qos)
		e.rec.FIFODepth(qos, e.fifos[qos].size())
	}
	e.log.Debug("gse: pdu queued", "qos", qos, "length", vfrag.Length())
	return nil
}

// GetPacket emits the next GSE packet for qos as a zero-copy window over
// the queued PDU's backing buffer (valid until the caller Frees it and,
// transitively, until the Fragment passed to ReceivePDU is fully
// consumed). desiredLen of 0 means GSE_MAX_PACKET_LENGTH (4097).
func (e *Encapsulator) GetPacket(desiredLen, qos int) (*Fragment, error) {
	return e.getPacket(desiredLen, qos, false)
}

// GetPacketCopy behaves like GetPacket but returns an independently
// allocated packet Fragment, decoupled from the PDU's backing buffer.
func (e *Encapsulator) GetPacketCopy(desiredLen, qos int) (*Fragment, error) {
	return e.getPacket(desiredLen, qos, true)
}

func (e *Encapsulator) getPacket(desiredLen, qos int, copyOut bool) (*Fragment, error) {
	if qos < 0 || qos >= len(e.fifos) {
		return nil, newErr("GetPacket", StatusInvalidQoS)
	}
	f := e.fifos[qos]
	ctx, err := f.peekHead()
	if err != nil {
		return nil, err
	}

	if desiredLen == 0 {
		desiredLen = MaxPacketLength
	}
	if desiredLen < MinPacketLength {
		return nil, newErr("GetPacket", StatusLengthTooSmall)
	}
	if desiredLen > MaxPacketLength {
		return nil, newErr("GetPacket", StatusLengthTooHigh)
	}

	if ctx.fragCount == 0 {
		if e.extBuilder != nil && !ctx.extApplied {
			if err := e.applyExtensions(ctx); err != nil {
				return nil, err
			}
		}
		Hc := HeaderLen(Complete, ctx.labelType)
		Hf := HeaderLen(First, ctx.labelType)
		remaining := ctx.vfrag.Length()
		switch {
		case desiredLen >= remaining+Hc:
			return e.emitComplete(ctx, f, qos, desiredLen, copyOut)
		case desiredLen >= Hf+1:
			return e.emitFirst(ctx, f, qos, desiredLen, copyOut)
		default:
			return nil, newErr("GetPacket", StatusLengthTooSmall)
		}
	}

	Hs := HeaderLen(Subsequent, ctx.labelType)
	remaining := ctx.vfrag.Length() - 4 // trailing 4 bytes are the reserved CRC
	switch {
	case desiredLen >= remaining+Hs+4:
		return e.emitLast(ctx, f, qos, desiredLen, copyOut)
	case desiredLen >= Hs+1:
		return e.emitSubsequent(ctx, f, qos, desiredLen, copyOut)
	default:
		return nil, newErr("GetPacket", StatusLengthTooSmall)
	}
}

func (e *Encapsulator) applyExtensions(ctx *encapContext) error {
	ctx.extApplied = true
	body, head, ok, err := e.extBuilder(ctx.protocolType)
	if err != nil {
		return wrapErr("GetPacket", StatusExtensionCBFailed, err)
	}
	if !ok || len(body) == 0 {
		return nil
	}
	if err := ctx.vfrag.Shift(-len(body), 0); err != nil {
		return newErr("GetPacket", StatusExtensionUnavailable)
	}
	copy(ctx.vfrag.Bytes()[:len(body)], body)
	ctx.totalLength += uint16(len(body))
	ctx.protocolType = head
	return nil
}

// emitAndAdvance duplicates (or copies) packetLen bytes from the front
// of ctx.vfrag as the emitted packet, then drops those bytes from the
// source window. If the source window empties out, the context's
// Fragment is freed and it is popped from f.
func (e *Encapsulator) emitAndAdvance(ctx *encapContext, f *fifo, qos, packetLen int, copyOut bool, pt PayloadType) (*Fragment, error) {
	var pkt *Fragment
	var err error
	if copyOut {
		pkt, err = Create(packetLen, 0, 0)
		if err == nil {
			err = pkt.CopyIn(ctx.vfrag.Bytes()[:packetLen])
		}
	} else {
		pkt, err = Duplicate(ctx.vfrag, packetLen)
	}
	if err != nil {
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	if err := ctx.vfrag.Shift(packetLen, 0); err != nil {
		pkt.Free()
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	ctx.fragCount++
	if ctx.vfrag.Length() == 0 {
		ctx.vfrag.Free()
		f.pop()
	}
	if e.rec != nil {
		e.rec.PacketEmitted(qos, pt)
		e.rec.FIFODepth(qos, f.size())
	}
	return pkt, nil
}

func clampPacketLen(desiredLen, maxLen, budget int) int {
	n := budget
	if desiredLen < n {
		n = desiredLen
	}
	if maxLen < n {
		n = maxLen
	}
	return n
}

// applyCRCNonSplit shrinks packetLen, when this is a non-last fragment,
// so the PDU-payload leftover after emission is never strictly between 1
// and 3 bytes -- avoiding a pathologically tiny final data remainder
// ahead of the 4-byte CRC trailer.
func applyCRCNonSplit(packetLen, header, remaining int) int {
	leftover := remaining + header - packetLen
	if leftover > 0 && leftover < 4 {
		packetLen -= 4 - leftover
		if packetLen < header+1 {
			packetLen = header + 1
		}
	}
	return packetLen
}

func (e *Encapsulator) emitComplete(ctx *encapContext, f *fifo, qos, desiredLen int, copyOut bool) (*Fragment, error) {
	H := HeaderLen(Complete, ctx.labelType)
	packetLen := clampPacketLen(desiredLen, MaxPacketLength, ctx.vfrag.Length()+H)
	if err := ctx.vfrag.Shift(-H, 0); err != nil {
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	hdr := &Header{
		PayloadType:  Complete,
		LabelType:    ctx.labelType,
		GSELength:    packetLen - FixedHeaderLen,
		ProtocolType: ctx.protocolType,
		Label:        ctx.label,
	}
	if _, err := hdr.Encode(ctx.vfrag.Bytes()); err != nil {
		ctx.vfrag.Shift(H, 0)
		return nil, err
	}
	return e.emitAndAdvance(ctx, f, qos, packetLen, copyOut, Complete)
}

func (e *Encapsulator) emitFirst(ctx *encapContext, f *fifo, qos, desiredLen int, copyOut bool) (*Fragment, error) {
	H := HeaderLen(First, ctx.labelType)
	remaining := ctx.vfrag.Length()
	packetLen := clampPacketLen(desiredLen, MaxPacketLength, remaining+H)
	packetLen = applyCRCNonSplit(packetLen, H, remaining)

	if err := ctx.vfrag.Shift(-H, 4); err != nil {
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	hdr := &Header{
		PayloadType:  First,
		LabelType:    ctx.labelType,
		GSELength:    packetLen - FixedHeaderLen,
		FragID:       byte(qos),
		TotalLength:  ctx.totalLength,
		ProtocolType: ctx.protocolType,
		Label:        ctx.label,
	}
	if _, err := hdr.Encode(ctx.vfrag.Bytes()); err != nil {
		ctx.vfrag.Shift(H, -4)
		return nil, err
	}
	writePDUCRC(ctx)
	return e.emitAndAdvance(ctx, f, qos, packetLen, copyOut, First)
}

func (e *Encapsulator) emitSubsequent(ctx *encapContext, f *fifo, qos, desiredLen int, copyOut bool) (*Fragment, error) {
	H := HeaderLen(Subsequent, ctx.labelType)
	remaining := ctx.vfrag.Length() - 4
	packetLen := clampPacketLen(desiredLen, MaxPacketLength, remaining+H)
	packetLen = applyCRCNonSplit(packetLen, H, remaining)

	if err := ctx.vfrag.Shift(-H, 0); err != nil {
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	hdr := &Header{PayloadType: Subsequent, LabelType: LTReUse, GSELength: packetLen - FixedHeaderLen, FragID: byte(qos)}
	if _, err := hdr.Encode(ctx.vfrag.Bytes()); err != nil {
		ctx.vfrag.Shift(H, 0)
		return nil, err
	}
	return e.emitAndAdvance(ctx, f, qos, packetLen, copyOut, Subsequent)
}

func (e *Encapsulator) emitLast(ctx *encapContext, f *fifo, qos, desiredLen int, copyOut bool) (*Fragment, error) {
	H := HeaderLen(Last, ctx.labelType)
	if err := ctx.vfrag.Shift(-H, 0); err != nil {
		return nil, wrapErr("GetPacket", StatusInternalError, err)
	}
	packetLen := ctx.vfrag.Length() // header + remaining payload + CRC, all of it
	hdr := &Header{PayloadType: Last, LabelType: LTReUse, GSELength: packetLen - FixedHeaderLen, FragID: byte(qos)}
	if _, err := hdr.Encode(ctx.vfrag.Bytes()); err != nil {
		ctx.vfrag.Shift(H, 0)
		return nil, err
	}
	return e.emitAndAdvance(ctx, f, qos, packetLen, copyOut, Last)
}

// writePDUCRC computes the CRC32 over (TotalLength, ProtocolType, Label,
// PDU) of ctx -- the PDU is fully available in the context at the time
// the first fragment is emitted, so the CRC is computed and written in
// full immediately rather than streamed. Callers that need to compute a
// CRC incrementally use CRCState (Seed/Update/Final) directly.
func writePDUCRC(ctx *encapContext) {
	data := ctx.vfrag.Bytes() // [header][pdu payload][4-byte crc trailer]
	H := HeaderLen(First, ctx.labelType)
	payload := data[H : len(data)-4]

	var head [2 + 2]byte
	binary.BigEndian.PutUint16(head[0:2], ctx.totalLength)
	binary.BigEndian.PutUint16(head[2:4], ctx.protocolType)
	labelLen := LabelLen(ctx.labelType)

	state := Seed().Update(head[:]).Update(ctx.label[:labelLen]).Update(payload)
	binary.BigEndian.PutUint32(data[len(data)-4:], state.Final())
}
