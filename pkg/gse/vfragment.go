package gse

// vbuffer is the shared backing allocation behind one or two Fragment
// windows. It never moves or resizes once allocated; only the window
// descriptors (Fragment.start/end) change. activeWindows is maintained
// by Fragment constructors/Free and must never exceed two: one "source"
// window holding unemitted bytes and one "emitted" window holding a
// just-produced packet, per the zero-copy emission pattern in §4.B.
//
// Every vbuffer is reachable from at most the Fragments that reference
// it; callers on one encapsulator/de-encapsulator instance are expected
// to serialize access per §5, so activeWindows is a plain int, not
// atomic.
type vbuffer struct {
	data          []byte
	activeWindows int
}

func newVBuffer(size int) *vbuffer {
	return &vbuffer{data: make([]byte, size)}
}

// Fragment is a half-open window [start, end) into a shared vbuffer.
// The zero value is not usable; construct with Create, CreateWithData,
// or Duplicate.
type Fragment struct {
	buf        *vbuffer
	start, end int
	freed      bool
}

// Length returns end-start, the number of live bytes in the window.
func (f *Fragment) Length() int { return f.end - f.start }

// Bytes returns the window's bytes as a slice over the shared backing
// array. The slice aliases the buffer; callers must not retain it past
// a Free or a Shift/CopyIn that changes the window, and must not hand
// it to a second live Fragment's owner to mutate concurrently.
func (f *Fragment) Bytes() []byte { return f.buf.data[f.start:f.end] }

// Create allocates a new vbuffer of size headOff+maxLen+trailOff and
// places a window of length maxLen at offset headOff, leaving headOff
// bytes free before it and trailOff bytes free after it for in-place
// header/trailer writes.
func Create(maxLen, headOff, trailOff int) (*Fragment, error) {
	total := headOff + maxLen + trailOff
	if total <= 0 {
		return nil, newErr("Create", StatusBuffLengthNull)
	}
	buf := newVBuffer(total)
	buf.activeWindows = 1
	return &Fragment{buf: buf, start: headOff, end: headOff + maxLen}, nil
}

// CreateWithData allocates like Create and then copies data into the
// new window via CopyIn.
func CreateWithData(maxLen, headOff, trailOff int, data []byte) (*Fragment, error) {
	if len(data) > maxLen {
		return nil, newErr("CreateWithData", StatusDataTooLong)
	}
	f, err := Create(maxLen, headOff, trailOff)
	if err != nil {
		return nil, err
	}
	if err := f.CopyIn(data); err != nil {
		f.Free()
		return nil, err
	}
	return f, nil
}

// CopyIn writes data at the window's start and shrinks the window to
// exactly len(data) bytes (end = start+len(data)). It fails without
// mutation if the buffer is concurrently referenced by a second window
// (no silent aliasing overwrite) or if data is longer than the window's
// current capacity.
func (f *Fragment) CopyIn(data []byte) error {
	if f.buf.activeWindows > 1 {
		return newErr("CopyIn", StatusMultipleVBufAccess)
	}
	if len(data) > f.Length() {
		return newErr("CopyIn", StatusDataTooLong)
	}
	copy(f.buf.data[f.start:f.start+len(data)], data)
	f.end = f.start + len(data)
	return nil
}

// Shift atomically moves both endpoints by startDelta/endDelta. On any
// validation failure the fragment is left unchanged.
func (f *Fragment) Shift(startDelta, endDelta int) error {
	newStart := f.start + startDelta
	newEnd := f.end + endDelta
	if newStart < 0 || newStart > len(f.buf.data) || newEnd < 0 || newEnd > len(f.buf.data) {
		return newErr("Shift", StatusPtrOutsideBuff)
	}
	if newStart > newEnd {
		return newErr("Shift", StatusFragPtrs)
	}
	f.start, f.end = newStart, newEnd
	return nil
}

// Duplicate produces a new Fragment sharing father's vbuffer, starting
// at father.start, of length min(length, father.Length()). The vbuffer
// may have at most two concurrently active windows; Duplicate is the
// only way (besides Create/CreateWithData) to open one.
func Duplicate(father *Fragment, length int) (*Fragment, error) {
	if father.Length() == 0 {
		return nil, newErr("Duplicate", StatusEmptyFrag)
	}
	if father.buf.activeWindows >= 2 {
		return nil, newErr("Duplicate", StatusFragNbr)
	}
	if length > father.Length() {
		length = father.Length()
	}
	father.buf.activeWindows++
	return &Fragment{buf: father.buf, start: father.start, end: father.start + length}, nil
}

// Reset repositions the window to the full backing buffer minus the
// given offsets: [headOff, len(data)-trailOff).
func (f *Fragment) Reset(headOff, trailOff int) error {
	total := len(f.buf.data)
	if headOff+trailOff > total {
		return newErr("Reset", StatusOffsetTooHigh)
	}
	f.start = headOff
	f.end = total - trailOff
	return nil
}

// Free decrements the backing buffer's active-window count, releasing
// the backing allocation once it reaches zero, and consumes the
// Fragment handle. Free is idempotent: a second call on an already-freed
// Fragment is a no-op.
func (f *Fragment) Free() {
	if f == nil || f.freed {
		return
	}
	f.freed = true
	f.buf.activeWindows--
	if f.buf.activeWindows <= 0 {
		f.buf.data = nil
	}
}

// activeWindowsForTest exposes the backing buffer's live-window count, for
// instrumentation verifying the §8 buffer invariant
// (vbuf.start ≤ start ≤ end ≤ vbuf.end, active-window count == live
// fragments) from tests.
func (f *Fragment) activeWindowsForTest() int { return f.buf.activeWindows }
