package gse

import "sync"

// encapContext is one PDU awaiting emission in a per-QoS FIFO. It is
// mutated only while at the head of its FIFO, per §3.
type encapContext struct {
	vfrag        *Fragment
	label        [6]byte
	labelType    LabelType
	totalLength  uint16
	protocolType uint16
	qos          int
	fragCount    int  // 0 until the first fragment of this PDU has been emitted
	extApplied   bool // whether the extension-builder callback has already run for this PDU
}

// fifo is a fixed-capacity ring buffer of encapContext, one per QoS,
// guarded by its own lock (fine-grained, not library-wide, per §5). Only
// the head is observable to the emitter; ReceivePDU pushes at the tail.
type fifo struct {
	mu       sync.Mutex
	items    []*encapContext
	first    int
	count    int
	capacity int
}

func newFIFO(capacity int) *fifo {
	return &fifo{items: make([]*encapContext, capacity), capacity: capacity}
}

func (f *fifo) push(ctx *encapContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == f.capacity {
		return newErr("push", StatusFIFOFull)
	}
	tail := (f.first + f.count) % f.capacity
	f.items[tail] = ctx
	f.count++
	return nil
}

func (f *fifo) peekHead() (*encapContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == 0 {
		return nil, newErr("peekHead", StatusFIFOEmpty)
	}
	return f.items[f.first], nil
}

func (f *fifo) pop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == 0 {
		return newErr("pop", StatusFIFOEmpty)
	}
	f.items[f.first] = nil
	f.first = (f.first + 1) % f.capacity
	f.count--
	return nil
}

func (f *fifo) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// release frees every remaining context's Fragment and empties the
// FIFO. Called when the owning Encapsulator is released.
func (f *fifo) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < f.count; i++ {
		idx := (f.first + i) % f.capacity
		if f.items[idx] != nil {
			f.items[idx].vfrag.Free()
			f.items[idx] = nil
		}
	}
	f.first, f.count = 0, 0
}
