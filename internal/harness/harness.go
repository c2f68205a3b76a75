// Package harness runs a bounded set of concurrent producers feeding an
// Encapsulator and a consumer draining it, used by gsetool's demo
// command to exercise the library under realistic concurrent load. One
// goroutine per QoS keeps the "only the FIFO head is touched
// concurrently" discipline pkg/gse assumes -- producers for a given QoS
// never run in parallel with each other, only across QoS lanes.
package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/gse/pkg/gse"
)

// pollInterval is how often an idle drainer re-checks its FIFO while
// waiting for its producer to push more PDUs or finish.
const pollInterval = time.Millisecond

// RunID identifies one harness invocation, surfaced in logs/metrics and
// in an exportfmt.Manifest's RunID field.
func RunID() string { return uuid.NewString() }

// PDUSource supplies PDUs for one QoS lane. It returns done=true once
// exhausted.
type PDUSource func(ctx context.Context) (payload []byte, label [6]byte, labelType gse.LabelType, protocolType uint16, done bool, err error)

// PacketSink consumes packets drained from the encapsulator for a QoS
// lane, e.g. writing them to an exportfmt manifest.
type PacketSink func(ctx context.Context, qos int, pkt *gse.Fragment) error

// Run drives len(sources) producer goroutines and one drainer goroutine
// per QoS against e, canceling every lane as soon as one returns an
// error and returning the first such error.
func Run(ctx context.Context, e *gse.Encapsulator, sources []PDUSource, sink PacketSink, desiredPacketLen int) error {
	if len(sources) != e.QoSCount() {
		return fmt.Errorf("harness: %d sources for %d QoS lanes", len(sources), e.QoSCount())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var (
		firstErrMu sync.Mutex
		firstErr   error
	)
	fail := func(err error) {
		if err == nil {
			return
		}
		firstErrMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		firstErrMu.Unlock()
	}

	for qos, src := range sources {
		qos, src := qos, src
		producerDone := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(producerDone)
			fail(produce(runCtx, e, qos, src))
		}()
		go func() {
			defer wg.Done()
			fail(drain(runCtx, e, qos, sink, desiredPacketLen, producerDone))
		}()
	}
	wg.Wait()

	firstErrMu.Lock()
	defer firstErrMu.Unlock()
	return firstErr
}

func produce(ctx context.Context, e *gse.Encapsulator, qos int, src PDUSource) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		payload, label, labelType, protocolType, done, err := src(ctx)
		if err != nil {
			return fmt.Errorf("harness: qos %d source: %w", qos, err)
		}
		if done {
			return nil
		}
		f, err := gse.CreateWithData(len(payload), 16, 4, payload)
		if err != nil {
			return fmt.Errorf("harness: qos %d allocate PDU: %w", qos, err)
		}
		if err := e.ReceivePDU(f, label, labelType, protocolType, qos); err != nil {
			return fmt.Errorf("harness: qos %d receive PDU: %w", qos, err)
		}
	}
}

// drain pops packets for qos until producerDone is closed and the FIFO
// has run dry; it polls on a ticker rather than busy-looping while
// waiting for the producer to push the next PDU.
func drain(ctx context.Context, e *gse.Encapsulator, qos int, sink PacketSink, desiredPacketLen int, producerDone <-chan struct{}) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		depth, err := e.FIFODepth(qos)
		if err != nil {
			return err
		}
		if depth == 0 {
			select {
			case <-producerDone:
				// One last check: the producer may have pushed between
				// our depth check and it closing producerDone.
				depth, err = e.FIFODepth(qos)
				if err != nil {
					return err
				}
				if depth == 0 {
					return nil
				}
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}

		pkt, err := e.GetPacketCopy(desiredPacketLen, qos)
		if err != nil {
			return fmt.Errorf("harness: qos %d get packet: %w", qos, err)
		}
		if sink != nil {
			if err := sink(ctx, qos, pkt); err != nil {
				pkt.Free()
				return fmt.Errorf("harness: qos %d sink: %w", qos, err)
			}
		}
		pkt.Free()
	}
}
