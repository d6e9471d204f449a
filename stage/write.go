package stage

import (
	"context"

	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
	"github.com/caesarchad/rustelo-easy/ledger"
)

// Write persists every entry the pipeline produces to the ledger file,
// running alongside Banking/Broadcast rather than gating them (spec §3
// data flow: "in parallel, a ledger writer persists entries").
type Write struct {
	w *ledger.Writer

	written metrics.Meter
	failed  metrics.Counter
}

// NewWrite wraps an already-open ledger.Writer.
func NewWrite(w *ledger.Writer) *Write {
	return &Write{
		w:       w,
		written: metrics.NewRegisteredMeter("stage/write/entries", metrics.DefaultRegistry),
		failed:  metrics.NewRegisteredCounter("stage/write/failed", metrics.DefaultRegistry),
	}
}

// Run drains entries from in until ctx is done or in closes. A write error
// is FatalIO per spec §7 and is returned to the caller, which the fullnode
// supervisor treats as a reason to exit with code 1.
func (ws *Write) Run(ctx context.Context, in <-chan entry.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-in:
			if !ok {
				return nil
			}
			if err := ws.w.WriteEntry(&e); err != nil {
				ws.failed.Inc(1)
				log.Error("stage: ledger write failed", "err", err)
				return err
			}
			ws.written.Mark(1)
		}
	}
}
