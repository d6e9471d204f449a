package stage

import (
	"context"
	"sync"
	"time"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
)

// TickerConfig alternates between producing n hash advances (a PoH tick,
// Config::Tick(n)) and sleeping d before a single tick (Config::Sleep(d)),
// matching the original node's dedicated ticker thread (spec §4.6).
type TickerConfig struct {
	Kind  TickerKind
	N     uint64
	Sleep time.Duration
}

// TickerKind selects between the two TickerConfig variants.
type TickerKind int

const (
	TickKind TickerKind = iota
	SleepKind
)

// Ticker is the PoH-interface projection the banking stage's ticker thread
// needs.
type Ticker interface {
	Tick() error
}

// Recorder is the PoH-interface projection the banking stage's worker
// threads need to commit accepted transactions.
type Recorder interface {
	Record(mixin identity.Hash, txs []entry.Transaction) error
}

// Banking runs NUM_THREADS workers sharing a mutex around one verified
// packet receiver (spec §4.6); here the channel itself provides that
// mutual exclusion, so the explicit mutex models only the "one worker
// processes one batch at a time" serialization point the spec calls out.
type Banking struct {
	bank     *bank.Bank
	recorder Recorder

	numThreads int
	blobLimit  int

	mu sync.Mutex

	processed metrics.Meter
	rejected  metrics.Meter
}

// NewBanking builds a Banking stage with numThreads workers (>=1; the
// original reference uses exactly 1) draining batches sized so each
// resulting entry fits within blobLimit bytes (spec §4.6 step 2,
// entry.NumWillFit).
func NewBanking(b *bank.Bank, recorder Recorder, numThreads, blobLimit int) *Banking {
	if numThreads < 1 {
		numThreads = 1
	}
	return &Banking{
		bank:       b,
		recorder:   recorder,
		numThreads: numThreads,
		blobLimit:  blobLimit,
		processed:  metrics.NewRegisteredMeter("stage/banking/processed", metrics.DefaultRegistry),
		rejected:   metrics.NewRegisteredMeter("stage/banking/rejected", metrics.DefaultRegistry),
	}
}

// RunTicker drives the dedicated ticker thread until ctx is done, following
// cfgs round-robin (spec §4.6: "a dedicated ticker thread alternates
// between Tick(n) and Sleep(d)").
func (bs *Banking) RunTicker(ctx context.Context, ticker Ticker, cfgs []TickerConfig) {
	if len(cfgs) == 0 {
		return
	}
	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cfg := cfgs[i%len(cfgs)]
		i++
		switch cfg.Kind {
		case TickKind:
			for n := uint64(0); n < cfg.N; n++ {
				if err := ticker.Tick(); err != nil {
					log.Warn("stage: banking ticker tick failed", "err", err)
					return
				}
			}
		case SleepKind:
			select {
			case <-time.After(cfg.Sleep):
			case <-ctx.Done():
				return
			}
			if err := ticker.Tick(); err != nil {
				log.Warn("stage: banking ticker tick failed", "err", err)
				return
			}
		}
	}
}

// Run starts numThreads workers that drain verified batches from in until
// ctx is done or in closes, processing each through ProcessBatch; it
// returns once every worker has stopped.
func (bs *Banking) Run(ctx context.Context, in <-chan []VerifiedPacket) {
	var wg sync.WaitGroup
	for i := 0; i < bs.numThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case batch, ok := <-in:
					if !ok {
						return
					}
					bs.ProcessBatch(batch)
				}
			}
		}()
	}
	wg.Wait()
}

// ProcessBatch implements spec §4.6 steps 2-3: chunk the verified batch so
// each resulting entry fits blobLimit, run the chunk through the bank, and
// record the accepted subsequence through PoH.
func (bs *Banking) ProcessBatch(verified []VerifiedPacket) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	txs := make([]entry.Transaction, len(verified))
	for i, v := range verified {
		txs[i] = v.Tx
	}

	for len(txs) > 0 {
		n := entry.NumWillFit(txs, bs.blobLimit)
		if n == 0 {
			n = 1 // a single oversized tx still gets attempted/rejected individually
		}
		chunk := txs[:n]
		txs = txs[n:]

		results := bs.bank.ProcessTransactions(chunk)
		accepted := make([]entry.Transaction, 0, len(chunk))
		for i, r := range results {
			if r == nil {
				accepted = append(accepted, chunk[i])
			}
		}
		bs.processed.Mark(int64(len(accepted)))
		bs.rejected.Mark(int64(len(chunk) - len(accepted)))

		if len(accepted) == 0 {
			continue
		}
		mixin := hashAccepted(accepted)
		if err := bs.recorder.Record(mixin, accepted); err != nil {
			log.Warn("stage: banking record failed", "err", err)
			return
		}
	}
}

func hashAccepted(txs []entry.Transaction) identity.Hash {
	var sigs []byte
	for i := range txs {
		sigs = append(sigs, txs[i].Signature[:]...)
	}
	return identity.HashBytes(sigs)
}
