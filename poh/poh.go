// Package poh implements C4: the Proof-of-History recorder. A single
// mutex-guarded hash counter produces Entries at tick() and record()
// boundaries and registers every emitted id with the Bank.
package poh

import (
	"errors"
	"sync"

	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

// ErrSinkClosed is returned when the outbound entry sink has been closed;
// this is the only error tick/record can produce (spec §4.1).
var ErrSinkClosed = errors.New("poh: entry sink closed")

// IDRegistrar is the Bank's projection the recorder needs: registering a
// newly produced entry id into the last-id ring (spec §4.2,
// register_entry_id).
type IDRegistrar interface {
	RegisterEntryID(id identity.Hash)
}

// Sink receives produced Entries. Implementations (broadcast stage input
// channel, test collectors) must not block indefinitely; Send returns an
// error once the consumer is gone.
type Sink interface {
	Send(e entry.Entry) error
}

// Recorder is the PoH state machine (spec §4.1).
type Recorder struct {
	mu                   sync.Mutex
	currentHash          identity.Hash
	numHashesSinceRecord uint64

	sink     Sink
	registry IDRegistrar
}

// New builds a Recorder seeded at startHash, emitting into sink and
// registering every id with registry.
func New(startHash identity.Hash, sink Sink, registry IDRegistrar) *Recorder {
	return &Recorder{currentHash: startHash, sink: sink, registry: registry}
}

// CurrentHash returns the running hash (for tests / introspection only).
func (r *Recorder) CurrentHash() identity.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentHash
}

// Hash advances the chain by one pure SHA-256 iteration, producing no
// entry.
func (r *Recorder) Hash() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentHash = identity.ExtendHash(r.currentHash)
	r.numHashesSinceRecord++
}

// Tick hashes once more, then emits a transaction-free Entry carrying the
// hash count accumulated since the previous tick/record, and resets the
// counter.
func (r *Recorder) Tick() error {
	r.mu.Lock()
	r.currentHash = identity.ExtendHash(r.currentHash)
	r.numHashesSinceRecord++
	e := entry.Entry{NumHashes: r.numHashesSinceRecord, ID: r.currentHash}
	r.numHashesSinceRecord = 0
	id := r.currentHash
	r.mu.Unlock()

	if err := r.sink.Send(e); err != nil {
		return ErrSinkClosed
	}
	r.registry.RegisterEntryID(id)
	return nil
}

// ChannelSink adapts a buffered entry channel to the Sink interface, the
// shape every stage that owns a Recorder feeds its output channel through.
type ChannelSink chan entry.Entry

// Send enqueues e, returning ErrSinkClosed-triggering behavior by failing
// only when the channel is full past its buffer (a full channel signals
// the downstream consumer has stalled, which the caller treats the same as
// a closed sink: stop producing).
func (s ChannelSink) Send(e entry.Entry) error {
	select {
	case s <- e:
		return nil
	default:
		return ErrSinkClosed
	}
}

// Record mixes mixin into the hash chain and emits an Entry carrying txs.
func (r *Recorder) Record(mixin identity.Hash, txs []entry.Transaction) error {
	r.mu.Lock()
	r.currentHash = identity.ExtendHashWithMixin(r.currentHash, mixin)
	r.numHashesSinceRecord++
	e := entry.Entry{NumHashes: r.numHashesSinceRecord, ID: r.currentHash, Transactions: txs}
	r.numHashesSinceRecord = 0
	id := r.currentHash
	r.mu.Unlock()

	if err := r.sink.Send(e); err != nil {
		return ErrSinkClosed
	}
	r.registry.RegisterEntryID(id)
	return nil
}
