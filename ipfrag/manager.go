package ipfrag

import (
	"go.uber.org/zap"

	"github.com/sofiworker/gpcap/layers"
)

// DefaultTTL is the number of ticks a pending sequence survives without
// being retired.
const DefaultTTL = 255

// Result is the outcome of feeding one IPv4 frame to a Manager. When
// Complete is true, Payload holds the full datagram payload and Fragments
// the frames it was assembled from (a single frame for unfragmented
// traffic).
type Result struct {
	Complete  bool
	Fragments []*layers.IPv4
	Payload   []byte
}

type holder struct {
	sequence *Sequence
	ttl      int
}

// Manager routes IPv4 frames through fragment reassembly. Unfragmented
// frames pass straight through; fragments are buffered per identification
// value until their sequence completes or its TTL runs out. The manager has
// no internal clock or locking: the caller drives eviction via TickTTL and
// provides synchronization if it shares a manager across goroutines.
type Manager struct {
	sequences map[uint16]*holder
	ttl       int
	log       *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the initial per-sequence TTL in ticks.
func WithTTL(ttl int) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithLogger sets the logger used for eviction diagnostics.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sequences: make(map[uint16]*holder),
		ttl:       DefaultTTL,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessFrame resolves one IPv4 frame against the pending sequences.
// Whole datagrams return complete immediately without buffering. Fragments
// are added to their sequence; arrival of the terminal fragment (more-
// fragments clear) retires the sequence whether or not it completed, so a
// sequence with holes ends incomplete and its buffered fragments are freed.
func (m *Manager) ProcessFrame(layer *layers.IPv4) (Result, error) {
	if !layer.IsFragment() {
		return Result{Complete: true, Fragments: []*layers.IPv4{layer}, Payload: layer.Data()}, nil
	}

	id := layer.Identification
	h, ok := m.sequences[id]
	if !ok {
		h = &holder{sequence: NewSequence(id), ttl: m.ttl}
		m.sequences[id] = h
	}
	if err := h.sequence.AddFragment(layer); err != nil {
		return Result{}, err
	}

	if layer.MoreFragments() {
		return Result{}, nil
	}

	// Terminal fragment: this sequence is over either way.
	delete(m.sequences, id)
	if !h.sequence.IsComplete() {
		m.log.Debug("fragment sequence ended incomplete",
			zap.Uint16("id", id),
			zap.Int("fragments", len(h.sequence.Fragments())))
		return Result{}, nil
	}
	payload, err := h.sequence.Reassemble()
	if err != nil {
		return Result{}, err
	}
	return Result{Complete: true, Fragments: h.sequence.Fragments(), Payload: payload}, nil
}

// TickTTL decrements every pending sequence's TTL and evicts those that
// reach zero.
func (m *Manager) TickTTL() {
	for id, h := range m.sequences {
		h.ttl--
		if h.ttl < 1 {
			m.log.Debug("evicting stale fragment sequence", zap.Uint16("id", id))
			delete(m.sequences, id)
		}
	}
}

// Pending returns the number of sequences still awaiting fragments.
func (m *Manager) Pending() int {
	return len(m.sequences)
}

// SequenceTTL returns the TTL assigned to new sequences.
func (m *Manager) SequenceTTL() int {
	return m.ttl
}

// SetSequenceTTL changes the TTL for new sequences and raises any pending
// sequence's remaining TTL to at least the new value. Remaining TTLs are
// never lowered, so in-flight sequences keep the time they were promised.
func (m *Manager) SetSequenceTTL(ttl int) {
	m.ttl = ttl
	for _, h := range m.sequences {
		if h.ttl < ttl {
			h.ttl = ttl
		}
	}
}
