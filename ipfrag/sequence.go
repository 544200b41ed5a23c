// Package ipfrag reassembles datagrams split across multiple IPv4 frames by
// the fragmentation mechanism. A Sequence collects the frames sharing one
// identification value; a Manager tracks many pending sequences at once and
// evicts stale ones via caller-driven TTL ticks.
package ipfrag

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sofiworker/gpcap/layers"
)

var (
	ErrWrongSequence      = errors.New("ipfrag: fragment does not belong to this sequence")
	ErrIncompleteSequence = errors.New("ipfrag: incomplete sequence")
)

// Sequence accumulates the fragments of a single fragmented datagram,
// identified by the IPv4 identification field. Fragments may arrive in any
// order; they are kept sorted by offset.
type Sequence struct {
	id        uint16
	fragments []*layers.IPv4
	complete  bool
	dirty     bool
}

func NewSequence(id uint16) *Sequence {
	return &Sequence{id: id}
}

// ID returns the identification value this sequence collects fragments for.
func (s *Sequence) ID() uint16 { return s.id }

// AddFragment inserts a fragment at its offset-sorted position. A fragment
// whose identification does not match the sequence fails with
// ErrWrongSequence. A fragment duplicating an already-held offset is dropped.
func (s *Sequence) AddFragment(frag *layers.IPv4) error {
	if frag.Identification != s.id {
		return fmt.Errorf("%w: got %#04x, want %#04x", ErrWrongSequence, frag.Identification, s.id)
	}
	at := sort.Search(len(s.fragments), func(i int) bool {
		return s.fragments[i].FragmentOffset >= frag.FragmentOffset
	})
	if at < len(s.fragments) && s.fragments[at].FragmentOffset == frag.FragmentOffset {
		return nil
	}
	s.fragments = append(s.fragments, nil)
	copy(s.fragments[at+1:], s.fragments[at:])
	s.fragments[at] = frag
	s.dirty = true
	return nil
}

// Fragments returns the fragments collected so far, ordered by offset.
func (s *Sequence) Fragments() []*layers.IPv4 {
	out := make([]*layers.IPv4, len(s.fragments))
	copy(out, s.fragments)
	return out
}

// IsComplete reports whether every fragment of the datagram has been
// collected: offsets must be contiguous and the last fragment must have the
// more-fragments flag clear. The answer is cached until the next add.
func (s *Sequence) IsComplete() bool {
	if s.dirty {
		s.complete = s.checkComplete()
		s.dirty = false
	}
	return s.complete
}

func (s *Sequence) checkComplete() bool {
	expectedOffset := uint16(0)
	for i, frag := range s.fragments {
		if frag.FragmentOffset != expectedOffset {
			return false
		}
		if i == len(s.fragments)-1 && frag.MoreFragments() {
			return false
		}
		expectedOffset += uint16(len(frag.Data()) / 8)
	}
	return len(s.fragments) > 0
}

// Reassemble stitches the collected fragments back into the original
// datagram payload. The sequence must be complete.
func (s *Sequence) Reassemble() ([]byte, error) {
	if !s.IsComplete() {
		return nil, ErrIncompleteSequence
	}
	last := s.fragments[len(s.fragments)-1]
	data := make([]byte, int(last.FragmentOffset)*8+len(last.Data()))
	for _, frag := range s.fragments {
		copy(data[int(frag.FragmentOffset)*8:], frag.Data())
	}
	return data, nil
}
