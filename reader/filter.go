package reader

import (
	"golang.org/x/net/bpf"

	"github.com/sofiworker/gpcap/block"
)

// Filter wraps a BlockReader and drops EnhancedPacket blocks whose captured
// bytes are rejected by a BPF program. Non-packet blocks pass through
// untouched so section and interface bookkeeping stays intact downstream.
type Filter struct {
	src BlockReader
	vm  *bpf.VM
}

// NewFilter compiles prog and returns a filtering BlockReader over src.
func NewFilter(src BlockReader, prog []bpf.Instruction) (*Filter, error) {
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, err
	}
	return &Filter{src: src, vm: vm}, nil
}

// NextBlock returns the next block that survives the filter.
func (f *Filter) NextBlock() (block.Block, error) {
	for {
		b, err := f.src.NextBlock()
		if err != nil {
			return nil, err
		}
		pkt, ok := b.(*block.EnhancedPacket)
		if !ok {
			return b, nil
		}
		keep, err := f.vm.Run(pkt.Data)
		if err != nil {
			return nil, err
		}
		if keep > 0 {
			return pkt, nil
		}
	}
}
