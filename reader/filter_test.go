package reader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"golang.org/x/net/bpf"

	"github.com/sofiworker/gpcap/block"
)

func TestFilterDropsRejectedPackets(t *testing.T) {
	order := binary.LittleEndian
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)
	stream = append(stream, packetBytes(order, 0, 0, 4, []byte{0x55, 1, 2, 3}, nil)...)
	stream = append(stream, packetBytes(order, 0, 0, 4, []byte{0xAA, 1, 2, 3}, nil)...)
	stream = append(stream, packetBytes(order, 0, 0, 4, []byte{0x55, 9, 9, 9}, nil)...)

	src, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	// Keep packets whose first byte is 0x55.
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: 0, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x55, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xFFFF},
	}
	f, err := NewFilter(src, prog)
	if err != nil {
		t.Fatalf("NewFilter failed: %v", err)
	}

	blocks := readAll(t, f)
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks after filtering, got %d", len(blocks))
	}
	// Section header and interface pass through untouched.
	if _, ok := blocks[0].(*block.SectionHeader); !ok {
		t.Fatalf("expected SectionHeader, got %T", blocks[0])
	}
	if _, ok := blocks[1].(*block.InterfaceDescription); !ok {
		t.Fatalf("expected InterfaceDescription, got %T", blocks[1])
	}
	for _, b := range blocks[2:] {
		pkt := b.(*block.EnhancedPacket)
		if pkt.Data[0] != 0x55 {
			t.Fatalf("rejected packet leaked through: %x", pkt.Data)
		}
	}
}

func TestFilterRejectsBadProgram(t *testing.T) {
	if _, err := NewFilter(nil, nil); err == nil {
		t.Fatal("expected error for empty program")
	}
}
