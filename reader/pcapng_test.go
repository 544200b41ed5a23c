package reader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sofiworker/gpcap/block"
)

func frameBlock(order binary.ByteOrder, typ uint32, body []byte) []byte {
	total := uint32(12 + len(body))
	buf := make([]byte, 0, total)
	var u32 [4]byte
	order.PutUint32(u32[:], typ)
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], total)
	buf = append(buf, u32[:]...)
	buf = append(buf, body...)
	order.PutUint32(u32[:], total)
	return append(buf, u32[:]...)
}

func sectionHeaderBytes(order binary.ByteOrder, options []byte) []byte {
	body := make([]byte, 16)
	order.PutUint32(body[0:4], block.ByteOrderMagic)
	order.PutUint16(body[4:6], 1) // major
	order.PutUint16(body[6:8], 0) // minor
	order.PutUint64(body[8:16], 0xFFFFFFFFFFFFFFFF)
	body = append(body, options...)
	return frameBlock(order, uint32(block.TypeSectionHeader), body)
}

func interfaceBytes(order binary.ByteOrder, linkType uint16, snapLen uint32, options []byte) []byte {
	body := make([]byte, 8)
	order.PutUint16(body[0:2], linkType)
	order.PutUint32(body[4:8], snapLen)
	body = append(body, options...)
	return frameBlock(order, uint32(block.TypeInterfaceDescription), body)
}

func packetBytes(order binary.ByteOrder, ifaceID uint32, units uint64, origLen uint32, data, options []byte) []byte {
	body := make([]byte, 20)
	order.PutUint32(body[0:4], ifaceID)
	order.PutUint32(body[4:8], uint32(units>>32))
	order.PutUint32(body[8:12], uint32(units))
	order.PutUint32(body[12:16], uint32(len(data)))
	order.PutUint32(body[16:20], origLen)
	body = append(body, data...)
	if pad := len(data) % 4; pad > 0 {
		body = append(body, make([]byte, 4-pad)...)
	}
	body = append(body, options...)
	return frameBlock(order, uint32(block.TypeEnhancedPacket), body)
}

func statisticsBytes(order binary.ByteOrder, ifaceID uint32, units uint64, options []byte) []byte {
	body := make([]byte, 12)
	order.PutUint32(body[0:4], ifaceID)
	order.PutUint32(body[4:8], uint32(units>>32))
	order.PutUint32(body[8:12], uint32(units))
	body = append(body, options...)
	return frameBlock(order, uint32(block.TypeInterfaceStatistics), body)
}

func endOfOptions(order binary.ByteOrder) []byte {
	return appendOptionBytes(nil, order, block.OptEndOfOpt, nil)
}

func appendOptionBytes(buf []byte, order binary.ByteOrder, id uint16, value []byte) []byte {
	var hdr [4]byte
	order.PutUint16(hdr[0:2], id)
	order.PutUint16(hdr[2:4], uint16(len(value)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, value...)
	if pad := len(value) % 4; pad > 0 {
		buf = append(buf, make([]byte, 4-pad)...)
	}
	return buf
}

func readAll(t *testing.T, r BlockReader) []block.Block {
	t.Helper()
	var blocks []block.Block
	for {
		b, err := r.NextBlock()
		if err == io.EOF {
			return blocks
		}
		if err != nil {
			t.Fatalf("NextBlock failed: %v", err)
		}
		blocks = append(blocks, b)
	}
}

func TestPcapNgReadStream(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		units := uint64(1_710_000_000)*1_000_000 + 2500
		data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}

		var stream []byte
		stream = append(stream, sectionHeaderBytes(order, nil)...)
		stream = append(stream, interfaceBytes(order, uint16(block.LinkTypeEthernet), 0, nil)...)
		stream = append(stream, packetBytes(order, 0, units, 5, data, nil)...)

		r, err := NewReader(bytes.NewReader(stream))
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		if _, ok := r.(*PcapNgReader); !ok {
			t.Fatalf("expected PcapNgReader, got %T", r)
		}

		blocks := readAll(t, r)
		if len(blocks) != 3 {
			t.Fatalf("expected 3 blocks, got %d", len(blocks))
		}

		section, ok := blocks[0].(*block.SectionHeader)
		if !ok {
			t.Fatalf("expected SectionHeader, got %T", blocks[0])
		}
		if section.ByteOrder != order || section.MajorVersion != 1 || section.MinorVersion != 0 {
			t.Fatalf("unexpected section header: %+v", section)
		}

		iface, ok := blocks[1].(*block.InterfaceDescription)
		if !ok {
			t.Fatalf("expected InterfaceDescription, got %T", blocks[1])
		}
		if iface.LinkType != block.LinkTypeEthernet || iface.SnapLen != 0 {
			t.Fatalf("unexpected interface: %+v", iface)
		}

		pkt, ok := blocks[2].(*block.EnhancedPacket)
		if !ok {
			t.Fatalf("expected EnhancedPacket, got %T", blocks[2])
		}
		if pkt.Interface != iface {
			t.Fatal("packet not bound to its declaring interface")
		}
		if !bytes.Equal(pkt.Data, data) || pkt.OriginalLength != 5 || pkt.IsTruncated() {
			t.Fatalf("unexpected packet: %+v", pkt)
		}
		want := time.Unix(1_710_000_000, 2500*1000).UTC()
		if !pkt.Timestamp.Equal(want) {
			t.Fatalf("timestamp mismatch: got %v want %v", pkt.Timestamp, want)
		}
	}
}

func TestPcapNgInterfaceOptions(t *testing.T) {
	order := binary.LittleEndian
	var opts []byte
	opts = appendOptionBytes(opts, order, block.OptIfName, []byte("eth0"))
	opts = appendOptionBytes(opts, order, block.OptIfTsResol, []byte{0x09})
	opts = append(opts, endOfOptions(order)...)

	units := uint64(1_700_000_000)*1_000_000_000 + 42
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, uint16(block.LinkTypeRaw), 65535, opts)...)
	stream = append(stream, packetBytes(order, 0, units, 4, []byte{1, 2, 3, 4}, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	blocks := readAll(t, r)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}

	iface := blocks[1].(*block.InterfaceDescription)
	if iface.Name() != "eth0" {
		t.Fatalf("unexpected interface name %q", iface.Name())
	}

	pkt := blocks[2].(*block.EnhancedPacket)
	want := time.Unix(1_700_000_000, 42).UTC()
	if !pkt.Timestamp.Equal(want) {
		t.Fatalf("nanosecond timestamp mismatch: got %v want %v", pkt.Timestamp, want)
	}
}

func TestPcapNgUnknownInterfaceIndex(t *testing.T) {
	order := binary.BigEndian
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)
	stream = append(stream, packetBytes(order, 7, 0, 0, nil, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.NextBlock(); err != nil {
		t.Fatalf("section header: %v", err)
	}
	if _, err := r.NextBlock(); err != nil {
		t.Fatalf("interface: %v", err)
	}
	if _, err := r.NextBlock(); !errors.Is(err, ErrUnknownInterface) {
		t.Fatalf("expected ErrUnknownInterface, got %v", err)
	}
}

func TestPcapNgSectionResetsInterfaces(t *testing.T) {
	// A second section restarts interface numbering: a packet referencing
	// index 0 before any interface is declared in the new section fails.
	order := binary.BigEndian
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, packetBytes(order, 0, 0, 0, nil, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.NextBlock(); err != nil {
			t.Fatalf("block %d: %v", i, err)
		}
	}
	if _, err := r.NextBlock(); !errors.Is(err, ErrUnknownInterface) {
		t.Fatalf("expected ErrUnknownInterface after section reset, got %v", err)
	}
}

func TestPcapNgMixedEndianSections(t *testing.T) {
	var stream []byte
	stream = append(stream, sectionHeaderBytes(binary.BigEndian, nil)...)
	stream = append(stream, interfaceBytes(binary.BigEndian, 1, 0, nil)...)
	stream = append(stream, sectionHeaderBytes(binary.LittleEndian, nil)...)
	stream = append(stream, interfaceBytes(binary.LittleEndian, 1, 0, nil)...)
	stream = append(stream, packetBytes(binary.LittleEndian, 0, 0, 2, []byte{0xCA, 0xFE}, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	blocks := readAll(t, r)
	if len(blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(blocks))
	}
	second := blocks[2].(*block.SectionHeader)
	if second.ByteOrder != binary.ByteOrder(binary.LittleEndian) {
		t.Fatal("second section must be little-endian")
	}
	pkt := blocks[4].(*block.EnhancedPacket)
	if !bytes.Equal(pkt.Data, []byte{0xCA, 0xFE}) {
		t.Fatalf("unexpected packet data: %x", pkt.Data)
	}
}

func TestPcapNgSnapLenExceeded(t *testing.T) {
	order := binary.LittleEndian
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 4, nil)...)
	stream = append(stream, packetBytes(order, 0, 0, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8}, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.NextBlock(); err != nil {
		t.Fatalf("section header: %v", err)
	}
	if _, err := r.NextBlock(); err != nil {
		t.Fatalf("interface: %v", err)
	}
	if _, err := r.NextBlock(); !errors.Is(err, ErrSnapLenExceeded) {
		t.Fatalf("expected ErrSnapLenExceeded, got %v", err)
	}
}

func TestPcapNgInterfaceStatistics(t *testing.T) {
	order := binary.BigEndian
	recv := make([]byte, 8)
	binary.BigEndian.PutUint64(recv, 99)
	var opts []byte
	opts = appendOptionBytes(opts, order, block.OptIsbIfRecv, recv)
	opts = append(opts, endOfOptions(order)...)

	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)
	stream = append(stream, statisticsBytes(order, 0, 12345, opts)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	blocks := readAll(t, r)
	stats, ok := blocks[2].(*block.InterfaceStatistics)
	if !ok {
		t.Fatalf("expected InterfaceStatistics, got %T", blocks[2])
	}
	if v, ok := stats.PacketsReceived(); !ok || v != 99 {
		t.Fatalf("unexpected ifrecv: %d ok=%v", v, ok)
	}
	if !stats.Timestamp.Equal(time.Unix(0, 12345*1000)) {
		t.Fatalf("unexpected timestamp: %v", stats.Timestamp)
	}
}

func TestPcapNgUnsupportedBlock(t *testing.T) {
	order := binary.BigEndian
	body := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, frameBlock(order, 0x0BAD, body)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	blocks := readAll(t, r)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	unk, ok := blocks[1].(*block.Unsupported)
	if !ok {
		t.Fatalf("expected Unsupported, got %T", blocks[1])
	}
	if unk.BlockType() != 0x0BAD || !bytes.Equal(unk.Body, body) {
		t.Fatalf("unexpected unsupported block: %+v", unk)
	}
	// The reader must stay aligned after skipping the unknown block.
	if _, ok := blocks[2].(*block.InterfaceDescription); !ok {
		t.Fatalf("expected InterfaceDescription after unsupported block, got %T", blocks[2])
	}
}

func TestPcapNgTrailingLengthNotValidated(t *testing.T) {
	order := binary.BigEndian
	raw := interfaceBytes(order, 1, 0, nil)
	// Corrupt the repeated trailing length; the leading one governs.
	binary.BigEndian.PutUint32(raw[len(raw)-4:], 0xFFFFFFFF)

	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, raw...)

	r, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	blocks := readAll(t, r)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
}

func TestPcapNgDecodeIdempotent(t *testing.T) {
	order := binary.LittleEndian
	var stream []byte
	stream = append(stream, sectionHeaderBytes(order, nil)...)
	stream = append(stream, interfaceBytes(order, 1, 0, nil)...)
	stream = append(stream, packetBytes(order, 0, 77, 3, []byte{9, 8, 7}, nil)...)

	decode := func() []block.Block {
		r, err := NewReader(bytes.NewReader(stream))
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		return readAll(t, r)
	}

	first := decode()
	second := decode()
	if len(first) != len(second) {
		t.Fatalf("runs disagree on block count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].BlockType() != second[i].BlockType() {
			t.Fatalf("block %d type mismatch", i)
		}
	}
	p1 := first[2].(*block.EnhancedPacket)
	p2 := second[2].(*block.EnhancedPacket)
	if !bytes.Equal(p1.Data, p2.Data) || !p1.Timestamp.Equal(p2.Timestamp) ||
		p1.OriginalLength != p2.OriginalLength {
		t.Fatal("packet blocks differ between runs")
	}
}
