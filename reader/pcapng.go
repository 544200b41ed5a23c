package reader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/sofiworker/gpcap/block"
	"github.com/sofiworker/gpcap/pcapio"
)

// ErrInvalidBlockLength is returned when a block's declared total length is
// smaller than its own framing.
var ErrInvalidBlockLength = errors.New("reader: invalid block total length")

var shbPalindrome = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// PcapNgReader decodes PcapNG streams block by block. It tracks the current
// section's byte order and the interfaces declared within it; a new section
// header resets both.
type PcapNgReader struct {
	br     *bufio.Reader
	order  binary.ByteOrder
	ifaces []*block.InterfaceDescription
	log    *zap.Logger
}

func newPcapNgReader(br *bufio.Reader, o options) *PcapNgReader {
	return &PcapNgReader{
		br:    br,
		order: binary.BigEndian,
		log:   o.log,
	}
}

// NextBlock reads and returns the next block, or io.EOF once fewer bytes
// than a minimal block frame remain.
func (r *PcapNgReader) NextBlock() (block.Block, error) {
	head, err := r.br.Peek(12)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	// A section header re-establishes the byte order for everything that
	// follows it and restarts interface numbering.
	if bytes.Equal(head[0:4], shbPalindrome) {
		if head[8] == 0x1A {
			r.order = binary.BigEndian
		} else {
			r.order = binary.LittleEndian
		}
		r.ifaces = r.ifaces[:0]
		r.log.Debug("pcapng section start", zap.String("byte_order", orderName(r.order)))
	}

	pr := pcapio.NewReader(r.br, r.order)
	rawType, err := pr.Uint32()
	if err != nil {
		return nil, err
	}
	totalLength, err := pr.Uint32()
	if err != nil {
		return nil, err
	}
	if totalLength < 12 {
		return nil, ErrInvalidBlockLength
	}
	// 8-byte header plus the repeated trailing length.
	bodyLength := int(totalLength) - 12

	var decoded block.Block
	switch block.Type(rawType) {
	case block.TypeSectionHeader:
		decoded, err = r.readSectionHeader(pr, bodyLength)
	case block.TypeInterfaceDescription:
		decoded, err = r.readInterfaceDescription(pr, bodyLength)
	case block.TypeEnhancedPacket:
		decoded, err = r.readEnhancedPacket(pr, bodyLength)
	case block.TypeInterfaceStatistics:
		decoded, err = r.readInterfaceStatistics(pr, bodyLength)
	default:
		decoded, err = r.readUnsupported(pr, block.Type(rawType), bodyLength)
	}
	if err != nil {
		return nil, err
	}

	// The trailing length is repeated for backward scanning. It is consumed
	// but not checked against the leading one.
	if _, err := pr.Uint32(); err != nil {
		return nil, err
	}

	if iface, ok := decoded.(*block.InterfaceDescription); ok {
		r.ifaces = append(r.ifaces, iface)
	}

	return decoded, nil
}

func (r *PcapNgReader) readSectionHeader(pr *pcapio.Reader, bodyLength int) (*block.SectionHeader, error) {
	bom, err := pr.Bytes(4)
	if err != nil {
		return nil, err
	}
	sectionOrder := binary.ByteOrder(binary.LittleEndian)
	if binary.BigEndian.Uint32(bom) == block.ByteOrderMagic {
		sectionOrder = binary.BigEndian
	}

	major, err := pr.Uint16()
	if err != nil {
		return nil, err
	}
	minor, err := pr.Uint16()
	if err != nil {
		return nil, err
	}
	// Section length: informational only.
	if _, err := pr.Uint64(); err != nil {
		return nil, err
	}

	var opts []block.Option
	if bodyLength > 16 {
		if opts, err = block.ReadOptions(pr); err != nil {
			return nil, err
		}
	}

	return &block.SectionHeader{
		ByteOrder:    sectionOrder,
		MajorVersion: major,
		MinorVersion: minor,
		Options:      opts,
	}, nil
}

func (r *PcapNgReader) readInterfaceDescription(pr *pcapio.Reader, bodyLength int) (*block.InterfaceDescription, error) {
	linkType, err := pr.Uint16()
	if err != nil {
		return nil, err
	}
	if err := pr.Skip(2); err != nil { // reserved
		return nil, err
	}
	snapLen, err := pr.Uint32()
	if err != nil {
		return nil, err
	}

	var opts []block.Option
	if bodyLength > 8 {
		if opts, err = block.ReadOptions(pr); err != nil {
			return nil, err
		}
	}

	return &block.InterfaceDescription{
		LinkType: block.LinkType(linkType),
		SnapLen:  snapLen,
		Options:  opts,
	}, nil
}

func (r *PcapNgReader) resolveInterface(pr *pcapio.Reader) (*block.InterfaceDescription, error) {
	index, err := pr.Uint32()
	if err != nil {
		return nil, err
	}
	if int(index) >= len(r.ifaces) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInterface, index)
	}
	return r.ifaces[index], nil
}

func (r *PcapNgReader) readTimestamp(pr *pcapio.Reader, iface *block.InterfaceDescription) (uint64, block.Timebase, error) {
	upper, err := pr.Uint32()
	if err != nil {
		return 0, block.Timebase{}, err
	}
	lower, err := pr.Uint32()
	if err != nil {
		return 0, block.Timebase{}, err
	}
	tb, err := iface.Timebase()
	if err != nil {
		return 0, block.Timebase{}, err
	}
	return uint64(upper)<<32 | uint64(lower), tb, nil
}

func (r *PcapNgReader) readEnhancedPacket(pr *pcapio.Reader, bodyLength int) (*block.EnhancedPacket, error) {
	iface, err := r.resolveInterface(pr)
	if err != nil {
		return nil, err
	}
	units, tb, err := r.readTimestamp(pr, iface)
	if err != nil {
		return nil, err
	}

	capturedLength, err := pr.Uint32()
	if err != nil {
		return nil, err
	}
	originalLength, err := pr.Uint32()
	if err != nil {
		return nil, err
	}

	if iface.SnapLen != block.SnapLenUnlimited && capturedLength > iface.SnapLen {
		return nil, fmt.Errorf("%w (snaplen=%d, captured=%d)",
			ErrSnapLenExceeded, iface.SnapLen, capturedLength)
	}

	data, err := pr.Bytes(int(capturedLength))
	if err != nil {
		return nil, err
	}

	skipped := 0
	if pad := int(capturedLength) % 4; pad > 0 {
		skipped = 4 - pad
		if err := pr.Skip(skipped); err != nil {
			return nil, err
		}
	}

	var opts []block.Option
	if bodyLength > 20+int(capturedLength)+skipped {
		if opts, err = block.ReadOptions(pr); err != nil {
			return nil, err
		}
	}

	return &block.EnhancedPacket{
		Interface:      iface,
		Timestamp:      tb.Time(units),
		OriginalLength: originalLength,
		Data:           data,
		Options:        opts,
	}, nil
}

func (r *PcapNgReader) readInterfaceStatistics(pr *pcapio.Reader, bodyLength int) (*block.InterfaceStatistics, error) {
	iface, err := r.resolveInterface(pr)
	if err != nil {
		return nil, err
	}
	units, tb, err := r.readTimestamp(pr, iface)
	if err != nil {
		return nil, err
	}

	var opts []block.Option
	if bodyLength > 12 {
		if opts, err = block.ReadOptions(pr); err != nil {
			return nil, err
		}
	}

	return &block.InterfaceStatistics{
		Interface: iface,
		Timestamp: tb.Time(units),
		Options:   opts,
	}, nil
}

func (r *PcapNgReader) readUnsupported(pr *pcapio.Reader, typ block.Type, bodyLength int) (*block.Unsupported, error) {
	body, err := pr.Bytes(bodyLength)
	if err != nil {
		return nil, err
	}
	r.log.Debug("pcapng unsupported block", zap.Uint32("type", uint32(typ)), zap.Int("length", bodyLength))
	return &block.Unsupported{Type: typ, Body: body}, nil
}

func orderName(order binary.ByteOrder) string {
	if order == binary.ByteOrder(binary.LittleEndian) {
		return "little"
	}
	return "big"
}
