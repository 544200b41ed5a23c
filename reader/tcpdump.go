package reader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/sofiworker/gpcap/block"
	"github.com/sofiworker/gpcap/pcapio"
)

const (
	tcpDumpMagicMicros uint32 = 0xA1B2C3D4
	tcpDumpMagicNanos  uint32 = 0xA1B23C4D
)

type tcpDumpState int

const (
	stateHeader tcpDumpState = iota
	stateSyntheticInterface
	stateContent
)

// TcpDumpReader decodes legacy tcpdump/libpcap streams. The global file
// header is surfaced as a synthetic section header plus a synthetic
// interface description, after which every record becomes an EnhancedPacket,
// so callers see the same block sequence for both container formats.
type TcpDumpReader struct {
	br    *bufio.Reader
	pr    *pcapio.Reader
	state tcpDumpState
	log   *zap.Logger

	section *block.SectionHeader
	iface   *block.InterfaceDescription
	tb      block.Timebase
}

func newTcpDumpReader(br *bufio.Reader, o options) *TcpDumpReader {
	return &TcpDumpReader{br: br, state: stateHeader, log: o.log}
}

// NextBlock returns the synthetic section header on the first call, the
// synthetic interface description on the second, then one packet per call
// until the stream ends with io.EOF.
func (r *TcpDumpReader) NextBlock() (block.Block, error) {
	switch r.state {
	case stateHeader:
		if err := r.readHeader(); err != nil {
			return nil, err
		}
		r.state = stateSyntheticInterface
		return r.section, nil
	case stateSyntheticInterface:
		r.state = stateContent
		return r.iface, nil
	default:
		return r.readPacket()
	}
}

func (r *TcpDumpReader) readHeader() error {
	head, err := r.br.Peek(4)
	if err != nil {
		return err
	}
	order := binary.ByteOrder(binary.LittleEndian)
	if head[0] == 0xA1 {
		order = binary.BigEndian
	}
	r.pr = pcapio.NewReader(r.br, order)

	magic, err := r.pr.Uint32()
	if err != nil {
		return err
	}
	if magic != tcpDumpMagicMicros && magic != tcpDumpMagicNanos {
		return fmt.Errorf("%w: tcpdump magic %#08x", ErrNotCaptureFile, magic)
	}
	tsResol := byte(0x06)
	if magic == tcpDumpMagicNanos {
		tsResol = 0x09
	}

	major, err := r.pr.Uint16()
	if err != nil {
		return err
	}
	minor, err := r.pr.Uint16()
	if err != nil {
		return err
	}
	if err := r.pr.Skip(8); err != nil { // two reserved fields
		return err
	}
	snapLen, err := r.pr.Uint32()
	if err != nil {
		return err
	}
	if _, err := r.pr.Uint16(); err != nil { // fcs/reserved half of the link field
		return err
	}
	linkType, err := r.pr.Uint16()
	if err != nil {
		return err
	}

	r.section = &block.SectionHeader{
		ByteOrder:    order,
		MajorVersion: major,
		MinorVersion: minor,
	}
	r.iface = &block.InterfaceDescription{
		LinkType: block.LinkType(linkType),
		SnapLen:  snapLen,
		Options: []block.Option{
			{ID: block.OptIfTsResol, Order: order, Value: []byte{tsResol}},
		},
	}
	if r.tb, err = r.iface.Timebase(); err != nil {
		return err
	}

	r.log.Debug("tcpdump header",
		zap.String("byte_order", orderName(order)),
		zap.Uint16("link_type", linkType),
		zap.Uint32("snap_len", snapLen))
	return nil
}

func (r *TcpDumpReader) readPacket() (*block.EnhancedPacket, error) {
	if _, err := r.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	seconds, err := r.pr.Uint32()
	if err != nil {
		return nil, err
	}
	subSeconds, err := r.pr.Uint32()
	if err != nil {
		return nil, err
	}
	capturedLength, err := r.pr.Uint32()
	if err != nil {
		return nil, err
	}
	originalLength, err := r.pr.Uint32()
	if err != nil {
		return nil, err
	}

	if r.iface.SnapLen != block.SnapLenUnlimited && capturedLength > r.iface.SnapLen {
		return nil, fmt.Errorf("%w (snaplen=%d, captured=%d)",
			ErrSnapLenExceeded, r.iface.SnapLen, capturedLength)
	}

	// Legacy records carry no padding after the data.
	data, err := r.pr.Bytes(int(capturedLength))
	if err != nil {
		return nil, err
	}

	perSecond := uint64(time.Second / r.tb.Unit)
	ts := r.tb.Time(uint64(seconds)*perSecond + uint64(subSeconds))

	return &block.EnhancedPacket{
		Interface:      r.iface,
		Timestamp:      ts,
		OriginalLength: originalLength,
		Data:           data,
	}, nil
}
