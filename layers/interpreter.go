package layers

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sofiworker/gpcap/block"
	"github.com/sofiworker/gpcap/pcapio"
)

// ErrUnsupportedLinkType is returned when a packet arrives on an interface
// whose link type the interpreter cannot decode and skipping is not enabled.
var ErrUnsupportedLinkType = errors.New("layers: unsupported link type")

const (
	ethernetHeaderSize = 14
	udpHeaderSize      = 8
)

// Observer receives a decoded layer of type T. Registering an observer
// replaces any previously registered one for the same layer type.
type Observer[T Layer] func(T)

// Interpreter decodes EnhancedPacket payloads into layer stacks and fans each
// decoded layer out to its registered observer. An interpreter holds no state
// between packets and is safe to reuse across sections.
type Interpreter struct {
	log             *zap.Logger
	skipUnknownLink bool

	onEthernet Observer[*Ethernet]
	onRaw      Observer[*Raw]
	onIPv4     Observer[*IPv4]
	onUDP      Observer[*UDP]
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(log *zap.Logger) InterpreterOption {
	return func(i *Interpreter) {
		if log != nil {
			i.log = log
		}
	}
}

// WithSkipUnknownLinkTypes makes Process drop packets from interfaces with
// undecodable link types instead of failing.
func WithSkipUnknownLinkTypes() InterpreterOption {
	return func(i *Interpreter) {
		i.skipUnknownLink = true
	}
}

func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{log: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interpreter) OnEthernet(fn Observer[*Ethernet]) { i.onEthernet = fn }
func (i *Interpreter) OnRaw(fn Observer[*Raw])           { i.onRaw = fn }
func (i *Interpreter) OnIPv4(fn Observer[*IPv4])         { i.onIPv4 = fn }
func (i *Interpreter) OnUDP(fn Observer[*UDP])           { i.onUDP = fn }

// Process decodes one captured packet. Truncated packets are skipped, since
// their missing tail would misalign every header after the cut. Observers run
// as soon as their layer is decoded, outermost first.
func (i *Interpreter) Process(pkt *block.EnhancedPacket) error {
	if pkt.IsTruncated() {
		i.log.Debug("skipping truncated packet",
			zap.Int("captured", len(pkt.Data)),
			zap.Uint32("original", pkt.OriginalLength))
		return nil
	}

	root := NewPacket(pkt)
	switch lt := pkt.Interface.LinkType; lt {
	case block.LinkTypeNull, block.LinkTypeEthernet:
		return i.processEthernet(root, pkt.Data)
	case block.LinkTypeRaw:
		return i.processRaw(root, pkt.Data)
	default:
		if i.skipUnknownLink {
			i.log.Warn("skipping packet with unsupported link type", zap.Uint16("linktype", uint16(lt)))
			return nil
		}
		return fmt.Errorf("%w: %d", ErrUnsupportedLinkType, lt)
	}
}

func (i *Interpreter) processEthernet(parent Layer, data []byte) error {
	if len(data) < ethernetHeaderSize {
		return fmt.Errorf("layers: ethernet frame too short: %d bytes", len(data))
	}
	r := pcapio.NewBufferReader(data, binary.BigEndian)
	dst, err := r.Bytes(6)
	if err != nil {
		return err
	}
	src, err := r.Bytes(6)
	if err != nil {
		return err
	}
	etherType, err := r.Uint16()
	if err != nil {
		return err
	}

	eth := &Ethernet{
		base:      base{parent: parent, data: data[ethernetHeaderSize:]},
		DstMAC:    dst,
		SrcMAC:    src,
		EtherType: EtherType(etherType),
	}
	if i.onEthernet != nil {
		i.onEthernet(eth)
	}
	if eth.EtherType == EtherTypeIPv4 {
		return i.processIPv4(eth, eth.Data())
	}
	return nil
}

func (i *Interpreter) processRaw(parent Layer, data []byte) error {
	if len(data) < 4 {
		i.log.Debug("skipping raw frame shorter than an IP version probe", zap.Int("captured", len(data)))
		return nil
	}
	raw := &Raw{base: base{parent: parent, data: data}}
	if i.onRaw != nil {
		i.onRaw(raw)
	}
	if data[0]>>4 == 4 {
		return i.processIPv4(raw, data)
	}
	return nil
}

func (i *Interpreter) processIPv4(parent Layer, data []byte) error {
	r := pcapio.NewBufferReader(data, binary.BigEndian)
	verIHL, err := r.Uint8()
	if err != nil {
		return err
	}
	headerLen := int(verIHL&0x0F) * 4
	tos, err := r.Uint8()
	if err != nil {
		return err
	}
	totalLength, err := r.Uint16()
	if err != nil {
		return err
	}
	id, err := r.Uint16()
	if err != nil {
		return err
	}
	flagsOffset, err := r.Uint16()
	if err != nil {
		return err
	}
	ttl, err := r.Uint8()
	if err != nil {
		return err
	}
	protocol, err := r.Uint8()
	if err != nil {
		return err
	}
	checksum, err := r.Uint16()
	if err != nil {
		return err
	}
	srcIP, err := r.Bytes(4)
	if err != nil {
		return err
	}
	dstIP, err := r.Bytes(4)
	if err != nil {
		return err
	}
	if headerLen > 20 {
		if err := r.Skip(headerLen - 20); err != nil {
			return err
		}
	}

	payloadLen := int(totalLength) - headerLen
	if payloadLen < 0 {
		return fmt.Errorf("layers: ipv4 total length %d smaller than header %d", totalLength, headerLen)
	}
	payload, err := r.Bytes(payloadLen)
	if err != nil {
		return err
	}

	ip := &IPv4{
		base:           base{parent: parent, data: payload},
		TypeOfService:  tos,
		TotalLength:    totalLength,
		Identification: id,
		Flags:          uint8(flagsOffset >> 13),
		FragmentOffset: flagsOffset & 0x1FFF,
		TTL:            ttl,
		Protocol:       protocol,
		Checksum:       checksum,
		SrcIP:          srcIP,
		DstIP:          dstIP,
	}
	if i.onIPv4 != nil {
		i.onIPv4(ip)
	}
	if ip.Protocol == ProtocolUDP {
		return i.processUDP(ip, payload)
	}
	return nil
}

func (i *Interpreter) processUDP(parent Layer, data []byte) error {
	r := pcapio.NewBufferReader(data, binary.BigEndian)
	srcPort, err := r.Uint16()
	if err != nil {
		return err
	}
	dstPort, err := r.Uint16()
	if err != nil {
		return err
	}
	length, err := r.Uint16()
	if err != nil {
		return err
	}
	checksum, err := r.Uint16()
	if err != nil {
		return err
	}
	if int(length) < udpHeaderSize {
		return fmt.Errorf("layers: udp length %d smaller than header", length)
	}
	payload, err := r.Bytes(int(length) - udpHeaderSize)
	if err != nil {
		return err
	}

	udp := &UDP{
		base:     base{parent: parent, data: payload},
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Length:   length,
		Checksum: checksum,
	}
	if i.onUDP != nil {
		i.onUDP(udp)
	}
	return nil
}
