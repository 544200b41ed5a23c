package block

import "errors"

// Type is the block-type discriminant from the capture-file container.
type Type uint32

const (
	TypeSectionHeader        Type = 0x0A0D0D0A
	TypeInterfaceDescription Type = 0x00000001
	TypeInterfaceStatistics  Type = 0x00000005
	TypeEnhancedPacket       Type = 0x00000006
)

const (
	// ByteOrderMagic is the value of the section header byte-order field when
	// read with the section's own byte order.
	ByteOrderMagic uint32 = 0x1A2B3C4D

	// SnapLenUnlimited marks an interface that captures packets whole.
	SnapLenUnlimited uint32 = 0
)

// LinkType identifies the link layer of an interface. Incomplete; see the
// PCAP and PCAPNG LINKTYPE registry for the full list.
type LinkType uint16

const (
	LinkTypeNull     LinkType = 0
	LinkTypeEthernet LinkType = 1
	LinkTypeRaw      LinkType = 101
)

// Option identifiers.
const (
	OptEndOfOpt uint16 = 0
	OptComment  uint16 = 1

	// Section header block options.
	OptShbHardware uint16 = 2
	OptShbOS       uint16 = 3
	OptShbUserAppl uint16 = 4

	// Interface description block options.
	OptIfName        uint16 = 2
	OptIfDescription uint16 = 3
	OptIfIPv4Addr    uint16 = 4
	OptIfIPv6Addr    uint16 = 5
	OptIfMACAddr     uint16 = 6
	OptIfEUIAddr     uint16 = 7
	OptIfSpeed       uint16 = 8
	OptIfTsResol     uint16 = 9
	OptIfTZone       uint16 = 10
	OptIfFilter      uint16 = 11
	OptIfOS          uint16 = 12
	OptIfFCSLen      uint16 = 13
	OptIfTsOffset    uint16 = 14
	OptIfHardware    uint16 = 15

	// Interface statistics block options.
	OptIsbStartTime    uint16 = 2
	OptIsbEndTime      uint16 = 3
	OptIsbIfRecv       uint16 = 4
	OptIsbIfDrop       uint16 = 5
	OptIsbFilterAccept uint16 = 6
	OptIsbOSDrop       uint16 = 7
	OptIsbUsrDeliv     uint16 = 8
)

var (
	ErrNotNumeric            = errors.New("block: option value wider than 8 bytes")
	ErrNotTimestamp          = errors.New("block: option value is not a timestamp")
	ErrUnsupportedResolution = errors.New("block: unsupported if_tsresol value")
)
