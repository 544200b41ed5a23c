package block

import (
	"encoding/binary"
	"sync"
	"time"
)

// Block is one structural unit of a capture-file container. The concrete
// type is one of SectionHeader, InterfaceDescription, EnhancedPacket,
// InterfaceStatistics or Unsupported.
type Block interface {
	BlockType() Type
}

// SectionHeader begins a logical grouping of interfaces and packets sharing
// one declared byte order. A file may contain several sections, each with
// its own byte order; interface numbering restarts at every section.
type SectionHeader struct {
	ByteOrder    binary.ByteOrder
	MajorVersion uint16
	MinorVersion uint16
	Options      []Option
}

func (s *SectionHeader) BlockType() Type { return TypeSectionHeader }

// InterfaceDescription declares a capture interface: its link layer, the
// snap length packets were truncated to (0 = unlimited) and an option list.
// The timestamp offset and resolution are derived from the options on first
// use and cached.
type InterfaceDescription struct {
	LinkType LinkType
	SnapLen  uint32
	Options  []Option

	tbOnce sync.Once
	tb     Timebase
	tbErr  error
}

func (d *InterfaceDescription) BlockType() Type { return TypeInterfaceDescription }

// Name returns the if_name option value, or "" when absent.
func (d *InterfaceDescription) Name() string {
	if opt, ok := FindOption(d.Options, OptIfName); ok {
		return opt.String()
	}
	return ""
}

// Description returns the if_description option value, or "" when absent.
func (d *InterfaceDescription) Description() string {
	if opt, ok := FindOption(d.Options, OptIfDescription); ok {
		return opt.String()
	}
	return ""
}

// OperatingSystem returns the if_os option value, or "" when absent.
func (d *InterfaceDescription) OperatingSystem() string {
	if opt, ok := FindOption(d.Options, OptIfOS); ok {
		return opt.String()
	}
	return ""
}

// Timebase derives the interface's timestamp offset and resolution from the
// if_tsoffset and if_tsresol options. Computed once and reused; safe for
// concurrent readers.
func (d *InterfaceDescription) Timebase() (Timebase, error) {
	d.tbOnce.Do(func() {
		d.tb, d.tbErr = deriveTimebase(d.Options)
	})
	return d.tb, d.tbErr
}

func deriveTimebase(options []Option) (Timebase, error) {
	tb := DefaultTimebase()

	if opt, ok := FindOption(options, OptIfTsOffset); ok {
		seconds, err := opt.Uint()
		if err != nil {
			return Timebase{}, err
		}
		tb.Offset = time.Unix(int64(seconds), 0).UTC()
	}

	if opt, ok := FindOption(options, OptIfTsResol); ok {
		raw, err := opt.Uint()
		if err != nil {
			return Timebase{}, err
		}
		switch raw {
		case 1:
			tb.Unit = time.Second
		case 3:
			tb.Unit = time.Millisecond
		case 6:
			tb.Unit = time.Microsecond
		case 9:
			tb.Unit = time.Nanosecond
		default:
			return Timebase{}, ErrUnsupportedResolution
		}
	}

	return tb, nil
}

// EnhancedPacket is one captured packet, tied to the interface that captured
// it.
type EnhancedPacket struct {
	Interface      *InterfaceDescription
	Timestamp      time.Time
	OriginalLength uint32
	Data           []byte
	Options        []Option
}

func (p *EnhancedPacket) BlockType() Type { return TypeEnhancedPacket }

// IsTruncated reports whether the capture holds fewer bytes than the packet
// originally carried.
func (p *EnhancedPacket) IsTruncated() bool {
	return len(p.Data) < int(p.OriginalLength)
}

// InterfaceStatistics carries per-interface capture counters. Every counter
// is independently optional.
type InterfaceStatistics struct {
	Interface *InterfaceDescription
	Timestamp time.Time
	Options   []Option
}

func (s *InterfaceStatistics) BlockType() Type { return TypeInterfaceStatistics }

func (s *InterfaceStatistics) counter(id uint16) (uint64, bool) {
	opt, ok := FindOption(s.Options, id)
	if !ok {
		return 0, false
	}
	v, err := opt.Uint()
	if err != nil {
		return 0, false
	}
	return v, true
}

// PacketsReceived returns the isb_ifrecv counter if present.
func (s *InterfaceStatistics) PacketsReceived() (uint64, bool) {
	return s.counter(OptIsbIfRecv)
}

// PacketsDropped returns the isb_ifdrop counter if present.
func (s *InterfaceStatistics) PacketsDropped() (uint64, bool) {
	return s.counter(OptIsbIfDrop)
}

// FilterAccepted returns the isb_filteraccept counter if present.
func (s *InterfaceStatistics) FilterAccepted() (uint64, bool) {
	return s.counter(OptIsbFilterAccept)
}

// OSDropped returns the isb_osdrop counter if present.
func (s *InterfaceStatistics) OSDropped() (uint64, bool) {
	return s.counter(OptIsbOSDrop)
}

// Delivered returns the isb_usrdeliv counter if present.
func (s *InterfaceStatistics) Delivered() (uint64, bool) {
	return s.counter(OptIsbUsrDeliv)
}

func (s *InterfaceStatistics) timeOption(id uint16) (time.Time, bool) {
	opt, ok := FindOption(s.Options, id)
	if !ok || s.Interface == nil {
		return time.Time{}, false
	}
	tb, err := s.Interface.Timebase()
	if err != nil {
		return time.Time{}, false
	}
	ts, err := opt.Timestamp(tb)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// StartTime returns the isb_starttime option if present, interpreted through
// the owning interface's timebase.
func (s *InterfaceStatistics) StartTime() (time.Time, bool) {
	return s.timeOption(OptIsbStartTime)
}

// EndTime returns the isb_endtime option if present, interpreted through the
// owning interface's timebase.
func (s *InterfaceStatistics) EndTime() (time.Time, bool) {
	return s.timeOption(OptIsbEndTime)
}

// Unsupported preserves a block of unrecognized type verbatim so unknown
// extensions pass through instead of failing the read.
type Unsupported struct {
	Type Type
	Body []byte
}

func (u *Unsupported) BlockType() Type { return u.Type }
