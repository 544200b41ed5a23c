package block

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/sofiworker/gpcap/pcapio"
)

// Option is one type-length-value record from a block's option list. The
// byte order it was stored with is kept so numeric values can be interpreted
// on demand.
type Option struct {
	ID    uint16
	Order binary.ByteOrder
	Value []byte
}

// Equal compares options on id and raw value only; byte order is a decoding
// detail, not part of identity.
func (o Option) Equal(other Option) bool {
	return o.ID == other.ID && bytes.Equal(o.Value, other.Value)
}

// Uint interprets the raw value as an unsigned integer in the option's
// stored byte order. Values wider than 8 bytes are rejected.
func (o Option) Uint() (uint64, error) {
	if len(o.Value) > 8 {
		return 0, ErrNotNumeric
	}
	order := o.Order
	if order == nil {
		order = binary.BigEndian
	}
	var b [8]byte
	if order == binary.LittleEndian {
		copy(b[:], o.Value)
		return binary.LittleEndian.Uint64(b[:]), nil
	}
	copy(b[8-len(o.Value):], o.Value)
	return binary.BigEndian.Uint64(b[:]), nil
}

// String interprets the raw value as UTF-8 text.
func (o Option) String() string {
	return string(o.Value)
}

// Timestamp interprets the raw value as a 64-bit timestamp split into two
// 32-bit halves, mapped onto absolute time through tb.
func (o Option) Timestamp(tb Timebase) (time.Time, error) {
	if len(o.Value) < 8 {
		return time.Time{}, ErrNotTimestamp
	}
	order := o.Order
	if order == nil {
		order = binary.BigEndian
	}
	upper := order.Uint32(o.Value[0:4])
	lower := order.Uint32(o.Value[4:8])
	return tb.Time(uint64(upper)<<32 | uint64(lower)), nil
}

// FindOption returns the first option with the given id, preserving the
// "first wins" lookup rule.
func FindOption(options []Option, id uint16) (Option, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// ReadOptions decodes an option list from r. Each record is (id, length)
// followed by the value and padding up to the next 4-byte boundary. The
// end-of-options marker terminates the list and is not returned.
func ReadOptions(r *pcapio.Reader) ([]Option, error) {
	var options []Option
	for {
		opt, err := readOption(r)
		if err != nil {
			return nil, err
		}
		if opt.ID == OptEndOfOpt {
			return options, nil
		}
		options = append(options, opt)
	}
}

func readOption(r *pcapio.Reader) (Option, error) {
	id, err := r.Uint16()
	if err != nil {
		return Option{}, err
	}
	length, err := r.Uint16()
	if err != nil {
		return Option{}, err
	}

	var value []byte
	if length > 0 {
		if value, err = r.Bytes(int(length)); err != nil {
			return Option{}, err
		}
		if pad := int(length) % 4; pad > 0 {
			if err := r.Skip(4 - pad); err != nil {
				return Option{}, err
			}
		}
	}

	return Option{ID: id, Order: r.Order(), Value: value}, nil
}

// Timebase maps raw timestamp units onto absolute time: an offset the units
// count from, and the duration of one unit.
type Timebase struct {
	Offset time.Time
	Unit   time.Duration
}

// DefaultTimebase is the timebase used when an interface declares no
// timestamp options: units are microseconds since the epoch.
func DefaultTimebase() Timebase {
	return Timebase{Offset: time.Unix(0, 0).UTC(), Unit: time.Microsecond}
}

// Time converts a raw unit count to absolute time. Split into whole seconds
// and a remainder so large counts cannot overflow a Duration.
func (tb Timebase) Time(units uint64) time.Time {
	perSecond := uint64(time.Second / tb.Unit)
	secs := units / perSecond
	rem := units % perSecond
	return tb.Offset.Add(time.Duration(secs) * time.Second).Add(time.Duration(rem) * tb.Unit)
}
