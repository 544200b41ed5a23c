// Package dump renders decoded capture blocks as JSON or YAML records, one
// record per block, for inspection and diffing of capture files.
package dump

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sofiworker/gpcap/block"
)

// Encoder serializes one record to a writer.
type Encoder interface {
	Encode(w io.Writer, v interface{}) error
}

// BytesEncoder serializes one record to a byte slice.
type BytesEncoder interface {
	EncodeBytes(v interface{}) ([]byte, error)
}

type JSONEncoder struct{}

func (JSONEncoder) Encode(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func (e JSONEncoder) EncodeBytes(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type YAMLEncoder struct{}

func (YAMLEncoder) Encode(w io.Writer, v interface{}) error {
	return yaml.NewEncoder(w).Encode(v)
}

func (e YAMLEncoder) EncodeBytes(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OptionRecord summarizes one option without exposing raw bytes.
type OptionRecord struct {
	ID     uint16 `json:"id" yaml:"id"`
	Length int    `json:"length" yaml:"length"`
}

// Record is the serializable summary of a single block.
type Record struct {
	Kind            string         `json:"kind" yaml:"kind"`
	ByteOrder       string         `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	Version         string         `json:"version,omitempty" yaml:"version,omitempty"`
	LinkType        uint16         `json:"link_type,omitempty" yaml:"link_type,omitempty"`
	SnapLen         uint32         `json:"snap_len,omitempty" yaml:"snap_len,omitempty"`
	InterfaceName   string         `json:"interface_name,omitempty" yaml:"interface_name,omitempty"`
	Timestamp       *time.Time     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	CapturedLength  int            `json:"captured_length,omitempty" yaml:"captured_length,omitempty"`
	OriginalLength  uint32         `json:"original_length,omitempty" yaml:"original_length,omitempty"`
	Truncated       bool           `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	PacketsReceived *uint64        `json:"packets_received,omitempty" yaml:"packets_received,omitempty"`
	PacketsDropped  *uint64        `json:"packets_dropped,omitempty" yaml:"packets_dropped,omitempty"`
	RawType         uint32         `json:"raw_type,omitempty" yaml:"raw_type,omitempty"`
	BodyLength      int            `json:"body_length,omitempty" yaml:"body_length,omitempty"`
	Options         []OptionRecord `json:"options,omitempty" yaml:"options,omitempty"`
}

// NewRecord summarizes a block.
func NewRecord(b block.Block) Record {
	switch b := b.(type) {
	case *block.SectionHeader:
		return Record{
			Kind:      "section_header",
			ByteOrder: orderName(b.ByteOrder),
			Version:   versionString(b.MajorVersion, b.MinorVersion),
			Options:   optionRecords(b.Options),
		}
	case *block.InterfaceDescription:
		return Record{
			Kind:          "interface_description",
			LinkType:      uint16(b.LinkType),
			SnapLen:       b.SnapLen,
			InterfaceName: b.Name(),
			Options:       optionRecords(b.Options),
		}
	case *block.EnhancedPacket:
		ts := b.Timestamp
		return Record{
			Kind:           "enhanced_packet",
			Timestamp:      &ts,
			CapturedLength: len(b.Data),
			OriginalLength: b.OriginalLength,
			Truncated:      b.IsTruncated(),
			Options:        optionRecords(b.Options),
		}
	case *block.InterfaceStatistics:
		ts := b.Timestamp
		return Record{
			Kind:            "interface_statistics",
			Timestamp:       &ts,
			PacketsReceived: counterValue(b.PacketsReceived()),
			PacketsDropped:  counterValue(b.PacketsDropped()),
			Options:         optionRecords(b.Options),
		}
	case *block.Unsupported:
		return Record{
			Kind:       "unsupported",
			RawType:    uint32(b.Type),
			BodyLength: len(b.Body),
		}
	default:
		return Record{Kind: "unknown"}
	}
}

// Dumper writes one record per block to a single output.
type Dumper struct {
	w   io.Writer
	enc Encoder
}

func NewDumper(w io.Writer, enc Encoder) *Dumper {
	return &Dumper{w: w, enc: enc}
}

// Dump writes the record for one block.
func (d *Dumper) Dump(b block.Block) error {
	return d.enc.Encode(d.w, NewRecord(b))
}

// BlockSource is the subset of a reader that Dumper drains.
type BlockSource interface {
	NextBlock() (block.Block, error)
}

// DumpAll drains src until end of stream, returning the number of blocks
// written.
func (d *Dumper) DumpAll(src BlockSource) (int, error) {
	count := 0
	for {
		b, err := src.NextBlock()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		if err := d.Dump(b); err != nil {
			return count, err
		}
		count++
	}
}

func optionRecords(options []block.Option) []OptionRecord {
	if len(options) == 0 {
		return nil
	}
	out := make([]OptionRecord, len(options))
	for i, o := range options {
		out[i] = OptionRecord{ID: o.ID, Length: len(o.Value)}
	}
	return out
}

func orderName(order binary.ByteOrder) string {
	if order == binary.ByteOrder(binary.LittleEndian) {
		return "little-endian"
	}
	return "big-endian"
}

func counterValue(v uint64, ok bool) *uint64 {
	if !ok {
		return nil
	}
	return &v
}

func versionString(major, minor uint16) string {
	return fmt.Sprintf("%d.%d", major, minor)
}
