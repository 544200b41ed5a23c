// Package reader decodes capture files into typed blocks. Both the PcapNG
// and the legacy tcpdump container formats are supported behind the same
// BlockReader abstraction; NewReader sniffs the leading bytes of the stream
// and picks the right implementation.
package reader

import (
	"bufio"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/sofiworker/gpcap/block"
)

var (
	// ErrNotCaptureFile is returned when a stream does not begin with a
	// recognized capture-file signature.
	ErrNotCaptureFile = errors.New("reader: not a capture file")

	// ErrUnknownInterface is returned when a block references an interface
	// index that was not declared earlier in the same section.
	ErrUnknownInterface = errors.New("reader: reference to unknown interface index")

	// ErrSnapLenExceeded is returned when a packet claims more captured
	// bytes than the interface's snap length allows. Corrupt length fields
	// would otherwise trigger huge allocations.
	ErrSnapLenExceeded = errors.New("reader: captured length exceeds interface snap length")
)

// BlockReader produces one capture-file block per call. It returns io.EOF
// once the stream is cleanly exhausted; any other error aborts the read.
// Readers never close the underlying source.
type BlockReader interface {
	NextBlock() (block.Block, error)
}

type options struct {
	log *zap.Logger
}

// Option configures a BlockReader.
type Option func(*options)

// WithLogger attaches a logger for decode-level diagnostics. Defaults to a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func applyOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewReader inspects the first bytes of r and returns a BlockReader for the
// format found there: 0x0A starts a PcapNG section header palindrome, while
// 0xA1, 0xD4 and 0x4D cover the tcpdump magic in both byte orders and both
// timestamp resolutions. Anything else is not a capture file.
func NewReader(r io.Reader, opts ...Option) (BlockReader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotCaptureFile
		}
		return nil, err
	}

	switch head[0] {
	case 0x0A:
		return newPcapNgReader(br, applyOptions(opts)), nil
	case 0xA1, 0xD4, 0x4D:
		return newTcpDumpReader(br, applyOptions(opts)), nil
	default:
		return nil, ErrNotCaptureFile
	}
}
