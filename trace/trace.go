// Package trace reads cache-simulation trace files.
//
// A trace file holds the cache geometry and strategy followed by the
// addresses to replay:
//
//	<address size in bits>
//	<block (offset) size in bits>
//	<number of lines>
//	<associativity>
//	LRU | LFU | First
//	<hex address>
//	...
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/cache"
)

// ErrFileTooShort is returned when the header ends before the strategy.
var ErrFileTooShort = errors.New("missing parameters")

// ErrInvalidStrategy is returned when the strategy line is not one of
// "LRU", "LFU" or "First".
var ErrInvalidStrategy = cache.ErrInvalidStrategy

// maxLineLength bounds the lines the reader buffers. Longer lines are
// discarded without being held in memory.
const maxLineLength = 1 << 16

var errLineTooLong = errors.New("line too long")

// Trace is a parsed trace file.
type Trace struct {
	// Descriptor is the cache the trace is replayed against.
	Descriptor cache.Descriptor
	// Addresses holds the parseable addresses in file order.
	Addresses []uint64
}

// Load reads and parses the trace file at path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads a trace from r. Header errors abort the parse; address lines
// that are not hexadecimal, including overlong lines, are skipped.
func Parse(r io.Reader) (*Trace, error) {
	lr := &lineReader{br: bufio.NewReaderSize(r, maxLineLength)}

	var params [4]uint64
	names := [4]string{"address size", "block size", "block count", "associativity"}

	for i := range params {
		line, err := lr.nextHeaderLine()
		if err != nil {
			return nil, err
		}

		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", names[i], err)
		}

		params[i] = v
	}

	line, err := lr.nextHeaderLine()
	if err != nil {
		return nil, err
	}

	strategy, err := cache.ParseStrategy(line)
	if err != nil {
		return nil, err
	}

	t := &Trace{
		Descriptor: cache.Descriptor{
			AddrSize:  params[0],
			BlockSize: params[1],
			NumBlocks: params[2],
			Assoc:     params[3],
			Strategy:  strategy,
		},
	}

	for {
		line, err := lr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errLineTooLong) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trace: %w", err)
		}

		addr, err := strconv.ParseUint(line, 16, 64)
		if err != nil {
			continue
		}

		t.Addresses = append(t.Addresses, addr)
	}

	return t, nil
}

// Write renders the trace in the file format accepted by Parse.
func (t *Trace) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	d := t.Descriptor
	_, _ = fmt.Fprintf(bw, "%d\n%d\n%d\n%d\n%s\n",
		d.AddrSize, d.BlockSize, d.NumBlocks, d.Assoc, d.Strategy)

	for _, addr := range t.Addresses {
		_, _ = fmt.Fprintf(bw, "%x\n", addr)
	}

	return bw.Flush()
}

type lineReader struct {
	br *bufio.Reader
}

// next returns the next line without its line ending. It returns io.EOF
// once the input is exhausted and errLineTooLong for a line that does not
// fit the buffer, after skipping past it.
func (lr *lineReader) next() (string, error) {
	b, err := lr.br.ReadSlice('\n')

	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = lr.br.ReadSlice('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		return "", errLineTooLong
	}

	if err != nil && !(errors.Is(err, io.EOF) && len(b) > 0) {
		return "", err
	}

	line := strings.TrimSuffix(string(b), "\n")

	return strings.TrimSuffix(line, "\r"), nil
}

// nextHeaderLine returns the next non-empty line. Running out of input
// yields ErrFileTooShort.
func (lr *lineReader) nextHeaderLine() (string, error) {
	for {
		line, err := lr.next()
		switch {
		case errors.Is(err, io.EOF):
			return "", ErrFileTooShort
		case err != nil:
			return "", fmt.Errorf("failed to read trace: %w", err)
		case line != "":
			return line, nil
		}
	}
}
