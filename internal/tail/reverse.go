package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultBufferSize is the chunk size used when reading a file backwards.
const DefaultBufferSize = 8192

// ReverseScanner yields the lines of a file from last to first, reading
// fixed-size chunks from the end so a caller that stops early never reads
// the start of the file. Lines do not include the '\n' terminator. A final
// '\n' does not produce an empty last line; an unterminated final line is
// returned as is. Use it like bufio.Scanner:
//
//	for s.Scan() {
//		line := s.Text()
//	}
//	if err := s.Err(); err != nil { ... }
type ReverseScanner struct {
	r   io.ReaderAt
	off int64 // bytes in [0, off) have not been read yet
	buf []byte

	head    []byte   // start of a line whose beginning lies before off
	pending [][]byte // complete lines from the current chunk, in file order
	line    []byte

	started bool
	done    bool
	err     error
}

// NewReverseScanner scans the first size bytes of r. A bufSize below one
// selects DefaultBufferSize.
func NewReverseScanner(r io.ReaderAt, size int64, bufSize int) *ReverseScanner {
	if bufSize < 1 {
		bufSize = DefaultBufferSize
	}
	return &ReverseScanner{r: r, off: size, buf: make([]byte, bufSize)}
}

// Scan advances to the previous line. It returns false at the start of the
// file or on a read error.
func (s *ReverseScanner) Scan() bool {
	for {
		if n := len(s.pending); n > 0 {
			s.line = s.pending[n-1]
			s.pending = s.pending[:n-1]
			return true
		}
		if s.done || s.err != nil {
			s.line = nil
			return false
		}
		if s.off == 0 {
			s.done = true
			if s.head == nil {
				s.line = nil
				return false
			}
			s.line, s.head = s.head, nil
			return true
		}
		s.fill()
	}
}

// fill reads the chunk ending at off and splits it into complete lines.
func (s *ReverseScanner) fill() {
	n := int64(len(s.buf))
	if n > s.off {
		n = s.off
	}
	s.off -= n
	chunk := s.buf[:n]

	m, err := s.r.ReadAt(chunk, s.off)
	if m < len(chunk) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		s.err = fmt.Errorf("reading at offset %d: %w", s.off, err)
		return
	}

	data := make([]byte, 0, len(chunk)+len(s.head))
	data = append(data, chunk...)
	data = append(data, s.head...)

	if !s.started {
		s.started = true
		data = bytes.TrimSuffix(data, []byte{'\n'})
		if len(data) == 0 && s.off == 0 {
			// The file is a single "\n": one empty line.
			s.head = data
			return
		}
	}

	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		s.head = data
		return
	}
	s.head = data[:i]
	s.pending = bytes.Split(data[i+1:], []byte{'\n'})
}

// Text returns the current line.
func (s *ReverseScanner) Text() string {
	return string(s.line)
}

// Bytes returns the current line. The slice is valid until the next Scan.
func (s *ReverseScanner) Bytes() []byte {
	return s.line
}

// Err returns the first read error encountered.
func (s *ReverseScanner) Err() error {
	return s.err
}

// ReverseFile is a ReverseScanner over an open file.
type ReverseFile struct {
	*ReverseScanner
	f    *os.File
	size int64
}

// OpenReverse opens path and positions a ReverseScanner at its current end.
// Bytes appended after OpenReverse returns are not scanned.
func OpenReverse(path string, bufSize int) (*ReverseFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &ReverseFile{
		ReverseScanner: NewReverseScanner(f, info.Size(), bufSize),
		f:              f,
		size:           info.Size(),
	}, nil
}

// Size returns the file size at open time.
func (rf *ReverseFile) Size() int64 {
	return rf.size
}

// Close closes the underlying file.
func (rf *ReverseFile) Close() error {
	return rf.f.Close()
}
