// Package bytesource defines the random-access byte source the container
// deserializer reads from, and the concrete readers available in this
// repository: an in-memory buffer and a local, optionally memory-mapped,
// file. A range-requesting HTTP client is out of scope and
// is represented only as an interface-shaped stub collaborator.
package bytesource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Source is the random-access reader the deserializer consumes. Concrete
// readers include in-memory buffers, memory-mapped files, and (as a
// collaborator, not implemented here) range-requesting HTTP clients.
type Source interface {
	// Len reports the total size in bytes.
	Len() int64
	// ReadRange returns exactly size bytes starting at offset, or an error
	// if the range cannot be satisfied.
	ReadRange(offset, size int64) ([]byte, error)
}

// Memory is a Source backed by an in-memory byte slice.
type Memory struct {
	data []byte
}

// NewMemory wraps data as a Source. data is not copied; callers must not
// mutate it afterwards.
func NewMemory(data []byte) *Memory { return &Memory{data: data} }

func (m *Memory) Len() int64 { return int64(len(m.data)) }

func (m *Memory) ReadRange(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int64(len(m.data)) {
		return nil, fmt.Errorf("bytesource: range [%d:%d) out of bounds (len %d)", offset, offset+size, len(m.data))
	}
	return m.data[offset : offset+size], nil
}

// File is a Source backed by a local file. Reads translate into
// seek+read against a single held file descriptor, guarded by a mutex
// since *os.File offers no stateless pread on its own. When mmap is
// requested and available, reads are served directly from the mapped
// pages with no syscall per request.
type File struct {
	mu     sync.Mutex
	f      *os.File
	size   int64
	mapped []byte // non-nil when memory-mapped
}

// OpenFile opens path for random-access reading. If mmap is true, the
// file is memory-mapped via golang.org/x/sys/unix for zero-copy reads;
// callers on platforms without mmap support should pass mmap=false.
func OpenFile(path string, mmap bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("bytesource: stat %s: %w", path, err)
	}
	src := &File{f: f, size: info.Size()}
	if mmap && info.Size() > 0 {
		data, merr := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if merr == nil {
			src.mapped = data
		}
		// Fall back silently to seek+read on mmap failure; the file
		// descriptor remains open either way.
	}
	return src, nil
}

func (s *File) Len() int64 { return s.size }

func (s *File) ReadRange(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > s.size {
		return nil, fmt.Errorf("bytesource: range [%d:%d) out of bounds (len %d)", offset, offset+size, s.size)
	}
	if s.mapped != nil {
		out := make([]byte, size)
		copy(out, s.mapped[offset:offset+size])
		return out, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, size)
	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("bytesource: seek: %w", err)
	}
	if _, err := io.ReadFull(s.f, buf); err != nil {
		return nil, fmt.Errorf("bytesource: read: %w", err)
	}
	return buf, nil
}

// Close releases the underlying file (and mapping, if any).
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.mapped != nil {
		err = unix.Munmap(s.mapped)
		s.mapped = nil
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ErrTimeout is returned by HTTPRangeSource when a fetch exceeds its
// configured timeout. Exported so callers can classify it alongside the
// other transport errors grouped as NotFound/Timeout/Other.
var ErrTimeout = errors.New("bytesource: range fetch timeout")

// HTTPRangeSource is an interface-only stand-in for the range-requesting
// HTTP client, treated as an external collaborator; it is
// not implemented here, only shaped so internal/decoder can accept one.
type HTTPRangeSource interface {
	Source
	// Timeout bounds a single ReadRange call, per the decoder's
	// timeout_seconds option.
	Timeout() time.Duration
}
