package backend

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marcus/pilot/internal/canon"
)

// maxStreamLine bounds a single stream event; agent CLI events can carry
// whole file contents.
const maxStreamLine = 1024 * 1024

// chunkStream adapts a line-oriented byte stream (SSE data lines or
// NDJSON) into the canonical chunk sequence. It accumulates emitted text
// so the terminal chunk always carries usage: estimated from text length
// when the wire family reported none, and synthesized entirely when the
// stream just ends with no terminal marker.
//
// Close must stay callable while a consumer is blocked in Next, so the
// closed flag and cleanup live outside the mutex: cleanup tears down the
// underlying source, which unblocks the pending read.
type chunkStream struct {
	scanner *bufio.Scanner
	parse   func(line []byte) (*canon.Chunk, error)
	cleanup func() error
	req     canon.Request

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu       sync.Mutex
	finished bool // terminal chunk emitted
	text     strings.Builder
	err      error
}

func newChunkStream(r io.Reader, req canon.Request, parse func([]byte) (*canon.Chunk, error), cleanup func() error) *chunkStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	return &chunkStream{
		scanner: scanner,
		parse:   parse,
		cleanup: cleanup,
		req:     req,
	}
}

func (s *chunkStream) Next() (canon.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.finished || s.err != nil {
		return canon.Chunk{}, false
	}

	for s.scanner.Scan() {
		if s.closed.Load() {
			return canon.Chunk{}, false
		}
		chunk, err := s.parse(s.scanner.Bytes())
		if err != nil {
			s.err = err
			return canon.Chunk{}, false
		}
		if chunk == nil {
			continue
		}
		s.text.WriteString(chunk.Delta)
		if chunk.Terminal {
			s.finished = true
			if chunk.Usage == nil {
				usage := canon.EstimateUsage(s.req, s.text.String())
				chunk.Usage = &usage
			}
		}
		return *chunk, true
	}

	// A read unblocked by Close is an abort, not an end of stream; no
	// terminal chunk and no error for it.
	if s.closed.Load() {
		return canon.Chunk{}, false
	}
	if err := s.scanner.Err(); err != nil {
		s.err = err
		return canon.Chunk{}, false
	}

	// End of stream with no terminal marker: normalize by synthesizing
	// one so downstream has a single stopping rule.
	s.finished = true
	usage := canon.EstimateUsage(s.req, s.text.String())
	return canon.Chunk{Terminal: true, Usage: &usage}, true
}

func (s *chunkStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close is safe to call from any goroutine at any point, including while
// another goroutine is blocked in Next.
func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cleanup != nil {
			s.closeErr = s.cleanup()
		}
	})
	return s.closeErr
}

// Text returns the content accumulated so far.
func (s *chunkStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}
