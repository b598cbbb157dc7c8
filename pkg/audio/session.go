package audio

import (
	"bytes"
	"errors"
	"sync"
)

// ErrSessionStopped is returned when a fragment arrives after Stop.
var ErrSessionStopped = errors.New("recording session already stopped")

// Session buffers one microphone capture. Fragments arrive in order as a
// finite sequence over a channel, consumed by a single collector goroutine,
// and Stop terminates the sequence and yields the concatenated blob.
type Session struct {
	frags chan []byte
	done  chan struct{}
	blob  []byte

	mu      sync.Mutex
	stopped bool
}

// NewSession opens a capture session and starts its collector.
func NewSession() *Session {
	s := &Session{
		frags: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
	go s.collect()
	return s
}

func (s *Session) collect() {
	var buf bytes.Buffer
	for f := range s.frags {
		buf.Write(f)
	}
	s.blob = buf.Bytes()
	close(s.done)
}

// Append queues one audio fragment. The fragment is copied, so the caller may
// reuse its buffer. Empty fragments are ignored.
func (s *Session) Append(fragment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionStopped
	}
	if len(fragment) == 0 {
		return nil
	}
	cp := make([]byte, len(fragment))
	copy(cp, fragment)
	s.frags <- cp
	return nil
}

// Active reports whether the session still accepts fragments.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// Stop finalizes the session and returns the buffered fragments concatenated
// into one blob. Calling Stop again returns the same blob.
func (s *Session) Stop() []byte {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.frags)
	}
	s.mu.Unlock()
	<-s.done
	return s.blob
}
