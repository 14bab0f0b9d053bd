package mqtt

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// Sink is an io.Writer that publishes each reading line written to it.
// Every Write must carry exactly one "<digit>\n" line, possibly truncated to
// the digit alone.
type Sink struct {
	pub Publisher
	now func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewSink returns a Sink publishing through pub, timestamped by now.
func NewSink(pub Publisher, now func() time.Time) *Sink {
	return &Sink{pub: pub, now: now}
}

// Write publishes the reading in p.
func (s *Sink) Write(p []byte) (int, error) {
	digit := bytes.TrimSuffix(p, []byte{'\n'})
	if len(digit) != 1 || (digit[0] != '0' && digit[0] != '1') {
		return 0, fmt.Errorf("mqtt sink: malformed reading %q", p)
	}

	s.mu.Lock()
	s.seq++
	r := Reading{Timestamp: s.now(), Level: int(digit[0] - '0'), Seq: s.seq}
	s.mu.Unlock()

	if err := s.pub.Publish(r); err != nil {
		return 0, err
	}
	return len(p), nil
}
