package logger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sink struct {
	mu    sync.Mutex
	lines []string
}

func (s *sink) write(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, msg)
}

func (s *sink) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestDeduplicator_CollapsesRepeats(t *testing.T) {
	out := &sink{}
	d := New(time.Hour, out.write)

	for range 3 {
		d.Printf("dropping %s record", "dirk")
	}
	d.Printf("other")
	d.Flush()

	assert.Equal(t, []string{"dropping dirk record (3)", "other"}, out.get())
}

func TestDeduplicator_FlushesAfterDelay(t *testing.T) {
	out := &sink{}
	d := New(10*time.Millisecond, out.write)

	d.Printf("cache hit for %s", "ah")
	assert.Eventually(t, func() bool { return len(out.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "cache hit for ah", out.get()[0])

	d.Flush()
	assert.Len(t, out.get(), 1)
}
