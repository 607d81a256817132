package eventlog

import (
	"fmt"
	"sync"
	"time"
)

const DefaultSize = 50

type Event struct {
	At   time.Time
	Text string
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s", e.At.Format(time.TimeOnly), e.Text)
}

// Log keeps the newest N events in a ring buffer.
type Log struct {
	buf  []Event
	next int
	full bool
	mu   sync.Mutex
}

func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{buf: make([]Event, size)}
}

func (l *Log) Add(at time.Time, format string, args ...any) {
	ev := Event{At: at, Text: fmt.Sprintf(format, args...)}

	l.mu.Lock()
	l.buf[l.next] = ev
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Recent returns up to n of the newest events, oldest first. n <= 0 returns
// everything retained.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Event, n)
	start := l.next - n
	for i := range n {
		out[i] = l.buf[(start+i+len(l.buf))%len(l.buf)]
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}
