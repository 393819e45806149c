package gameserver

import (
	"strings"
	"sync"
)

// ConsoleBuffer keeps the most recent console lines in memory so late
// subscribers can be sent a backlog.
type ConsoleBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func NewConsoleBuffer(max int) *ConsoleBuffer {
	if max <= 0 {
		max = 1000
	}
	return &ConsoleBuffer{max: max}
}

func (b *ConsoleBuffer) Append(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *ConsoleBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
