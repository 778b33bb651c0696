package ffmpeg

import (
	"bytes"
	"sync"
)

// LineRing keeps the last N lines written to it. It is used to capture
// ffmpeg stderr for error reports.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial []byte
}

// NewLineRing creates a ring with the given capacity (minimum 1).
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 1
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer. Partial lines are held until their newline
// arrives.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = append(r.partial, data...)
			break
		}
		line := append(r.partial, data[:i]...)
		r.partial = r.partial[:0]
		data = data[i+1:]
		r.push(string(bytes.TrimRight(line, "\r")))
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns up to n of the most recent lines, oldest first. An
// unterminated trailing line is included.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]string, 0, r.count+1)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		all = append(all, r.lines[(start+i)%len(r.lines)])
	}
	if len(r.partial) > 0 {
		all = append(all, string(r.partial))
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
