package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressWriter counts bytes written through it and draws a progress
// bar on out.
type ProgressWriter struct {
	w     io.Writer
	out   io.Writer
	title string
	total int64
	width int

	mu      sync.Mutex
	current int64
}

// NewProgressWriter wraps w. total may be unknown (<= 0).
func NewProgressWriter(w, out io.Writer, title string, total int64) *ProgressWriter {
	return &ProgressWriter{
		w:     w,
		out:   out,
		title: title,
		total: total,
		width: 40,
	}
}

// Write implements io.Writer.
func (p *ProgressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)

	p.mu.Lock()
	p.current += int64(n)
	p.render()
	p.mu.Unlock()
	return n, err
}

// Written returns the number of bytes written so far.
func (p *ProgressWriter) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish draws the final state and ends the line.
func (p *ProgressWriter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.out)
}

func (p *ProgressWriter) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.out, "\r%s %s", p.title, FormatBytes(p.current))
		return
	}

	percent := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	fmt.Fprintf(p.out, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title, bar, percent*100, FormatBytes(p.current), FormatBytes(p.total))
}

// FormatBytes formats bytes to human readable string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
