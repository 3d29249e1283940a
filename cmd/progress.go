package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// progressBar draws a single-line counter of finished items. It is safe
// for use by the goroutines of forEach. A nil writer disables drawing.
type progressBar struct {
	mu          sync.Mutex
	total       int
	done        int
	failed      int
	width       int
	description string
	writer      io.Writer
}

func newProgressBar(total int, description string, writer io.Writer) *progressBar {
	return &progressBar{
		total:       total,
		width:       30,
		description: description,
		writer:      writer,
	}
}

// Add marks n items as finished.
func (p *progressBar) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(n)
}

// Fail marks one item as finished with an error.
func (p *progressBar) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
	p.advance(1)
}

// Finish fills the bar and ends the line. Nothing is written for an
// empty bar.
func (p *progressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil || p.total <= 0 {
		return
	}
	p.done = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *progressBar) advance(n int) {
	p.done = min(p.done+n, p.total)
	p.render()
}

func (p *progressBar) render() {
	if p.writer == nil || p.total <= 0 {
		return
	}
	filled := min(p.done*p.width/p.total, p.width)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	line := fmt.Sprintf("\r%s [%s] %d/%d", p.description, bar, p.done, p.total)
	if p.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", p.failed)
	}
	fmt.Fprint(p.writer, line)
}
