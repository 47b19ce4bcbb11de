package reindex

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressTracker reports reindexing progress as a progress bar.
type ProgressTracker struct {
	bar       *progressbar.ProgressBar
	writer    io.Writer
	startTime time.Time
	mu        sync.Mutex
}

// NewProgressTracker creates a tracker for total records and starts timing.
func NewProgressTracker(writer io.Writer, total int) *ProgressTracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetDescription("reindexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionSetWidth(30),
	)
	return &ProgressTracker{
		bar:       bar,
		writer:    writer,
		startTime: time.Now(),
	}
}

// Update sets the number of records processed so far.
func (p *ProgressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Set(current)
}

// Finish completes the bar and ends the line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
	io.WriteString(p.writer, "\n")
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startTime)
}
