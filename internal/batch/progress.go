package batch

import (
	"sync"
	"time"
)

// Status is the overall run state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Snapshot is an immutable copy of run progress.
type Snapshot struct {
	Status         string  `json:"status"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}

// Progress tracks a batch run across goroutines.
type Progress struct {
	mu sync.RWMutex

	status    Status
	total     int
	completed int
	failed    int
	startTime time.Time
}

func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

func (p *Progress) begin(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusRunning
	p.total = total
	p.completed = 0
	p.failed = 0
	p.startTime = time.Now()
}

func (p *Progress) itemDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

func (p *Progress) itemFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.failed++
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusDone
}

// Snapshot returns the current state for display or JSON output.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.completed) / float64(p.total) * 100.0
	}
	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(time.Since(p.startTime).Seconds())
	}
	return Snapshot{
		Status:         string(p.status),
		Total:          p.total,
		Completed:      p.completed,
		Failed:         p.failed,
		ProgressPct:    pct,
		ElapsedSeconds: elapsed,
	}
}
