package pipeline

import "sync"

// Progress is a snapshot of a running session.
type Progress struct {
	Total             int    `json:"total"`
	Processed         int    `json:"processed"`
	Resolved          int    `json:"resolved"`
	Suspended         int    `json:"suspended"`
	Rejected          int    `json:"rejected"`
	RetrievalFailures int    `json:"retrieval_failures"`
	CurrentRecord     string `json:"current_record,omitempty"`
}

// ProgressTracker tracks and reports pipeline progress.
type ProgressTracker struct {
	callback func(Progress)
	progress Progress
	mu       sync.Mutex
}

// NewProgressTracker creates a new progress tracker. callback may be nil.
func NewProgressTracker(callback func(Progress)) *ProgressTracker {
	return &ProgressTracker{callback: callback}
}

// SetTotal sets the number of records to process.
func (p *ProgressTracker) SetTotal(total int) {
	p.update(func(pr *Progress) { pr.Total = total })
}

func (p *ProgressTracker) record(recordID string, r result, retrievalFailed bool) {
	p.update(func(pr *Progress) {
		pr.Processed++
		pr.CurrentRecord = recordID
		switch r {
		case resultRejected:
			pr.Rejected++
		case resultSuspended:
			pr.Suspended++
		default:
			pr.Resolved++
		}
		if retrievalFailed {
			pr.RetrievalFailures++
		}
	})
}

// Get returns current progress.
func (p *ProgressTracker) Get() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *ProgressTracker) update(fn func(*Progress)) {
	p.mu.Lock()
	fn(&p.progress)
	snapshot := p.progress
	p.mu.Unlock()

	if p.callback != nil {
		p.callback(snapshot)
	}
}
