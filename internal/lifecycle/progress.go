package lifecycle

import (
	"fmt"
	"time"

	"github.com/vietddude/deepwiki/internal/core/domain"
)

// maxProgressPercent keeps progress below 100 until a result actually arrives.
const maxProgressPercent = 95

// Progress is a snapshot of a job between status checks.
type Progress struct {
	JobID       string             `json:"query_id"`
	State       domain.JobState    `json:"state"`
	RemoteState domain.RemoteState `json:"remote_state"`
	Attempt     int                `json:"attempt"`
	MaxAttempts int                `json:"max_attempts"`
	Percent     int                `json:"progress_percent"`
	Message     string             `json:"message"`
	Time        time.Time          `json:"timestamp"`
}

func newProgress(job *domain.Job, remote domain.RemoteState) Progress {
	percent := 0
	if job.MaxAttempts > 0 {
		percent = min(maxProgressPercent, job.Attempts*100/job.MaxAttempts)
	}
	return Progress{
		JobID:       job.ID,
		State:       job.State,
		RemoteState: remote,
		Attempt:     job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Percent:     percent,
		Message:     fmt.Sprintf("Query status: %s", remote),
		Time:        time.Now(),
	}
}

// emit offers p to ch without blocking. A full channel drops p; a closed one is
// logged and otherwise ignored.
func (m *Manager) emit(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("Progress delivery failed", "query_id", p.JobID, "panic", r)
		}
	}()
	select {
	case ch <- p:
	default:
		m.log.Debug("Progress dropped, receiver is behind", "query_id", p.JobID, "attempt", p.Attempt)
	}
}
