package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobState is the lifecycle state of a Job. States are ordered; a job only moves forward.
type JobState int

const (
	JobSubmitted JobState = iota
	JobPolling
	JobDone
	JobFailed
	JobTimedOut
)

var jobStateNames = map[JobState]string{
	JobSubmitted: "submitted",
	JobPolling:   "polling",
	JobDone:      "done",
	JobFailed:    "failed",
	JobTimedOut:  "timed_out",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// MarshalText renders the state name.
func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible from s.
func (s JobState) Terminal() bool {
	return s >= JobDone
}

// ErrInvalidTransition is returned when a state change would move a job backward
// or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// QuerySpec is what a caller asks for.
type QuerySpec struct {
	Question        string
	Repositories    []string
	Mode            Mode
	Context         string
	GenerateSummary bool
}

// Job is one submitted query tracked to a terminal state.
// A Job is owned by a single poll loop and is not safe for concurrent mutation.
type Job struct {
	ID           string
	Question     string
	Repositories []string
	Mode         Mode
	Context      string
	SubmittedAt  time.Time

	State       JobState
	Attempts    int
	MaxAttempts int

	// Exactly one of Result and Err is set once State is terminal.
	Result *Result
	Err    error
}

// NewJob creates a job in the Submitted state.
func NewJob(id string, spec QuerySpec, maxAttempts int) *Job {
	return &Job{
		ID:           id,
		Question:     spec.Question,
		Repositories: append([]string(nil), spec.Repositories...),
		Mode:         spec.Mode,
		Context:      spec.Context,
		SubmittedAt:  time.Now(),
		State:        JobSubmitted,
		MaxAttempts:  maxAttempts,
	}
}

// Transition moves the job to a later state.
func (j *Job) Transition(to JobState) error {
	if j.State.Terminal() || to < j.State {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	return nil
}

// Complete marks the job Done with res.
func (j *Job) Complete(res *Result) error {
	if err := j.Transition(JobDone); err != nil {
		return err
	}
	j.Result = res
	return nil
}

// Fail marks the job with a terminal failure state (JobFailed or JobTimedOut).
func (j *Job) Fail(state JobState, err error) error {
	if state != JobFailed && state != JobTimedOut {
		return fmt.Errorf("%w: %s is not a failure state", ErrInvalidTransition, state)
	}
	if err := j.Transition(state); err != nil {
		return err
	}
	j.Err = err
	return nil
}
