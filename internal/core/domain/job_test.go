package domain

import (
	"errors"
	"testing"
)

func TestJob_TransitionsAreMonotonic(t *testing.T) {
	job := NewJob("q-1", QuerySpec{Question: "how?", Repositories: []string{"a/b"}, Mode: ModeFast}, 3)

	if job.State != JobSubmitted {
		t.Fatalf("expected submitted, got %s", job.State)
	}
	if err := job.Transition(JobPolling); err != nil {
		t.Fatalf("submitted -> polling: %v", err)
	}
	if err := job.Transition(JobSubmitted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("polling -> submitted should fail, got %v", err)
	}
	if err := job.Complete(&Result{QueryID: "q-1"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := job.Fail(JobFailed, errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("done -> failed should fail, got %v", err)
	}
	if job.Result == nil || job.Err != nil {
		t.Errorf("expected result only, got result=%v err=%v", job.Result, job.Err)
	}
}

func TestJob_FailRejectsNonFailureState(t *testing.T) {
	job := NewJob("q-2", QuerySpec{Mode: ModeDeep}, 3)
	if err := job.Fail(JobDone, errors.New("x")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := job.Fail(JobTimedOut, errors.New("slow")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !job.State.Terminal() || job.Result != nil || job.Err == nil {
		t.Errorf("unexpected terminal job: %+v", job)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeFast, false},
		{"fast", ModeFast, false},
		{"deep", ModeDeep, false},
		{"codemap", ModeCodemap, false},
		{"slow", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if ModeDeep.EngineID() != "agent" {
		t.Errorf("deep engine = %q", ModeDeep.EngineID())
	}
}
