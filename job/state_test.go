package job_test

import (
	"testing"
	"time"

	"github.com/quarryhq/quarry/job"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to job.Status
		want     bool
	}{
		{job.StatusPending, job.StatusRunning, true},
		{job.StatusPending, job.StatusFailed, true}, // unresolvable kind
		{job.StatusRunning, job.StatusCompleted, true},
		{job.StatusRunning, job.StatusFailed, true},
		{job.StatusRunning, job.StatusCancelled, true},
		{job.StatusRunning, job.StatusPending, true}, // recovery sweep
		{job.StatusRunning, job.StatusRunning, true}, // progress update
		{job.StatusFailed, job.StatusPending, true},  // explicit restart
		{job.StatusFailed, job.StatusRunning, true},  // restart via supervisor
		{job.StatusCompleted, job.StatusRunning, false},
		{job.StatusCompleted, job.StatusPending, false},
		{job.StatusCancelled, job.StatusRunning, false},
		{job.StatusCancelled, job.StatusPending, false},
		{job.StatusPending, job.StatusCompleted, false},
		{job.StatusPending, job.StatusCancelled, false},
	}

	for _, tt := range tests {
		if got := job.ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !job.StatusCompleted.Terminal() || !job.StatusCancelled.Terminal() {
		t.Error("completed and cancelled must be terminal")
	}
	if job.StatusFailed.Terminal() {
		t.Error("failed must not be terminal: restart is permitted")
	}
	if job.StatusPending.Terminal() || job.StatusRunning.Terminal() {
		t.Error("pending and running must not be terminal")
	}
}

func TestStartable(t *testing.T) {
	if !job.StatusPending.Startable() || !job.StatusFailed.Startable() {
		t.Error("pending and failed must be startable")
	}
	if job.StatusRunning.Startable() || job.StatusCompleted.Startable() || job.StatusCancelled.Startable() {
		t.Error("running, completed, and cancelled must not be startable")
	}
}

func TestApplyUpdate_Running(t *testing.T) {
	j := job.New("basic-scrape", nil, 0)
	now := time.Now().UTC()

	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusRunning}, now)

	if j.Status != job.StatusRunning {
		t.Fatalf("status = %s, want running", j.Status)
	}
	if j.StartedAt == nil || !j.StartedAt.Equal(now) {
		t.Error("running must stamp StartedAt")
	}
	if j.Progress != 0 {
		t.Errorf("progress = %v, want 0", j.Progress)
	}
}

func TestApplyUpdate_RunningProgressOnly(t *testing.T) {
	j := job.New("basic-scrape", nil, 0)
	start := time.Now().UTC()
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusRunning}, start)

	p := 40.0
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusRunning, Progress: &p}, start.Add(time.Second))

	if j.Progress != 40 {
		t.Errorf("progress = %v, want 40", j.Progress)
	}
	if !j.StartedAt.Equal(start) {
		t.Error("progress update must not re-stamp StartedAt")
	}
}

func TestApplyUpdate_Terminal(t *testing.T) {
	j := job.New("basic-scrape", nil, 0)
	now := time.Now().UTC()
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusRunning}, now)

	errMsg := "bad content"
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusFailed, Error: &errMsg}, now.Add(time.Second))

	if j.Error != "bad content" {
		t.Errorf("error = %q, want %q", j.Error, "bad content")
	}
	if j.CompletedAt == nil {
		t.Error("failed must stamp CompletedAt")
	}
}

func TestApplyUpdate_ResetToPending(t *testing.T) {
	j := job.New("basic-scrape", nil, 0)
	now := time.Now().UTC()
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusRunning}, now)

	note := "Job was reset due to service restart"
	job.ApplyUpdate(j, job.StatusUpdate{Status: job.StatusPending, Error: &note}, now.Add(time.Second))

	if j.StartedAt != nil || j.CompletedAt != nil {
		t.Error("reset to pending must clear execution timestamps")
	}
	if j.Progress != 0 {
		t.Errorf("progress = %v, want 0 after reset", j.Progress)
	}
	if j.Error != note {
		t.Errorf("error = %q, want restart annotation", j.Error)
	}
}
