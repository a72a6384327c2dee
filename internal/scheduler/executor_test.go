package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteJob_Success(t *testing.T) {
	s := New(nil, "", 1)
	result := s.executeJob(context.Background(), Job{
		ID:  "ok",
		Run: func(context.Context) (string, error) { return "done", nil },
	})
	if !result.Success {
		t.Errorf("Expected success, got failure: %v", result.Error)
	}
	if result.Output != "done" {
		t.Errorf("Expected output 'done', got %q", result.Output)
	}
	if result.EndTime.Before(result.StartTime) {
		t.Error("EndTime before StartTime")
	}
}

func TestExecuteJob_Failure(t *testing.T) {
	s := New(nil, "", 1)
	boom := errors.New("boom")
	result := s.executeJob(context.Background(), Job{
		ID:  "fail",
		Run: func(context.Context) (string, error) { return "", boom },
	})
	if result.Success {
		t.Error("Expected failure, got success")
	}
	if !errors.Is(result.Error, boom) {
		t.Errorf("Expected boom, got %v", result.Error)
	}
}

func TestExecuteJob_Timeout(t *testing.T) {
	s := New(nil, "", 1)
	start := time.Now()
	result := s.executeJob(context.Background(), Job{
		ID:      "slow",
		Timeout: 50 * time.Millisecond,
		Run: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(10 * time.Second):
				return "", nil
			}
		},
	})
	if result.Success {
		t.Error("Expected failure due to timeout, got success")
	}
	if !errors.Is(result.Error, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", result.Error)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Timeout was not enforced")
	}
}

func TestExecuteJob_PanicIsFailure(t *testing.T) {
	s := New(nil, "", 1)
	result := s.executeJob(context.Background(), Job{
		ID:  "panic",
		Run: func(context.Context) (string, error) { panic("bad job") },
	})
	if result.Success || result.Error == nil {
		t.Errorf("Expected a failure result, got %+v", result)
	}
}

func TestRunWithConcurrency_SkipsAlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	job := Job{
		ID: "compress",
		Run: func(context.Context) (string, error) {
			if runs.Add(1) == 1 {
				close(started)
				<-release
			}
			return "", nil
		},
	}
	s := New([]Job{job}, "", 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runWithConcurrency(job)
	}()
	<-started
	s.runWithConcurrency(job) // skipped: the first run is still going
	close(release)
	wg.Wait()

	if got := runs.Load(); got != 1 {
		t.Errorf("Expected 1 run, got %d", got)
	}
	if h := s.History()["compress"]; h == nil || h.RunCount != 1 {
		t.Errorf("Expected one recorded run, got %+v", h)
	}
}

func TestRunWithConcurrency_RespectsLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	blocking := Job{ID: "a", Run: func(context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	}}
	var otherRan atomic.Bool
	other := Job{ID: "b", Run: func(context.Context) (string, error) {
		otherRan.Store(true)
		return "", nil
	}}
	s := New([]Job{blocking, other}, "", 1)

	done := make(chan struct{})
	go func() {
		s.runWithConcurrency(blocking)
		close(done)
	}()
	<-started
	s.runWithConcurrency(other)
	close(release)
	<-done

	if otherRan.Load() {
		t.Error("Expected the second job to be skipped at the concurrency limit")
	}
}

func TestRunAll_RecordsHistory(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	jobs := []Job{
		{ID: "ok", Enabled: true, Run: func(context.Context) (string, error) { return "fine", nil }},
		{ID: "bad", Enabled: true, Run: func(context.Context) (string, error) { return "", errors.New("nope") }},
		{ID: "off", Enabled: false, Run: func(context.Context) (string, error) { return "", nil }},
	}
	New(jobs, historyPath, 2).RunAll(context.Background())

	loaded, err := LoadHistory(historyPath)
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if h := loaded["ok"]; h == nil || h.SuccessCount != 1 {
		t.Errorf("Expected one success for ok, got %+v", h)
	}
	if h := loaded["bad"]; h == nil || h.FailureCount != 1 || h.LastStatus != "failure" {
		t.Errorf("Expected one failure for bad, got %+v", h)
	}
	if _, ran := loaded["off"]; ran {
		t.Error("Disabled job should not run")
	}

	// a second scheduler picks the counts back up
	New(jobs, historyPath, 2).RunAll(context.Background())
	loaded, err = LoadHistory(historyPath)
	if err != nil {
		t.Fatalf("Failed to reload history: %v", err)
	}
	if h := loaded["ok"]; h.RunCount != 2 {
		t.Errorf("Expected history to accumulate, got %+v", h)
	}
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := New([]Job{{ID: "x", Enabled: true, Schedule: "not a schedule", Run: func(context.Context) (string, error) { return "", nil }}}, "", 1)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Expected an error for an invalid schedule")
	}
}

func TestStart_RunsScheduledJobUntilCancelled(t *testing.T) {
	ran := make(chan struct{}, 8)
	job := Job{ID: "tick", Enabled: true, Schedule: "* * * * * *", Run: func(context.Context) (string, error) {
		ran <- struct{}{}
		return "", nil
	}}
	s := New([]Job{job}, filepath.Join(t.TempDir(), "history.json"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("Job did not run within 5 seconds")
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if h := s.History()["tick"]; h == nil || h.RunCount == 0 {
		t.Errorf("Expected recorded runs, got %+v", h)
	}
}
