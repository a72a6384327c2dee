// Package scheduler runs maintenance jobs on cron schedules with a cap
// on how many run at once and a persisted per-job history.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultMaxConcurrent applies when New is given a non-positive limit.
const DefaultMaxConcurrent = 3

// Scheduler manages scheduled job execution
type Scheduler struct {
	jobs           []Job
	maxConcurrent  int
	cron           *cron.Cron
	history        map[string]*JobHistory
	historyPath    string
	running        map[string]bool
	mu             sync.RWMutex
	concurrencySem chan struct{}
	ctx            context.Context
	cancel         context.CancelFunc
}

// New creates a scheduler for jobs. History is loaded from historyPath
// when it exists and written back on Stop.
func New(jobs []Job, historyPath string, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	history, err := LoadHistory(historyPath)
	if err != nil {
		log.Warn().Err(err).Msgf("Failed to load job history from %s", historyPath)
		history = make(map[string]*JobHistory)
	}

	return &Scheduler{
		jobs:           jobs,
		maxConcurrent:  maxConcurrent,
		history:        history,
		historyPath:    historyPath,
		running:        make(map[string]bool),
		concurrencySem: make(chan struct{}, maxConcurrent),
		ctx:            context.Background(),
	}
}

// Start schedules every enabled job and blocks until ctx is cancelled.
// A job whose schedule does not parse is an error and nothing is started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	s.cron = cron.New(cron.WithSeconds())

	enabledCount := 0
	for _, job := range s.jobs {
		if !job.Enabled {
			log.Debug().Str("job", job.ID).Msgf("Job '%s' is disabled, skipping", job.Name)
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.runWithConcurrency(job) }); err != nil {
			return fmt.Errorf("failed to schedule job %q (%s): %w", job.ID, job.Schedule, err)
		}
		enabledCount++
		log.Info().Str("job", job.ID).Str("schedule", job.Schedule).Msgf("Job '%s' scheduled", job.Name)
	}

	if enabledCount == 0 {
		log.Warn().Msg("No enabled jobs to schedule")
		return nil
	}

	s.cron.Start()
	log.Info().Int("jobs", enabledCount).Int("max_concurrent", s.maxConcurrent).Msg("Job scheduler running")

	<-s.ctx.Done()

	log.Info().Msg("Job scheduler stopping...")
	s.Stop()
	return nil
}

// RunAll runs every enabled job once, in order, through the same
// concurrency and history bookkeeping as scheduled runs.
func (s *Scheduler) RunAll(ctx context.Context) {
	s.ctx = ctx
	for _, job := range s.jobs {
		if job.Enabled {
			s.runWithConcurrency(job)
		}
	}
	if err := SaveHistory(s.historyPath, s.History()); err != nil {
		log.Error().Err(err).Msg("Failed to save job history")
	}
}

// Stop waits for running jobs and saves history.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
		log.Info().Msg("All scheduled jobs completed")
	}

	if err := SaveHistory(s.historyPath, s.History()); err != nil {
		log.Error().Err(err).Msg("Failed to save job history")
	} else {
		log.Info().Msgf("Job history saved to %s", s.historyPath)
	}
}

// runWithConcurrency runs job unless it is already running or the
// concurrency limit is reached; either way a skipped run is logged only.
func (s *Scheduler) runWithConcurrency(job Job) {
	s.mu.Lock()
	if s.running[job.ID] {
		s.mu.Unlock()
		log.Warn().Str("job", job.ID).Msgf("Job '%s' skipped: already running", job.Name)
		return
	}

	select {
	case s.concurrencySem <- struct{}{}:
		defer func() { <-s.concurrencySem }()
	default:
		s.mu.Unlock()
		log.Warn().Str("job", job.ID).Msgf("Job '%s' skipped: max concurrent jobs reached (%d)", job.Name, s.maxConcurrent)
		return
	}

	s.running[job.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
	}()

	result := s.executeJob(s.ctx, job)
	s.updateHistory(result)
}

// History returns a copy of the per-job history.
func (s *Scheduler) History() map[string]*JobHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	historyCopy := make(map[string]*JobHistory, len(s.history))
	for k, v := range s.history {
		hCopy := *v
		historyCopy[k] = &hCopy
	}
	return historyCopy
}
