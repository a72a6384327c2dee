package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// executeJob runs a job under its timeout and returns the result. A panic
// in the job is reported as a failure rather than taking down the daemon.
func (s *Scheduler) executeJob(ctx context.Context, job Job) (result JobResult) {
	result = JobResult{
		JobID:     job.ID,
		StartTime: time.Now(),
	}

	log.Info().Str("job", job.ID).Msgf("Job '%s' started", job.Name)

	jobCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result.EndTime = time.Now()
			result.Success = false
			result.Error = fmt.Errorf("job panicked: %v", r)
			log.Error().Str("job", job.ID).Interface("panic", r).Msg("Job panicked")
		}
	}()

	output, err := job.Run(jobCtx)
	result.EndTime = time.Now()
	result.Output = output
	duration := result.EndTime.Sub(result.StartTime)

	switch {
	case err != nil && jobCtx.Err() == context.DeadlineExceeded:
		result.Error = context.DeadlineExceeded
		log.Error().Str("job", job.ID).Dur("timeout", job.Timeout).Msgf("Job '%s' timed out", job.Name)
	case err != nil:
		result.Error = err
		log.Error().Str("job", job.ID).Err(err).Msgf("Job '%s' failed", job.Name)
	default:
		result.Success = true
		log.Info().Str("job", job.ID).Dur("duration", duration).Str("output", output).
			Msgf("Job '%s' completed", job.Name)
	}
	return result
}
