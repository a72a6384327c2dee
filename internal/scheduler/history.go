package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// maxOutputLen bounds the output kept per job in the history file.
const maxOutputLen = 512

// LoadHistory loads job history from a JSON file
func LoadHistory(path string) (map[string]*JobHistory, error) {
	history := make(map[string]*JobHistory)
	if path == "" {
		return history, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Msgf("Job history file not found at %s, starting with empty history", path)
			return history, nil
		}
		return nil, fmt.Errorf("failed to read job history %s: %w", path, err)
	}

	var historyList []JobHistory
	if err := json.Unmarshal(data, &historyList); err != nil {
		return nil, fmt.Errorf("failed to parse job history %s: %w", path, err)
	}
	for i := range historyList {
		history[historyList[i].JobID] = &historyList[i]
	}

	log.Info().Msgf("Loaded job history for %d jobs from %s", len(history), path)
	return history, nil
}

// SaveHistory saves job history to a JSON file, sorted by job id.
func SaveHistory(path string, history map[string]*JobHistory) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	historyList := make([]JobHistory, 0, len(history))
	for _, h := range history {
		historyList = append(historyList, *h)
	}
	sort.Slice(historyList, func(i, j int) bool { return historyList[i].JobID < historyList[j].JobID })

	data, err := json.MarshalIndent(historyList, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job history: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write job history %s: %w", path, err)
	}

	log.Debug().Msgf("Saved job history for %d jobs to %s", len(history), path)
	return nil
}

// updateHistory updates the history for a completed job
func (s *Scheduler) updateHistory(result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.history[result.JobID]
	if !exists {
		h = &JobHistory{JobID: result.JobID}
		s.history[result.JobID] = h
	}

	h.LastRun = result.EndTime
	h.LastDuration = result.EndTime.Sub(result.StartTime).Milliseconds()
	h.RunCount++
	h.LastOutput = result.Output
	if len(h.LastOutput) > maxOutputLen {
		h.LastOutput = h.LastOutput[:maxOutputLen]
	}

	if result.Success {
		h.LastStatus = "success"
		h.SuccessCount++
	} else {
		if errors.Is(result.Error, context.DeadlineExceeded) {
			h.LastStatus = "timeout"
		} else {
			h.LastStatus = "failure"
		}
		h.FailureCount++
	}

	log.Debug().Str("job", result.JobID).Str("status", h.LastStatus).Int64("duration_ms", h.LastDuration).
		Int("runs", h.RunCount).Int("success", h.SuccessCount).Int("failures", h.FailureCount).
		Msg("Updated job history")
}
