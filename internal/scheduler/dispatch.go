package scheduler

import (
	"context"
	"time"

	"rconsched/internal/eventbus"
	"rconsched/internal/registry"
	"rconsched/internal/schedule"
	"rconsched/pkg/logx"
)

func scheduleDue(j Job, baseline, now time.Time) bool {
	return schedule.Due(j.Rule, j.LastRun, baseline, now)
}

// dispatch runs one due job and records the outcome.
//
// lastRun policy:
//   - success: advance (next occurrence is computed from this run)
//   - retryable failure (network/timeout): keep, so the slot is retried on
//     the next poll until it succeeds or the next boundary supersedes it
//   - non-retryable failure (auth, protocol, bad credentials): advance,
//     retrying an identical failure every poll only makes noise
//   - dangling server reference: keep; the job is skipped and flagged
func (s *Service) dispatch(ctx context.Context, j Job, now time.Time, timeout time.Duration) {
	rec := RunRecord{
		JobID:    j.ID,
		JobName:  j.Name,
		ServerID: j.ServerID,
		Command:  j.Command,
		Started:  time.Now(),
	}

	profile, known := s.disp.Lookup(j.ServerID)
	if !known {
		rec.Skipped = true
		rec.SkipReason = "server not configured"
		rec.Err = registry.ErrUnknownServer.Error()
		s.log.Warn("job skipped", logx.String("job", j.Name), logx.String("server_id", j.ServerID), logx.String("reason", rec.SkipReason))
		s.record(ctx, rec, eventbus.DispatchSkipped)
		return
	}
	rec.ServerName = profile.Name

	dctx, cancel := context.WithTimeout(ctx, timeout)
	out, err := s.disp.Dispatch(dctx, j.ServerID, j.Command)
	cancel()
	rec.Duration = time.Since(rec.Started)

	if err != nil {
		rec.Err = err.Error()
		retry := registry.Retryable(err)
		if !retry {
			s.advanceLastRun(j.ID, now)
		}
		s.log.Warn("dispatch failed",
			logx.String("job", j.Name),
			logx.String("server", profile.Name),
			logx.Bool("retry_next_poll", retry),
			logx.Duration("dur", rec.Duration),
			logx.Err(err))
		s.record(ctx, rec, eventbus.DispatchFailed)
		return
	}

	rec.Output = out
	s.advanceLastRun(j.ID, now)
	s.log.Info("command executed",
		logx.String("job", j.Name),
		logx.String("server", profile.Name),
		logx.Duration("dur", rec.Duration))
	s.record(ctx, rec, eventbus.DispatchOK)
}

// advanceLastRun moves the job's lastRun marker and triggers persistence.
// The job may have been removed or replaced mid-dispatch; that's fine.
func (s *Service) advanceLastRun(jobID string, now time.Time) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if ok {
		t := now
		j.LastRun = &t
		s.jobs[jobID] = j
	}
	s.mu.Unlock()
	if ok {
		s.notifyChange()
	}
}

func (s *Service) record(ctx context.Context, rec RunRecord, kind eventbus.Kind) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()

	if s.sink != nil {
		if err := s.sink.AppendRun(ctx, rec); err != nil {
			s.log.Warn("history append failed", logx.Err(err))
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Kind:     kind,
			Time:     rec.Started,
			JobID:    rec.JobID,
			JobName:  rec.JobName,
			Server:   rec.ServerName,
			Command:  rec.Command,
			Output:   rec.Output,
			Err:      rec.Err,
			Duration: rec.Duration,
		})
	}
}

func (s *Service) notifyChange() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Jobs())
}
