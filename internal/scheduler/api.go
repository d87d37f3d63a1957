package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"rconsched/pkg/logx"
)

// AddJob validates and registers a job. An empty ID gets one assigned.
// Safe to call while the loop is running; the next poll sees it.
func (s *Service) AddJob(j Job) (Job, error) {
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Name == "" {
		j.Name = j.Command
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	s.log.Debug("job added", logx.String("id", j.ID), logx.String("name", j.Name), logx.String("rule", j.Rule.String()))
	s.notifyChange()
	return j, nil
}

// UpdateJob replaces an existing job.
func (s *Service) UpdateJob(j Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.jobs[j.ID]
	if ok {
		s.jobs[j.ID] = j
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no job with id %s", j.ID)
	}
	s.notifyChange()
	return nil
}

// RemoveJob drops a job. Returns false for unknown IDs.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if ok {
		s.log.Debug("job removed", logx.String("id", id))
		s.notifyChange()
	}
	return ok
}

// ReplaceJobs swaps the whole job set (startup load). Invalid entries are
// dropped with a warning rather than rejecting the rest.
func (s *Service) ReplaceJobs(jobs []Job) {
	next := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			s.log.Warn("dropping invalid job", logx.String("job", j.Name), logx.Err(err))
			continue
		}
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		next[j.ID] = j
	}
	s.mu.Lock()
	s.jobs = next
	s.mu.Unlock()
}

// Jobs returns the job set sorted by name.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Upcoming lists enabled jobs with their next occurrence, soonest first.
// Jobs that have run derive the occurrence from lastRun, matching what the
// poll loop will actually fire: a slot pending retry after a failure shows
// its overdue boundary, not the one after it.
func (s *Service) Upcoming() []Upcoming {
	now := time.Now()
	jobs := s.Jobs()
	out := make([]Upcoming, 0, len(jobs))
	for _, j := range jobs {
		if j.Disabled {
			continue
		}
		next := j.Rule.Next(now)
		if j.LastRun != nil {
			next = j.Rule.Next(*j.LastRun)
		}
		out = append(out, Upcoming{Job: j, Next: next})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Next.Before(out[k].Next) })
	return out
}

// History returns the recent in-memory run feed, oldest first.
func (s *Service) History() []RunRecord {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]RunRecord, len(s.history))
	copy(out, s.history)
	return out
}
