package scheduler

import (
	"context"
	"sync"
	"time"

	"rconsched/internal/eventbus"
	"rconsched/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	disp Dispatcher

	bus  *eventbus.Bus
	sink Sink

	// onChange is invoked (outside locks) after the job set or a job's
	// lastRun mutates, so the embedder can persist a snapshot.
	onChange func([]Job)

	jobs map[string]Job

	// baseline is the reference point for jobs that never ran; set at Start.
	baseline time.Time

	stopCh   chan struct{}
	stopDone chan struct{}
	inflight sync.WaitGroup

	hmu     sync.Mutex
	history []RunRecord
}

func New(cfg Config, disp Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:  log,
		cfg:  cfg.withDefaults(),
		disp: disp,
		jobs: map[string]Job{},
	}
}

// SetBus wires dispatch outcome events. Call before Start.
func (s *Service) SetBus(b *eventbus.Bus) { s.bus = b }

// SetSink wires durable run history. Call before Start.
func (s *Service) SetSink(sink Sink) { s.sink = sink }

// SetOnChange wires the persistence callback. Call before Start.
func (s *Service) SetOnChange(fn func([]Job)) { s.onChange = fn }

// Apply swaps config at runtime; the next tick picks it up, including
// flips of Enabled in either direction.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Start launches the poll loop. Idempotent while running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		// A previous run may still be draining; don't double the loop.
		select {
		case <-s.stopDone:
		default:
			s.mu.Unlock()
			return
		}
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	s.baseline = time.Now()
	stopCh := s.stopCh
	stopDone := s.stopDone
	interval := s.cfg.PollInterval
	jobCount := len(s.jobs)
	enabled := s.cfg.Enabled
	s.mu.Unlock()

	// The loop runs even while disabled so a config reload that flips
	// Enabled back on takes effect without a restart; a disabled tick is
	// a cheap no-op.
	go s.run(ctx, stopCh, stopDone)
	if enabled {
		s.log.Info("scheduler started", logx.Duration("poll", interval), logx.Int("jobs", jobCount))
	} else {
		s.log.Info("scheduler idle (disabled)", logx.Duration("poll", interval))
	}
}

// Stop signals the loop and waits for the current tick, including any
// in-flight dispatch, to finish. Waiting is bounded by ctx; the loop keeps
// winding down in the background if the bound expires first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	stopDone := s.stopDone
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)

	select {
	case <-stopDone:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; dispatches finishing in background")
	}
}

func (s *Service) run(ctx context.Context, stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)

	// First pass immediately, then on the ticker.
	s.tick(ctx, time.Now())

	for {
		s.mu.Lock()
		interval := s.cfg.PollInterval
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.inflight.Wait()
			return
		case <-stopCh:
			timer.Stop()
			s.inflight.Wait()
			return
		case now := <-timer.C:
			s.tick(ctx, now)
		}
	}
}

// tick evaluates every job once against now and dispatches the due ones.
// It returns when all dispatches for this tick have settled.
func (s *Service) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	baseline := s.baseline
	timeout := s.cfg.DispatchTimeout
	due := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Disabled {
			continue
		}
		if scheduleDue(j, baseline, now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.log.Debug("tick", logx.Int("due", len(due)))

	var wg sync.WaitGroup
	for _, j := range due {
		wg.Add(1)
		s.inflight.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer s.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch", logx.String("job", j.Name), logx.Any("panic", r))
				}
			}()
			s.dispatch(ctx, j, now, timeout)
		}(j)
	}
	wg.Wait()
}
