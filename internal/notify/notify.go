package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rconsched/internal/eventbus"
	"rconsched/pkg/logx"
)

// Config controls the notifier.
type Config struct {
	Enabled bool
	Token   string
	ChatID  int64

	// NotifySuccess forwards successful dispatches too; off by default,
	// failures and skips are always forwarded.
	NotifySuccess bool

	// RatePerSec is the send budget (default 1/s, burst 3).
	RatePerSec float64

	// DedupWindow suppresses repeats of the same job+error inside the
	// window (default 10m; 0 disables suppression).
	DedupWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 10 * time.Minute
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	return c
}

// Service forwards scheduler events to a chat. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	sender  Sender
	limiter *rate.Limiter

	cancelSub func()
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time
}

// New builds the notifier with the production Telegram sender. Returns a
// disabled no-op service when cfg.Enabled is false.
func New(cfg Config, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	if !cfg.Enabled {
		return NewWithSender(cfg, nil, log), nil
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("notify: chat id is required")
	}
	sender, err := newTelegramSender(cfg.Token)
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, sender, log), nil
}

// NewWithSender injects a custom sender.
func NewWithSender(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		cfg:     cfg,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 3),
		dedup:   map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Start subscribes to the bus and launches the forwarding loop. Idempotent.
func (s *Service) Start(ctx context.Context, bus *eventbus.Bus) {
	if !s.Enabled() || bus == nil {
		return
	}
	s.mu.Lock()
	if s.cancelSub != nil {
		s.mu.Unlock()
		return
	}
	ch, cancel := bus.Subscribe(64)
	s.cancelSub = cancel
	s.stopDone = make(chan struct{})
	stopDone := s.stopDone
	s.mu.Unlock()

	go func() {
		defer close(stopDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.handle(ctx, ev)
			}
		}
	}()
	s.log.Info("notifier started", logx.Int64("chat", s.cfg.ChatID))
}

// Stop cancels the subscription and waits for the loop, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancelSub
	stopDone := s.stopDone
	s.cancelSub = nil
	s.stopDone = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.DispatchOK:
		if !s.cfg.NotifySuccess {
			return
		}
	case eventbus.DispatchFailed, eventbus.DispatchSkipped:
	default:
		return
	}

	if s.suppressed(ev) {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	text := render(ev)
	if err := s.sender.Send(s.cfg.ChatID, text); err != nil {
		s.log.Warn("notification send failed", logx.String("job", ev.JobName), logx.Err(err))
	}
}

// suppressed reports whether the same job+error fired inside the window.
// Successes are never deduplicated.
func (s *Service) suppressed(ev eventbus.Event) bool {
	if s.cfg.DedupWindow <= 0 || ev.Kind == eventbus.DispatchOK {
		return false
	}
	key := string(ev.Kind) + "|" + ev.JobID + "|" + ev.Err
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return true
	}
	if len(s.dedup) > 1000 {
		for k, until := range s.dedup {
			if now.After(until) {
				delete(s.dedup, k)
			}
		}
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	return false
}

func render(ev eventbus.Event) string {
	switch ev.Kind {
	case eventbus.DispatchOK:
		return fmt.Sprintf("✅ %s on %s: ok (%s)", ev.JobName, ev.Server, ev.Duration.Round(time.Millisecond))
	case eventbus.DispatchSkipped:
		return fmt.Sprintf("⚠️ %s skipped: %s", ev.JobName, ev.Err)
	default:
		target := ev.Server
		if target == "" {
			target = "unknown server"
		}
		return fmt.Sprintf("❌ %s on %s failed: %s", ev.JobName, target, ev.Err)
	}
}
