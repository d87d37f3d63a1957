package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rconsched/internal/eventbus"
	"rconsched/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) Send(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

func newTestService(cfg Config) (*Service, *fakeSender) {
	cfg.Enabled = true
	cfg.ChatID = 42
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	f := &fakeSender{}
	return NewWithSender(cfg, f, logx.Nop()), f
}

func failedEvent(job, errText string) eventbus.Event {
	return eventbus.Event{
		Kind:    eventbus.DispatchFailed,
		JobID:   "job-" + job,
		JobName: job,
		Server:  "alpha",
		Err:     errText,
	}
}

func TestForwardsFailures(t *testing.T) {
	t.Parallel()
	s, f := newTestService(Config{})
	bus := eventbus.New()
	s.Start(context.Background(), bus)
	defer s.Stop(context.Background())

	bus.Publish(failedEvent("backup", "i/o timeout"))

	require.Eventually(t, func() bool { return len(f.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.sent()[0], "backup")
	assert.Contains(t, f.sent()[0], "i/o timeout")
}

func TestSuccessForwardedOnlyWhenOptedIn(t *testing.T) {
	t.Parallel()
	s, f := newTestService(Config{})
	ok := eventbus.Event{Kind: eventbus.DispatchOK, JobID: "j", JobName: "backup", Server: "alpha"}
	s.handle(context.Background(), ok)
	assert.Empty(t, f.sent())

	s2, f2 := newTestService(Config{NotifySuccess: true})
	s2.handle(context.Background(), ok)
	assert.Len(t, f2.sent(), 1)
}

func TestDedupSuppressesRepeats(t *testing.T) {
	t.Parallel()
	s, f := newTestService(Config{DedupWindow: time.Hour})
	ctx := context.Background()

	s.handle(ctx, failedEvent("backup", "i/o timeout"))
	s.handle(ctx, failedEvent("backup", "i/o timeout"))
	assert.Len(t, f.sent(), 1, "identical failure inside the window is suppressed")

	// A different error for the same job is a new signal.
	s.handle(ctx, failedEvent("backup", "authentication rejected"))
	assert.Len(t, f.sent(), 2)
}

func TestDisabledServiceIgnoresStart(t *testing.T) {
	t.Parallel()
	s := NewWithSender(Config{Enabled: false}, &fakeSender{}, logx.Nop())
	assert.False(t, s.Enabled())
	s.Start(context.Background(), eventbus.New())
	s.Stop(context.Background())
}

func TestSkippedEventsRendered(t *testing.T) {
	t.Parallel()
	s, f := newTestService(Config{})
	s.handle(context.Background(), eventbus.Event{
		Kind:    eventbus.DispatchSkipped,
		JobID:   "j",
		JobName: "orphan",
		Err:     "registry: unknown server",
	})
	require.Len(t, f.sent(), 1)
	assert.Contains(t, f.sent()[0], "skipped")
}
