// Package notify pushes high-signal scheduler events (failed or skipped
// dispatches, optionally successes) to a Telegram chat.
//
// Delivery is best-effort: the notifier subscribes to the event bus, so a
// slow or broken Telegram API never back-pressures the scheduler. Repeats of
// the same failure are suppressed inside a dedup window, and sends go
// through a token-bucket limiter to stay inside bot API quotas.
package notify
