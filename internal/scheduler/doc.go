// Package scheduler runs the poll loop that evaluates recurring jobs and
// dispatches their commands through the connection registry.
//
// # Lifecycle
//
// Stopped -> Running -> Stopping -> Stopped. Start is idempotent; Stop is
// cooperative: it signals between ticks and waits for in-flight dispatches
// to settle (bounded by the caller's context) instead of interrupting a
// command mid-send.
//
// # Failure isolation
//
// Every dispatch runs in its own goroutine with panic recovery. One job's
// failure, or one unreachable server, never halts the loop or other jobs
// due in the same tick. Dispatches targeting the same server are serialized
// by the registry; distinct servers proceed concurrently.
//
// # Missed occurrences
//
// A job fires at most once per poll no matter how many occurrence
// boundaries passed while the process was down or the server unreachable
// (catch-up collapses into a single run).
package scheduler
