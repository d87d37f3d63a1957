package storage

// Package storage persists the two long-lived artifacts of the service:
//
//   - the configuration snapshot (servers + jobs, including lastRun markers),
//     written atomically as JSON so schedule progress survives restarts
//   - the run history (one row per dispatch attempt), behind the History
//     interface with sqlite and plain-file backends
