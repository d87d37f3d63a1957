// Package logx configures rconsched's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp, key=value fields)
//   - File output JSON-structured
//   - Level/sink changes applicable at runtime via Service.Apply
package logx
