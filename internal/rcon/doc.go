// Package rcon implements a client for the Source remote-console protocol
// (the dialect Minecraft and most Source-engine servers speak).
//
// A Conn owns one authenticated TCP session. All I/O is blocking with a
// per-operation deadline; callers are expected to run connect/exec off any
// latency-sensitive goroutine. Exec calls on one Conn are serialized; the
// registry additionally serializes everything per server identity.
package rcon
