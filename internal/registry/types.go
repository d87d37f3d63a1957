package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownServer is returned when a dispatch or connect names a server
// that is not (or no longer) configured.
var ErrUnknownServer = errors.New("registry: unknown server")

// ServerProfile identifies one remote console. Password holds the
// encrypted token produced by the secret codec, never the plaintext.
type ServerProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Password string `json:"password"`
}

func (p ServerProfile) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return errors.New("registry: host is required")
	}
	if p.Port == 0 {
		return errors.New("registry: port must be in [1,65535]")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("registry: name is required")
	}
	return nil
}

func (p ServerProfile) String() string {
	return fmt.Sprintf("%s (%s:%d)", p.Name, p.Host, p.Port)
}

// StateKind is the per-server connection status.
type StateKind string

const (
	StateUnconfigured StateKind = "unconfigured"
	StateConnecting   StateKind = "connecting"
	StateConnected    StateKind = "connected"
	StateFailed       StateKind = "failed"
)

// ConnState is runtime-only; it is never persisted.
type ConnState struct {
	Kind   StateKind
	Reason string // set when Kind == StateFailed
	Since  time.Time
}
