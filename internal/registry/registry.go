package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rconsched/internal/rcon"
	"rconsched/internal/secret"
	"rconsched/pkg/logx"
)

// Console is the slice of rcon.Conn the registry needs; tests substitute
// fakes through DialFunc.
type Console interface {
	Exec(ctx context.Context, command string) (string, error)
	Close() error
}

// DialFunc opens an authenticated console session.
type DialFunc func(ctx context.Context, opts rcon.Options) (Console, error)

func defaultDial(ctx context.Context, opts rcon.Options) (Console, error) {
	return rcon.Dial(ctx, opts)
}

type Config struct {
	// Timeout bounds each connect/exec operation. Zero means rcon.DefaultTimeout.
	Timeout time.Duration
	// Dial is swapped in tests; nil means the real rcon dialer.
	Dial DialFunc
}

// Registry owns the set of configured servers and at most one live console
// session per server identity.
//
// Locking: mu guards the server map and each entry's state; every entry
// additionally carries its own mutex serializing network operations, so
// dispatches to one server never interleave while distinct servers proceed
// concurrently.
type Registry struct {
	log  logx.Logger
	key  *secret.Key
	dial DialFunc
	tmo  time.Duration

	mu      sync.RWMutex
	servers map[string]*serverEntry
}

type serverEntry struct {
	netMu sync.Mutex // serializes connect/exec/close for this server

	profile ServerProfile
	conn    Console   // guarded by netMu
	state   ConnState // guarded by Registry.mu
}

func New(cfg Config, key *secret.Key, log logx.Logger) *Registry {
	if cfg.Dial == nil {
		cfg.Dial = defaultDial
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		log:     log,
		key:     key,
		dial:    cfg.Dial,
		tmo:     cfg.Timeout,
		servers: map[string]*serverEntry{},
	}
}

// Upsert adds or replaces a profile. It never connects; a replaced server's
// live session is torn down so the next dispatch reconnects with the new
// settings. An empty ID gets one assigned.
func (r *Registry) Upsert(p ServerProfile) (ServerProfile, error) {
	if err := p.Validate(); err != nil {
		return ServerProfile{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	r.mu.Lock()
	old := r.servers[p.ID]
	e := &serverEntry{
		profile: p,
		state:   ConnState{Kind: StateUnconfigured, Since: time.Now()},
	}
	r.servers[p.ID] = e
	r.mu.Unlock()

	if old != nil {
		old.closeConn()
	}
	r.log.Debug("server upserted", logx.String("server", p.Name), logx.String("id", p.ID))
	return p, nil
}

// Remove drops a profile and closes its session. Unknown IDs are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e := r.servers[id]
	delete(r.servers, id)
	r.mu.Unlock()

	if e != nil {
		e.closeConn()
		r.log.Debug("server removed", logx.String("id", id))
	}
}

// Profiles returns the configured servers sorted by name.
func (r *Registry) Profiles() []ServerProfile {
	r.mu.RLock()
	out := make([]ServerProfile, 0, len(r.servers))
	for _, e := range r.servers {
		out = append(out, e.profile)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup resolves a profile by ID.
func (r *Registry) Lookup(id string) (ServerProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.servers[id]
	if !ok {
		return ServerProfile{}, false
	}
	return e.profile, true
}

// State reports the connection status for one server.
func (r *Registry) State(id string) ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.servers[id]
	if !ok {
		return ConnState{Kind: StateUnconfigured}
	}
	return e.state
}

// States snapshots every server's status, keyed by ID.
func (r *Registry) States() map[string]ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ConnState, len(r.servers))
	for id, e := range r.servers {
		out[id] = e.state
	}
	return out
}

// Connect attempts to open the session for one server. Failures are folded
// into the returned state, nothing escapes this boundary.
func (r *Registry) Connect(ctx context.Context, id string) ConnState {
	r.mu.RLock()
	e := r.servers[id]
	r.mu.RUnlock()
	if e == nil {
		return ConnState{Kind: StateUnconfigured}
	}

	e.netMu.Lock()
	err := r.connectLocked(ctx, e)
	e.netMu.Unlock()
	if err != nil {
		r.log.Warn("connect failed", logx.String("server", e.profile.Name), logx.Err(err))
	} else {
		r.log.Info("connected", logx.String("server", e.profile.Name))
	}
	return r.State(id)
}

// ReconnectAll connects every server that is not currently connected.
// Attempts run concurrently and independently; one server's failure never
// aborts the others.
func (r *Registry) ReconnectAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.servers))
	for id, e := range r.servers {
		if e.state.Kind != StateConnected {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Connect(ctx, id)
		}(id)
	}
	wg.Wait()
}

// Dispatch resolves the server, reconnects once if the session is down, and
// sends the command. This is the scheduler's sole entry point for running a
// job. Errors come back as values, classified by Retryable.
func (r *Registry) Dispatch(ctx context.Context, id, command string) (string, error) {
	r.mu.RLock()
	e := r.servers[id]
	r.mu.RUnlock()
	if e == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}

	e.netMu.Lock()
	defer e.netMu.Unlock()

	if e.conn == nil {
		if err := r.connectLocked(ctx, e); err != nil {
			return "", fmt.Errorf("dispatch to %s: %w", e.profile.Name, err)
		}
	}

	out, err := e.conn.Exec(ctx, command)
	if err != nil {
		// A dead session is torn down so the next dispatch starts clean.
		_ = e.conn.Close()
		e.conn = nil
		r.setState(e, ConnState{Kind: StateFailed, Reason: err.Error(), Since: time.Now()})
		return "", fmt.Errorf("dispatch to %s: %w", e.profile.Name, err)
	}
	return out, nil
}

// Close tears down every live session.
func (r *Registry) Close() {
	r.mu.RLock()
	entries := make([]*serverEntry, 0, len(r.servers))
	for _, e := range r.servers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.closeConn()
		r.setState(e, ConnState{Kind: StateUnconfigured, Since: time.Now()})
	}
}

// connectLocked opens the session for e. Callers hold e.netMu.
func (r *Registry) connectLocked(ctx context.Context, e *serverEntry) error {
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	r.setState(e, ConnState{Kind: StateConnecting, Since: time.Now()})

	password, err := secret.Decrypt(e.profile.Password, r.key)
	if err != nil {
		r.setState(e, ConnState{Kind: StateFailed, Reason: "credential decrypt failed", Since: time.Now()})
		return fmt.Errorf("decrypt credentials for %s: %w", e.profile.Name, err)
	}

	conn, err := r.dial(ctx, rcon.Options{
		Host:     e.profile.Host,
		Port:     e.profile.Port,
		Password: password,
		Timeout:  r.tmo,
	})
	if err != nil {
		r.setState(e, ConnState{Kind: StateFailed, Reason: err.Error(), Since: time.Now()})
		return err
	}
	e.conn = conn
	r.setState(e, ConnState{Kind: StateConnected, Since: time.Now()})
	return nil
}

func (r *Registry) setState(e *serverEntry, s ConnState) {
	r.mu.Lock()
	e.state = s
	r.mu.Unlock()
}

func (e *serverEntry) closeConn() {
	e.netMu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.netMu.Unlock()
}

// Retryable reports whether an error from Dispatch or Connect is worth
// retrying on the next poll. Bad credentials, unknown servers and protocol
// violations are not: they will fail identically until an operator acts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rcon.ErrAuth) || errors.Is(err, ErrUnknownServer) || errors.Is(err, secret.ErrDecrypt) {
		return false
	}
	var pe *rcon.ProtocolError
	return !errors.As(err, &pe)
}
