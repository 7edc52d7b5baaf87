package edge

import (
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// State is the shared structure holding every secret's quota, active
// tunnels, and worker pool, plus a handle to the listener manager. All
// mutation of ActiveTunnels or Workers lists happens under mu; the lock
// is never held across a socket operation.
type State struct {
	logger rpshare.Logger

	mu      sync.Mutex
	secrets map[string]*Secret // keyed by bearer token

	Manager *ListenerManager
}

// NewState builds a State from the persisted user list, keyed by each
// user's bearer key.
func NewState(logger rpshare.Logger, users map[string]PersistedUser) *State {
	s := &State{
		logger:  logger,
		secrets: map[string]*Secret{},
	}
	for name, u := range users {
		s.secrets[u.Key] = &Secret{Name: name, Key: u.Key, MaxTunnels: u.MaxTunnels}
	}
	s.Manager = NewListenerManager(logger, s)
	return s
}

// Lookup returns the Secret owning token, if any.
func (s *State) Lookup(token string) (*Secret, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[token]
	return secret, ok
}

// CreateTunnel enforces the quota, asks the listener manager to bind a
// port, then records the Tunnel in the secret's active list. Returns
// ErrUnknownSecret, ErrQuotaExceeded, ErrBindFailed or ErrChannelSend.
func (s *State) CreateTunnel(token, name, target string, protocol Protocol, mode Mode) (uint16, error) {
	s.mu.Lock()
	secret, ok := s.secrets[token]
	if !ok {
		s.mu.Unlock()
		return 0, ErrUnknownSecret
	}
	if uint(len(secret.ActiveTunnels)) >= secret.MaxTunnels {
		s.mu.Unlock()
		return 0, ErrQuotaExceeded
	}
	s.mu.Unlock()

	port, err := s.Manager.Listen(name, target, protocol, mode, token)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	secret.ActiveTunnels = append(secret.ActiveTunnels, &Tunnel{
		Name:     name,
		Target:   target,
		Protocol: protocol,
		Mode:     mode,
		Port:     port,
	})
	s.mu.Unlock()
	return port, nil
}

// DeleteTunnel stops and removes the tunnel to target under token.
func (s *State) DeleteTunnel(token, target string) error {
	s.mu.Lock()
	secret, ok := s.secrets[token]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSecret
	}
	idx := -1
	for i, t := range secret.ActiveTunnels {
		if t.Target == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNoSuchTunnel
	}
	tunnel := secret.ActiveTunnels[idx]
	secret.ActiveTunnels = append(secret.ActiveTunnels[:idx], secret.ActiveTunnels[idx+1:]...)
	s.mu.Unlock()

	return s.Manager.Stop(tunnel.Port)
}

// DeleteAllTunnels stops and removes every active tunnel under token.
func (s *State) DeleteAllTunnels(token string) error {
	s.mu.Lock()
	secret, ok := s.secrets[token]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSecret
	}
	tunnels := secret.ActiveTunnels
	secret.ActiveTunnels = nil
	s.mu.Unlock()

	for _, t := range tunnels {
		if err := s.Manager.Stop(t.Port); err != nil {
			s.logger.ELogf("delete_edges: stop port %d: %s", t.Port, err)
		}
	}
	return nil
}

// WorkerCount returns the number of workers currently parked for token,
// taken under the lock. Unknown tokens report 0. Intended for tests and
// diagnostics that need to observe pool size without racing the
// goroutines that mutate it.
func (s *State) WorkerCount(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[token]
	if !ok {
		return 0
	}
	return len(secret.Workers)
}

// AddWorker appends w to token's worker pool.
func (s *State) AddWorker(token string, w *Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[token]
	if !ok {
		return ErrUnknownSecret
	}
	secret.Workers = append(secret.Workers, w)
	return nil
}

// PickWorker removes and returns a uniformly random worker from token's
// pool, atomically under the lock. Returns false if the pool is empty or
// the secret is unknown.
func (s *State) PickWorker(token string) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[token]
	if !ok || len(secret.Workers) == 0 {
		return nil, false
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secret.Workers))))
	idx := 0
	if err == nil {
		idx = int(n.Int64())
	}
	w := secret.Workers[idx]
	secret.Workers = append(secret.Workers[:idx], secret.Workers[idx+1:]...)
	return w, true
}

// Goodbye drains both the active tunnels and the parked worker pool for
// token: every tunnel is stopped, every still-parked worker is
// cancelled.
func (s *State) Goodbye(token string) error {
	s.mu.Lock()
	secret, ok := s.secrets[token]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSecret
	}
	tunnels := secret.ActiveTunnels
	workers := secret.Workers
	secret.ActiveTunnels = nil
	secret.Workers = nil
	s.mu.Unlock()

	for _, t := range tunnels {
		if err := s.Manager.Stop(t.Port); err != nil {
			s.logger.ELogf("goodbye: stop port %d: %s", t.Port, err)
		}
	}
	for _, w := range workers {
		w.Cancel()
	}
	return nil
}
