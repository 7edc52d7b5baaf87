package edge

import (
	"context"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// ListenRequest asks the listener manager to bind a new tunnel listener
// and park its stop-signal in the port map.
type ListenRequest struct {
	Name        string
	Target      string
	Protocol    Protocol
	Mode        Mode
	SecretToken string
	Reply       chan ListenResult
}

// ListenResult is the listener manager's reply to a ListenRequest.
type ListenResult struct {
	Port uint16
	Err  error
}

// StopRequest asks the listener manager to tear down the tunnel bound to
// Port. Unknown ports are logged and ignored. Reply is closed once
// handleStop has run, so callers can observe completion the same way
// Listen's callers observe its reply.
type StopRequest struct {
	Port  uint16
	Reply chan struct{}
}

// HasPortRequest asks the listener manager whether Port is currently
// bound, for callers that need a synchronized read of the port map
// instead of reaching into it directly.
type HasPortRequest struct {
	Port  uint16
	Reply chan bool
}

type managerMsg struct {
	listen  *ListenRequest
	stop    *StopRequest
	hasPort *HasPortRequest
}

// ListenerManager is the single serialized actor owning port -> stop
// channel for every active tunnel listener. It is the only mutator of
// that map; everything else addresses it exclusively through Listen,
// Stop and HasPort, which preserves arrival order per spec.md §4.1/§5.
type ListenerManager struct {
	rpshare.ShutdownHelper

	logger     rpshare.Logger
	state      *State
	msgCh      chan managerMsg
	ports      map[uint16]chan struct{}
	loopDoneCh chan struct{}
}

// NewListenerManager creates a ListenerManager bound to state. Run must
// be called to start its serialized loop.
func NewListenerManager(logger rpshare.Logger, state *State) *ListenerManager {
	m := &ListenerManager{
		logger:     logger,
		state:      state,
		msgCh:      make(chan managerMsg),
		ports:      map[uint16]chan struct{}{},
		loopDoneCh: make(chan struct{}),
	}
	m.InitShutdownHelper(logger, m)
	return m
}

// HandleOnceShutdown implements rpshare.OnceShutdownHandler. The actual
// port-map teardown happens in loop, which is the map's sole mutator;
// this just waits for that to finish.
func (m *ListenerManager) HandleOnceShutdown(completionErr error) error {
	<-m.loopDoneCh
	return completionErr
}

// Run starts the manager's receive loop on its own goroutine and returns
// at once. The loop exits when ctx is cancelled or Shutdown/Close is
// called.
func (m *ListenerManager) Run(ctx context.Context) {
	err := m.DoOnceActivate(func() error {
		m.ShutdownOnContext(ctx)
		go m.loop()
		return nil
	}, true)
	if err != nil {
		m.logger.ELogf("listener manager: activate failed: %s", err)
	}
}

func (m *ListenerManager) loop() {
	defer close(m.loopDoneCh)
	for {
		select {
		case msg := <-m.msgCh:
			switch {
			case msg.listen != nil:
				m.handleListen(msg.listen)
			case msg.stop != nil:
				m.handleStop(msg.stop)
			case msg.hasPort != nil:
				_, ok := m.ports[msg.hasPort.Port]
				msg.hasPort.Reply <- ok
			}
		case <-m.ShutdownStartedChan():
			for port, stop := range m.ports {
				close(stop)
				delete(m.ports, port)
			}
			return
		}
	}
}

func (m *ListenerManager) handleListen(req *ListenRequest) {
	tl := NewTunnelListener(m.logger, m.state, req.SecretToken, req.Name, req.Target, req.Protocol, req.Mode)
	port, stop, err := tl.Start()
	if err != nil {
		req.Reply <- ListenResult{Err: err}
		return
	}
	m.ports[port] = stop
	req.Reply <- ListenResult{Port: port}
}

func (m *ListenerManager) handleStop(req *StopRequest) {
	stop, ok := m.ports[req.Port]
	if ok {
		close(stop)
		delete(m.ports, req.Port)
	} else {
		m.logger.DLogf("listener manager: stop for unknown port %d, ignoring", req.Port)
	}
	close(req.Reply)
}

// Listen sends a ListenRequest and waits for the reply. Returns
// ErrChannelSend once the manager's shutdown has started.
func (m *ListenerManager) Listen(name, target string, protocol Protocol, mode Mode, secretToken string) (uint16, error) {
	reply := make(chan ListenResult, 1)
	req := &ListenRequest{
		Name:        name,
		Target:      target,
		Protocol:    protocol,
		Mode:        mode,
		SecretToken: secretToken,
		Reply:       reply,
	}
	select {
	case m.msgCh <- managerMsg{listen: req}:
	case <-m.ShutdownStartedChan():
		return 0, ErrChannelSend
	}
	result := <-reply
	return result.Port, result.Err
}

// Stop sends a StopRequest for port and waits for handleStop to run, so
// the port map mutation is visible to the caller by the time Stop
// returns. Idempotent: stopping an unknown or already-stopped port is a
// no-op on the manager's side.
func (m *ListenerManager) Stop(port uint16) error {
	reply := make(chan struct{})
	req := &StopRequest{Port: port, Reply: reply}
	select {
	case m.msgCh <- managerMsg{stop: req}:
	case <-m.ShutdownStartedChan():
		return ErrChannelSend
	}
	<-reply
	return nil
}

// HasPort reports whether port is currently bound to an active tunnel
// listener. Synchronized against the manager's loop, so it reflects any
// Stop that has already returned.
func (m *ListenerManager) HasPort(port uint16) bool {
	reply := make(chan bool, 1)
	req := &HasPortRequest{Port: port, Reply: reply}
	select {
	case m.msgCh <- managerMsg{hasPort: req}:
	case <-m.ShutdownStartedChan():
		return false
	}
	return <-reply
}
