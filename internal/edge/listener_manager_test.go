package edge

import (
	"net"
	"strconv"
	"testing"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

func TestListenerManagerListenAndStop(t *testing.T) {
	logger := rpshare.NewLogger("test", rpshare.LogLevelError)
	users := map[string]PersistedUser{"alice": {MaxTunnels: 5, Key: "secret-alice"}}
	s := NewState(logger, users)
	s.Manager.Run(testContext(t))

	port, err := s.Manager.Listen("t1", "127.0.0.1:0", ProtocolTCP, ModeReverse, "secret-alice")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if port == 0 {
		t.Fatalf("Listen returned port 0")
	}

	// The port must actually be bound and accepting connections.
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial assigned port %d: %v", port, err)
	}
	conn.Close()

	if err := s.Manager.Stop(port); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A second Stop for the same (now-forgotten) port must still be a
	// harmless no-op.
	if err := s.Manager.Stop(port); err != nil {
		t.Fatalf("second Stop on same port: %v", err)
	}
}

// TestListenerManagerAssignsDistinctPorts checks that two Listen calls in
// a row each get their own ephemeral port, rather than any bind-failure
// handling.
func TestListenerManagerAssignsDistinctPorts(t *testing.T) {
	logger := rpshare.NewLogger("test", rpshare.LogLevelError)
	users := map[string]PersistedUser{"alice": {MaxTunnels: 5, Key: "secret-alice"}}
	s := NewState(logger, users)
	s.Manager.Run(testContext(t))

	// An unreachable target is fine for Reverse mode at listen time
	// (the dial only happens on accept), so use a target string with
	// no bearing on bind outcome.
	port1, err := s.Manager.Listen("t1", "10.0.0.1:9", ProtocolTCP, ModeReverse, "secret-alice")
	if err != nil {
		t.Fatalf("Listen t1: %v", err)
	}
	port2, err := s.Manager.Listen("t2", "10.0.0.1:10", ProtocolTCP, ModeReverse, "secret-alice")
	if err != nil {
		t.Fatalf("Listen t2: %v", err)
	}
	if port1 == port2 {
		t.Fatalf("two distinct tunnel listeners were assigned the same port %d", port1)
	}
}

// TestListenerManagerListenReturnsErrBindFailed exercises
// handleListen's ErrBindFailed path by forcing bindAddr onto a port
// another listener already holds, then checking the error comes back
// through Listen's reply round trip.
func TestListenerManagerListenReturnsErrBindFailed(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer blocker.Close()

	old := bindAddr
	bindAddr = blocker.Addr().String()
	defer func() { bindAddr = old }()

	logger := rpshare.NewLogger("test", rpshare.LogLevelError)
	users := map[string]PersistedUser{"alice": {MaxTunnels: 5, Key: "secret-alice"}}
	s := NewState(logger, users)
	s.Manager.Run(testContext(t))

	if _, err := s.Manager.Listen("t1", "10.0.0.1:9", ProtocolTCP, ModeReverse, "secret-alice"); err != ErrBindFailed {
		t.Fatalf("Listen: got %v, want ErrBindFailed", err)
	}
}

