package edge

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/halcyonlabs/revtun/internal/client"
)

// TestHolePunchEndToEndTwoConcurrentConnections exercises S5: boot a
// client-side WorkerPool with idle_workers=2 against a real
// WorkerServer, wait until both workers are parked, then drive two
// public connections through a HolePunch TunnelListener in quick
// succession and verify each is spliced to its own fresh target-side
// dial initiated from the client.
func TestHolePunchEndToEndTwoConcurrentConnections(t *testing.T) {
	logger := newTestLogger()
	users := map[string]PersistedUser{"alice": {MaxTunnels: 5, Key: "secret-alice"}}
	state := NewState(logger, users)
	state.Manager.Run(testContext(t))

	ws := NewWorkerServer(logger, state)
	workerPort, err := ws.Start()
	if err != nil {
		t.Fatalf("worker server Start: %v", err)
	}

	target := startEchoTarget(t)

	tl := NewTunnelListener(logger, state, "secret-alice", "t1", target, ProtocolTCP, ModeHolePunch)
	pubPort, stop, err := tl.Start()
	if err != nil {
		t.Fatalf("tunnel listener Start: %v", err)
	}
	defer close(stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool := client.NewWorkerPool(logger, net.JoinHostPort("127.0.0.1", strconv.Itoa(int(workerPort))), "secret-alice", 2)
	pool.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for state.WorkerCount("secret-alice") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for two workers to park, have %d", state.WorkerCount("secret-alice"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	dialAndEcho := func(payload string) error {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(pubPort))))
		if err != nil {
			return fmt.Errorf("dial tunnel port: %w", err)
		}
		defer conn.Close()
		if _, err := conn.Write([]byte(payload)); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(conn, buf); err != nil {
			return fmt.Errorf("read echo: %w", err)
		}
		if string(buf) != payload {
			return fmt.Errorf("got %q, want %q", buf, payload)
		}
		return nil
	}

	errCh := make(chan error, 2)
	go func() { errCh <- dialAndEcho("conn-one") }()
	go func() { errCh <- dialAndEcho("conn-two") }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent holepunch connection failed: %v", err)
		}
	}
}
