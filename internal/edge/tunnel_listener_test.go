package edge

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

func newTestLogger() rpshare.Logger {
	return rpshare.NewLogger("test", rpshare.LogLevelError)
}

// startEchoTarget binds a loopback listener that echoes back everything
// it reads, standing in for the "private target" of S3/S4.
func startEchoTarget(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()
	return ln.Addr().String()
}

func TestTunnelListenerReverseSplice(t *testing.T) {
	target := startEchoTarget(t)
	logger := newTestLogger()
	state := NewState(logger, nil)

	tl := NewTunnelListener(logger, state, "", "t1", target, ProtocolTCP, ModeReverse)
	port, stop, err := tl.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer close(stop)

	pub, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial tunnel port: %v", err)
	}
	defer pub.Close()

	if _, err := pub.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	pub.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 5)
	if _, err := io.ReadFull(pub, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
}

func TestTunnelListenerHAProxyV1Framing(t *testing.T) {
	logger := newTestLogger()
	state := NewState(logger, nil)

	// The "target" here is a raw listener that just captures the first
	// bytes it receives instead of echoing, so we can inspect the
	// PROXY header exactly as S4 specifies.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	tl := NewTunnelListener(logger, state, "", "t1", ln.Addr().String(), ProtocolHAProxyV1, ModeReverse)
	port, stop, err := tl.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer close(stop)

	pub, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial tunnel port: %v", err)
	}
	defer pub.Close()
	if _, err := pub.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case data := <-received:
		s := string(data)
		const wantPrefix = "PROXY TCP4 "
		if len(s) < len(wantPrefix) || s[:len(wantPrefix)] != wantPrefix {
			t.Fatalf("target did not receive a PROXY v1 header first, got %q", s)
		}
		if !strings.HasSuffix(s, "hello") {
			t.Fatalf("target's payload did not end with the forwarded bytes, got %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for target to receive data")
	}
}

// TestTunnelListenerStartReturnsErrBindFailed exercises the bind-failure
// branch of Start by forcing bindAddr onto a port another listener
// already holds.
func TestTunnelListenerStartReturnsErrBindFailed(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer blocker.Close()

	old := bindAddr
	bindAddr = blocker.Addr().String()
	defer func() { bindAddr = old }()

	logger := newTestLogger()
	state := NewState(logger, nil)
	tl := NewTunnelListener(logger, state, "", "t1", "127.0.0.1:1", ProtocolTCP, ModeReverse)

	if _, _, err := tl.Start(); err != ErrBindFailed {
		t.Fatalf("Start: got %v, want ErrBindFailed", err)
	}
}

func TestTunnelListenerHolePunchEmptyPoolClosesConnection(t *testing.T) {
	logger := newTestLogger()
	users := map[string]PersistedUser{"alice": {MaxTunnels: 5, Key: "secret-alice"}}
	state := NewState(logger, users)

	tl := NewTunnelListener(logger, state, "secret-alice", "t1", "127.0.0.1:9", ProtocolTCP, ModeHolePunch)
	port, stop, err := tl.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer close(stop)

	pub, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial tunnel port: %v", err)
	}
	defer pub.Close()

	pub.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(pub)
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected the public connection to be closed when the worker pool is empty, got err=%v", err)
	}
}

