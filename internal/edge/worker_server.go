package edge

import (
	"bufio"
	"encoding/binary"
	"net"
	"strings"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

const handoffMaxFrameLen = 255

// WorkerServer binds one ephemeral TCP port and accepts client-initiated
// worker connections: each is authenticated by a secret line, parked in
// the owning secret's pool, then either handed off with a target (and
// the handoff frame written onto it) or cancelled on goodbye.
type WorkerServer struct {
	logger rpshare.Logger
	state  *State
}

// NewWorkerServer builds a WorkerServer bound to state.
func NewWorkerServer(logger rpshare.Logger, state *State) *WorkerServer {
	return &WorkerServer{logger: logger.Fork("worker-server"), state: state}
}

// Start binds 0.0.0.0:0 and spawns the accept loop, returning the
// assigned port.
func (s *WorkerServer) Start() (uint16, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		s.logger.ELogf("bind failed: %s", err)
		return 0, ErrBindFailed
	}
	go s.acceptLoop(ln)
	return uint16(ln.Addr().(*net.TCPAddr).Port), nil
}

func (s *WorkerServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.logger.ELogf("accept: %s", err)
			return
		}
		go s.handleConn(conn)
	}
}

func (s *WorkerServer) handleConn(conn net.Conn) {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		s.logger.ELogf("worker %s: read secret: %s", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	token := strings.TrimSpace(line)

	if _, ok := s.state.Lookup(token); !ok {
		s.logger.WLogf("worker %s: unknown secret, closing", conn.RemoteAddr())
		conn.Close()
		return
	}

	w := NewWorker(conn.RemoteAddr().String())
	if err := s.state.AddWorker(token, w); err != nil {
		s.logger.ELogf("worker %s: %s", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	s.park(conn, r, w)
}

// park waits on whichever of closeCh or handoffCh fires first, matching
// spec.md §4.3's per-worker task.
func (s *WorkerServer) park(conn net.Conn, r *bufio.Reader, w *Worker) {
	select {
	case <-w.closeCh:
		conn.Close()
	case target := <-w.handoffCh:
		if err := writeHandoffFrame(conn, target); err != nil {
			s.logger.ELogf("worker %s: handoff frame: %s", conn.RemoteAddr(), err)
			conn.Close()
			w.streamCh <- nil
			return
		}
		w.streamCh <- &bufferedConn{Conn: conn, r: r}
	}
}

// writeHandoffFrame writes the length-prefixed handoff frame described
// in spec.md §6: one length byte, then 0x01, an 8-byte big-endian target
// length, the UTF-8 target bytes, and a trailing 0x02.
func writeHandoffFrame(w net.Conn, target string) error {
	body := make([]byte, 0, 10+len(target))
	body = append(body, 0x01)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(target)))
	body = append(body, lenBuf[:]...)
	body = append(body, target...)
	body = append(body, 0x02)

	if len(body) > handoffMaxFrameLen {
		return ErrMalformedHandoff
	}

	frame := make([]byte, 0, 1+len(body))
	frame = append(frame, byte(len(body)))
	frame = append(frame, body...)

	_, err := w.Write(frame)
	return err
}
