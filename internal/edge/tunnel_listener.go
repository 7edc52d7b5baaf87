package edge

import (
	"net"

	"github.com/halcyonlabs/revtun/internal/haproxy"
	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// TunnelListener is one TCP listener per active tunnel, bound to an
// ephemeral port. On accept it resolves a downstream leg (by dialing in
// Reverse mode, or by consuming a parked worker in HolePunch mode),
// optionally frames the connection with a PROXY header, then hands both
// halves to the splicer.
type TunnelListener struct {
	logger rpshare.Logger
	state  *State

	secretToken string
	name        string
	target      string
	protocol    Protocol
	mode        Mode

	stats rpshare.ConnStats
}

// NewTunnelListener builds a TunnelListener. Start must be called to
// bind and begin accepting.
func NewTunnelListener(logger rpshare.Logger, state *State, secretToken, name, target string, protocol Protocol, mode Mode) *TunnelListener {
	return &TunnelListener{
		logger:      logger.Fork("tunnel[%s]", name),
		state:       state,
		secretToken: secretToken,
		name:        name,
		target:      target,
		protocol:    protocol,
		mode:        mode,
	}
}

// bindAddr is the address Start binds to. A var rather than a constant
// so tests can force a bind failure by pointing it at an address
// already held by another listener.
var bindAddr = "0.0.0.0:0"

// Start binds bindAddr and spawns the accept loop. It returns the
// assigned port and a stop channel the caller (the listener manager)
// closes to tear the listener down. Returns ErrBindFailed if the bind
// fails.
func (t *TunnelListener) Start() (uint16, chan struct{}, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		t.logger.ELogf("bind failed: %s", err)
		return 0, nil, ErrBindFailed
	}
	stop := make(chan struct{})
	go func() {
		<-stop
		ln.Close()
	}()
	go t.acceptLoop(ln, stop)
	return uint16(ln.Addr().(*net.TCPAddr).Port), stop, nil
}

func (t *TunnelListener) acceptLoop(ln net.Listener, stop chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
				t.logger.ELogf("accept: %s", err)
				return
			}
		}
		go t.handleConn(conn)
	}
}

func (t *TunnelListener) handleConn(pub net.Conn) {
	n := t.stats.New()
	t.stats.Open()
	defer t.stats.Close()
	t.logger.DLogf("accepted connection %d from %s, stats=%s", n, pub.RemoteAddr(), &t.stats)

	switch t.mode {
	case ModeReverse:
		t.handleReverse(pub)
	case ModeHolePunch:
		t.handleHolePunch(pub)
	default:
		t.logger.ELogf("unknown mode %q, closing", t.mode)
		pub.Close()
	}
}

func (t *TunnelListener) handleReverse(pub net.Conn) {
	priv, err := net.Dial("tcp", t.target)
	if err != nil {
		t.logger.ELogf("dial %s: %s", t.target, err)
		pub.Close()
		return
	}
	t.frameAndSplice(pub, priv, priv.RemoteAddr())
}

func (t *TunnelListener) handleHolePunch(pub net.Conn) {
	w, ok := t.state.PickWorker(t.secretToken)
	if !ok {
		t.logger.ELogf("holepunch: no parked workers, closing connection from %s", pub.RemoteAddr())
		pub.Close()
		return
	}
	w.Handoff(t.target)
	priv := <-w.streamCh
	if priv == nil {
		t.logger.ELogf("holepunch: worker handoff failed, closing connection from %s", pub.RemoteAddr())
		pub.Close()
		return
	}
	var dst net.Addr
	if dstAddr, err := net.ResolveTCPAddr("tcp4", t.target); err != nil {
		t.logger.ELogf("holepunch: resolve target %s: %s", t.target, err)
	} else {
		dst = dstAddr
	}
	t.frameAndSplice(pub, priv, dst)
}

func (t *TunnelListener) frameAndSplice(pub, priv net.Conn, dst net.Addr) {
	if t.protocol != ProtocolTCP {
		srcAddr, srcOK := pub.RemoteAddr().(*net.TCPAddr)
		dstAddr, dstOK := dst.(*net.TCPAddr)
		if !srcOK || !dstOK {
			t.logger.ELogf("proxy header: non-IPv4 endpoint, skipping header")
		} else {
			header, err := t.encodeHeader(srcAddr, dstAddr)
			if err != nil {
				t.logger.ELogf("proxy header: %s", err)
			} else if _, err := priv.Write(header); err != nil {
				t.logger.ELogf("proxy header: write: %s", err)
			}
		}
	}
	rpshare.SpliceLogged(t.logger, t.name, pub, priv)
}

func (t *TunnelListener) encodeHeader(src, dst *net.TCPAddr) ([]byte, error) {
	switch t.protocol {
	case ProtocolHAProxyV1:
		return haproxy.EncodeV1(src, dst)
	case ProtocolHAProxyV2:
		return haproxy.EncodeV2(src, dst)
	default:
		return nil, nil
	}
}
