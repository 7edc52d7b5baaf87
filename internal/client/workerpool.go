package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// WorkerPool runs cfg.IdleWorkers long-lived goroutines, each
// continuously parking a connection on the edge's worker port and
// splicing it to the target once assigned, per spec.md §4.6. Grounded
// on share/client.go's connectionLoop for the dial/backoff/reconnect
// shape and on original_source/client/src/worker.rs for the exact
// handoff-frame byte parsing.
type WorkerPool struct {
	logger    rpshare.Logger
	edgeAddr  string
	secret    string
	idleCount int
	nextID    int

	group *errgroup.Group
}

// NewWorkerPool builds a pool that dials edgeAddr (host:workerPort) and
// authenticates with secret.
func NewWorkerPool(logger rpshare.Logger, edgeAddr, secret string, idleCount int) *WorkerPool {
	return &WorkerPool{
		logger:    logger.Fork("workers"),
		edgeAddr:  edgeAddr,
		secret:    secret,
		idleCount: idleCount,
	}
}

// Run fans out the idle worker goroutines with errgroup. Each worker
// logs and backs off on failures and keeps reconnecting; it returns
// (with a nil error) only once ctx is cancelled. Run returns
// immediately; call Wait to block until every worker has stopped.
func (p *WorkerPool) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	for i := 0; i < p.idleCount; i++ {
		id := p.nextID
		p.nextID++
		g.Go(func() error {
			return p.loop(gctx, id)
		})
	}
}

// Wait blocks until every worker goroutine started by Run has returned,
// and returns the first non-context-cancellation error among them, if
// any.
func (p *WorkerPool) Wait() error {
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

func (p *WorkerPool) loop(ctx context.Context, id int) error {
	b := &backoff.Backoff{Max: 30 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := p.runOnce(ctx, id)
		if err == nil {
			b.Reset()
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		p.logger.ELogf("worker #%d: %s", id, err)

		d := b.Duration()
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil
		}
	}
}

// runOnce parks one connection, waits for a handoff, and splices it to
// the target. Returns nil only after a full splice cycle completes
// cleanly; any dial/protocol failure is returned for the caller to log
// and back off on.
func (p *WorkerPool) runOnce(ctx context.Context, id int) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", p.edgeAddr)
	if err != nil {
		return fmt.Errorf("dial edge: %w", err)
	}

	if _, err := conn.Write([]byte(p.secret + "\n")); err != nil {
		conn.Close()
		return fmt.Errorf("send secret: %w", err)
	}

	target, err := readHandoffFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handoff: %w", err)
	}

	p.logger.DLogf("worker #%d assigned to %s", id, target)

	server, err := net.Dial("tcp", target)
	if err != nil {
		conn.Close()
		return fmt.Errorf("dial target %s: %w", target, err)
	}

	rpshare.SpliceLogged(p.logger, fmt.Sprintf("worker#%d", id), conn, server)
	return nil
}

// readHandoffFrame reads and validates the length-prefixed handoff
// frame described in spec.md §6: one length byte, then 0x01, an 8-byte
// big-endian target length, the UTF-8 target bytes, and a trailing
// 0x02.
func readHandoffFrame(r io.Reader) (string, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return "", err
	}

	frame := make([]byte, lenByte[0])
	if _, err := io.ReadFull(r, frame); err != nil {
		return "", err
	}

	if len(frame) < 10 || frame[0] != 0x01 || frame[len(frame)-1] != 0x02 {
		return "", fmt.Errorf("malformed handoff frame")
	}

	targetLen := binary.BigEndian.Uint64(frame[1:9])
	if 9+targetLen != uint64(len(frame))-1 {
		return "", fmt.Errorf("handoff frame length mismatch")
	}

	return string(frame[9 : 9+targetLen]), nil
}
