package rpshare

import (
	"io"
	"sync"

	"github.com/jpillora/sizestr"
)

// Splice concurrently copies in both directions between two socket-like
// objects, returning after all data has been copied and both a and b have
// been closed. This is the edge tunnel listener's and the client worker
// loop's sole data-plane primitive: one call per accepted/dialed
// connection pair. The tunnel listener runs it on the goroutine spawned
// per accepted connection; the client worker loop runs it inline and
// re-parks only after it returns.
func Splice(a io.ReadWriteCloser, b io.ReadWriteCloser) (sentAtoB int64, sentBtoA int64) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		sentBtoA, _ = io.Copy(a, b)
		if whc, ok := a.(WriteHalfCloser); ok {
			whc.CloseWrite()
		}
		wg.Done()
	}()
	go func() {
		sentAtoB, _ = io.Copy(b, a)
		if whc, ok := b.(WriteHalfCloser); ok {
			whc.CloseWrite()
		}
		wg.Done()
	}()
	wg.Wait()
	a.Close()
	b.Close()
	return sentAtoB, sentBtoA
}

// SpliceLogged runs Splice and logs the byte counts using the same
// human-readable byte-size formatting as the rest of the tunnel's
// diagnostics.
func SpliceLogged(l Logger, label string, a, b io.ReadWriteCloser) {
	sent, received := Splice(a, b)
	l.DLogf("%s: closed (sent %s, received %s)", label, sizestr.ToString(sent), sizestr.ToString(received))
}
