package rpshare

// WriteHalfCloser is implemented by bidirectional streams that support
// CloseWrite(), e.g. *net.TCPConn. Splice uses this to propagate EOF in
// one direction without tearing down the other.
type WriteHalfCloser interface {
	// CloseWrite shuts down the write half of the stream: no further
	// writes are possible, but reads remain active. Corresponds to
	// net.TCPConn.CloseWrite().
	CloseWrite() error
}
