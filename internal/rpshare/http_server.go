package rpshare

import (
	"context"
	"net"
	"net/http"
)

// HTTPServer wraps net/http.Server with the ShutdownHelper lifecycle, the
// way the teacher wraps its websocket-upgrading control server. The edge
// control-plane API server embeds this.
type HTTPServer struct {
	ShutdownHelper
	*http.Server
	listener net.Listener
}

// NewHTTPServer creates a new HTTPServer.
func NewHTTPServer(logger Logger) *HTTPServer {
	h := &HTTPServer{Server: &http.Server{}}
	h.InitShutdownHelper(logger, h)
	return h
}

// HandleOnceShutdown implements OnceShutdownHandler.
func (h *HTTPServer) HandleOnceShutdown(completionErr error) error {
	h.DLogf("HandleOnceShutdown")
	err := h.listener.Close()
	if err != nil {
		h.DLogf("HTTPServer: close of listener failed, ignoring: %s", err)
	}
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// ListenAndServe binds addr and serves handler until ctx is cancelled or
// Shutdown/Close is called. Returns after the server has shut down.
func (h *HTTPServer) ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	err := h.DoOnceActivate(func() error {
		h.ShutdownOnContext(ctx)

		l, err := net.Listen("tcp", addr)
		if err != nil {
			return h.Errorf("listen failed: %s", err)
		}
		h.Handler = handler
		h.listener = l

		go func() {
			h.Shutdown(h.Serve(l))
		}()

		return nil
	}, true)
	if err == nil {
		err = h.WaitShutdown()
	}
	return err
}

// Shutdown resolves the ambiguity between http.Server.Shutdown and
// ShutdownHelper.Shutdown in favor of the lifecycle helper: it initiates
// shutdown, waits for it to complete, then returns the final status.
func (h *HTTPServer) Shutdown(completionError error) error {
	return h.ShutdownHelper.Shutdown(completionError)
}

// Close resolves the ambiguity between http.Server.Close and
// ShutdownHelper.Close in favor of the lifecycle helper.
func (h *HTTPServer) Close() error {
	return h.ShutdownHelper.Close()
}
