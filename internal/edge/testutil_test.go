package edge

import (
	"context"
	"testing"
)

// testContext returns a context cancelled automatically at the end of
// the test, so components started with it (the listener manager) tear
// down cleanly without an explicit Shutdown call.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
