package edge

import "errors"

// Sentinel errors for the edge's control-plane and data-plane error
// taxonomy. Control-plane callers map these to HTTP statuses; data-plane
// callers only ever log them.
var (
	// ErrUnknownSecret is returned when a bearer token (control API) or a
	// worker-channel secret line does not match any configured secret.
	ErrUnknownSecret = errors.New("edge: unknown secret")

	// ErrQuotaExceeded is returned by State.CreateTunnel when the secret
	// already has max_tunnels active tunnels.
	ErrQuotaExceeded = errors.New("edge: too many tunnels")

	// ErrBindFailed is returned when a tunnel listener could not reserve
	// an ephemeral port.
	ErrBindFailed = errors.New("edge: failed to reserve port")

	// ErrChannelSend is returned when a message to the listener manager
	// could not be delivered (its receive loop has exited).
	ErrChannelSend = errors.New("edge: failed to request tunnel creation")

	// ErrNoSuchTunnel is returned when delete_edge names a target the
	// secret does not currently have a tunnel for.
	ErrNoSuchTunnel = errors.New("edge: no such tunnel")

	// ErrMalformedHandoff marks a protocol error in the handoff frame
	// written to a parked worker; only used internally for logging.
	ErrMalformedHandoff = errors.New("edge: malformed handoff frame")
)
