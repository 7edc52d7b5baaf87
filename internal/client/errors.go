package client

import "errors"

// ErrConfig marks a fatal startup failure: missing file, malformed
// TOML, or an unresolvable tunnel target. Per spec.md §7, ConfigError is
// always fatal at startup.
var ErrConfig = errors.New("client: configuration error")

// ErrUnauthorized is returned when the edge rejects the configured
// secret key.
var ErrUnauthorized = errors.New("client: edge server rejected secret key")
