// Package revtun holds version metadata shared by the edge and client
// binaries, matching original_source/edge/src/cli/mod.rs's --version flag.
package revtun

// Version is printed by both binaries' --version flag.
const Version = "0.1.0"
