// Package util provides logging, statistics and other shared helpers.
package util

import "hash/fnv"

// SessionTag computes a 4-byte hash of a session identifier. Session ids are
// long UUID strings; the tag keeps per-session log lines short while still
// being stable for the lifetime of the session.
func SessionTag(sessionID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return h.Sum32()
}
