// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawPacket is one captured frame handed from a source reader to the event loop.
type RawPacket struct {
	Data       []byte    // Captured bytes, owned by the receiver
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Captured length
	OrigLen    uint32    // Original frame length on the wire
}

// MicroTime converts a capture timestamp to microseconds since the epoch (per-packet records).
func MicroTime(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

// MilliTime converts a wall clock time to milliseconds since the epoch (periodic records).
func MilliTime(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
