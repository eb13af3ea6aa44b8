// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Packet parsing errors, resolved inside the packet callback
	ErrTruncatedPacket = errors.New("hsprobe: truncated packet")
	ErrUnknownProtocol = errors.New("hsprobe: unknown protocol")
	ErrEmptySelection  = errors.New("hsprobe: empty selection")

	// Exporter rejected a record or a flush
	ErrExportFailure = errors.New("hsprobe: export failure")

	// Unknown template, hash or selection name, malformed console command
	ErrConfigInvalid = errors.New("hsprobe: invalid configuration")

	// Capture source errors
	ErrFilterUnsupported = errors.New("hsprobe: filter not supported by source")
	ErrSourceClosed      = errors.New("hsprobe: source closed")
)
