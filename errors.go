package playback

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrDemux          = errors.New("demux error")
	ErrFormatMismatch = errors.New("format mismatch")
	ErrDecode         = errors.New("decode error")
	ErrStreamNotFound = errors.New("stream not found")

	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrInvalidMetadata   = errors.New("invalid container metadata")
	ErrClosed            = errors.New("engine closed")

	// ErrNeedMorePackets is returned by a decoder's Receive when it has no
	// output until it is sent more input.
	ErrNeedMorePackets = errors.New("decoder needs more packets")

	// ErrDecoderBusy is returned by a decoder that works asynchronously when
	// it cannot take input or has no output yet. The call should be retried
	// later with the same packet.
	ErrDecoderBusy = errors.New("decoder busy")
)

// DemuxError reports a container that could not be opened or read.
type DemuxError struct {
	Op  string // "open", "read", "metadata", ...
	Err error
}

func (e *DemuxError) Error() string { return fmt.Sprintf("demux %s: %v", e.Op, e.Err) }
func (e *DemuxError) Unwrap() error { return e.Err }
func (e *DemuxError) Is(target error) bool {
	return target == ErrDemux
}

// FormatMismatchError reports a decoded picture whose dimensions differ
// from the container metadata.
type FormatMismatchError struct {
	WantWidth, WantHeight int
	GotWidth, GotHeight   int
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("format mismatch: decoded %dx%d, metadata says %dx%d",
		e.GotWidth, e.GotHeight, e.WantWidth, e.WantHeight)
}
func (e *FormatMismatchError) Is(target error) bool { return target == ErrFormatMismatch }

// DecodeError reports a decoder failure. It is fatal for its pipeline.
type DecodeError struct {
	Stream StreamID
	Err    error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Stream, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// StreamNotFoundError reports a container lacking a required stream.
type StreamNotFoundError struct {
	Stream StreamID
	Reason string
}

func (e *StreamNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s stream not found", e.Stream)
	}
	return fmt.Sprintf("%s stream not found: %s", e.Stream, e.Reason)
}
func (e *StreamNotFoundError) Is(target error) bool { return target == ErrStreamNotFound }
