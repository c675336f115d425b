// Package hostlink implements the master side of the Omron Host Link
// (C-mode) serial protocol: area read/write command frames, FCS
// checking, multi-frame segmentation and a per-channel request
// lifecycle with timeouts.
package hostlink

import (
	"fmt"
)

const (
	// control bytes
	beginMarker byte = 0x40 // '@'
	terminator  byte = 0x2a // '*'
	delimiter   byte = 0x0d // CR

	// longest physical frame accepted by the controller, control bytes included
	maxFrameLength int = 131

	// '@' + unit number (2) + header (2) + FCS (2) + terminator + delimiter
	frameOverhead int = 9
	// '@' + unit number (2) + header (2) + FCS (2) + delimiter
	minFrameLength int = 8

	unitNoLength        int = 2
	headerLength        int = 2
	fcsLength           int = 2
	endCodeLength       int = 2
	bankLength          int = 2
	beginningWordLength int = 4
	wordCountLength     int = 4

	// highest unit number on a multidrop link
	maxUnitNo uint8 = 31

	endCodeNormal string = "00"

	// header sent back by the controller when it does not understand a command
	headerInvalidCommand string = "IC"
)

type Error string

// Error implements the error interface.
func (he Error) Error() (s string) {
	s = string(he)
	return
}

const (
	ErrConfigurationError Error = "configuration error"
	ErrUnknownArea        Error = "unknown memory area"
	ErrOutOfRange         Error = "value out of range"
	ErrMalformedFrame     Error = "malformed frame"
	ErrChecksumMismatch   Error = "fcs mismatch"
	ErrMalformedPayload   Error = "malformed payload"
	ErrSequence           Error = "frame sequence error"
	ErrChannelBusy        Error = "channel busy"
	ErrRequestTimedOut    Error = "request timed out"
	ErrNotConnected       Error = "channel not connected"
	ErrUnknownChannel     Error = "unknown channel"
	ErrProtocolError      Error = "protocol error"
	ErrInvalidCommand     Error = "command not recognized by controller"
)

// ConstructionError is returned when a command cannot be built because one
// of its fields falls outside the range allowed for its memory area.
// It wraps ErrOutOfRange.
type ConstructionError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (ce *ConstructionError) Error() string {
	return fmt.Sprintf("%s: %s %d not in [%d, %d]", ErrOutOfRange, ce.Field, ce.Value, ce.Min, ce.Max)
}

func (ce *ConstructionError) Unwrap() error {
	return ErrOutOfRange
}

// EndCodeError carries a non-zero end code reported by the controller.
// End codes are controller-defined and passed through verbatim.
type EndCodeError struct {
	UnitNo  uint8
	Header  string
	EndCode string
}

func (ee *EndCodeError) Error() string {
	return fmt.Sprintf("controller fault: unit %02d, command %s, end code %s",
		ee.UnitNo, ee.Header, ee.EndCode)
}

// Unwrap lets errors.Is() match controller "invalid command" replies
// against ErrInvalidCommand.
func (ee *EndCodeError) Unwrap() (err error) {
	if ee.EndCode == headerInvalidCommand {
		err = ErrInvalidCommand
	}

	return
}

// checkRange fails with a ConstructionError unless lo <= value <= hi.
func checkRange(field string, value int, lo int, hi int) (err error) {
	if value < lo || value > hi {
		err = &ConstructionError{
			Field: field,
			Value: value,
			Min:   lo,
			Max:   hi,
		}
	}

	return
}
