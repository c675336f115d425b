package hostlink

import (
	"fmt"
)

// Frame is one physical Host Link frame.
// Payload holds the text between the begin marker and the FCS: unit
// number, header and command/response fields. The FCS is derived when
// the frame is rendered and never stored.
type Frame struct {
	Final   bool
	Payload []byte
}

// FrameSequence is an ordered list of frames making up one logical
// command or response. Only the last frame is final.
type FrameSequence []Frame

// Bytes renders the frame in its on-wire form:
// '@', payload, FCS (2 hex chars), '*' (final frames only), CR.
func (f Frame) Bytes() (out []byte) {
	var sum fcs

	out = make([]byte, 0, len(f.Payload)+frameOverhead-unitNoLength-headerLength)
	out = append(out, beginMarker)
	out = append(out, f.Payload...)

	// the FCS covers everything from the begin marker to the last text byte
	sum.init()
	sum.add(out)
	out = append(out, sum.value()...)

	if f.Final {
		out = append(out, terminator)
	}
	out = append(out, delimiter)

	return
}

// Returns the unit number field of the frame.
func (f Frame) unitNo() (unitNo uint8, err error) {
	var v int

	if len(f.Payload) < unitNoLength+headerLength {
		err = ErrMalformedFrame
		return
	}

	v, err = parseDecimal(f.Payload[0:unitNoLength])
	if err != nil {
		return
	}
	if v > int(maxUnitNo) {
		err = fmt.Errorf("%w: unit number %d", ErrMalformedFrame, v)
		return
	}
	unitNo = uint8(v)

	return
}

// Returns the header field of the frame.
func (f Frame) header() (h string) {
	if len(f.Payload) >= unitNoLength+headerLength {
		h = string(f.Payload[unitNoLength : unitNoLength+headerLength])
	}

	return
}

// Returns the text following the unit number and header.
func (f Frame) text() (t []byte) {
	if len(f.Payload) > unitNoLength+headerLength {
		t = f.Payload[unitNoLength+headerLength:]
	}

	return
}

// Builds a frame out of its fields.
func newFrame(unitNo uint8, header string, text []byte, final bool) (f Frame) {
	f.Final = final
	f.Payload = make([]byte, 0, unitNoLength+headerLength+len(text))
	f.Payload = appendDecimal(f.Payload, int(unitNo), unitNoLength)
	f.Payload = append(f.Payload, header...)
	f.Payload = append(f.Payload, text...)

	return
}

// Encodes an area read command. A read command always fits in a single
// frame, hence the frame is always final.
//
//	'@' UU HH [BB] WWWW CCCC FCS '*' CR
//
// with UU the unit number, HH the read header, BB the EM bank (hex,
// extended memory only), WWWW the beginning word and CCCC the count.
func encodeAreaRead(ar *AreaRead) (f Frame, err error) {
	var ai areaInfo
	var text []byte

	err = validateCommand(ar.unitNo, ar.area, ar.bank, ar.beginningWord, int(ar.wordCount))
	if err != nil {
		return
	}
	ai, _ = resolveArea(ar.area)

	if ai.banked {
		text = appendHex(text, uint(ar.bank), bankLength)
	}
	text = appendDecimal(text, int(ar.beginningWord), beginningWordLength)
	text = appendDecimal(text, int(ar.wordCount), wordCountLength)

	f = newFrame(ar.unitNo, ai.readHeader, text, true)

	return
}

// Encodes an area write command into as many frames as needed.
func encodeAreaWrite(aw *AreaWrite) (fs FrameSequence, err error) {
	fs, err = splitAreaWrite(aw)

	return
}

// Parses one physical frame, checking its markers and FCS.
// raw must hold exactly one frame, delimiter included.
func decodeFrame(raw []byte) (f Frame, err error) {
	var sum fcs
	var end int

	if len(raw) < minFrameLength {
		err = fmt.Errorf("%w: %d bytes is shorter than the minimum frame length",
			ErrMalformedFrame, len(raw))
		return
	}

	if raw[0] != beginMarker {
		err = fmt.Errorf("%w: missing begin marker", ErrMalformedFrame)
		return
	}

	if raw[len(raw)-1] != delimiter {
		err = fmt.Errorf("%w: missing delimiter", ErrMalformedFrame)
		return
	}

	// end points right past the FCS field
	end = len(raw) - 1
	if raw[end-1] == terminator {
		f.Final = true
		end--
	}

	// room for the begin marker, unit number and header before the FCS
	if end-fcsLength < 1+unitNoLength+headerLength {
		err = fmt.Errorf("%w: frame too short", ErrMalformedFrame)
		return
	}

	sum.init()
	sum.add(raw[0 : end-fcsLength])
	if !sum.isEqual(raw[end-2], raw[end-1]) {
		err = fmt.Errorf("%w: computed %s, received %q",
			ErrChecksumMismatch, sum.value(), raw[end-fcsLength:end])
		return
	}

	f.Payload = append([]byte(nil), raw[1:end-fcsLength]...)

	return
}
