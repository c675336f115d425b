package hostlink

import (
	"fmt"
)

// Returns how many items fit in one write frame. The first frame also
// carries the beginning word (and the bank for extended memory).
// The terminator byte is always accounted for so that capacity does not
// depend on whether the frame ends up being the final one.
func writeCapacity(ai areaInfo, first bool) (items int) {
	var chars = maxFrameLength - frameOverhead

	if first {
		chars -= beginningWordLength
		if ai.banked {
			chars -= bankLength
		}
	}
	items = chars / ai.charsPerItem()

	return
}

// Returns how many items the controller fits in one response frame.
// The first response frame also carries the end code.
func responseCapacity(ai areaInfo, first bool) (items int) {
	var chars = maxFrameLength - frameOverhead

	if first {
		chars -= endCodeLength
	}
	items = chars / ai.charsPerItem()

	return
}

// Splits an area write command into frames.
//
// First frame:        '@' UU HH [BB] WWWW DATA... FCS ['*'] CR
// Continuation frame: '@' UU HH DATA... FCS ['*'] CR
//
// Chunk order is the only valid transmission order. A command fitting in a
// single frame yields a one-frame, final sequence.
func splitAreaWrite(aw *AreaWrite) (fs FrameSequence, err error) {
	var ai areaInfo
	var rest []uint16
	var first = true

	err = validateCommand(aw.unitNo, aw.area, aw.bank, aw.beginningWord, len(aw.values))
	if err != nil {
		return
	}
	ai, _ = resolveArea(aw.area)

	rest = aw.values
	for len(rest) > 0 {
		var text []byte
		var n = writeCapacity(ai, first)

		if n > len(rest) {
			n = len(rest)
		}

		if first {
			if ai.banked {
				text = appendHex(text, uint(aw.bank), bankLength)
			}
			text = appendDecimal(text, int(aw.beginningWord), beginningWordLength)
		}
		text = appendItems(text, rest[:n], ai.addressing)
		rest = rest[n:]

		fs = append(fs, newFrame(aw.unitNo, ai.writeHeader, text, len(rest) == 0))
		first = false
	}

	return
}

// reassembler accumulates the frames of one multi-frame response, in
// arrival order, until the final frame is seen.
type reassembler struct {
	unitNo  uint8
	header  string
	endCode string
	text    []byte
	count   int
	final   bool
}

// add appends one received frame to the response being assembled.
func (r *reassembler) add(f Frame) (err error) {
	var unitNo uint8
	var text []byte

	if r.final {
		err = fmt.Errorf("%w: frame received after the final frame", ErrSequence)
		return
	}

	unitNo, err = f.unitNo()
	if err != nil {
		return
	}
	text = f.text()

	if r.count == 0 {
		r.unitNo = unitNo
		r.header = f.header()

		// IC replies carry no end code
		if r.header == headerInvalidCommand {
			r.endCode = headerInvalidCommand
		} else {
			if len(text) < endCodeLength {
				err = fmt.Errorf("%w: missing end code", ErrMalformedFrame)
				return
			}
			r.endCode = string(text[0:endCodeLength])
			text = text[endCodeLength:]
		}
	} else if unitNo != r.unitNo || f.header() != r.header {
		err = fmt.Errorf("%w: continuation frame for unit %02d/%s while assembling %02d/%s",
			ErrSequence, unitNo, f.header(), r.unitNo, r.header)
		return
	}

	r.text = append(r.text, text...)
	r.count++
	r.final = f.Final

	return
}

// response decodes the assembled response. It fails with ErrSequence if
// the final frame has not been received yet.
func (r *reassembler) response(addressing Addressing) (res *Response, err error) {
	if !r.final {
		err = fmt.Errorf("%w: response incomplete after %d frame(s)", ErrSequence, r.count)
		return
	}

	res, err = decodeResponse(r.unitNo, r.header, r.endCode, r.text, addressing)

	return
}

// reset prepares the reassembler for the next response.
func (r *reassembler) reset() {
	*r = reassembler{}

	return
}
