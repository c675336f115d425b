package hostlink

import (
	"fmt"
)

const (
	hexTable = "0123456789ABCDEF"
)

// Appends v as a zero-padded decimal field of the given width.
func appendDecimal(out []byte, v int, width int) []byte {
	return append(out, fmt.Sprintf("%0*d", width, v)...)
}

// Appends v as a zero-padded uppercase hexadecimal field of the given width.
func appendHex(out []byte, v uint, width int) []byte {
	return append(out, fmt.Sprintf("%0*X", width, v)...)
}

// Appends items in their on-wire form: 4 hex digits per word, or a single
// 0/1 digit per flag for bit-addressed areas.
func appendItems(out []byte, values []uint16, addressing Addressing) []byte {
	for _, v := range values {
		if addressing == BIT_ADDRESSING {
			out = append(out, hexTable[v&0x1])
		} else {
			out = append(out,
				hexTable[(v>>12)&0xf], hexTable[(v>>8)&0xf],
				hexTable[(v>>4)&0xf], hexTable[v&0xf])
		}
	}

	return out
}

// Parses a fixed-width decimal field. Only digits are accepted.
func parseDecimal(in []byte) (v int, err error) {
	if len(in) == 0 {
		err = ErrMalformedFrame
		return
	}

	for _, c := range in {
		if c < '0' || c > '9' {
			err = fmt.Errorf("%w: non-decimal character %q", ErrMalformedFrame, c)
			return
		}
		v = v*10 + int(c-'0')
	}

	return
}

// Decodes a sequence of 4-hex-digit words, preserving order.
func decodeWords(in []byte) (out []uint16, err error) {
	var nibble byte

	if len(in)%4 != 0 {
		err = fmt.Errorf("%w: %d characters is not a whole number of words",
			ErrMalformedPayload, len(in))
		return
	}

	out = make([]uint16, 0, len(in)/4)
	for i := 0; i < len(in); i += 4 {
		var word uint16

		for _, c := range in[i : i+4] {
			nibble, err = hexNibble(c)
			if err != nil {
				out = nil
				return
			}
			word = word<<4 | uint16(nibble)
		}
		out = append(out, word)
	}

	return
}

// Decodes one 0/1 digit per flag.
func decodeFlags(in []byte) (out []uint16, err error) {
	out = make([]uint16, 0, len(in))
	for _, c := range in {
		switch c {
		case '0':
			out = append(out, 0)
		case '1':
			out = append(out, 1)
		default:
			err = fmt.Errorf("%w: invalid flag character %q", ErrMalformedPayload, c)
			out = nil
			return
		}
	}

	return
}

// Accepts both upper and lowercase hex digits.
func hexNibble(c byte) (n byte, err error) {
	switch {
	case c >= '0' && c <= '9':
		n = c - '0'
	case c >= 'A' && c <= 'F':
		n = c - 'A' + 10
	case c >= 'a' && c <= 'f':
		n = c - 'a' + 10
	default:
		err = fmt.Errorf("%w: non-hex character %q", ErrMalformedPayload, c)
	}

	return
}
