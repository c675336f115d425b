package hostlink

import (
	"fmt"
)

// fcs is the Host Link frame check sequence: a running XOR over every
// byte from the begin marker through the last text byte.
type fcs struct {
	fcs byte
}

func (f *fcs) init() {
	f.fcs = 0x00

	return
}

func (f *fcs) add(in []byte) {
	for _, b := range in {
		f.fcs ^= b
	}

	return
}

// value returns the FCS as the two uppercase hex characters sent on the wire.
func (f *fcs) value() (out []byte) {
	out = []byte(fmt.Sprintf("%02X", f.fcs))

	return
}

// isEqual compares the FCS against the two characters received on the wire.
// Lowercase hex digits are not accepted.
func (f *fcs) isEqual(high byte, low byte) (ok bool) {
	var expected = f.value()

	ok = expected[0] == high && expected[1] == low

	return
}
