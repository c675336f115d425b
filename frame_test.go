package hostlink

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
)

// Renders text as an on-wire frame, with a freshly computed FCS.
// text starts with the begin marker.
func testFrame(text string, final bool) (out []byte) {
	var sum byte

	for i := 0; i < len(text); i++ {
		sum ^= text[i]
	}

	out = []byte(fmt.Sprintf("%s%02X", text, sum))
	if final {
		out = append(out, '*')
	}
	out = append(out, '\r')

	return
}

func TestEncodeAreaRead(t *testing.T) {
	var ar *AreaRead
	var f Frame
	var err error

	ar, err = NewAreaRead(0, CIO, 0, 0, 1)
	if err != nil {
		t.Fatalf("NewAreaRead() should have succeeded, got %v", err)
	}

	f, err = encodeAreaRead(ar)
	if err != nil {
		t.Fatalf("encodeAreaRead() should have succeeded, got %v", err)
	}
	if !f.Final {
		t.Errorf("read frames should always be final")
	}
	if string(f.Bytes()) != "@00RR0000000141*\r" {
		t.Errorf("unexpected frame %q", f.Bytes())
	}

	ar, err = NewAreaRead(1, DM, 0, 100, 2)
	if err != nil {
		t.Fatalf("NewAreaRead() should have succeeded, got %v", err)
	}
	f, err = encodeAreaRead(ar)
	if err != nil {
		t.Fatalf("encodeAreaRead() should have succeeded, got %v", err)
	}
	if string(f.Bytes()) != "@01RD0100000254*\r" {
		t.Errorf("unexpected frame %q", f.Bytes())
	}

	// extended memory carries the bank as 2 hex digits right after the header
	ar, err = NewAreaRead(0, ExtendedMemory, 3, 100, 2)
	if err != nil {
		t.Fatalf("NewAreaRead() should have succeeded, got %v", err)
	}
	f, err = encodeAreaRead(ar)
	if err != nil {
		t.Fatalf("encodeAreaRead() should have succeeded, got %v", err)
	}
	if string(f.Bytes()) != string(testFrame("@00RE0301000002", true)) {
		t.Errorf("unexpected frame %q", f.Bytes())
	}

	ar, err = NewAreaRead(31, ExtendedMemory, 12, 0, 1)
	if err != nil {
		t.Fatalf("NewAreaRead() should have succeeded, got %v", err)
	}
	f, err = encodeAreaRead(ar)
	if err != nil {
		t.Fatalf("encodeAreaRead() should have succeeded, got %v", err)
	}
	if string(f.Bytes()) != string(testFrame("@31RE0C00000001", true)) {
		t.Errorf("unexpected frame %q", f.Bytes())
	}

	return
}

func TestAreaReadHeaders(t *testing.T) {
	for _, tc := range []struct {
		area   Area
		header string
	}{
		{CIO, "RR"},
		{LR, "RL"},
		{HR, "RH"},
		{TimerCounterPV, "RC"},
		{TimerCounterStatus, "RG"},
		{DM, "RD"},
		{AuxiliaryArea, "RJ"},
		{ExtendedMemory, "RE"},
	} {
		var ar *AreaRead
		var f Frame
		var err error

		ar, err = NewAreaRead(5, tc.area, 0, 0, 1)
		if err != nil {
			t.Errorf("%s: NewAreaRead() should have succeeded, got %v", tc.area, err)
			continue
		}

		f, err = encodeAreaRead(ar)
		if err != nil {
			t.Errorf("%s: encodeAreaRead() should have succeeded, got %v", tc.area, err)
			continue
		}
		if f.header() != tc.header {
			t.Errorf("%s: expected header %s, got %s", tc.area, tc.header, f.header())
		}
		if ar.header() != tc.header {
			t.Errorf("%s: expected response header %s, got %s", tc.area, tc.header, ar.header())
		}
	}

	return
}

func TestCommandBoundaries(t *testing.T) {
	var err error
	var ce *ConstructionError

	for _, tc := range []struct {
		area     Area
		maxAddr  uint16
		maxCount uint16
	}{
		{CIO, 6143, 6144},
		{LR, 199, 200},
		{HR, 511, 512},
		{TimerCounterPV, 4095, 4096},
		{TimerCounterStatus, 4095, 4096},
		{DM, 9999, 9999},
		{AuxiliaryArea, 959, 960},
		{ExtendedMemory, 9999, 9999},
	} {
		// the last address and the largest count are both valid
		_, err = NewAreaRead(1, tc.area, 0, tc.maxAddr, 1)
		if err != nil {
			t.Errorf("%s: reading address %v should have succeeded, got %v", tc.area, tc.maxAddr, err)
		}

		_, err = NewAreaRead(1, tc.area, 0, 0, tc.maxCount)
		if err != nil {
			t.Errorf("%s: reading %v items should have succeeded, got %v", tc.area, tc.maxCount, err)
		}

		// one past either bound is not
		_, err = NewAreaRead(1, tc.area, 0, tc.maxAddr+1, 1)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: expected ErrOutOfRange for address %v, got %v", tc.area, tc.maxAddr+1, err)
		}

		_, err = NewAreaRead(1, tc.area, 0, 0, tc.maxCount+1)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: expected ErrOutOfRange for count %v, got %v", tc.area, tc.maxCount+1, err)
		}

		_, err = NewAreaRead(1, tc.area, 0, 0, 0)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: expected ErrOutOfRange for a zero count, got %v", tc.area, err)
		}

		if m, _ := tc.area.MaxAddress(); m != tc.maxAddr {
			t.Errorf("%s: expected max address %v, got %v", tc.area, tc.maxAddr, m)
		}
		if m, _ := tc.area.MaxQuantity(); m != tc.maxCount {
			t.Errorf("%s: expected max quantity %v, got %v", tc.area, tc.maxCount, m)
		}
	}

	// unit numbers go from 0 to 31
	_, err = NewAreaRead(31, DM, 0, 0, 1)
	if err != nil {
		t.Errorf("unit 31 should have been accepted, got %v", err)
	}
	_, err = NewAreaRead(32, DM, 0, 0, 1)
	if !errors.As(err, &ce) {
		t.Fatalf("expected a ConstructionError, got %v", err)
	}
	if ce.Field != "unit number" || ce.Value != 32 || ce.Min != 0 || ce.Max != 31 {
		t.Errorf("unexpected construction error %+v", ce)
	}

	// only extended memory is banked
	_, err = NewAreaRead(0, DM, 1, 0, 1)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for a DM bank, got %v", err)
	}
	_, err = NewAreaRead(0, ExtendedMemory, 13, 0, 1)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for EM bank 13, got %v", err)
	}

	_, err = NewAreaRead(0, Area(42), 0, 0, 1)
	if !errors.Is(err, ErrUnknownArea) {
		t.Errorf("expected ErrUnknownArea, got %v", err)
	}

	_, err = NewAreaWrite(0, DM, 0, 0, nil)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for an empty write, got %v", err)
	}

	// flags only take 0 or 1
	_, err = NewAreaWrite(0, TimerCounterStatus, 0, 0, []uint16{0, 1, 2})
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for a flag value of 2, got %v", err)
	}

	return
}

func TestParseArea(t *testing.T) {
	var a Area
	var err error

	for _, tc := range []struct {
		name string
		area Area
	}{
		{"CIO", CIO},
		{"dm", DM},
		{"TC PV", TimerCounterPV},
		{"tcpv", TimerCounterPV},
		{"TCstatus", TimerCounterStatus},
		{"ar", AuxiliaryArea},
		{"EM", ExtendedMemory},
	} {
		a, err = ParseArea(tc.name)
		if err != nil {
			t.Errorf("ParseArea(%q) should have succeeded, got %v", tc.name, err)
		}
		if a != tc.area {
			t.Errorf("ParseArea(%q): expected %s, got %s", tc.name, tc.area, a)
		}
	}

	_, err = ParseArea("XX")
	if !errors.Is(err, ErrUnknownArea) {
		t.Errorf("expected ErrUnknownArea, got %v", err)
	}

	return
}

func TestDecodeFrame(t *testing.T) {
	var f Frame
	var err error
	var unitNo uint8

	// final frame
	f, err = decodeFrame([]byte("@00RR001243*\r"))
	if err != nil {
		t.Fatalf("decodeFrame() should have succeeded, got %v", err)
	}
	if !f.Final {
		t.Errorf("frame should have been final")
	}
	if string(f.Payload) != "00RR0012" {
		t.Errorf("unexpected payload %q", f.Payload)
	}
	unitNo, err = f.unitNo()
	if err != nil || unitNo != 0 {
		t.Errorf("expected unit 0, got %v (%v)", unitNo, err)
	}
	if f.header() != "RR" {
		t.Errorf("expected header RR, got %s", f.header())
	}
	if string(f.text()) != "0012" {
		t.Errorf("expected text \"0012\", got %q", f.text())
	}

	// non-final frame
	f, err = decodeFrame([]byte("@00RR00000040\r"))
	if err != nil {
		t.Fatalf("decodeFrame() should have succeeded, got %v", err)
	}
	if f.Final {
		t.Errorf("frame should not have been final")
	}

	// bad FCS
	_, err = decodeFrame([]byte("@00RR001244*\r"))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}

	// lowercase FCS
	_, err = decodeFrame([]byte("@01RD00123456785f*\r"))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}

	for _, raw := range []string{
		"",
		"\r",
		"@00RR4\r",       // too short
		"00RR001243*\r",  // missing begin marker
		"@00RR001243*",   // missing delimiter
		"@00RR001243*\n", // wrong delimiter
		"@00R77*\r",      // no room for the header
	} {
		_, err = decodeFrame([]byte(raw))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("decodeFrame(%q): expected ErrMalformedFrame, got %v", raw, err)
		}
	}

	return
}

func TestFrameRoundTrip(t *testing.T) {
	var in Frame
	var out Frame
	var err error

	for _, final := range []bool{true, false} {
		in = newFrame(17, "WD", []byte("01001234ABCD"), final)

		out, err = decodeFrame(in.Bytes())
		if err != nil {
			t.Errorf("decodeFrame() should have succeeded, got %v", err)
			continue
		}
		if out.Final != final {
			t.Errorf("expected final %v, got %v", final, out.Final)
		}
		if string(out.Payload) != "17WD01001234ABCD" {
			t.Errorf("unexpected payload %q", out.Payload)
		}
	}

	return
}

func TestAreaReadRoundTrip(t *testing.T) {
	var ar *AreaRead
	var f Frame
	var out Frame
	var text []byte
	var ai areaInfo
	var unitNo uint8
	var bank uint64
	var begin int
	var count int
	var err error

	for _, tc := range []struct {
		unitNo uint8
		area   Area
		bank   uint8
	}{
		{0, CIO, 0},
		{1, LR, 0},
		{7, HR, 0},
		{12, TimerCounterPV, 0},
		{20, TimerCounterStatus, 0},
		{31, DM, 0},
		{3, AuxiliaryArea, 0},
		{0, ExtendedMemory, 0},
		{31, ExtendedMemory, 12},
	} {
		ai, _ = resolveArea(tc.area)

		// first item, then the last address and the largest count
		for _, span := range [][2]uint16{{0, 1}, {ai.maxAddress, ai.maxQuantity}} {
			ar, err = NewAreaRead(tc.unitNo, tc.area, tc.bank, span[0], span[1])
			if err != nil {
				t.Fatalf("%s: NewAreaRead() should have succeeded, got %v", tc.area, err)
			}

			f, err = encodeAreaRead(ar)
			if err != nil {
				t.Fatalf("%s: encodeAreaRead() should have succeeded, got %v", tc.area, err)
			}

			out, err = decodeFrame(f.Bytes())
			if err != nil {
				t.Errorf("%s: decodeFrame(%q) should have succeeded, got %v", tc.area, f.Bytes(), err)
				continue
			}
			if !out.Final {
				t.Errorf("%s: decoded frame should be final", tc.area)
			}

			unitNo, err = out.unitNo()
			if err != nil || unitNo != tc.unitNo {
				t.Errorf("%s: expected unit %v, got %v (%v)", tc.area, tc.unitNo, unitNo, err)
			}
			if out.header() != ai.readHeader {
				t.Errorf("%s: expected header %s, got %s", tc.area, ai.readHeader, out.header())
			}

			text = out.text()
			if ai.banked {
				bank, err = strconv.ParseUint(string(text[0:bankLength]), 16, 8)
				if err != nil || uint8(bank) != tc.bank {
					t.Errorf("%s: expected bank %v, got %q", tc.area, tc.bank, text[0:bankLength])
				}
				text = text[bankLength:]
			}
			if len(text) != beginningWordLength+wordCountLength {
				t.Errorf("%s: unexpected text %q", tc.area, text)
				continue
			}

			begin, err = parseDecimal(text[0:beginningWordLength])
			if err != nil || begin != int(span[0]) {
				t.Errorf("%s: expected beginning word %v, got %q", tc.area, span[0], text[0:beginningWordLength])
			}
			count, err = parseDecimal(text[beginningWordLength:])
			if err != nil || count != int(span[1]) {
				t.Errorf("%s: expected count %v, got %q", tc.area, span[1], text[beginningWordLength:])
			}
		}
	}

	return
}

func TestDecodeFrameBitFlips(t *testing.T) {
	var raw []byte
	var flipped []byte
	var err error

	raw = []byte("@00RR0000000141*\r")
	_, err = decodeFrame(raw)
	if err != nil {
		t.Fatalf("decodeFrame() should have succeeded, got %v", err)
	}

	// any single bit flipped between the begin marker and the FCS must
	// be caught
	for pos := 0; pos < len(raw)-4; pos++ {
		for bit := 0; bit < 8; bit++ {
			flipped = append([]byte(nil), raw...)
			flipped[pos] ^= 1 << bit

			_, err = decodeFrame(flipped)
			if pos == 0 {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("%q: expected ErrMalformedFrame, got %v", flipped, err)
				}
				continue
			}
			if !errors.Is(err, ErrChecksumMismatch) {
				t.Errorf("%q: expected ErrChecksumMismatch, got %v", flipped, err)
			}
		}
	}

	return
}
