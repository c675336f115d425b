package hostlink

import (
	"errors"
	"testing"
)

func TestAppendFields(t *testing.T) {
	var out []byte

	out = appendDecimal(nil, 7, 2)
	if string(out) != "07" {
		t.Errorf("expected \"07\", got %q", out)
	}

	out = appendDecimal(out, 9999, 4)
	if string(out) != "079999" {
		t.Errorf("expected \"079999\", got %q", out)
	}

	out = appendHex(nil, 12, 2)
	if string(out) != "0C" {
		t.Errorf("expected \"0C\", got %q", out)
	}

	out = appendItems(nil, []uint16{0x1234, 0xabcd, 0x0001}, WORD_ADDRESSING)
	if string(out) != "1234ABCD0001" {
		t.Errorf("expected \"1234ABCD0001\", got %q", out)
	}

	out = appendItems(nil, []uint16{1, 0, 0, 1}, BIT_ADDRESSING)
	if string(out) != "1001" {
		t.Errorf("expected \"1001\", got %q", out)
	}

	return
}

func TestParseDecimal(t *testing.T) {
	var v int
	var err error

	v, err = parseDecimal([]byte("31"))
	if err != nil {
		t.Errorf("parseDecimal() should have succeeded, got %v", err)
	}
	if v != 31 {
		t.Errorf("expected 31, got %v", v)
	}

	for _, in := range []string{"", "3A", " 1", "-1"} {
		_, err = parseDecimal([]byte(in))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("parseDecimal(%q) should have returned ErrMalformedFrame, got %v", in, err)
		}
	}

	return
}

func TestDecodeWords(t *testing.T) {
	var out []uint16
	var err error

	out, err = decodeWords([]byte("00010002FFFFabcd"))
	if err != nil {
		t.Errorf("decodeWords() should have succeeded, got %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 words, got %v", len(out))
	}
	for i, v := range []uint16{0x0001, 0x0002, 0xffff, 0xabcd} {
		if out[i] != v {
			t.Errorf("expected 0x%04x at position %v, got 0x%04x", v, i, out[i])
		}
	}

	// an empty payload decodes to no word at all
	out, err = decodeWords([]byte{})
	if err != nil {
		t.Errorf("decodeWords() should have succeeded, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no word, got %v", len(out))
	}

	// 7 characters do not make whole words
	_, err = decodeWords([]byte("0001002"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	_, err = decodeWords([]byte("00G1"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	return
}

func TestDecodeFlags(t *testing.T) {
	var out []uint16
	var err error

	out, err = decodeFlags([]byte("0110"))
	if err != nil {
		t.Errorf("decodeFlags() should have succeeded, got %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 flags, got %v", len(out))
	}
	for i, v := range []uint16{0, 1, 1, 0} {
		if out[i] != v {
			t.Errorf("expected %v at position %v, got %v", v, i, out[i])
		}
	}

	_, err = decodeFlags([]byte("012"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	return
}
