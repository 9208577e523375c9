package zmodem

import (
	"bytes"
	"testing"
)

func readOneSubpacket(t *testing.T, sr *subpacketReader, useCRC32 bool, wire []byte) (payload []byte, terminator byte) {
	t.Helper()
	sr.begin(useCRC32)
	consumed, term, done, err := sr.feed(wire)
	if err != nil {
		t.Fatalf("subpacket reader error: %v", err)
	}
	if !done {
		t.Fatalf("subpacket reader did not complete, consumed %d of %d", consumed, len(wire))
	}
	return append([]byte(nil), sr.buf...), term
}

func TestSubpacketRoundTripCRC16(t *testing.T) {
	testData := []byte("Hello, ZMODEM protocol!")
	sr := newSubpacketReader(1024)

	for _, et := range []byte{ZCRCE, ZCRCG, ZCRCQ, ZCRCW} {
		t.Run(frameEndName(et), func(t *testing.T) {
			wire := encodeSubpacket(false, testData, et)
			got, gotEnd := readOneSubpacket(t, sr, false, wire)

			if !bytes.Equal(got, testData) {
				t.Errorf("data mismatch: got %q, want %q", got, testData)
			}
			if gotEnd != et {
				t.Errorf("endType = 0x%02x, want 0x%02x", gotEnd, et)
			}
		})
	}
}

func TestSubpacketRoundTripCRC32(t *testing.T) {
	testData := []byte("CRC-32 subpacket test data with special bytes: \x00\x10\x11\x13\x18\x7f\xff")
	sr := newSubpacketReader(1024)

	wire := encodeSubpacket(true, testData, ZCRCG)
	got, gotEnd := readOneSubpacket(t, sr, true, wire)

	if !bytes.Equal(got, testData) {
		t.Errorf("data mismatch: got len=%d, want len=%d", len(got), len(testData))
	}
	if gotEnd != ZCRCG {
		t.Errorf("endType = 0x%02x, want ZCRCG", gotEnd)
	}
}

func TestSubpacketEmptyData(t *testing.T) {
	sr := newSubpacketReader(1024)
	wire := encodeSubpacket(false, []byte{}, ZCRCE)
	got, gotEnd := readOneSubpacket(t, sr, false, wire)

	if len(got) != 0 {
		t.Errorf("expected empty data, got %d bytes", len(got))
	}
	if gotEnd != ZCRCE {
		t.Errorf("endType = 0x%02x, want ZCRCE", gotEnd)
	}
}

func TestSubpacketAllZDLEBytes(t *testing.T) {
	testData := make([]byte, 64)
	for i := range testData {
		testData[i] = ZDLE
	}

	sr := newSubpacketReader(1024)
	wire := encodeSubpacket(false, testData, ZCRCW)
	got, gotEnd := readOneSubpacket(t, sr, false, wire)

	if !bytes.Equal(got, testData) {
		t.Errorf("data mismatch for all-ZDLE test")
	}
	if gotEnd != ZCRCW {
		t.Errorf("endType = 0x%02x, want ZCRCW", gotEnd)
	}
}

func TestSubpacketRejectsCorruptedCRC(t *testing.T) {
	testData := []byte("corrupt me")
	wire := encodeSubpacket(true, testData, ZCRCW)
	wire[0] ^= 0x01 // flip a bit in the escaped payload

	sr := newSubpacketReader(1024)
	sr.begin(true)
	_, _, done, err := sr.feed(wire)
	if done {
		t.Fatal("expected subpacket CRC verification to fail")
	}
	pe, ok := err.(*ProtocolError)
	if !ok || pe.Kind != ErrUnexpectedCRC32 {
		t.Errorf("got %v, want ErrUnexpectedCRC32", err)
	}
}

func TestSubpacketOverflowIsMalformedPacket(t *testing.T) {
	testData := make([]byte, 32)
	wire := encodeSubpacket(false, testData, ZCRCE)

	sr := newSubpacketReader(8) // too small for the payload
	sr.begin(false)
	_, _, _, err := sr.feed(wire)
	pe, ok := err.(*ProtocolError)
	if !ok || pe.Kind != ErrMalformedPacket {
		t.Errorf("got %v, want ErrMalformedPacket", err)
	}
}

func frameEndName(et byte) string {
	switch et {
	case ZCRCE:
		return "ZCRCE"
	case ZCRCG:
		return "ZCRCG"
	case ZCRCQ:
		return "ZCRCQ"
	case ZCRCW:
		return "ZCRCW"
	default:
		return "UNKNOWN"
	}
}
