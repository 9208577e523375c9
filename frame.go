package zmodem

import (
	"encoding/binary"
	"fmt"
)

// Header is a ZMODEM frame header: an encoding, a frame type, and 4
// flag/position bytes. Data is interpreted either as a little-endian
// 32-bit position/count, or as four independent capability flag bytes
// (ZF0..ZF3) in the OPPOSITE byte order — ZF0 is Data[3], ZF3 is
// Data[0]. Both views are provided; callers pick whichever the frame
// type calls for.
type Header struct {
	Encoding byte    // ZBIN, ZHEX, or ZBIN32
	Type     byte    // Frame type (ZRQINIT, ZRINIT, etc.)
	Data     [4]byte // 4 bytes of position/flags
}

// NewHeader builds a header with zeroed Data.
func NewHeader(encoding, frameType byte) Header {
	return Header{Encoding: encoding, Type: frameType}
}

// NewPosHeader builds a header with Data set from a position.
func NewPosHeader(encoding, frameType byte, pos int64) Header {
	h := NewHeader(encoding, frameType)
	h.SetPosition(pos)
	return h
}

// Position returns header data as a 32-bit file offset (little-endian).
func (h Header) Position() int64 {
	return int64(binary.LittleEndian.Uint32(h.Data[:]))
}

// SetPosition sets header data from a file offset (little-endian).
func (h *Header) SetPosition(pos int64) {
	binary.LittleEndian.PutUint32(h.Data[:], uint32(pos))
}

// Count is Position read under the name ZACK/ZEOF callers expect.
func (h Header) Count() uint32 {
	return binary.LittleEndian.Uint32(h.Data[:])
}

// WithCount returns a copy of h with Data set from n, little-endian.
func (h Header) WithCount(n uint32) Header {
	nh := h
	binary.LittleEndian.PutUint32(nh.Data[:], n)
	return nh
}

// ZF0-ZF3 flag accessors.
// IMPORTANT: flags and position use OPPOSITE byte orders in the same 4 bytes!
// Flags: TYPE ZF3 ZF2 ZF1 ZF0 (ZF0 = Data[3])
// Position: TYPE P0 P1 P2 P3 (P0 = Data[0])
func (h Header) ZF0() byte      { return h.Data[3] }
func (h Header) ZF1() byte      { return h.Data[2] }
func (h Header) ZF2() byte      { return h.Data[1] }
func (h Header) ZF3() byte      { return h.Data[0] }
func (h *Header) SetZF0(v byte) { h.Data[3] = v }
func (h *Header) SetZF1(v byte) { h.Data[2] = v }
func (h *Header) SetZF2(v byte) { h.Data[1] = v }
func (h *Header) SetZF3(v byte) { h.Data[0] = v }

// String returns a human-readable representation.
func (h Header) String() string {
	return fmt.Sprintf("%s[%02x %02x %02x %02x]",
		frameTypeName(h.Type), h.Data[0], h.Data[1], h.Data[2], h.Data[3])
}

// ReadSize returns the number of decoded payload+CRC bytes (hex
// characters, for ZHEX) a header reader must collect for encoding.
func ReadSize(encoding byte) (int, error) {
	switch encoding {
	case ZBIN:
		return 7, nil
	case ZBIN32:
		return 9, nil
	case ZHEX:
		return 14, nil
	default:
		return 0, newProtoErr(ErrMalformedEncoding, 0xff, fmt.Sprintf("unknown header encoding 0x%02x", encoding))
	}
}

// EncodeHeader renders h fully framed onto the wire: the ZPAD preamble,
// the ZDLE introducer, the encoding byte, and the (escaped or
// hex-rendered) 5-byte payload plus its trailing CRC. Pure function —
// no I/O, no session state.
func EncodeHeader(h Header) []byte {
	var payload [5]byte
	payload[0] = h.Type
	copy(payload[1:], h.Data[:])

	switch h.Encoding {
	case ZHEX:
		out := make([]byte, 0, 4+14+2+1)
		out = append(out, ZPAD, ZPAD, ZDLE, ZHEX)
		crc := crc16Calc(payload[:])
		for _, b := range payload {
			out = appendHex(out, b)
		}
		out = appendHex(out, byte(crc>>8))
		out = appendHex(out, byte(crc))
		out = append(out, 0x0d, 0x0a)
		if h.Type != ZACK && h.Type != ZFIN {
			out = append(out, XON)
		}
		return out

	case ZBIN32:
		out := make([]byte, 0, 3+2*9)
		out = append(out, ZPAD, ZDLE, ZBIN32)
		crc := crc32Calc(payload[:])
		out = appendEscaped(out, payload[:])
		var crcBuf [4]byte
		binary.LittleEndian.PutUint32(crcBuf[:], crc)
		out = appendEscaped(out, crcBuf[:])
		return out

	default: // ZBIN
		out := make([]byte, 0, 3+2*7)
		out = append(out, ZPAD, ZDLE, ZBIN)
		crc := crc16Calc(payload[:])
		out = appendEscaped(out, payload[:])
		out = appendEscapedByte(out, byte(crc>>8))
		out = appendEscapedByte(out, byte(crc))
		return out
	}
}

// DecodeHeader parses payload (raw unescaped bytes for ZBIN/ZBIN32, or
// ASCII hex characters for ZHEX) into a Header, verifying its trailing
// CRC and frame-type range.
func DecodeHeader(encoding byte, payload []byte) (Header, error) {
	var raw []byte

	if encoding == ZHEX {
		if len(payload)%2 != 0 {
			return Header{}, newProtoErr(ErrMalformedHeader, 0xff, "odd-length hex header payload")
		}
		raw = make([]byte, len(payload)/2)
		for i := range raw {
			hi, ok1 := hexVal(payload[2*i])
			lo, ok2 := hexVal(payload[2*i+1])
			if !ok1 || !ok2 {
				return Header{}, newProtoErr(ErrMalformedHeader, 0xff, "non-hex digit in header payload")
			}
			raw[i] = hi<<4 | lo
		}
	} else {
		raw = payload
	}

	crcLen := 2
	if encoding == ZBIN32 {
		crcLen = 4
	}
	if len(raw) < 5+crcLen {
		return Header{}, newProtoErr(ErrMalformedHeader, 0xff, "header payload shorter than 5+crc_len")
	}

	body := raw[:5]
	trailer := raw[5 : 5+crcLen]

	if crcLen == 4 {
		all := make([]byte, 0, 9)
		all = append(all, body...)
		all = append(all, trailer...)
		if !crc32Verify(all) {
			return Header{}, newProtoErr(ErrUnexpectedCRC32, body[0], "header CRC-32 mismatch")
		}
	} else {
		all := make([]byte, 0, 7)
		all = append(all, body...)
		all = append(all, trailer...)
		if !crc16Verify(all) {
			return Header{}, newProtoErr(ErrUnexpectedCRC16, body[0], "header CRC-16 mismatch")
		}
	}

	if body[0] > maxCoreFrameType {
		return Header{}, newProtoErr(ErrMalformedFrame, body[0], "frame type out of core range")
	}

	var h Header
	h.Encoding = encoding
	h.Type = body[0]
	copy(h.Data[:], body[1:5])
	return h, nil
}
