package zmodem

import "fmt"

// headerReader is the streaming state machine that scans a noisy byte
// stream for a ZMODEM header preamble, collects its payload, and yields
// a validated Header. It holds no I/O of its own: feed is handed
// whatever bytes the caller has on hand and reports how many it
// consumed.
type headerReaderState int

const (
	hdrSeekingZpad headerReaderState = iota
	hdrReadingEncoding
	hdrReadingData
)

type zpadState int

const (
	zpadIdle zpadState = iota
	zpadOne
	zpadTwo
)

type headerReader struct {
	state      headerReaderState
	zpad       zpadState
	encoding   byte
	buf        []byte
	escPending bool // ZDLE-escape state, carried across feed calls
}

func newHeaderReader() *headerReader {
	return &headerReader{}
}

func (hr *headerReader) reset() {
	hr.state = hdrSeekingZpad
	hr.zpad = zpadIdle
	hr.buf = hr.buf[:0]
	hr.escPending = false
}

// feed consumes bytes from data, advancing the header scan. It returns
// the number of bytes consumed and, once a header has been fully read
// and decoded, the Header itself. A nil Header with a nil error means
// more input is needed; state persists for the next call. A non-nil
// error means a malformed preamble or payload was encountered — the
// reader resets itself so the caller can resynchronize on the remaining
// input.
func (hr *headerReader) feed(data []byte) (consumed int, hdr *Header, err error) {
	for i := 0; i < len(data); i++ {
		b := data[i]
		consumed = i + 1

		switch hr.state {
		case hdrSeekingZpad:
			hr.stepSeekingZpad(b)

		case hdrReadingEncoding:
			switch b {
			case ZBIN, ZHEX, ZBIN32:
				hr.encoding = b
				hr.state = hdrReadingData
				hr.buf = hr.buf[:0]
				hr.escPending = false
			default:
				hr.reset()
				return consumed, nil, newProtoErr(ErrMalformedPacket, 0xff,
					fmt.Sprintf("unknown header encoding byte 0x%02x", b))
			}

		case hdrReadingData:
			size, _ := ReadSize(hr.encoding)

			if hr.encoding == ZHEX {
				hr.buf = append(hr.buf, b)
			} else if hr.escPending {
				hr.escPending = false
				hr.buf = append(hr.buf, unescapeByte(b))
			} else if b == ZDLE {
				hr.escPending = true
				continue
			} else {
				hr.buf = append(hr.buf, b)
			}

			if len(hr.buf) >= size {
				h, derr := DecodeHeader(hr.encoding, hr.buf)
				hr.reset()
				if derr != nil {
					return consumed, nil, derr
				}
				return consumed, &h, nil
			}
		}
	}
	return consumed, nil, nil
}

// stepSeekingZpad advances the ZPAD/ZDLE resync substate on one byte.
// Any byte that isn't part of a valid preamble just resets the
// substate — this is what lets the reader skip arbitrary noise (stray
// terminal output, a previous frame's CR/LF/XON trailer) before the
// next header.
func (hr *headerReader) stepSeekingZpad(b byte) {
	switch hr.zpad {
	case zpadIdle:
		if b == ZPAD {
			hr.zpad = zpadOne
		}
	case zpadOne:
		switch b {
		case ZPAD:
			hr.zpad = zpadTwo
		case ZDLE:
			hr.state = hdrReadingEncoding
			hr.zpad = zpadIdle
		default:
			hr.zpad = zpadIdle
			if b == ZPAD {
				hr.zpad = zpadOne
			}
		}
	case zpadTwo:
		switch b {
		case ZPAD:
			// stays at zpadTwo
		case ZDLE:
			hr.state = hdrReadingEncoding
			hr.zpad = zpadIdle
		default:
			hr.zpad = zpadIdle
			if b == ZPAD {
				hr.zpad = zpadOne
			}
		}
	}
}
