package zmodem

// Frame encoding types
const (
	ZPAD = 0x2a // '*' — pad character, begins frames
	ZDLE = 0x18 // Ctrl-X — data link escape
	ZBIN = 0x41 // 'A' — binary frame (CRC-16)
	ZHEX = 0x42 // 'B' — hex frame (CRC-16)

	ZBIN32 = 0x43 // 'C' — binary frame (CRC-32)
)

// Frame types (0x00-0x13, standard ZMODEM). Values above maxCoreFrameType
// are a malformed-frame failure when decoding.
const (
	ZRQINIT    = 0x00 // Request receive init
	ZRINIT     = 0x01 // Receive init
	ZSINIT     = 0x02 // Send init sequence
	ZACK       = 0x03 // ACK
	ZFILE      = 0x04 // File name/info
	ZSKIP      = 0x05 // Skip this file
	ZNAK       = 0x06 // Last header garbled
	ZABORT     = 0x07 // Abort batch transfer
	ZFIN       = 0x08 // Finish session
	ZRPOS      = 0x09 // Resume at offset
	ZDATA      = 0x0a // Data follows
	ZEOF       = 0x0b // End of file
	ZFERR      = 0x0c // File I/O error
	ZCRC       = 0x0d // File CRC request/response
	ZCHALLENGE = 0x0e // Security challenge
	ZCOMPL     = 0x0f // Request complete
	ZCAN       = 0x10 // Pseudo: session aborted (5x CAN detected)
	ZFREECNT   = 0x11 // Request free disk space
	ZCOMMAND   = 0x12 // Remote command
	ZSTDERR    = 0x13 // Output to stderr
)

// maxCoreFrameType is the highest frame type value the core will accept
// when decoding a header; anything above it is MalformedFrame.
const maxCoreFrameType = ZSTDERR

// Data subpacket end types (ZDLE sequences)
const (
	ZCRCE = 0x68 // CRC next, frame ends, header follows
	ZCRCG = 0x69 // CRC next, frame continues nonstop
	ZCRCQ = 0x6a // CRC next, frame continues, ZACK expected
	ZCRCW = 0x6b // CRC next, ZACK expected, end of frame
)

// Receiver capability flags (ZRINIT ZF0/Data[3])
const (
	CANFDX  = 0x01 // Full duplex
	CANOVIO = 0x02 // Can receive during disk I/O
	CANBRK  = 0x04 // Can send break signal
	CANCRY  = 0x08 // Can decrypt
	CANLZW  = 0x10 // Can decompress
	CANFC32 = 0x20 // Can use 32-bit CRC
	ESCCTL  = 0x40 // Expects control chars escaped
	ESC8    = 0x80 // Expects 8th bit escaped
)

// ZFILE management options (ZF1, lower 5 bits masked by ZMMASK)
const (
	ZMMASK = 0x1f // Mask for management option bits
	ZMNEWL = 1    // Transfer if newer or longer
	ZMCRC  = 2    // Transfer if different CRC
	ZMAPND = 3    // Append to existing
	ZMCLOB = 4    // Replace existing (clobber)
	ZMDIFF = 5    // Transfer if different date/length
	ZMPROT = 6    // Protect — only if absent
	ZMNEW  = 7    // Transfer if newer
)

// XON/XOFF flow control characters
const (
	XON  = 0x11
	XOFF = 0x13
)

// CAN is the cancel character; by de-facto convention 5 consecutive CANs
// signal an abort. The core does not act on this itself (no I/O loop to
// abort) but callers driving feed_incoming byte-by-byte from a live
// transport may watch for it.
const CAN = 0x18

// AbortSequence is 8x CAN + 10x BS, the conventional wire sequence a
// caller can write to a transport to interrupt a remote ZMODEM sender.
// Exposed for transport-layer callers; the core never emits it itself.
var AbortSequence = []byte{
	0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08,
}

// DefaultSubpacketMaxSize is SUBPACKET_MAX_SIZE: the default data
// subpacket payload size advertised in ZRINIT and honored when packing
// ZDATA subpackets. May be negotiated down by a receiver's advertised
// buffer size, but never up past this ceiling in this build.
const DefaultSubpacketMaxSize = 1024

// DefaultSubpacketsPerAck is SUBPACKET_PER_ACK, the ceiling on the window
// depth (subpackets sent before an ACK is required) when the receiver
// advertises CANOVIO.
const DefaultSubpacketsPerAck = 10

// MaxSubpacketCap bounds the subpacket reader's payload buffer
// regardless of what a peer's ZFILE/ZDATA negotiates — a sender using
// the looser 8192 convention is still accepted.
const MaxSubpacketCap = 8192

// frameTypeName returns a human-readable name for a frame type, used in
// error messages and log fields.
func frameTypeName(ft byte) string {
	switch ft {
	case ZRQINIT:
		return "ZRQINIT"
	case ZRINIT:
		return "ZRINIT"
	case ZSINIT:
		return "ZSINIT"
	case ZACK:
		return "ZACK"
	case ZFILE:
		return "ZFILE"
	case ZSKIP:
		return "ZSKIP"
	case ZNAK:
		return "ZNAK"
	case ZABORT:
		return "ZABORT"
	case ZFIN:
		return "ZFIN"
	case ZRPOS:
		return "ZRPOS"
	case ZDATA:
		return "ZDATA"
	case ZEOF:
		return "ZEOF"
	case ZFERR:
		return "ZFERR"
	case ZCRC:
		return "ZCRC"
	case ZCHALLENGE:
		return "ZCHALLENGE"
	case ZCOMPL:
		return "ZCOMPL"
	case ZCAN:
		return "ZCAN"
	case ZFREECNT:
		return "ZFREECNT"
	case ZCOMMAND:
		return "ZCOMMAND"
	case ZSTDERR:
		return "ZSTDERR"
	case 0xff:
		return "-"
	default:
		return "UNKNOWN"
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
