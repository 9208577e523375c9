package zmodem

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
)

// ReceiverState enumerates the phases a Receiver moves through until it
// reaches the absorbing SessionEnd state.
type ReceiverState int

const (
	ReceiverSessionBegin ReceiverState = iota
	ReceiverFileBegin
	ReceiverFileReadingMetadata
	ReceiverFileReadingSubpacket
	ReceiverFileWaitingSubpacket
	ReceiverSessionEnd
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverSessionBegin:
		return "SessionBegin"
	case ReceiverFileBegin:
		return "FileBegin"
	case ReceiverFileReadingMetadata:
		return "FileReadingMetadata"
	case ReceiverFileReadingSubpacket:
		return "FileReadingSubpacket"
	case ReceiverFileWaitingSubpacket:
		return "FileWaitingSubpacket"
	case ReceiverSessionEnd:
		return "SessionEnd"
	default:
		return "Unknown"
	}
}

// ReceiverEventCapacity bounds the lifecycle-event FIFO; feed_incoming
// stops early once it's full rather than growing it unboundedly.
const ReceiverEventCapacity = 4

// Receiver is the pure, non-blocking ZMODEM receive-side state machine.
// It holds no transport and no file handle: the caller feeds received
// bytes via FeedIncoming, drains protocol bytes via DrainOutgoing, and
// drains validated file data via DrainFile/AdvanceFile.
type Receiver struct {
	state ReceiverState
	count int64

	fileName       string
	fileSize       int64
	fileModTime    time.Time
	fileMode       uint32
	filesRemaining int
	bytesRemaining int64

	useCRC32 bool // data encoding latched from the current ZFILE/ZDATA header

	outgoing []byte

	fileBuf         []byte
	fileBufConsumed int
	lastTerminator  byte

	events []Event

	hr  *headerReader
	sr  *subpacketReader
	log *logrus.Entry
}

// NewReceiver constructs a Receiver and queues its initial ZRINIT
// header, advertising SUBPACKET_MAX_SIZE and CANFDX|CANFC32.
func NewReceiver() *Receiver {
	r := &Receiver{
		hr:  newHeaderReader(),
		sr:  newSubpacketReader(MaxSubpacketCap),
		log: logrus.WithField("component", "receiver"),
	}
	r.queueInitialZRInit()
	return r
}

// FileName returns the name of the file currently being received.
func (r *Receiver) FileName() string { return r.fileName }

// FileSize returns the declared size of the file currently being received.
func (r *Receiver) FileSize() int64 { return r.fileSize }

// FeedIncoming alternates between header parsing and subpacket parsing
// depending on the current state, dispatching completed headers through
// handleHeader and completed subpackets through onSubpacketComplete. It
// stops early — returning fewer consumed bytes than len(data) — when
// outgoing backpressure is in effect, file data awaits draining, the
// event FIFO is full, or the terminal state is reached.
func (r *Receiver) FeedIncoming(data []byte) (int, error) {
	total := 0
	for total < len(data) {
		if len(r.outgoing) > 0 || r.fileBuf != nil ||
			len(r.events) >= ReceiverEventCapacity || r.state == ReceiverSessionEnd {
			break
		}

		switch r.state {
		case ReceiverFileReadingMetadata, ReceiverFileReadingSubpacket:
			consumed, terminator, done, err := r.sr.feed(data[total:])
			total += consumed
			if err != nil {
				return total, err
			}
			if !done {
				continue
			}
			if err := r.onSubpacketComplete(terminator); err != nil {
				return total, err
			}

		default:
			consumed, hdr, err := r.hr.feed(data[total:])
			total += consumed
			if err != nil {
				return total, err
			}
			if hdr == nil {
				continue
			}
			if err := r.handleHeader(*hdr); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// DrainOutgoing returns and clears the pending outgoing protocol bytes.
func (r *Receiver) DrainOutgoing() []byte {
	out := r.outgoing
	r.outgoing = nil
	return out
}

// DrainFile returns and clears whatever of the current subpacket's
// payload has not yet been handed to the caller, and finishes the
// subpacket (advancing count, queuing any ACK, and moving the
// subpacket reader on to the next one).
func (r *Receiver) DrainFile() []byte {
	if r.fileBuf == nil {
		return nil
	}
	remainder := r.fileBuf[r.fileBufConsumed:]
	out := make([]byte, len(remainder))
	copy(out, remainder)
	r.finishSubpacket()
	return out
}

// AdvanceFile marks n bytes of the pending file buffer as consumed by
// the caller. Once the whole buffer has been advanced past, the
// subpacket is finished exactly as DrainFile would.
func (r *Receiver) AdvanceFile(n int) {
	if r.fileBuf == nil {
		return
	}
	r.fileBufConsumed += n
	if r.fileBufConsumed >= len(r.fileBuf) {
		r.finishSubpacket()
	}
}

// PollEvent dequeues the next pending lifecycle event, if any.
func (r *Receiver) PollEvent() (Event, bool) {
	if len(r.events) == 0 {
		return Event{}, false
	}
	e := r.events[0]
	r.events = r.events[1:]
	return e, true
}

func (r *Receiver) queueHeader(h Header) {
	r.outgoing = append(r.outgoing, EncodeHeader(h)...)
}

func (r *Receiver) pushEvent(e Event) {
	r.events = append(r.events, e)
}

func (r *Receiver) setState(next ReceiverState) {
	r.log.WithFields(logrus.Fields{"from": r.state.String(), "to": next.String()}).Debug("receiver state transition")
	r.state = next
}

func (r *Receiver) queueInitialZRInit() {
	h := NewHeader(ZHEX, ZRINIT)
	binary.LittleEndian.PutUint16(h.Data[0:2], uint16(DefaultSubpacketMaxSize))
	h.SetZF0(CANFDX | CANFC32)
	r.queueHeader(h)
}

// handleHeader dispatches a fully decoded incoming header per the
// Receiver's state table.
func (r *Receiver) handleHeader(h Header) error {
	switch h.Type {
	case ZRQINIT:
		if r.state == ReceiverSessionBegin {
			r.queueInitialZRInit()
		}

	case ZFILE:
		if r.state == ReceiverSessionBegin || r.state == ReceiverFileBegin {
			r.useCRC32 = h.Encoding == ZBIN32
			r.sr.begin(r.useCRC32)
			r.setState(ReceiverFileReadingMetadata)
		}

	case ZDATA:
		switch r.state {
		case ReceiverFileBegin, ReceiverFileWaitingSubpacket:
			if h.Position() != r.count {
				r.queueHeader(NewPosHeader(ZHEX, ZRPOS, r.count))
			} else {
				r.useCRC32 = h.Encoding == ZBIN32
				r.sr.begin(r.useCRC32)
				r.setState(ReceiverFileReadingSubpacket)
			}
		case ReceiverSessionBegin:
			r.queueInitialZRInit()
		}

	case ZEOF:
		if r.state == ReceiverFileWaitingSubpacket && h.Position() == r.count {
			r.queueInitialZRInit()
			r.setState(ReceiverFileBegin)
			r.pushEvent(Event{Kind: EventFileComplete, BytesTransferred: r.count})
		}

	case ZFIN:
		if r.state == ReceiverFileWaitingSubpacket || r.state == ReceiverFileBegin {
			r.queueHeader(NewHeader(ZHEX, ZFIN))
			r.setState(ReceiverSessionEnd)
			r.pushEvent(Event{Kind: EventSessionComplete})
		}
	}
	return nil
}

// onSubpacketComplete runs once the subpacket reader validates a full
// subpacket: either ZFILE metadata (parsed and consumed internally) or
// a ZDATA chunk (exposed to the caller via DrainFile/AdvanceFile).
func (r *Receiver) onSubpacketComplete(terminator byte) error {
	if r.state == ReceiverFileReadingMetadata {
		info, err := parseFileInfo(r.sr.buf)
		if err != nil {
			return err
		}
		r.fileName = info.Name
		r.fileSize = info.Size
		r.fileModTime = info.ModTime
		r.fileMode = info.Mode
		r.filesRemaining = info.FilesRemaining
		r.bytesRemaining = info.BytesRemaining
		r.count = 0

		r.queueHeader(NewPosHeader(ZHEX, ZRPOS, 0))
		r.setState(ReceiverFileBegin)
		r.pushEvent(Event{Kind: EventFileStart, Info: FileInfo{
			Name:           r.fileName,
			Size:           r.fileSize,
			ModTime:        r.fileModTime,
			Mode:           r.fileMode,
			FilesRemaining: r.filesRemaining,
			BytesRemaining: r.bytesRemaining,
		}})
		return nil
	}

	r.fileBuf = append([]byte(nil), r.sr.buf...)
	r.fileBufConsumed = 0
	r.lastTerminator = terminator
	return nil
}

// finishSubpacket advances count by the subpacket just drained, then
// acks and advances state according to how it was terminated.
func (r *Receiver) finishSubpacket() {
	r.count += int64(len(r.fileBuf))
	terminator := r.lastTerminator
	r.fileBuf = nil
	r.fileBufConsumed = 0

	switch terminator {
	case ZCRCW:
		r.queueHeader(NewPosHeader(ZHEX, ZACK, r.count))
		r.setState(ReceiverFileWaitingSubpacket)
	case ZCRCQ:
		r.queueHeader(NewPosHeader(ZHEX, ZACK, r.count))
		r.sr.begin(r.useCRC32)
	case ZCRCG:
		r.sr.begin(r.useCRC32)
	case ZCRCE:
		r.setState(ReceiverFileWaitingSubpacket)
	}
}
