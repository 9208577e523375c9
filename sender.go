package zmodem

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// SenderState enumerates the phases a Sender moves through, linearly,
// until it reaches the absorbing Done state.
type SenderState int

const (
	SenderWaitReceiverInit SenderState = iota
	SenderReadyForFile
	SenderWaitFilePos
	SenderNeedFileData
	SenderWaitFileAck
	SenderWaitFileDone
	SenderWaitFinish
	SenderDone
)

func (s SenderState) String() string {
	switch s {
	case SenderWaitReceiverInit:
		return "WaitReceiverInit"
	case SenderReadyForFile:
		return "ReadyForFile"
	case SenderWaitFilePos:
		return "WaitFilePos"
	case SenderNeedFileData:
		return "NeedFileData"
	case SenderWaitFileAck:
		return "WaitFileAck"
	case SenderWaitFileDone:
		return "WaitFileDone"
	case SenderWaitFinish:
		return "WaitFinish"
	case SenderDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// fileRequest is the (offset, length) pair the Sender publishes via
// PollFile and the caller must fill via FeedFile.
type fileRequest struct {
	offset int64
	length int
	valid  bool
}

// Sender is the pure, non-blocking ZMODEM send-side state machine. It
// holds no transport; the caller feeds received bytes in via
// FeedIncoming and drains bytes out via DrainOutgoing, and pushes file
// data via FeedFile whenever PollFile reports a pending request.
type Sender struct {
	state     SenderState
	initiator bool

	fileName string
	fileSize int64
	hasFile  bool

	pendingRequest   fileRequest
	frameRemaining   int
	frameNeedsHeader bool

	maxSubpacketSize    int
	maxSubpacketsPerAck int

	finishRequested bool

	outgoing     []byte
	pendingEvent *Event

	hr  *headerReader
	log *logrus.Entry
}

// NewSender constructs a Sender. When initiator is true, it queues a
// ZRQINIT header to be drained immediately — the caller is the one
// opening the session rather than answering a peer's ZRQINIT.
func NewSender(initiator bool) *Sender {
	s := &Sender{
		initiator:           initiator,
		hr:                  newHeaderReader(),
		maxSubpacketSize:    DefaultSubpacketMaxSize,
		maxSubpacketsPerAck: 1,
		log:                 logrus.WithField("component", "sender"),
	}
	if initiator {
		s.queueHeader(NewHeader(ZHEX, ZRQINIT))
	}
	return s
}

// StartFile records the file to offer next. Legal only while waiting
// for the initial handshake or once a previous file has completed. If
// the Sender is already idle with nothing queued, it builds the ZFILE
// frame immediately.
func (s *Sender) StartFile(name string, size int64) error {
	if s.state != SenderWaitReceiverInit && s.state != SenderReadyForFile {
		return newProtoErr(ErrUnsupported, 0xff, "start_file is not legal in state "+s.state.String())
	}
	s.fileName = name
	s.fileSize = size
	s.hasFile = true

	if s.state == SenderReadyForFile && len(s.outgoing) == 0 {
		s.queueZFile()
		s.setState(SenderWaitFilePos)
	}
	return nil
}

// FinishSession latches a request to close the session once the
// current file (if any) completes.
func (s *Sender) FinishSession() {
	s.finishRequested = true
	if s.state == SenderReadyForFile {
		s.queueHeader(NewHeader(ZHEX, ZFIN))
		s.setState(SenderWaitFinish)
	}
}

// PollFile returns the offset/length of the file-data chunk the Sender
// currently wants from the caller, if any.
func (s *Sender) PollFile() (offset int64, length int, ok bool) {
	if !s.pendingRequest.valid {
		return 0, 0, false
	}
	return s.pendingRequest.offset, s.pendingRequest.length, true
}

// FeedFile supplies the next chunk of file data for the pending
// request. data must be between 1 and the request's advertised length.
func (s *Sender) FeedFile(data []byte) error {
	if s.state != SenderNeedFileData || !s.pendingRequest.valid {
		return newProtoErr(ErrUnsupported, 0xff, "feed_file called with no pending request")
	}
	if len(data) < 1 || len(data) > s.pendingRequest.length {
		return newProtoErr(ErrUnexpectedEOF, 0xff, "feed_file chunk length out of bounds")
	}

	if s.frameNeedsHeader {
		s.queueHeader(NewPosHeader(ZBIN32, ZDATA, s.pendingRequest.offset))
		s.frameNeedsHeader = false
	}

	newOffset := s.pendingRequest.offset + int64(len(data))
	isLastOfFile := newOffset >= s.fileSize
	isLastOfWindow := s.frameRemaining <= 1

	terminator := byte(ZCRCG)
	if isLastOfWindow || isLastOfFile {
		terminator = ZCRCW
	}
	s.outgoing = append(s.outgoing, encodeSubpacket(true, data, terminator)...)
	s.frameRemaining--

	if terminator == ZCRCW {
		s.pendingRequest = fileRequest{}
		s.setState(SenderWaitFileAck)
	} else {
		remaining := s.fileSize - newOffset
		length := remaining
		if int64(s.maxSubpacketSize) < length {
			length = int64(s.maxSubpacketSize)
		}
		s.pendingRequest = fileRequest{offset: newOffset, length: int(length), valid: true}
	}
	return nil
}

// FeedIncoming parses as many headers as it can out of data, dispatching
// each through handleHeader. It stops early — returning fewer consumed
// bytes than len(data) — whenever outgoing backpressure is in effect, a
// file request becomes pending, or the terminal state is reached.
func (s *Sender) FeedIncoming(data []byte) (int, error) {
	total := 0
	for total < len(data) {
		if len(s.outgoing) > 0 || s.pendingRequest.valid || s.state == SenderDone {
			break
		}

		consumed, hdr, err := s.hr.feed(data[total:])
		total += consumed
		if err != nil {
			return total, err
		}
		if hdr == nil {
			continue
		}
		if err := s.handleHeader(*hdr); err != nil {
			return total, err
		}
	}
	return total, nil
}

// DrainOutgoing returns and clears the pending outgoing bytes.
func (s *Sender) DrainOutgoing() []byte {
	out := s.outgoing
	s.outgoing = nil
	return out
}

// PollEvent dequeues the single pending lifecycle event, if any.
func (s *Sender) PollEvent() (Event, bool) {
	if s.pendingEvent == nil {
		return Event{}, false
	}
	e := *s.pendingEvent
	s.pendingEvent = nil
	return e, true
}

func (s *Sender) queueHeader(h Header) {
	s.outgoing = append(s.outgoing, EncodeHeader(h)...)
}

func (s *Sender) queueEvent(e Event) {
	ev := e
	s.pendingEvent = &ev
}

func (s *Sender) setState(next SenderState) {
	s.log.WithFields(logrus.Fields{"from": s.state.String(), "to": next.String()}).Debug("sender state transition")
	s.state = next
}

// queueZFile builds the ZFILE frame (header + name/size metadata
// subpacket) for the file currently latched by StartFile.
func (s *Sender) queueZFile() {
	meta := &FileMeta{Name: s.fileName, Size: s.fileSize}
	payload := marshalFileInfo(meta, 0, 0)
	s.queueHeader(NewHeader(ZBIN32, ZFILE))
	s.outgoing = append(s.outgoing, encodeSubpacket(true, payload, ZCRCW)...)
}

// handleHeader dispatches a fully decoded incoming header per the
// Sender's state table.
func (s *Sender) handleHeader(h Header) error {
	switch h.Type {
	case ZRINIT:
		s.negotiateFromZRInit(h)

		switch s.state {
		case SenderWaitReceiverInit:
			if s.hasFile {
				s.queueZFile()
				s.setState(SenderWaitFilePos)
			} else {
				s.setState(SenderReadyForFile)
				if s.finishRequested {
					s.queueHeader(NewHeader(ZHEX, ZFIN))
					s.setState(SenderWaitFinish)
				}
			}
		case SenderWaitFileDone:
			s.queueEvent(Event{Kind: EventFileComplete, BytesTransferred: s.fileSize})
			s.hasFile = false
			if s.finishRequested {
				s.queueHeader(NewHeader(ZHEX, ZFIN))
				s.setState(SenderWaitFinish)
			} else {
				s.setState(SenderReadyForFile)
			}
		case SenderWaitFinish:
			s.outgoing = append(s.outgoing, 'O', 'O')
			s.setState(SenderDone)
			s.queueEvent(Event{Kind: EventSessionComplete})
		}

	case ZRPOS, ZACK:
		switch s.state {
		case SenderWaitReceiverInit:
			s.queueHeader(NewHeader(ZHEX, ZRQINIT))
		case SenderWaitFilePos, SenderWaitFileAck, SenderNeedFileData:
			s.handlePosAck(h.Position())
		}

	case ZFIN:
		if s.state == SenderWaitFinish {
			s.outgoing = append(s.outgoing, 'O', 'O')
			s.setState(SenderDone)
			s.queueEvent(Event{Kind: EventSessionComplete})
		}

	default:
		if s.state == SenderWaitReceiverInit {
			s.queueHeader(NewHeader(ZHEX, ZRQINIT))
		}
	}
	return nil
}

func (s *Sender) negotiateFromZRInit(h Header) {
	rxBufSize := int(binary.LittleEndian.Uint16(h.Data[0:2]))
	canOVIO := h.ZF0()&CANOVIO != 0

	// rx_buf_size == 0 means the receiver isn't capping it: treat that as
	// SUBPACKET_MAX_SIZE for the max_subpacket_size computation.
	maxSub := DefaultSubpacketMaxSize
	if rxBufSize != 0 && rxBufSize < maxSub {
		maxSub = rxBufSize
	}
	s.maxSubpacketSize = maxSub

	// max_subpackets_per_ack = floor(rx_buf_size / max_subpacket_size) when
	// CANOVIO, else 1 — never less than 1 either way, and never more than
	// SUBPACKET_PER_ACK.
	perAck := 1
	if canOVIO {
		if p := rxBufSize / maxSub; p > perAck {
			perAck = p
		}
		if perAck > DefaultSubpacketsPerAck {
			perAck = DefaultSubpacketsPerAck
		}
	}
	s.maxSubpacketsPerAck = perAck
}

// handlePosAck starts (or closes out) a subpacket group in response to
// a ZRPOS/ZACK naming offset.
func (s *Sender) handlePosAck(offset int64) {
	if offset >= s.fileSize {
		s.queueHeader(NewPosHeader(ZHEX, ZEOF, offset))
		s.pendingRequest = fileRequest{}
		s.setState(SenderWaitFileDone)
		return
	}

	remaining := s.fileSize - offset
	numSubpackets := (remaining + int64(s.maxSubpacketSize) - 1) / int64(s.maxSubpacketSize)
	fr := int64(s.maxSubpacketsPerAck)
	if numSubpackets < fr {
		fr = numSubpackets
	}
	s.frameRemaining = int(fr)
	s.frameNeedsHeader = true

	length := remaining
	if int64(s.maxSubpacketSize) < length {
		length = int64(s.maxSubpacketSize)
	}
	s.pendingRequest = fileRequest{offset: offset, length: int(length), valid: true}
	s.setState(SenderNeedFileData)
}
