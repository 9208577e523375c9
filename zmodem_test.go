package zmodem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshake(t *testing.T) {
	sender := NewSender(true)
	out := sender.DrainOutgoing()
	require.True(t, bytes.HasPrefix(out, []byte{0x2A, 0x2A, 0x18, 0x42}))

	receiver := NewReceiver()
	receiver.DrainOutgoing() // drain the receiver's own pre-queued ZRINIT first

	// The receiver queues its ZRINIT reply as soon as the ZRQINIT header is
	// decoded; that engages outgoing backpressure, so the header's 3-byte
	// CR LF XON trailer is left unconsumed.
	consumed, err := receiver.FeedIncoming(out)
	require.NoError(t, err)
	assert.Equal(t, len(out)-3, consumed)

	rOut := receiver.DrainOutgoing()
	require.True(t, bytes.HasPrefix(rOut, []byte{0x2A, 0x2A, 0x18, 0x42}))

	consumed, err = sender.FeedIncoming(rOut)
	require.NoError(t, err)
	assert.Equal(t, len(rOut), consumed)
	assert.Equal(t, SenderReadyForFile, sender.state)
}

func TestSenderRequestsFileAfterZRPos(t *testing.T) {
	sender := NewSender(true)
	sender.DrainOutgoing()
	receiver := NewReceiver()
	rOut := receiver.DrainOutgoing()
	_, err := sender.FeedIncoming(rOut)
	require.NoError(t, err)

	require.NoError(t, sender.StartFile("test.txt", 100))
	zfile := sender.DrainOutgoing()
	require.NotEmpty(t, zfile)

	zrpos := EncodeHeader(NewPosHeader(ZHEX, ZRPOS, 0))
	_, err = sender.FeedIncoming(zrpos)
	require.NoError(t, err)

	offset, length, ok := sender.PollFile()
	require.True(t, ok)
	assert.Equal(t, int64(0), offset)
	assert.Greater(t, length, 0)
}

func TestSenderDeliversFileData(t *testing.T) {
	sender := NewSender(true)
	sender.DrainOutgoing()
	receiver := NewReceiver()
	rOut := receiver.DrainOutgoing()
	_, _ = sender.FeedIncoming(rOut)
	require.NoError(t, sender.StartFile("test.txt", 100))
	sender.DrainOutgoing()
	zrpos := EncodeHeader(NewPosHeader(ZHEX, ZRPOS, 0))
	_, err := sender.FeedIncoming(zrpos)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x41}, 100)
	require.NoError(t, sender.FeedFile(payload))

	assert.NotEmpty(t, sender.DrainOutgoing())
	assert.Equal(t, SenderWaitFileAck, sender.state)
}

func TestReceiverYieldsFileStartEvent(t *testing.T) {
	receiver := NewReceiver()
	receiver.DrainOutgoing()

	zrqinit := EncodeHeader(NewHeader(ZHEX, ZRQINIT))
	_, err := receiver.FeedIncoming(zrqinit)
	require.NoError(t, err)
	receiver.DrainOutgoing()

	zrinit := EncodeHeader(NewHeader(ZHEX, ZRINIT))
	_, err = receiver.FeedIncoming(zrinit)
	require.NoError(t, err)

	zfileHdr := EncodeHeader(NewHeader(ZBIN32, ZFILE))
	meta := marshalFileInfo(&FileMeta{Name: "hello.bin", Size: 100}, 0, 0)
	zfileBody := encodeSubpacket(true, meta, ZCRCW)

	_, err = receiver.FeedIncoming(append(zfileHdr, zfileBody...))
	require.NoError(t, err)

	ev, ok := receiver.PollEvent()
	require.True(t, ok)
	assert.Equal(t, EventFileStart, ev.Kind)
	assert.Equal(t, "hello.bin", receiver.FileName())
	assert.Equal(t, int64(100), receiver.FileSize())
}

func TestReceiverRejectsCorruptedSubpacket(t *testing.T) {
	receiver := NewReceiver()
	receiver.DrainOutgoing()

	_, err := receiver.FeedIncoming(EncodeHeader(NewHeader(ZHEX, ZRQINIT)))
	require.NoError(t, err)
	receiver.DrainOutgoing()
	_, err = receiver.FeedIncoming(EncodeHeader(NewHeader(ZHEX, ZRINIT)))
	require.NoError(t, err)

	zfileHdr := EncodeHeader(NewHeader(ZBIN32, ZFILE))
	meta := marshalFileInfo(&FileMeta{Name: "hello.bin", Size: 100}, 0, 0)
	zfileBody := encodeSubpacket(true, meta, ZCRCW)
	_, err = receiver.FeedIncoming(append(zfileHdr, zfileBody...))
	require.NoError(t, err)
	receiver.PollEvent()
	receiver.DrainOutgoing()

	zdataHdr := EncodeHeader(NewPosHeader(ZBIN32, ZDATA, 0))
	payload := []byte("some file data")
	corrupted := encodeSubpacket(true, payload, ZCRCW)
	corrupted[0] ^= 0x01

	countBefore := receiver.count
	_, err = receiver.FeedIncoming(append(zdataHdr, corrupted...))
	require.Error(t, err)
	pe, ok := err.(*ProtocolError)
	require.True(t, ok)
	assert.Equal(t, ErrUnexpectedCRC32, pe.Kind)
	assert.Equal(t, countBefore, receiver.count)
}

func TestSenderTerminatesCleanly(t *testing.T) {
	sender := NewSender(true)
	sender.DrainOutgoing()
	receiver := NewReceiver()
	rOut := receiver.DrainOutgoing()
	_, _ = sender.FeedIncoming(rOut)

	require.NoError(t, sender.StartFile("test.txt", 100))
	sender.DrainOutgoing()
	_, err := sender.FeedIncoming(EncodeHeader(NewPosHeader(ZHEX, ZRPOS, 0)))
	require.NoError(t, err)
	require.NoError(t, sender.FeedFile(bytes.Repeat([]byte{0x41}, 100)))
	sender.DrainOutgoing()

	sender.FinishSession()

	_, err = sender.FeedIncoming(EncodeHeader(NewPosHeader(ZHEX, ZACK, 100)))
	require.NoError(t, err)
	assert.Equal(t, SenderWaitFileDone, sender.state)
	sender.DrainOutgoing() // ZEOF

	_, err = sender.FeedIncoming(EncodeHeader(NewHeader(ZHEX, ZRINIT)))
	require.NoError(t, err)
	ev, ok := sender.PollEvent()
	require.True(t, ok)
	assert.Equal(t, EventFileComplete, ev.Kind)
	assert.Equal(t, SenderWaitFinish, sender.state)

	out := sender.DrainOutgoing()
	require.True(t, bytes.Equal(out, EncodeHeader(NewHeader(ZHEX, ZFIN))))

	_, err = sender.FeedIncoming(EncodeHeader(NewHeader(ZHEX, ZFIN)))
	require.NoError(t, err)

	out = sender.DrainOutgoing()
	require.Equal(t, []byte{0x4F, 0x4F}, out)

	ev, ok = sender.PollEvent()
	require.True(t, ok)
	assert.Equal(t, EventSessionComplete, ev.Kind)
	assert.Equal(t, SenderDone, sender.state)
}

// TestReceiverIgnoresGarbageInput is the property test of spec §8: any
// byte sequence with no ZMODEM header inside must produce zero file
// data and zero events, leave the outgoing buffer unchanged, and be
// consumed identically regardless of how it's fragmented. The receiver
// starts with its initial ZRINIT still queued and undrained, so the
// outgoing-backpressure guard in FeedIncoming holds it off from the
// first byte of garbage on — it must stay queued, untouched, throughout.
func TestReceiverIgnoresGarbageInput(t *testing.T) {
	garbage := bytes.Repeat([]byte("not a zmodem frame, just noise. "), 2000)
	if len(garbage) > 64*1024 {
		garbage = garbage[:64*1024]
	}

	fragmentations := [][]int{{len(garbage)}, sizesOf(len(garbage), 1), sizesOf(len(garbage), 7), sizesOf(len(garbage), 999)}

	var referenceConsumed int
	var referenceOut []byte

	for fi, sizes := range fragmentations {
		receiver := NewReceiver()
		initialOut := append([]byte(nil), receiver.outgoing...)

		total := 0
		pos := 0
		for _, sz := range sizes {
			chunk := garbage[pos : pos+sz]
			pos += sz
			consumed, err := receiver.FeedIncoming(chunk)
			require.NoError(t, err)
			total += consumed
		}

		assert.Equal(t, 0, len(receiver.fileBuf))
		_, hasEvent := receiver.PollEvent()
		assert.False(t, hasEvent)

		out := receiver.DrainOutgoing()
		assert.Equal(t, initialOut, out, "outgoing buffer must remain the initial ZRINIT for fragmentation %d", fi)

		if fi == 0 {
			referenceConsumed = total
			referenceOut = out
		} else {
			assert.Equal(t, referenceConsumed, total, "consumed totals must match across fragmentations")
			assert.Equal(t, referenceOut, out)
		}
	}
}

func sizesOf(total, chunk int) []int {
	var sizes []int
	for total > 0 {
		n := chunk
		if n > total {
			n = total
		}
		sizes = append(sizes, n)
		total -= n
	}
	return sizes
}
