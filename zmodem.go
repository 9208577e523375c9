// Package zmodem implements the ZMODEM file transfer protocol as a pair
// of pure, transport-agnostic state machines. Sender and Receiver hold no
// socket, no file handle, and no goroutine: callers drive them by
// feeding received bytes in and draining bytes/file data out, on
// whatever schedule their transport allows (a net.Conn read loop, a
// serial port, a test harness replaying a fixture).
package zmodem

import (
	"time"
)

// FileMeta describes a file offered for sending. Data is pushed into
// the Sender via FeedFile rather than pulled through an io.Reader, so
// FileMeta carries only the metadata that goes into the ZFILE
// subpacket.
type FileMeta struct {
	Name    string
	Size    int64
	ModTime time.Time
	Mode    uint32
}

// FileInfo describes an incoming file, parsed from the peer's ZFILE
// subpacket.
type FileInfo struct {
	Name           string
	Size           int64
	ModTime        time.Time
	Mode           uint32
	FilesRemaining int
	BytesRemaining int64
}

// EventKind identifies the lifecycle events a Receiver (and, more
// sparingly, a Sender) surfaces to its caller via PollEvent.
type EventKind int

const (
	// EventFileStart fires once a ZFILE subpacket has been parsed and
	// accepted; Info is populated.
	EventFileStart EventKind = iota
	// EventFileComplete fires once a file's data has been fully
	// received and its ZEOF acknowledged.
	EventFileComplete
	// EventSessionComplete fires once ZFIN has been exchanged and the
	// session is over.
	EventSessionComplete
)

func (k EventKind) String() string {
	switch k {
	case EventFileStart:
		return "FileStart"
	case EventFileComplete:
		return "FileComplete"
	case EventSessionComplete:
		return "SessionComplete"
	default:
		return "Unknown"
	}
}

// Event is a single lifecycle notification. Info and BytesTransferred
// are populated according to Kind; fields that don't apply are left
// zero.
type Event struct {
	Kind             EventKind
	Info             FileInfo
	BytesTransferred int64
	Err              error
}
