// Package asyncbufio moves buffered writing onto a background goroutine, so
// the caller's acquisition path never blocks on disk.
package asyncbufio

import (
	"bufio"
	"io"
	"time"
)

// Writer queues data on a channel and drains it to a bufio.Writer on its own
// goroutine. The underlying writer is flushed on a fixed interval and on
// demand.
type Writer struct {
	writer        *bufio.Writer
	data          chan []byte   // queued writes, oldest first
	flushNow      chan struct{} // request an immediate flush
	flushComplete chan struct{} // a requested flush has finished
	flushInterval time.Duration
}

// NewWriter wraps w. Up to channelDepth writes may be queued before Write
// reports a full pipeline; the writer flushes every flushInterval regardless.
func NewWriter(w io.Writer, channelDepth int, flushInterval time.Duration) *Writer {
	aw := &Writer{
		writer:        bufio.NewWriter(w),
		data:          make(chan []byte, channelDepth),
		flushNow:      make(chan struct{}),
		flushComplete: make(chan struct{}),
		flushInterval: flushInterval,
	}
	go aw.writeLoop()
	return aw
}

// Write queues p for writing. The bytes are copied, so the caller may reuse p
// immediately. If the queue is full the write is refused with ErrShortWrite
// rather than blocking the caller.
func (aw *Writer) Write(p []byte) (int, error) {
	owned := make([]byte, len(p))
	copy(owned, p)
	select {
	case aw.data <- owned:
		return len(p), nil
	default:
		return 0, io.ErrShortWrite
	}
}

// WriteString queues s for writing.
func (aw *Writer) WriteString(s string) (int, error) {
	select {
	case aw.data <- []byte(s):
		return len(s), nil
	default:
		return 0, io.ErrShortWrite
	}
}

// Flush drains the queue into the underlying writer and flushes it, blocking
// until that is complete.
func (aw *Writer) Flush() error {
	aw.flushNow <- struct{}{}
	<-aw.flushComplete
	return nil
}

// Close flushes remaining data and stops the background goroutine. Write or
// Flush after Close will panic.
func (aw *Writer) Close() {
	close(aw.flushNow)
	<-aw.flushComplete
}

func (aw *Writer) writeLoop() {
	ticker := time.NewTicker(aw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case p := <-aw.data:
			aw.writer.Write(p)

		case _, ok := <-aw.flushNow:
			aw.drainAndFlush()
			aw.flushComplete <- struct{}{}
			if !ok {
				return
			}

		case <-ticker.C:
			aw.drainAndFlush()
		}
	}
}

// drainAndFlush empties the queue, then flushes the underlying writer.
func (aw *Writer) drainAndFlush() {
	for {
		select {
		case p := <-aw.data:
			aw.writer.Write(p)
		default:
			aw.writer.Flush()
			return
		}
	}
}
