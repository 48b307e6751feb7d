package comm

import (
	"bytes"
	"sync"

	"github.com/golang/glog"
)

const (
	// SerialQueueCapacity is the number of chunks a serial queue holds.
	SerialQueueCapacity = 64
	// SerialChunkSize is the max payload size of a passthrough packet.
	SerialChunkSize = 18
	// SerialNewline is appended by WriteSerial when a line is requested.
	SerialNewline = '\n'
)

// Ticket identifies a payload enqueued by WriteSerial.
type Ticket uint64

// Delimiter selects how ReadSerial splits received bytes.
// Non-negative values are byte delimiters.
type Delimiter int

// DelimiterAll reads everything received so far.
const DelimiterAll Delimiter = -1

type outChunk struct {
	data   []byte
	ticket Ticket
}

type ticketRange struct {
	from, to Ticket
}

// WriteQueue is the outbound passthrough FIFO.
// Tickets complete in order.
type WriteQueue struct {
	lock   sync.Mutex
	chunks []outChunk
	ticket Ticket
	// tickets dropped by Clear.
	dropped []ticketRange
}

// Put splits data into chunks and enqueues all of them, or none.
func (q *WriteQueue) Put(data []byte, newline bool) (Ticket, error) {
	if newline {
		data = append(append(make([]byte, 0, len(data)+1), data...), SerialNewline)
	}
	needed := (len(data) + SerialChunkSize - 1) / SerialChunkSize
	q.lock.Lock()
	defer q.lock.Unlock()
	if free := SerialQueueCapacity - len(q.chunks); needed > free {
		return 0, &QueueFullError{Needed: needed, Free: free}
	}
	q.ticket++
	for off := 0; off < len(data); off += SerialChunkSize {
		end := off + SerialChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-off)
		copy(chunk, data[off:end])
		q.chunks = append(q.chunks, outChunk{data: chunk, ticket: q.ticket})
	}
	return q.ticket, nil
}

// Pop removes the next chunk.
func (q *WriteQueue) Pop() ([]byte, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	c := q.chunks[0]
	q.chunks[0] = outChunk{}
	q.chunks = q.chunks[1:]
	return c.data, true
}

// Len returns the number of pending chunks.
func (q *WriteQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.chunks)
}

// Sent reports whether the ticket and all tickets before it left the queue.
// Tickets dropped by Clear are never sent.
func (q *WriteQueue) Sent(t Ticket) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if t == 0 || t > q.ticket {
		return false
	}
	if len(q.chunks) > 0 && t >= q.chunks[0].ticket {
		return false
	}
	for _, r := range q.dropped {
		if t >= r.from && t <= r.to {
			return false
		}
	}
	return true
}

// Clear drops all pending chunks.
func (q *WriteQueue) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()
	if n := len(q.chunks); n > 0 {
		glog.Warningf("serial: drop %d unsent chunks", n)
		q.dropped = append(q.dropped, ticketRange{from: q.chunks[0].ticket, to: q.ticket})
	}
	q.chunks = nil
}

// ReadQueue is the inbound passthrough FIFO.
type ReadQueue struct {
	lock   sync.Mutex
	chunks [][]byte
}

// Push enqueues a received chunk, the chunk is dropped when the queue is full.
func (q *ReadQueue) Push(data []byte) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.chunks) >= SerialQueueCapacity {
		glog.Warningf("serial: read queue full, drop %d bytes", len(data))
		return false
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	q.chunks = append(q.chunks, chunk)
	return true
}

// Len returns the number of pending chunks.
func (q *ReadQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.chunks)
}

// Read removes bytes up to and including delim.
// With DelimiterAll, everything pending is returned.
// It returns false when nothing matches.
func (q *ReadQueue) Read(delim Delimiter) ([]byte, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if delim < 0 {
		if len(q.chunks) == 0 {
			return nil, false
		}
		data := bytes.Join(q.chunks, nil)
		q.chunks = nil
		return data, true
	}
	for n, chunk := range q.chunks {
		pos := bytes.IndexByte(chunk, byte(delim))
		if pos < 0 {
			continue
		}
		data := bytes.Join(q.chunks[:n], nil)
		data = append(data, chunk[:pos+1]...)
		if rest := chunk[pos+1:]; len(rest) > 0 {
			q.chunks[n] = rest
			q.chunks = q.chunks[n:]
		} else {
			q.chunks = q.chunks[n+1:]
		}
		return data, true
	}
	return nil, false
}

// Clear drops all pending chunks.
func (q *ReadQueue) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.chunks = nil
}
