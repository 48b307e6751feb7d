// Package serial connects to the robot over a serial port.
package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hamster.go/pkg/framework"
)

const (
	// DefaultQueueSize is the number of received packets buffered.
	DefaultQueueSize = 64
	// MaxPacketSize bounds a received line, longer lines are discarded.
	MaxPacketSize = 256

	idleWait = 5 * time.Millisecond
)

// Link frames packets on a byte stream.
// Inbound packets end with '\r', '\n' is ignored.
type Link struct {
	rw      io.ReadWriteCloser
	matcher func([]byte) bool
	recvCh  chan []byte

	// unread is returned by TryRecv before recvCh.
	unreadLock sync.Mutex
	unread     []byte

	writeLock sync.Mutex
	runner    *framework.Runner
	closeOnce sync.Once
	closeErr  error
}

// NewLink starts receiving from rw.
// matcher validates the handshake packet, nil accepts any packet.
func NewLink(rw io.ReadWriteCloser, matcher func([]byte) bool, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Link{
		rw:      rw,
		matcher: matcher,
		recvCh:  make(chan []byte, queueSize),
	}
	l.runner = framework.NewRunner().Go(framework.NamedRun("serial-recv", framework.RunFunc(l.recvLoop)))
	return l
}

// Send implements comm.Transport.
func (l *Link) Send(p []byte) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	_, err := l.rw.Write(p)
	return err
}

// TryRecv implements comm.Transport.
func (l *Link) TryRecv() ([]byte, bool) {
	l.unreadLock.Lock()
	p := l.unread
	l.unread = nil
	l.unreadLock.Unlock()
	if p != nil {
		return p, true
	}
	select {
	case p := <-l.recvCh:
		return p, true
	default:
		return nil, false
	}
}

// Unread puts p back to be received first.
func (l *Link) Unread(p []byte) {
	l.unreadLock.Lock()
	l.unread = p
	l.unreadLock.Unlock()
}

// MatchesHandshake implements comm.Transport.
func (l *Link) MatchesHandshake(p []byte) bool {
	return l.matcher == nil || l.matcher(p)
}

// Close stops receiving and closes the port.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.runner.Stop()
	})
	return l.closeErr
}

func (l *Link) recvLoop(ctx context.Context) error {
	return framework.RunWithContextCloser(ctx, l.rw, func() error {
		buf := make([]byte, MaxPacketSize)
		var line []byte
		overflow := false
		for ctx.Err() == nil {
			n, err := l.rw.Read(buf)
			for _, b := range buf[:n] {
				switch b {
				case '\r':
					if !overflow && len(line) > 0 {
						l.deliver(append([]byte(nil), line...))
					}
					line, overflow = line[:0], false
				case '\n':
				default:
					if len(line) < MaxPacketSize {
						line = append(line, b)
					} else {
						overflow = true
					}
				}
			}
			switch {
			case err == nil && n > 0:
			case err == nil || errors.Is(err, io.EOF):
				// read timeout
				time.Sleep(idleWait)
			default:
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		return nil
	})
}

func (l *Link) deliver(p []byte) {
	select {
	case l.recvCh <- p:
	default:
		glog.V(2).Infof("serial: receiver slow, drop %q", p)
	}
}
