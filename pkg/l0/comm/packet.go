package comm

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"

	"github.com/robotalks/hamster.go/pkg/l0/device"
)

const (
	// MotoringSize is the number of bytes in a motoring packet.
	MotoringSize = 21
	// PassthroughOutSize is the number of bytes in an outbound passthrough packet.
	PassthroughOutSize = 2 + SerialChunkSize

	// DefaultAddress is the link address appended to outbound packets.
	DefaultAddress = "000000000000"

	// PacketTerminator ends every outbound packet.
	PacketTerminator = '\r'
)

// Sound field selectors.
const (
	soundBuzzer = 0x00
	soundNote   = 0x01
	soundEffect = 0x02
)

// Encoder produces one outbound packet per call.
// It owns the rolling ids of commands and passthrough chunks.
type Encoder struct {
	Address string

	pulseID    int
	tracerID   int
	soundID    int
	passthruID int
}

// PulseID returns the rolling id of the last consumed WheelPulse write.
func (e *Encoder) PulseID() int {
	return e.pulseID
}

// Reset clears the rolling ids.
func (e *Encoder) Reset() {
	e.pulseID, e.tracerID, e.soundID, e.passthruID = 0, 0, 0, 0
}

// Encode consumes pending command flags and produces a motoring packet,
// or a passthrough packet when no command is pending, the queue has a chunk
// and serialReady is set.
func (e *Encoder) Encode(st *device.Store, wq *WriteQueue, serialReady bool) string {
	if serialReady && wq != nil && !st.AnyCommandPending() {
		if chunk, ok := wq.Pop(); ok {
			return e.frame(e.passthrough(chunk))
		}
	}
	return e.frame(e.motoring(st))
}

func (e *Encoder) frame(buf []byte) string {
	var sb strings.Builder
	addr := e.Address
	if addr == "" {
		addr = DefaultAddress
	}
	sb.Grow(len(buf)*2 + len(addr) + 2)
	sb.WriteString(strings.ToUpper(hex.EncodeToString(buf)))
	sb.WriteByte('-')
	sb.WriteString(addr)
	sb.WriteByte(PacketTerminator)
	return sb.String()
}

func (e *Encoder) passthrough(chunk []byte) []byte {
	e.passthruID = nextID(e.passthruID, 15)
	buf := make([]byte, PassthroughOutSize)
	buf[0] = 0x80 | byte(e.passthruID)
	buf[1] = byte(len(chunk))
	copy(buf[2:], chunk)
	return buf
}

func (e *Encoder) motoring(st *device.Store) []byte {
	buf := make([]byte, MotoringSize)

	st.TakeWritten(device.MotorMode)
	buf[0] = 0x10 | byte(st.Int(device.MotorMode))
	buf[1] = byte(int8(st.Int(device.LeftWheel)))
	buf[2] = byte(int8(st.Int(device.RightWheel)))
	for n, v := range st.Read(device.LeftLED) {
		buf[3+n] = byte(v)
	}
	for n, v := range st.Read(device.RightLED) {
		buf[6+n] = byte(v)
	}

	pulse := st.Int(device.WheelPulse)
	if st.TakeWritten(device.WheelPulse) && pulse != 0 {
		e.pulseID = nextID(e.pulseID, 15)
	}
	buf[9] = byte(e.pulseID << 4)
	binary.BigEndian.PutUint16(buf[10:], uint16(pulse))

	if st.TakeWritten(device.LineTracerMode) {
		e.tracerID = nextID(e.tracerID, 15)
	}
	buf[12] = byte(st.Int(device.LineTracerMode)<<4 | e.tracerID)
	st.TakeWritten(device.LineTracerGain)
	st.TakeWritten(device.LineTracerSpeed)
	buf[13] = byte((st.Int(device.LineTracerSpeed)-1)<<4 | (st.Int(device.LineTracerGain) - 1))

	st.TakeWritten(device.IRCurrent)
	st.TakeWritten(device.GravityRange)
	st.TakeWritten(device.GravityBandwidth)
	buf[14] = byte(st.Int(device.IRCurrent) |
		st.Int(device.GravityRange)<<3 |
		(st.Int(device.GravityBandwidth)-1)<<5)

	st.TakeWritten(device.IOModeA)
	st.TakeWritten(device.IOModeB)
	buf[15] = byte(st.Int(device.IOModeA)<<4 | st.Int(device.IOModeB))
	buf[16] = byte(st.Int(device.OutputA))
	buf[17] = byte(st.Int(device.OutputB))

	sound := st.Int(device.Sound)
	if st.TakeWritten(device.Sound) && sound != 0 {
		e.soundID = nextID(e.soundID, 255)
	}
	switch note := st.Int(device.Note); {
	case sound != 0:
		buf[18], buf[19], buf[20] = soundEffect, byte(sound), byte(e.soundID)
	case note != 0:
		buf[18], buf[19] = soundNote, byte(note)
	default:
		buf[18] = soundBuzzer
		hz := math.Round(st.Value(device.Buzzer) * 10)
		binary.BigEndian.PutUint16(buf[19:], uint16(hz))
	}
	return buf
}

// nextID advances a rolling id in 1..limit.
func nextID(id, limit int) int {
	return id%limit + 1
}
