package comm

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/robotalks/hamster.go/pkg/l0/device"
)

// PacketKind is the first character of an inbound packet.
type PacketKind byte

// Packet kinds
const (
	KindSensory     PacketKind = '1'
	KindPassthrough PacketKind = '2'
)

const (
	// SensorySize is the number of bytes in a sensory packet.
	SensorySize = 22
	// DefaultHardwareID is the signature reported by the robot.
	DefaultHardwareID byte = 0x0E
)

// Tilt thresholds on raw acceleration, 16384 is 1 g.
const (
	tiltAxis     = 8192
	tiltVertical = 14000
)

// Occurrence is fired by an event device.
type Occurrence struct {
	Device device.ID
	Values []float64
}

// Decoder applies inbound packets to the store and fires occurrences.
type Decoder struct {
	FreeFall   EventTracker
	Tap        EventTracker
	Tilt       EventTracker
	Serial     EventTracker
	Wheel      DebounceTracker
	Sound      DebounceTracker
	LineTracer DebounceTracker

	// SentPulseID is the pulse id of the last motoring packet sent.
	// Wheel completion is only counted when the robot echoes it.
	SentPulseID int

	ReadQueue *ReadQueue

	last      string
	ack       int
	ackBase   int
	portAcked bool
}

// NewDecoder creates a Decoder delivering passthrough chunks to rq.
func NewDecoder(rq *ReadQueue) *Decoder {
	d := &Decoder{ReadQueue: rq}
	d.Reset()
	return d
}

// Reset forgets everything observed on the link.
func (d *Decoder) Reset() {
	d.FreeFall.Reset()
	d.Tap.Reset()
	d.Tilt.Reset()
	d.Serial.Reset()
	d.Wheel = NewDebounceTracker(WheelDebounce)
	d.Sound = NewDebounceTracker(SoundDebounce)
	d.LineTracer = NewDebounceTracker(LineTracerDebounce)
	d.SentPulseID = 0
	d.last = ""
	d.ack, d.ackBase, d.portAcked = -1, -1, false
}

// PortModeChanged must be called when IOModeA is written.
// The serial port is not ready until the robot toggles its port-ack bit.
func (d *Decoder) PortModeChanged() {
	d.ackBase, d.portAcked = d.ack, false
}

// SerialReady reports whether passthrough packets can be sent.
func (d *Decoder) SerialReady(st *device.Store) bool {
	return d.portAcked && st.Int(device.IOModeA) == device.IOModeSerial
}

// Decode applies one inbound packet.
// On error, neither the store nor any tracker is modified.
func (d *Decoder) Decode(pkt string, st *device.Store) (PacketKind, []Occurrence, error) {
	body := trimPacket(pkt)
	if body == "" {
		return 0, nil, malformed("empty")
	}
	switch kind := PacketKind(body[0]); kind {
	case KindSensory:
		if body == d.last {
			return kind, nil, nil
		}
		buf, err := parseSensory(body)
		if err != nil {
			return kind, nil, err
		}
		d.last = body
		return kind, d.applySensory(buf, st), nil
	case KindPassthrough:
		id, data, err := parsePassthrough(body)
		if err != nil {
			return kind, nil, err
		}
		return kind, d.applyPassthrough(id, data), nil
	default:
		return kind, nil, &DecodeError{Kind: UnknownKind, Reason: strconv.Quote(body[:1])}
	}
}

func trimPacket(pkt string) string {
	pkt = strings.TrimRight(pkt, "\r\n")
	if pos := strings.IndexByte(pkt, '-'); pos >= 0 {
		pkt = pkt[:pos]
	}
	return pkt
}

func parseSensory(body string) ([]byte, error) {
	if len(body) != SensorySize*2 {
		return nil, malformed("sensory length %d", len(body))
	}
	buf, err := hex.DecodeString(body)
	if err != nil {
		return nil, malformed("sensory: %v", err)
	}
	return buf, nil
}

func parsePassthrough(body string) (int, []byte, error) {
	if len(body) < 4 {
		return 0, nil, malformed("passthrough length %d", len(body))
	}
	id, err := strconv.ParseUint(body[1:2], 16, 8)
	if err != nil {
		return 0, nil, malformed("passthrough id %q", body[1:2])
	}
	size, err := strconv.ParseUint(body[2:4], 16, 8)
	if err != nil || size > SerialChunkSize {
		return 0, nil, malformed("passthrough size %q", body[2:4])
	}
	payload, err := hex.DecodeString(body[4:])
	if err != nil {
		return 0, nil, malformed("passthrough payload: %v", err)
	}
	if uint64(len(payload)) < size {
		return 0, nil, malformed("passthrough payload %d < %d", len(payload), size)
	}
	return int(id), payload[:size], nil
}

func (d *Decoder) applySensory(buf []byte, st *device.Store) (events []Occurrence) {
	fire := func(id device.ID, values ...float64) {
		events = append(events, Occurrence{Device: id, Values: values})
	}
	u16 := func(off int) float64 {
		return float64(binary.BigEndian.Uint16(buf[off:]))
	}
	i16 := func(off int) float64 {
		return float64(int16(binary.BigEndian.Uint16(buf[off:])))
	}

	st.WriteSensor(device.PulseCount, u16(2))
	st.WriteSensor(device.LeftProximity, float64(buf[4]))
	st.WriteSensor(device.RightProximity, float64(buf[5]))
	if buf[0]&1 != 0 {
		st.WriteSensor(device.Temperature, float64(int8(buf[6]))/2+24)
	} else {
		st.WriteSensor(device.Light, u16(6))
	}
	st.WriteSensor(device.LeftFloor, float64(buf[8]))
	st.WriteSensor(device.RightFloor, float64(buf[9]))
	x, y, z := i16(10), i16(12), i16(14)
	st.WriteSensor(device.Acceleration, x, y, z)
	st.WriteSensor(device.InputA, float64(buf[16]))
	st.WriteSensor(device.InputB, float64(buf[17]))
	st.WriteSensor(device.SignalStrength, float64(int8(buf[19])))
	st.WriteSensor(device.Battery, float64(batteryLevel(int(buf[20]>>4)&3)))

	status := buf[18]
	if d.FreeFall.Update(int(status >> 6)) {
		fire(device.FreeFall)
	}
	if d.Tap.Update(int(status>>4) & 3) {
		fire(device.Tap)
	}
	tilt := TiltOf(x, y, z)
	st.WriteSensor(device.Tilt, float64(tilt))
	if d.Tilt.Update(tilt) {
		fire(device.Tilt, float64(tilt))
	}

	if int(buf[1]) == d.SentPulseID && d.Wheel.Update(int(status>>2)&3) {
		fire(device.WheelDone)
	}
	if d.Sound.Update(int(status) & 3) {
		st.WriteSensor(device.Sound, 0)
		fire(device.SoundDone)
	}
	if d.LineTracer.Update(int(buf[20] >> 6)) {
		fire(device.LineTracerDone)
	}

	ack := int(buf[20]>>3) & 1
	if d.ackBase < 0 {
		d.ackBase = ack
	} else if ack != d.ackBase {
		d.portAcked = true
	}
	d.ack = ack
	return
}

func (d *Decoder) applyPassthrough(id int, data []byte) (events []Occurrence) {
	last, seen := d.Serial.Last()
	if d.Serial.Update(id) {
		events = append(events, Occurrence{Device: device.SerialArrival})
	}
	if (!seen || id != last) && len(data) > 0 && d.ReadQueue != nil {
		d.ReadQueue.Push(data)
	}
	return
}

// TiltOf classifies raw acceleration, first matching rule wins.
func TiltOf(x, y, z float64) int {
	switch {
	case z < -tiltAxis:
		return device.TiltUpsideDown
	case x > tiltVertical || x < -tiltVertical || y > tiltVertical || y < -tiltVertical:
		return device.TiltVertical
	case x > tiltAxis:
		return device.TiltForward
	case x < -tiltAxis:
		return device.TiltBackward
	case y > tiltAxis:
		return device.TiltLeft
	case y < -tiltAxis:
		return device.TiltRight
	}
	return device.TiltFlat
}

// batteryLevel maps the wire code, 0 and 2 are swapped.
func batteryLevel(code int) int {
	switch code {
	case 0:
		return 2
	case 2:
		return 0
	}
	return code
}

// MatchHardwareID returns a handshake matcher accepting sensory packets
// reporting hwid.
func MatchHardwareID(hwid byte) func([]byte) bool {
	return func(pkt []byte) bool {
		body := trimPacket(string(pkt))
		if body == "" || PacketKind(body[0]) != KindSensory {
			return false
		}
		buf, err := parseSensory(body)
		return err == nil && buf[SensorySize-1] == hwid
	}
}
