package sim

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hamster.go/pkg/l0/comm"
)

// Port is the transport hint selecting the simulated robot.
const Port = "sim"

// Robot physical properties.
const (
	// WheelBase is the distance between the wheels in millimeters.
	WheelBase = 30.0
	// MaxSpeed is the wheel speed in mm/s at wheel value 100.
	MaxSpeed = 300.0
	// PulsesPerMM converts travel to encoder pulses.
	PulsesPerMM = 1.0
	// Gravity is the raw accelerometer reading of 1 g.
	Gravity = 16384
)

// Action durations, in packets.
const (
	SoundPackets      = 20
	LineTracerPackets = 30
)

// Wire status of long running actions.
const (
	statusIdle    = 0
	statusRunning = 1
	statusDone    = 2
)

const recvQueueSize = 64

// Robot simulates the firmware: every packet sent to it is answered
// with one inbound packet. Like the firmware, consecutive sensory packets
// are never identical, the signal strength jitters.
type Robot struct {
	HardwareID byte
	// Tick is the simulated time covered by one packet.
	Tick time.Duration

	lock       sync.Mutex
	pose       Pose2D
	accel      [3]int16
	freeFallID int
	tapID      int
	ack        int
	io         byte
	pulseCount uint16

	pulseID    int
	pulsesLeft float64
	wheel      int

	soundID   int
	soundLeft int
	sound     int

	tracerID   int
	tracerLeft int
	tracer     int

	// seq varies the signal strength so consecutive reports differ.
	seq int

	passthruOutID int
	passthruInID  int
	echo          [][]byte

	recvCh chan []byte
	closed bool
}

// NewRobot creates a Robot resting flat, with its hello packet queued.
func NewRobot(hwid byte) *Robot {
	r := &Robot{
		HardwareID: hwid,
		Tick:       comm.DefaultInterval,
		accel:      [3]int16{0, 0, Gravity},
		recvCh:     make(chan []byte, recvQueueSize),
	}
	r.answer()
	return r
}

// Pose returns the current pose.
func (r *Robot) Pose() Pose2D {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.pose
}

// SetAcceleration sets the raw accelerometer reading.
func (r *Robot) SetAcceleration(x, y, z int16) {
	r.lock.Lock()
	r.accel = [3]int16{x, y, z}
	r.lock.Unlock()
}

// Tap simulates a tap on the robot.
func (r *Robot) Tap() {
	r.lock.Lock()
	r.tapID = (r.tapID + 1) & 3
	r.lock.Unlock()
}

// FreeFall simulates a free fall.
func (r *Robot) FreeFall() {
	r.lock.Lock()
	r.freeFallID = (r.freeFallID + 1) & 3
	r.lock.Unlock()
}

// Send implements comm.Transport.
func (r *Robot) Send(pkt []byte) error {
	body := strings.TrimRight(string(pkt), "\r\n")
	if pos := strings.IndexByte(body, '-'); pos >= 0 {
		body = body[:pos]
	}
	buf, err := hex.DecodeString(body)
	if err != nil {
		return fmt.Errorf("invalid packet %q: %w", pkt, err)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return comm.ErrClosed
	}
	switch {
	case len(buf) == comm.PassthroughOutSize && buf[0]&0x80 != 0:
		r.receiveSerial(buf)
	case len(buf) == comm.MotoringSize:
		r.motoring(buf)
	default:
		return fmt.Errorf("invalid packet size %d", len(buf))
	}
	r.answer()
	return nil
}

// TryRecv implements comm.Transport.
func (r *Robot) TryRecv() ([]byte, bool) {
	select {
	case pkt := <-r.recvCh:
		return pkt, true
	default:
		return nil, false
	}
}

// MatchesHandshake implements comm.Transport.
func (r *Robot) MatchesHandshake(pkt []byte) bool {
	return comm.MatchHardwareID(r.HardwareID)(pkt)
}

// Close implements io.Closer.
func (r *Robot) Close() error {
	r.lock.Lock()
	r.closed = true
	r.lock.Unlock()
	return nil
}

func (r *Robot) motoring(buf []byte) {
	left := float64(int8(buf[1])) * MaxSpeed / 100
	right := float64(int8(buf[2])) * MaxSpeed / 100
	if id := int(buf[9] >> 4); id != r.pulseID {
		r.pulseID = id
		r.pulsesLeft = float64(binary.BigEndian.Uint16(buf[10:]))
		r.wheel = statusRunning
	}
	r.drive(left, right)

	if mode, id := int(buf[12]>>4), int(buf[12]&0xf); id != r.tracerID {
		r.tracerID = id
		r.tracer, r.tracerLeft = statusIdle, 0
		if mode != 0 {
			r.tracer, r.tracerLeft = statusRunning, LineTracerPackets
		}
	}
	r.tracerLeft, r.tracer = countdown(r.tracerLeft, r.tracer)

	if buf[18] == 2 && int(buf[20]) != r.soundID {
		r.soundID = int(buf[20])
		r.sound, r.soundLeft = statusRunning, SoundPackets
	}
	r.soundLeft, r.sound = countdown(r.soundLeft, r.sound)

	if io := buf[15]; io>>4 != r.io>>4 {
		r.ack ^= 1
		r.io = io
	}
}

func countdown(left, status int) (int, int) {
	if status != statusRunning {
		return left, status
	}
	if left--; left <= 0 {
		return 0, statusDone
	}
	return left, status
}

// drive moves the robot with differential wheel speeds in mm/s for one tick.
func (r *Robot) drive(left, right float64) {
	secs := r.Tick.Seconds()
	dist := (left + right) / 2 * secs
	travel := (absf(left) + absf(right)) / 2 * secs
	r.pose.Pos2D.OffsetBy(r.pose.Orientation.Project(dist))
	r.pose.Orientation = r.pose.Orientation.AddRadians((right - left) / WheelBase * secs)
	r.pulseCount += uint16(travel * PulsesPerMM)

	if r.wheel != statusRunning {
		return
	}
	r.pulsesLeft -= travel * PulsesPerMM
	if r.pulsesLeft <= 0 {
		r.pulsesLeft, r.wheel = 0, statusDone
	}
}

func (r *Robot) receiveSerial(buf []byte) {
	id := int(buf[0] & 0xf)
	if id == r.passthruOutID {
		return
	}
	r.passthruOutID = id
	size := int(buf[1])
	if size > comm.SerialChunkSize {
		size = comm.SerialChunkSize
	}
	if size > 0 {
		r.echo = append(r.echo, append([]byte(nil), buf[2:2+size]...))
	}
}

// answer queues the next inbound packet, echoed serial data goes first.
func (r *Robot) answer() {
	var pkt string
	if len(r.echo) > 0 {
		data := r.echo[0]
		r.echo = r.echo[1:]
		r.passthruInID = r.passthruInID%15 + 1
		payload := make([]byte, comm.SerialChunkSize)
		copy(payload, data)
		pkt = fmt.Sprintf("%c%X%02X%s", comm.KindPassthrough, r.passthruInID, len(data),
			strings.ToUpper(hex.EncodeToString(payload)))
	} else {
		pkt = strings.ToUpper(hex.EncodeToString(r.sensory()))
	}
	select {
	case r.recvCh <- []byte(pkt):
	default:
		glog.Warningf("sim: receive queue full, drop %q", pkt)
	}
}

func (r *Robot) sensory() []byte {
	buf := make([]byte, comm.SensorySize)
	buf[0] = 0x10
	buf[1] = byte(r.pulseID)
	binary.BigEndian.PutUint16(buf[2:], r.pulseCount)
	binary.BigEndian.PutUint16(buf[6:], 500)
	for n, v := range r.accel {
		binary.BigEndian.PutUint16(buf[10+n*2:], uint16(v))
	}
	buf[18] = byte(r.freeFallID<<6 | r.tapID<<4 | r.wheel<<2 | r.sound)
	r.seq++
	rssi := int8(-40 - r.seq%4)
	buf[19] = byte(rssi)
	buf[20] = byte(r.tracer<<6 | r.ack<<3)
	buf[21] = r.HardwareID
	return buf
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Connector creates a Robot on each connect.
type Connector struct {
	HardwareID byte

	lock  sync.Mutex
	robot *Robot
}

// NewConnector creates a Connector.
func NewConnector(hwid byte) *Connector {
	return &Connector{HardwareID: hwid}
}

// Connect implements comm.Connector.
func (c *Connector) Connect(ctx context.Context, hint string) (comm.Transport, error) {
	if hint != Port {
		return nil, fmt.Errorf("sim: unknown port %q", hint)
	}
	r := NewRobot(c.HardwareID)
	c.lock.Lock()
	c.robot = r
	c.lock.Unlock()
	glog.Infof("sim: robot connected")
	return r, nil
}

// Robot returns the most recently connected robot.
func (c *Connector) Robot() *Robot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.robot
}
