package comm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hamster.go/pkg/l0/device"
)

// sensoryBytes returns the raw content of a sensory packet from a robot
// lying flat.
func sensoryBytes() []byte {
	buf := make([]byte, SensorySize)
	buf[0] = 0x10
	binary.BigEndian.PutUint16(buf[14:], 16384)
	buf[19] = 0xC0
	buf[21] = DefaultHardwareID
	return buf
}

func sensoryPacket(buf []byte) string {
	return strings.ToUpper(hex.EncodeToString(buf)) + "-" + DefaultAddress + "\r"
}

type sensoryBuilder []byte

func newSensory() sensoryBuilder {
	return sensoryBuilder(sensoryBytes())
}

func (b sensoryBuilder) with(fn func([]byte)) sensoryBuilder {
	c := append(sensoryBuilder(nil), b...)
	fn(c)
	return c
}

// status sets free-fall, tap, wheel and sound state.
func (b sensoryBuilder) status(freeFall, tap, wheel, sound int) sensoryBuilder {
	return b.with(func(buf []byte) {
		buf[18] = byte(freeFall<<6 | tap<<4 | wheel<<2 | sound)
	})
}

// noise changes a byte no tracker looks at, so the packet isn't a duplicate.
func (b sensoryBuilder) noise(n int) sensoryBuilder {
	return b.with(func(buf []byte) { buf[19] = byte(0xC0 + n) })
}

func (b sensoryBuilder) String() string {
	return sensoryPacket(b)
}

func decodeOK(t *testing.T, d *Decoder, st *device.Store, pkt string) []Occurrence {
	_, events, err := d.Decode(pkt, st)
	require.NoErrorf(t, err, "decode %q", pkt)
	return events
}

func eventIDs(events []Occurrence) (ids []device.ID) {
	for _, ev := range events {
		ids = append(ids, ev.Device)
	}
	return
}

func TestDecodeSensors(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	pkt := newSensory().with(func(buf []byte) {
		binary.BigEndian.PutUint16(buf[2:], 1234)
		buf[4], buf[5] = 10, 20
		binary.BigEndian.PutUint16(buf[6:], 500)
		buf[8], buf[9] = 30, 40
		binary.BigEndian.PutUint16(buf[10:], uint16(0xffff))
		binary.BigEndian.PutUint16(buf[12:], 2)
		buf[16], buf[17] = 50, 60
		buf[19] = 0xB0
		buf[20] = 0x10
	})
	kind, events, err := d.Decode(pkt.String(), st)
	require.NoError(t, err)
	require.Equal(t, KindSensory, kind)
	require.Empty(t, events)

	expects := map[device.ID][]float64{
		device.PulseCount:     {1234},
		device.LeftProximity:  {10},
		device.RightProximity: {20},
		device.Light:          {500},
		device.LeftFloor:      {30},
		device.RightFloor:     {40},
		device.Acceleration:   {-1, 2, 16384},
		device.InputA:         {50},
		device.InputB:         {60},
		device.SignalStrength: {-80},
		device.Battery:        {1},
		device.Tilt:           {device.TiltFlat},
		device.Temperature:    {0},
	}
	for id, expect := range expects {
		require.Equalf(t, expect, st.Read(id), "%s", id)
	}
}

func TestDecodeTemperature(t *testing.T) {
	testCases := []struct {
		raw    byte
		expect float64
	}{
		{0x00, 24},
		{0x01, 24.5},
		{0x10, 32},
		{0xFE, 23},
		{0x80, -40},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%02X", tc.raw), func(t *testing.T) {
			st := device.NewStore()
			pkt := newSensory().with(func(buf []byte) {
				buf[0] = 0x11
				buf[6], buf[7] = tc.raw, 0xAA
			})
			decodeOK(t, NewDecoder(nil), st, pkt.String())
			require.Equal(t, tc.expect, st.Value(device.Temperature))
			require.Zero(t, st.Value(device.Light))
		})
	}
}

func TestDecodeBattery(t *testing.T) {
	for code, expect := range []int{2, 1, 0, 3} {
		st := device.NewStore()
		pkt := newSensory().with(func(buf []byte) { buf[20] = byte(code << 4) })
		decodeOK(t, NewDecoder(nil), st, pkt.String())
		require.Equalf(t, expect, st.Int(device.Battery), "code %d", code)
	}
}

func TestTiltOf(t *testing.T) {
	testCases := []struct {
		name    string
		x, y, z float64
		expect  int
	}{
		{"flat", 0, 0, 16384, device.TiltFlat},
		{"upside down", 0, 0, -16384, device.TiltUpsideDown},
		{"upside down wins", 15000, 0, -9000, device.TiltUpsideDown},
		{"vertical x", 15000, 0, 0, device.TiltVertical},
		{"vertical y", 0, -15000, 0, device.TiltVertical},
		{"forward", 9000, 0, 12000, device.TiltForward},
		{"backward", -9000, 0, 12000, device.TiltBackward},
		{"left", 0, 9000, 12000, device.TiltLeft},
		{"right", 0, -9000, 12000, device.TiltRight},
		{"forward wins over left", 9000, 9000, 8000, device.TiltForward},
		{"boundary", 8192, -8192, -8192, device.TiltFlat},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, TiltOf(tc.x, tc.y, tc.z))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := newSensory().String()
	testCases := []struct {
		name string
		pkt  string
		kind DecodeErrorKind
	}{
		{"empty", "", Malformed},
		{"terminator only", "\r", Malformed},
		{"unknown kind", "3" + valid[1:], UnknownKind},
		{"short sensory", valid[:40], Malformed},
		{"long sensory", valid[:44] + "00", Malformed},
		{"non hex sensory", "1G" + valid[2:], Malformed},
		{"short passthrough", "21", Malformed},
		{"passthrough size", "2114" + strings.Repeat("00", 20), Malformed},
		{"passthrough payload", "2105" + "0102", Malformed},
		{"passthrough odd", "2101" + "010", Malformed},
		{"passthrough non hex", "2101" + "ZZ", Malformed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := device.NewStore()
			d := NewDecoder(&ReadQueue{})
			// establish a baseline the failing packet must not touch.
			decodeOK(t, d, st, newSensory().status(1, 1, 0, 0).String())
			before := st.Read(device.Acceleration)

			_, events, err := d.Decode(tc.pkt, st)
			require.Error(t, err)
			derr, ok := err.(*DecodeError)
			require.True(t, ok)
			require.Equal(t, tc.kind, derr.Kind)
			require.Empty(t, events)
			require.Equal(t, before, st.Read(device.Acceleration))
			require.Zero(t, d.ReadQueue.Len())
			last, _ := d.FreeFall.Last()
			require.Equal(t, 1, last)
		})
	}
}

func TestDecodeNoPhantomFirstEvent(t *testing.T) {
	for freeFall := 0; freeFall < 4; freeFall++ {
		st := device.NewStore()
		d := NewDecoder(&ReadQueue{})
		first := newSensory().status(freeFall, 3-freeFall, 0, 0).with(func(buf []byte) {
			binary.BigEndian.PutUint16(buf[14:], uint16(0xC000))
		})
		require.Emptyf(t, decodeOK(t, d, st, first.String()), "free-fall id %d", freeFall)
		require.Equal(t, float64(device.TiltUpsideDown), st.Value(device.Tilt))
		require.Empty(t, decodeOK(t, d, st, "2"+fmt.Sprintf("%X", freeFall)+"0161"))

		// same ids, other sensors changed.
		require.Empty(t, decodeOK(t, d, st, first.noise(1).String()))

		next := first.status((freeFall+1)%4, 3-freeFall, 0, 0).noise(2)
		require.Equal(t, []device.ID{device.FreeFall}, eventIDs(decodeOK(t, d, st, next.String())))
	}
}

func TestDecodeEvents(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	decodeOK(t, d, st, newSensory().String())

	events := decodeOK(t, d, st, newSensory().status(0, 1, 0, 0).String())
	require.Equal(t, []Occurrence{{Device: device.Tap}}, events)

	tilted := newSensory().status(0, 1, 0, 0).with(func(buf []byte) {
		binary.BigEndian.PutUint16(buf[10:], 12000)
	})
	events = decodeOK(t, d, st, tilted.String())
	require.Equal(t, []Occurrence{{Device: device.Tilt, Values: []float64{device.TiltForward}}}, events)

	// tilt changes within the same state fire nothing.
	events = decodeOK(t, d, st, tilted.with(func(buf []byte) {
		binary.BigEndian.PutUint16(buf[10:], 12500)
	}).String())
	require.Empty(t, events)

	events = decodeOK(t, d, st, newSensory().status(2, 2, 0, 0).String())
	require.Equal(t, []device.ID{device.FreeFall, device.Tap, device.Tilt}, eventIDs(events))
}

func TestDecodeDuplicateIsIdempotent(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	decodeOK(t, d, st, newSensory().String())
	d.Sound.Arm()

	pkt := newSensory().status(0, 1, 0, 2).String()
	require.Equal(t, []device.ID{device.Tap}, eventIDs(decodeOK(t, d, st, pkt)))
	require.Equal(t, 1, d.Sound.Count())
	for n := 0; n < 10; n++ {
		require.Empty(t, decodeOK(t, d, st, pkt))
		require.Equal(t, 1, d.Sound.Count())
	}
}

func TestDecodeSoundDone(t *testing.T) {
	st := device.NewStore()
	require.NoError(t, st.Write(device.Sound, 3))
	d := NewDecoder(nil)
	d.Sound.Arm()
	base := newSensory().status(0, 0, 0, 2)
	for n := 0; n < SoundDebounce.Thresholds[2]-1; n++ {
		require.Empty(t, decodeOK(t, d, st, base.noise(n).String()))
	}
	events := decodeOK(t, d, st, base.noise(10).String())
	require.Equal(t, []device.ID{device.SoundDone}, eventIDs(events))
	require.Zero(t, st.Value(device.Sound))
	require.Equal(t, DebounceIdle, d.Sound.State())
}

func TestDecodeWheelDoneNeedsEcho(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	d.Wheel.Arm()
	d.SentPulseID = 3
	stale := newSensory().status(0, 0, 2, 0).with(func(buf []byte) { buf[1] = 0x02 })
	for n := 0; n < 10; n++ {
		require.Empty(t, decodeOK(t, d, st, stale.noise(n).String()))
	}
	require.Equal(t, DebounceArmed, d.Wheel.State())

	echoed := stale.with(func(buf []byte) { buf[1] = 0x03 })
	var fired []device.ID
	for n := 0; n < WheelDebounce.Thresholds[2]; n++ {
		fired = append(fired, eventIDs(decodeOK(t, d, st, echoed.noise(n).String()))...)
	}
	require.Equal(t, []device.ID{device.WheelDone}, fired)
}

func TestDecodeLineTracerDone(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	d.LineTracer.Arm()
	done := newSensory().with(func(buf []byte) { buf[20] = 0x80 })
	var fired []device.ID
	for n := 0; n < LineTracerDebounce.Thresholds[2]+3; n++ {
		fired = append(fired, eventIDs(decodeOK(t, d, st, done.noise(n).String()))...)
	}
	require.Equal(t, []device.ID{device.LineTracerDone}, fired)
}

func TestDecodePortAck(t *testing.T) {
	st := device.NewStore()
	d := NewDecoder(nil)
	require.NoError(t, st.Write(device.IOModeA, device.IOModeSerial))
	d.PortModeChanged()
	require.False(t, d.SerialReady(st))

	decodeOK(t, d, st, newSensory().String())
	require.False(t, d.SerialReady(st))
	decodeOK(t, d, st, newSensory().noise(1).String())
	require.False(t, d.SerialReady(st))

	acked := newSensory().with(func(buf []byte) { buf[20] = 0x08 })
	decodeOK(t, d, st, acked.String())
	require.True(t, d.SerialReady(st))

	// mode changed again, wait for the next toggle.
	d.PortModeChanged()
	require.False(t, d.SerialReady(st))
	decodeOK(t, d, st, acked.noise(1).String())
	require.False(t, d.SerialReady(st))
	decodeOK(t, d, st, newSensory().noise(2).String())
	require.True(t, d.SerialReady(st))

	require.NoError(t, st.Write(device.IOModeA, device.IOModeDigital))
	require.False(t, d.SerialReady(st))
}

func TestDecodePassthrough(t *testing.T) {
	st := device.NewStore()
	rq := &ReadQueue{}
	d := NewDecoder(rq)

	kind, events, err := d.Decode("2103414243"+strings.Repeat("00", 15), st)
	require.NoError(t, err)
	require.Equal(t, KindPassthrough, kind)
	require.Empty(t, events)

	// repeated chunk.
	require.Empty(t, decodeOK(t, d, st, "2103414243"))
	require.Equal(t, []device.ID{device.SerialArrival}, eventIDs(decodeOK(t, d, st, "22020D0A")))
	require.Equal(t, []device.ID{device.SerialArrival}, eventIDs(decodeOK(t, d, st, "2300")))

	data, ok := rq.Read(DelimiterAll)
	require.True(t, ok)
	require.Equal(t, []byte("ABC\r\n"), data)
}

func TestPassthroughRoundTrip(t *testing.T) {
	payload := []byte("line one\nthe second line\n3rd line here\n!")
	require.Len(t, payload, 40)

	var enc Encoder
	var wq WriteQueue
	rq := &ReadQueue{}
	d := NewDecoder(rq)
	st := device.NewStore()
	require.NoError(t, st.Write(device.IOModeA, device.IOModeSerial))
	ticket, err := wq.Put(payload, false)
	require.NoError(t, err)
	require.Equal(t, 3, wq.Len())

	var packets int
	for wq.Len() > 0 || st.AnyCommandPending() {
		require.False(t, wq.Sent(ticket))
		buf := outBytes(t, enc.Encode(st, &wq, true))
		if len(buf) == MotoringSize {
			continue
		}
		packets++
		require.Equal(t, byte(0x80), buf[0]&0xF0)
		in := fmt.Sprintf("2%X%02X%s", buf[0]&0x0F, buf[1], strings.ToUpper(hex.EncodeToString(buf[2:])))
		decodeOK(t, d, st, in)
	}
	require.Equal(t, 3, packets)
	require.True(t, wq.Sent(ticket))

	for _, line := range []string{"line one\n", "the second line\n", "3rd line here\n"} {
		data, ok := rq.Read('\n')
		require.True(t, ok)
		require.Equal(t, line, string(data))
	}
	_, ok := rq.Read('\n')
	require.False(t, ok)
	data, ok := rq.Read(DelimiterAll)
	require.True(t, ok)
	require.Equal(t, "!", string(data))
}

func TestMatchHardwareID(t *testing.T) {
	match := MatchHardwareID(DefaultHardwareID)
	require.True(t, match([]byte(newSensory().String())))
	require.True(t, match([]byte(strings.TrimSuffix(newSensory().String(), "-"+DefaultAddress+"\r"))))
	require.False(t, match([]byte(newSensory().with(func(buf []byte) { buf[21] = 0x04 }).String())))
	require.False(t, match([]byte("2103414243")))
	require.False(t, match([]byte("1234")))
	require.False(t, match(nil))
}
