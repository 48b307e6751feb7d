package device

// ID identifies a device slot.
type ID int

// Category classifies how a device is driven.
type Category int

// Categories
const (
	// Effector values are continuous and retransmitted every packet.
	Effector Category = iota
	// Command values are transmitted once per write.
	Command
	// Sensor values are decoded from sensory packets.
	Sensor
	// Event devices fire occurrences, optionally with a payload.
	Event
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case Effector:
		return "effector"
	case Command:
		return "command"
	case Sensor:
		return "sensor"
	case Event:
		return "event"
	}
	return "unknown"
}

// ValueType is the numeric type of device values.
type ValueType int

// Value types
const (
	Integer ValueType = iota
	Float
)

// Spec describes a device.
type Spec struct {
	ID         ID
	Name       string
	Category   Category
	Components int
	Type       ValueType
	Min        float64
	Max        float64
	Default    float64
}

// Writable indicates the application may write the device.
func (s *Spec) Writable() bool {
	return s.Category == Effector || s.Category == Command
}

// Device IDs
const (
	LeftWheel ID = iota
	RightWheel
	LeftLED
	RightLED
	OutputA
	OutputB
	Buzzer
	Note

	MotorMode
	WheelPulse
	Sound
	LineTracerMode
	LineTracerGain
	LineTracerSpeed
	IRCurrent
	GravityRange
	GravityBandwidth
	IOModeA
	IOModeB

	SignalStrength
	LeftProximity
	RightProximity
	LeftFloor
	RightFloor
	Acceleration
	Light
	Temperature
	InputA
	InputB
	PulseCount
	Battery

	FreeFall
	Tap
	Tilt
	SerialArrival
	WheelDone
	SoundDone
	LineTracerDone

	numDevices
)

// Tilt states
const (
	TiltRight      = -2
	TiltBackward   = -1
	TiltFlat       = 0
	TiltForward    = 1
	TiltLeft       = 2
	TiltUpsideDown = 3
	TiltVertical   = 4
)

// IO modes
const (
	IOModeAnalog     = 0
	IOModeDigital    = 1
	IOModePullUp     = 2
	IOModePullDown   = 3
	IOModeServo      = 8
	IOModePWM        = 9
	IOModeDigitalOut = 10
	IOModeSerial     = 11
)

var table = [numDevices]Spec{
	{LeftWheel, "left_wheel", Effector, 1, Integer, -100, 100, 0},
	{RightWheel, "right_wheel", Effector, 1, Integer, -100, 100, 0},
	{LeftLED, "left_led", Effector, 3, Integer, 0, 255, 0},
	{RightLED, "right_led", Effector, 3, Integer, 0, 255, 0},
	{OutputA, "output_a", Effector, 1, Integer, 0, 255, 0},
	{OutputB, "output_b", Effector, 1, Integer, 0, 255, 0},
	{Buzzer, "buzzer", Effector, 1, Float, 0, 6500, 0},
	{Note, "note", Effector, 1, Integer, 0, 88, 0},

	{MotorMode, "motor_mode", Command, 1, Integer, 0, 1, 0},
	{WheelPulse, "wheel_pulse", Command, 1, Integer, 0, 65535, 0},
	{Sound, "sound", Command, 1, Integer, 0, 127, 0},
	{LineTracerMode, "line_tracer_mode", Command, 1, Integer, 0, 15, 0},
	{LineTracerGain, "line_tracer_gain", Command, 1, Integer, 1, 8, 5},
	{LineTracerSpeed, "line_tracer_speed", Command, 1, Integer, 1, 8, 5},
	{IRCurrent, "ir_current", Command, 1, Integer, 0, 7, 2},
	{GravityRange, "gravity_range", Command, 1, Integer, 0, 3, 0},
	{GravityBandwidth, "gravity_bandwidth", Command, 1, Integer, 1, 8, 3},
	{IOModeA, "io_mode_a", Command, 1, Integer, 0, 15, 0},
	{IOModeB, "io_mode_b", Command, 1, Integer, 0, 15, 0},

	{SignalStrength, "signal_strength", Sensor, 1, Integer, -128, 0, 0},
	{LeftProximity, "left_proximity", Sensor, 1, Integer, 0, 255, 0},
	{RightProximity, "right_proximity", Sensor, 1, Integer, 0, 255, 0},
	{LeftFloor, "left_floor", Sensor, 1, Integer, 0, 255, 0},
	{RightFloor, "right_floor", Sensor, 1, Integer, 0, 255, 0},
	{Acceleration, "acceleration", Sensor, 3, Integer, -32768, 32767, 0},
	{Light, "light", Sensor, 1, Integer, 0, 65535, 0},
	{Temperature, "temperature", Sensor, 1, Float, -40, 88, 0},
	{InputA, "input_a", Sensor, 1, Integer, 0, 255, 0},
	{InputB, "input_b", Sensor, 1, Integer, 0, 255, 0},
	{PulseCount, "pulse_count", Sensor, 1, Integer, 0, 65535, 0},
	{Battery, "battery", Sensor, 1, Integer, 0, 3, 0},

	{FreeFall, "free_fall", Event, 0, Integer, 0, 0, 0},
	{Tap, "tap", Event, 0, Integer, 0, 0, 0},
	{Tilt, "tilt", Event, 1, Integer, TiltRight, TiltVertical, TiltFlat},
	{SerialArrival, "serial_arrival", Event, 0, Integer, 0, 0, 0},
	{WheelDone, "wheel_done", Event, 0, Integer, 0, 0, 0},
	{SoundDone, "sound_done", Event, 0, Integer, 0, 0, 0},
	{LineTracerDone, "line_tracer_done", Event, 0, Integer, 0, 0, 0},
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(table))
	for _, s := range table {
		m[s.Name] = s.ID
	}
	return m
}()

// IsValid checks if the ID is in the table.
func (id ID) IsValid() bool {
	return id >= 0 && id < numDevices
}

// Spec returns the spec of the device, nil if unknown.
func (id ID) Spec() *Spec {
	if !id.IsValid() {
		return nil
	}
	return &table[id]
}

// String implements fmt.Stringer.
func (id ID) String() string {
	if s := id.Spec(); s != nil {
		return s.Name
	}
	return "unknown"
}

// Lookup finds a device by name.
func Lookup(name string) (ID, bool) {
	id, ok := byName[name]
	return id, ok
}

// All returns specs of all devices in ID order.
func All() []Spec {
	specs := make([]Spec, len(table))
	copy(specs, table[:])
	return specs
}
