package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	specs := All()
	require.Len(t, specs, int(numDevices))
	for n, spec := range specs {
		require.Equal(t, ID(n), spec.ID, "table order mismatch at %d", n)
		require.True(t, spec.Min <= spec.Max, spec.Name)
		require.True(t, spec.Default >= spec.Min && spec.Default <= spec.Max, spec.Name)
		id, ok := Lookup(spec.Name)
		require.True(t, ok, spec.Name)
		require.Equal(t, spec.ID, id)
		if spec.Category != Event {
			require.NotZero(t, spec.Components, spec.Name)
		}
	}
	_, ok := Lookup("warp_drive")
	require.False(t, ok)
	require.Nil(t, ID(-1).Spec())
	require.Nil(t, numDevices.Spec())
}

func TestStoreDefaults(t *testing.T) {
	s := NewStore()
	require.Equal(t, []float64{5}, s.Read(LineTracerSpeed))
	require.Equal(t, []float64{0, 0, 0}, s.Read(LeftLED))
	require.Empty(t, s.Read(Tap))
	require.Nil(t, s.Read(ID(1000)))
	require.False(t, s.AnyCommandPending())
}

func TestStoreClampRoundTrip(t *testing.T) {
	for _, spec := range All() {
		if !spec.Writable() {
			continue
		}
		spec := spec
		t.Run(spec.Name, func(t *testing.T) {
			s := NewStore()
			for _, v := range []float64{spec.Min, spec.Max, (spec.Min + spec.Max) / 2, spec.Max + 500, spec.Min - 500, 1e9, -1e9} {
				vals := make([]float64, spec.Components)
				expect := make([]float64, spec.Components)
				for i := range vals {
					vals[i] = v
					expect[i] = Clamp(&spec, v)
				}
				require.NoError(t, s.Write(spec.ID, vals...))
				require.Equal(t, expect, s.Read(spec.ID))
				for _, got := range s.Read(spec.ID) {
					require.True(t, got >= spec.Min && got <= spec.Max)
				}
			}
		})
	}
}

func TestStoreWheelClamp(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Write(LeftWheel, 500))
	require.Equal(t, []float64{100}, s.Read(LeftWheel))
	require.NoError(t, s.Write(LeftWheel, -42.7))
	require.Equal(t, []float64{-42}, s.Read(LeftWheel))
	require.NoError(t, s.Write(Buzzer, 440.5))
	require.Equal(t, []float64{440.5}, s.Read(Buzzer))
}

func TestStoreWriteErrors(t *testing.T) {
	testCases := []struct {
		name   string
		id     ID
		values []float64
	}{
		{"unknown", ID(99), []float64{1}},
		{"sensor", LeftProximity, []float64{1}},
		{"event", Tap, nil},
		{"too few", LeftLED, []float64{1, 2}},
		{"too many", LeftWheel, []float64{1, 2}},
		{"nan", LeftWheel, []float64{math.NaN()}},
		{"inf", Buzzer, []float64{math.Inf(1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			err := s.Write(tc.id, tc.values...)
			require.Error(t, err)
			rerr, ok := err.(*RangeError)
			require.True(t, ok)
			require.Equal(t, tc.id, rerr.Device)
		})
	}
}

func TestStoreWrittenFlag(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Write(LeftWheel, 10))
	require.False(t, s.Written(LeftWheel))
	require.False(t, s.AnyCommandPending())

	require.NoError(t, s.Write(WheelPulse, 100))
	require.True(t, s.Written(WheelPulse))
	require.True(t, s.AnyCommandPending())
	require.True(t, s.TakeWritten(WheelPulse))
	require.False(t, s.TakeWritten(WheelPulse))
	require.False(t, s.AnyCommandPending())
	require.Equal(t, 100, s.Int(WheelPulse))
}

func TestStoreWriteSensor(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.WriteSensor(Acceleration, 1, -40000, 40000))
	require.Equal(t, []float64{1, -32768, 32767}, s.Read(Acceleration))
	require.NoError(t, s.WriteSensor(Temperature, 24.5))
	require.Equal(t, 24.5, s.Value(Temperature))
	require.Error(t, s.WriteSensor(Tilt))

	s.Reset()
	require.Equal(t, []float64{0, 0, 0}, s.Read(Acceleration))
}

func TestFormatValues(t *testing.T) {
	testCases := []struct {
		values []float64
		sep    string
		expect string
	}{
		{nil, " ", ""},
		{[]float64{1, -2.5, 100}, " ", "1 -2.5 100"},
		{[]float64{255, 0, 16}, ",", "255,0,16"},
	}
	for _, tc := range testCases {
		t.Run(tc.expect, func(t *testing.T) {
			require.Equal(t, tc.expect, FormatValues(tc.values, tc.sep))
		})
	}
}
