package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RangeError is returned when a write can't be applied to a device.
type RangeError struct {
	Device ID
	Reason string
}

// Error implements error.
func (e *RangeError) Error() string {
	return fmt.Sprintf("device %s: %s", e.Device, e.Reason)
}

type slot struct {
	values  []float64
	written bool
}

// Store holds the current values of all devices.
// It is not safe for concurrent use, the owner serializes access.
type Store struct {
	slots [numDevices]slot
}

// NewStore creates a Store with default values.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset restores all devices to defaults and clears written flags.
func (s *Store) Reset() {
	for n := range table {
		spec := &table[n]
		vals := make([]float64, spec.Components)
		for i := range vals {
			vals[i] = spec.Default
		}
		s.slots[n] = slot{values: vals}
	}
}

// Write writes values of an Effector or Command device.
func (s *Store) Write(id ID, values ...float64) error {
	spec := id.Spec()
	if spec == nil {
		return &RangeError{Device: id, Reason: "unknown device"}
	}
	if !spec.Writable() {
		return &RangeError{Device: id, Reason: spec.Category.String() + " is read-only"}
	}
	if err := s.store(spec, values); err != nil {
		return err
	}
	if spec.Category == Command {
		s.slots[id].written = true
	}
	return nil
}

// WriteSensor writes values decoded from the wire.
// Category is not checked and the written flag is never set.
func (s *Store) WriteSensor(id ID, values ...float64) error {
	spec := id.Spec()
	if spec == nil {
		return &RangeError{Device: id, Reason: "unknown device"}
	}
	return s.store(spec, values)
}

func (s *Store) store(spec *Spec, values []float64) error {
	if len(values) != spec.Components {
		return &RangeError{
			Device: spec.ID,
			Reason: fmt.Sprintf("expect %d values, got %d", spec.Components, len(values)),
		}
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &RangeError{Device: spec.ID, Reason: "value not finite"}
		}
	}
	dst := s.slots[spec.ID].values
	for i, v := range values {
		dst[i] = Clamp(spec, v)
	}
	return nil
}

// Read returns a copy of current values.
func (s *Store) Read(id ID) []float64 {
	if !id.IsValid() {
		return nil
	}
	src := s.slots[id].values
	vals := make([]float64, len(src))
	copy(vals, src)
	return vals
}

// Value returns the first component, 0 for devices without components.
func (s *Store) Value(id ID) float64 {
	if !id.IsValid() || len(s.slots[id].values) == 0 {
		return 0
	}
	return s.slots[id].values[0]
}

// Int returns the first component as int.
func (s *Store) Int(id ID) int {
	return int(s.Value(id))
}

// Written reports the written flag without clearing it.
func (s *Store) Written(id ID) bool {
	return id.IsValid() && s.slots[id].written
}

// TakeWritten returns the written flag and clears it.
func (s *Store) TakeWritten(id ID) bool {
	if !id.IsValid() {
		return false
	}
	w := s.slots[id].written
	s.slots[id].written = false
	return w
}

// AnyCommandPending reports if any Command device has an unconsumed write.
func (s *Store) AnyCommandPending() bool {
	for n := range table {
		if table[n].Category == Command && s.slots[n].written {
			return true
		}
	}
	return false
}

// Clamp clamps v into the range of spec, integer devices truncate toward zero.
func Clamp(spec *Spec, v float64) float64 {
	if v < spec.Min {
		v = spec.Min
	} else if v > spec.Max {
		v = spec.Max
	}
	if spec.Type == Integer {
		v = math.Trunc(v)
	}
	return v
}

// FormatValues formats values in the shortest form, joined by sep.
func FormatValues(values []float64, sep string) string {
	strs := make([]string, len(values))
	for n, v := range values {
		strs[n] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(strs, sep)
}
