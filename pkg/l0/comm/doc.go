// Package comm implements the host side of the robot's hex-text link.
//
// The robot streams sensory packets at a fixed cadence. Every packet
// received is decoded into a device.Store and answered with exactly one
// outbound packet encoded from the same store, so the decode always
// happens before the paired encode.
//
// Outbound packets are either motoring packets, carrying all effector
// and command values, or passthrough packets carrying up to 18 bytes for
// the robot's auxiliary serial port. Command values are transmitted once
// per write by consuming the store's written flags; firmware side
// completion of a command is reported as a status field which is
// debounced over consecutive packets before the completion event fires.
//
// Producer: robot firmware
// Consumer: host application
package comm
