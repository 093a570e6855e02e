// Package packet contains the demuxed packet definition and the
// retention pool.
package packet

import "math"

// NoPTS is the sentinel that marks an unknown timestamp or duration.
const NoPTS float64 = -(1 << 63)

// Packet is a demuxed packet of a single source stream.
// Timestamps are in seconds; NoPTS marks unknown values.
type Packet struct {
	PTS      float64
	DTS      float64
	Duration float64
	Keyframe bool
	Payload  []byte
}

// AddPTS shifts a timestamp by an offset. The sentinel is never
// shifted and propagates unchanged.
func AddPTS(pts float64, offset float64) float64 {
	if pts == NoPTS {
		return NoPTS
	}
	return pts + offset
}

// MinPTS returns the smaller of two timestamps, ignoring unknown ones.
func MinPTS(a float64, b float64) float64 {
	switch {
	case a == NoPTS:
		return b
	case b == NoPTS:
		return a
	}
	return math.Min(a, b)
}

// MaxPTS returns the greater of two timestamps, ignoring unknown ones.
func MaxPTS(a float64, b float64) float64 {
	switch {
	case a == NoPTS:
		return b
	case b == NoPTS:
		return a
	}
	return math.Max(a, b)
}
