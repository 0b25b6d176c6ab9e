// Package ternary implements the base-3 calibration encoding used by the
// device decoder's ternary calibration pattern (id 4).
//
// Each LED's global index is mapped to a number that is a multiple of 7
// (the "checksum-to-7" encoding), and the pattern broadcasts that number's
// base-3 digits one at a time as red/green/blue frames so an external
// camera can uniquely identify every LED in the cube.
package ternary

// Digits is the number of base-3 digits broadcast per calibration cycle.
const Digits = 9

// TotalFrames is the full calibration cycle length: 2 bookend black frames
// plus one magenta sync marker plus 2*Digits alternating digit/black
// frames.
const TotalFrames = 3 + 2*Digits

// FrameHoldTicks is how many 30Hz pattern ticks each display frame is held
// for (0.2s per frame).
const FrameHoldTicks = 6

// GlobalID combines a channel index and a within-channel LED index into the
// global id used by the encoding: channel*200 + local index.
func GlobalID(channel, localIndex int) int {
	return channel*200 + localIndex
}

// Encode returns n = id*9 + (7 - (id*9 mod 7)). Note this always adds a
// positive checksum in [1,7], so ids that are already multiples of 7 land on
// the next multiple of 7 rather than staying put.
func Encode(id int) int {
	base := id * 9
	checksum := 7 - base%7
	return base + checksum
}

// Digit returns the k-th base-3 digit (k=0 is least significant) of n.
func Digit(n, k int) int {
	for i := 0; i < k; i++ {
		n /= 3
	}
	return n % 3
}

// Color is a normalized RGB triple in [0,1]^3.
type Color struct{ R, G, B float64 }

var (
	black   = Color{0, 0, 0}
	magenta = Color{1, 0, 1}
	red     = Color{1, 0, 0}
	green   = Color{0, 1, 0}
	blue    = Color{0, 0, 1}
)

// DigitColor maps a base-3 digit value to its display color: 0->red,
// 1->green, 2->blue.
func DigitColor(d int) Color {
	switch d {
	case 0:
		return red
	case 1:
		return green
	case 2:
		return blue
	default:
		return black
	}
}

// FrameColor returns the color a given global LED id should display during
// the given display-frame index (0..TotalFrames-1) of the calibration cycle.
func FrameColor(id, frameIndex int) Color {
	switch frameIndex {
	case 0, 2:
		return black
	case 1:
		return magenta
	}
	offset := frameIndex - 3
	if offset < 0 || offset >= 2*Digits {
		return black
	}
	if offset%2 == 1 {
		return black
	}
	k := offset / 2
	n := Encode(id)
	return DigitColor(Digit(n, k))
}

// FrameIndex returns which display frame of the cycle is active at pattern
// tick (a monotonically increasing 30Hz counter).
func FrameIndex(tick int) int {
	return (tick / FrameHoldTicks) % TotalFrames
}
