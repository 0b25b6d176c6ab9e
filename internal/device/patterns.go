package device

import (
	"math"

	"github.com/showrunner/controller/pkg/ternary"
)

// patternColor is a normalized RGB triple, deliberately distinct from
// ternary.Color so this package does not leak its dependency on ternary
// beyond the one pattern that needs it.
type patternColor struct{ R, G, B float64 }

// patternFrame computes the color for global LED id at the given channel,
// local index, and 30Hz pattern tick, for one of the six defined test
// patterns. All patterns are deterministic functions of
// (tick, channel, local index) so they require no host input and are safe
// as a non-black default when the host is silent.
func patternFrame(id byte, tick, channel, local, globalID int) patternColor {
	switch id {
	case 0:
		return channelIdentification(channel)
	case 1:
		return rgbCycle(tick)
	case 2:
		return colorCycle(tick, globalID)
	case 3:
		return endBlink(tick)
	case 4:
		c := ternary.FrameColor(globalID, ternary.FrameIndex(tick))
		return patternColor{c.R, c.G, c.B}
	case 5:
		return colorfulTwinkle(tick, globalID)
	default:
		return patternColor{}
	}
}

// channelIdentification assigns each of the 8 channels a distinct,
// recognizable color so a technician can confirm physical wiring.
func channelIdentification(channel int) patternColor {
	palette := []patternColor{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0},
		{0, 1, 1}, {1, 0, 1}, {1, 1, 1}, {1, 0.5, 0},
	}
	return palette[channel%len(palette)]
}

// rgbCycle sweeps a single solid color through red, green and blue over
// time, one full cycle every 90 ticks (3s at 30Hz).
func rgbCycle(tick int) patternColor {
	switch (tick / 30) % 3 {
	case 0:
		return patternColor{1, 0, 0}
	case 1:
		return patternColor{0, 1, 0}
	default:
		return patternColor{0, 0, 1}
	}
}

// colorCycle sweeps every LED through the same hue wheel, phase-shifted by
// global id so the cube visibly "breathes" color.
func colorCycle(tick, globalID int) patternColor {
	hue := math.Mod(float64(tick)/90.0+float64(globalID%360)/360.0, 1)
	return hsvToRGB(hue)
}

// endBlink blinks white at the end of each 2-second period, a simple
// "pattern cycle boundary" visual marker.
func endBlink(tick int) patternColor {
	if tick%60 >= 54 {
		return patternColor{1, 1, 1}
	}
	return patternColor{}
}

// colorfulTwinkle produces a deterministic pseudo-random sparkle per LED,
// using an integer hash rather than math/rand so the pattern is
// reproducible across runs for testing.
func colorfulTwinkle(tick, globalID int) patternColor {
	h := hash32(uint32(tick/4)*2654435761 + uint32(globalID))
	if h%5 != 0 {
		return patternColor{}
	}
	return hsvToRGB(float64(h%360) / 360.0)
}

func hash32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// hsvToRGB converts a fully-saturated, full-brightness hue in [0,1) to RGB.
func hsvToRGB(hue float64) patternColor {
	h := hue * 6
	i := int(math.Floor(h))
	f := h - float64(i)
	switch i % 6 {
	case 0:
		return patternColor{1, f, 0}
	case 1:
		return patternColor{1 - f, 1, 0}
	case 2:
		return patternColor{0, 1, f}
	case 3:
		return patternColor{0, 1 - f, 1}
	case 4:
		return patternColor{f, 0, 1}
	default:
		return patternColor{1, 0, 1 - f}
	}
}
