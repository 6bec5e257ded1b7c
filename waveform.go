package labdaq

// Stimulus waveforms for output tasks. The defaults match the signals the
// bench setups drive into a loopback rig: a 0–5 V sine and an up/down ramp.

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SineStimulus returns a looping sine wave, one full cycle every n ticks,
// with the given amplitude and DC offset.
func SineStimulus(n int, amplitude, offset float64) Stimulus {
	points := make([]float64, n)
	for i := range points {
		points[i] = amplitude*math.Sin(2*math.Pi*float64(i)/float64(n)) + offset
	}
	return func(i int) float64 {
		return points[i%len(points)]
	}
}

// DefaultSineStimulus is the 100-point, 0–5 V sine (amplitude 2.5 V around a
// 2.5 V offset) used when a run doesn't specify its own stimulus.
func DefaultSineStimulus() Stimulus {
	return SineStimulus(100, 2.5, 2.5)
}

// RampStimulus returns a looping ramp from lo to hi over nUp evenly spaced
// points, then back down to lo over nDown points starting one step below hi.
// A leg needs at least 2 points to have a slope; shorter requests are clamped.
func RampStimulus(lo, hi float64, nUp, nDown int) Stimulus {
	if nUp < 2 {
		nUp = 2
	}
	if nDown < 2 {
		nDown = 2
	}
	up := make([]float64, nUp)
	floats.Span(up, lo, hi)
	step := (hi - lo) / float64(nUp-1)
	down := make([]float64, nDown)
	floats.Span(down, hi-step, lo)
	points := append(up, down...)
	return func(i int) float64 {
		return points[i%len(points)]
	}
}
