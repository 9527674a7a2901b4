package analyze

import "math"

// Timing holds the shortest SCL low and high periods found in a capture, in
// seconds, and the SCL frequency they would allow. Periods before the first
// and after the last edge are unbounded and not measured.
type Timing struct {
	Low, High float64
	Edges     int
}

// Frequency is the bit rate implied by the shortest periods.
func (t Timing) Frequency() float64 {
	if t.Low == 0 || t.High == 0 {
		return 0
	}
	return 1 / (t.Low + t.High)
}

// MeasureSCL measures the shortest low and high periods of scl.
func MeasureSCL(scl Channel) Timing {
	tm := Timing{Low: math.Inf(1), High: math.Inf(1), Edges: len(scl.Transitions)}
	lvl := scl.Initial
	for i := 1; i < len(scl.Transitions); i++ {
		lvl = !lvl // level after transition i-1.
		period := scl.Transitions[i] - scl.Transitions[i-1]
		if lvl {
			tm.High = min(tm.High, period)
		} else {
			tm.Low = min(tm.Low, period)
		}
	}
	if math.IsInf(tm.Low, 1) {
		tm.Low = 0
	}
	if math.IsInf(tm.High, 1) {
		tm.High = 0
	}
	return tm
}
