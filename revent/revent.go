// Package revent defines the EventDetector collaborator — segmenting raw
// current samples into events is out of scope (spec.md §1), but a reference
// two-window t-test segmenter is provided so the pipeline runs end to end.
package revent

import "math"

// Params configures event detection; defaults mirror ri_mapopt_init's
// window_length1/2, threshold1/2, peak_height fields.
type Params struct {
	WindowLength1 uint32
	WindowLength2 uint32
	Threshold1    float32
	Threshold2    float32
	PeakHeight    float32
}

// Detector segments a slice of raw current samples into events (one value
// per detected boundary, typically the segment mean). It is a pure
// function: no state survives between calls.
type Detector interface {
	Detect(samples []float32, p Params) []float32
}

// TTestDetector implements the reference two-window Welch's-t-test
// segmenter described in revents.h/roptions.c: a boundary is raised when
// the short window's mean diverges from the long window's by more than
// Threshold1 standard errors. Threshold2 and PeakHeight are accepted in
// Params but not used by this detector.
type TTestDetector struct{}

func windowStats(samples []float32, start, length int) (mean, variance float32) {
	if length <= 0 || start+length > len(samples) {
		return 0, 0
	}
	var sum float32
	for i := 0; i < length; i++ {
		sum += samples[start+i]
	}
	mean = sum / float32(length)
	var sq float32
	for i := 0; i < length; i++ {
		d := samples[start+i] - mean
		sq += d * d
	}
	if length > 1 {
		variance = sq / float32(length-1)
	}
	return mean, variance
}

func tStatistic(mean1, var1 float32, n1 uint32, mean2, var2 float32, n2 uint32) float32 {
	denom := var1/float32(n1) + var2/float32(n2)
	if denom <= 0 {
		return 0
	}
	return float32(math.Abs(float64((mean1 - mean2) / float32(math.Sqrt(float64(denom))))))
}

// Detect walks samples comparing, at each candidate boundary i, the short
// window (WindowLength1 samples ending just before i) with the long window
// (WindowLength2 samples starting at i); wherever their means diverge
// beyond Threshold1, it closes the current segment and starts a new one,
// emitting the closed segment's mean as one event. There is a single pass;
// Threshold2 and PeakHeight are ignored.
func (TTestDetector) Detect(samples []float32, p Params) []float32 {
	n1, n2 := int(p.WindowLength1), int(p.WindowLength2)
	if n1 <= 0 {
		n1 = 1
	}
	if n2 <= n1 {
		n2 = n1 + 1
	}
	if len(samples) < n2 {
		if len(samples) == 0 {
			return nil
		}
		mean, _ := windowStats(samples, 0, len(samples))
		return []float32{mean}
	}

	var boundaries []int
	segmentStart := 0
	i := n2
	for i < len(samples) {
		shortMean, shortVar := windowStats(samples, i-n1, n1)
		longMean, longVar := windowStats(samples, i, n2)
		t := tStatistic(shortMean, shortVar, p.WindowLength1, longMean, longVar, p.WindowLength2)
		if t > p.Threshold1 && (i-segmentStart) >= n1 {
			boundaries = append(boundaries, i)
			segmentStart = i
			i += n1
			continue
		}
		i++
	}

	events := make([]float32, 0, len(boundaries)+1)
	start := 0
	for _, b := range boundaries {
		mean, _ := windowStats(samples, start, b-start)
		events = append(events, mean)
		start = b
	}
	if start < len(samples) {
		mean, _ := windowStats(samples, start, len(samples)-start)
		events = append(events, mean)
	}
	_ = p.PeakHeight // not used by this detector
	return events
}
