package eval

import "math"

// Sample is one validated contact and whether it was the truth person.
type Sample struct {
	Confidence int
	Correct    bool
}

// Bucket is one confidence range. Accuracy and MeanConfidence are on the
// same 0-100 scale.
type Bucket struct {
	Lower          int     `json:"lower"`
	Upper          int     `json:"upper"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
	Accuracy       float64 `json:"accuracy"`
	Gap            float64 `json:"gap"`
}

// Calibration compares predicted confidence with observed accuracy.
type Calibration struct {
	Samples int      `json:"samples"`
	Buckets []Bucket `json:"buckets"`
	// ECE is the sample-weighted mean absolute gap, in points.
	ECE             float64 `json:"ece"`
	MaxGap          float64 `json:"max_gap"`
	Tolerance       float64 `json:"tolerance"`
	WithinTolerance bool    `json:"within_tolerance"`
}

// Calibrate buckets samples by confidence in ranges of width points. The
// last bucket includes 100. Empty buckets are omitted.
func Calibrate(samples []Sample, width int, tolerance float64) Calibration {
	if width <= 0 {
		width = 10
	}
	n := (100 + width - 1) / width
	type acc struct {
		count, correct int
		sum            float64
	}
	bins := make([]acc, n)
	for _, s := range samples {
		conf := s.Confidence
		if conf < 0 {
			conf = 0
		}
		i := conf / width
		if i >= n {
			i = n - 1
		}
		bins[i].count++
		bins[i].sum += float64(conf)
		if s.Correct {
			bins[i].correct++
		}
	}

	cal := Calibration{Samples: len(samples), Tolerance: tolerance, WithinTolerance: true}
	for i, b := range bins {
		if b.count == 0 {
			continue
		}
		upper := (i+1)*width - 1
		if i == n-1 {
			upper = 100
		}
		bk := Bucket{
			Lower:          i * width,
			Upper:          upper,
			Count:          b.count,
			MeanConfidence: b.sum / float64(b.count),
			Accuracy:       100 * float64(b.correct) / float64(b.count),
		}
		bk.Gap = math.Abs(bk.MeanConfidence - bk.Accuracy)
		cal.Buckets = append(cal.Buckets, bk)

		cal.ECE += float64(b.count) / float64(len(samples)) * bk.Gap
		if bk.Gap > cal.MaxGap {
			cal.MaxGap = bk.Gap
		}
		if bk.Gap > tolerance {
			cal.WithinTolerance = false
		}
	}
	return cal
}
