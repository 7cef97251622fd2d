package engine

import "strings"

// Default per-class confidence thresholds
const (
	DefaultFireThreshold  = 0.70
	DefaultSmokeThreshold = 0.65
)

// Classifier reduces raw oracle output to a single dominant fire/smoke
// event candidate, applying per-class thresholds.
type Classifier struct {
	fireThreshold  float64
	smokeThreshold float64
}

// NewClassifier creates a classifier with the given per-class thresholds
func NewClassifier(fireThreshold, smokeThreshold float64) *Classifier {
	return &Classifier{
		fireThreshold:  fireThreshold,
		smokeThreshold: smokeThreshold,
	}
}

// Classify computes the per-class confidence maxima across all raw
// detections. Label matching is lenient: a case-insensitive substring
// match, so "small_fire" counts as fire. A label containing both
// substrings counts as fire.
func (c *Classifier) Classify(detections []Detection) ClassifiedResult {
	var result ClassifiedResult
	for _, d := range detections {
		label := strings.ToLower(d.Label)
		if strings.Contains(label, "fire") {
			if d.Confidence > result.MaxFireConfidence {
				result.MaxFireConfidence = d.Confidence
			}
		} else if strings.Contains(label, "smoke") {
			if d.Confidence > result.MaxSmokeConfidence {
				result.MaxSmokeConfidence = d.Confidence
			}
		}
	}
	return result
}

// Decide picks the dominant class and checks it against its threshold.
// A tie resolves to fire, the higher-severity class. Returns nil when no
// class qualifies.
func (c *Classifier) Decide(result ClassifiedResult) *Decision {
	if result.MaxFireConfidence == 0 && result.MaxSmokeConfidence == 0 {
		return nil
	}

	class := ClassSmoke
	confidence := result.MaxSmokeConfidence
	threshold := c.smokeThreshold
	if result.MaxFireConfidence >= result.MaxSmokeConfidence {
		class = ClassFire
		confidence = result.MaxFireConfidence
		threshold = c.fireThreshold
	}

	if confidence < threshold {
		return nil
	}
	return &Decision{Class: class, Confidence: confidence}
}
