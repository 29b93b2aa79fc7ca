// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultConfidence = 0.7
	DefaultIoU        = 0.5
)

// DetectionParameters holds the two thresholds the user tunes before a run.
//
// The setters are the edit-boundary guard used by input widgets: an edit that
// does not parse, is not finite, or falls outside [0, 1] is discarded and the
// last valid value is kept. The pipeline validates again at submit time with
// ValidateUnitInterval, since it can be driven without going through a widget.
type DetectionParameters struct {
	Confidence float64 `json:"confidence"`
	IoU        float64 `json:"iou"`
}

// NewDetectionParameters returns the parameters with their default values.
func NewDetectionParameters() *DetectionParameters {
	return &DetectionParameters{Confidence: DefaultConfidence, IoU: DefaultIoU}
}

// SetConfidence applies a numeric edit. It returns false when the edit was
// discarded.
func (p *DetectionParameters) SetConfidence(v float64) bool {
	if !InUnitInterval(v) {
		return false
	}
	p.Confidence = v
	return true
}

// SetIoU applies a numeric edit. It returns false when the edit was discarded.
func (p *DetectionParameters) SetIoU(v float64) bool {
	if !InUnitInterval(v) {
		return false
	}
	p.IoU = v
	return true
}

// SetConfidenceText applies a textual edit such as the raw value of an input box.
func (p *DetectionParameters) SetConfidenceText(text string) bool {
	v, ok := parseEdit(text)
	return ok && p.SetConfidence(v)
}

// SetIoUText applies a textual edit such as the raw value of an input box.
func (p *DetectionParameters) SetIoUText(text string) bool {
	v, ok := parseEdit(text)
	return ok && p.SetIoU(v)
}

func parseEdit(text string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// InUnitInterval reports whether v is a finite number in [0, 1].
func InUnitInterval(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}

// ValidateUnitInterval is the submit time check. It returns an
// *InvalidParameterError naming the offending parameter.
func ValidateUnitInterval(name string, v float64) error {
	if !InUnitInterval(v) {
		return &InvalidParameterError{Name: name, Value: v}
	}
	return nil
}
