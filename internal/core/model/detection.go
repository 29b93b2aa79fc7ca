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
	"bytes"
	"encoding/json"
)

// BoundingBox is the pixel geometry of a detected object. Services may report
// sub-pixel coordinates, so the values are kept as decoded.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection describes a single object found in the processed video. The field
// layout belongs to the detection service; the client only decodes it.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	FrameIndex *int        `json:"frame_index,omitempty"`
	Timestamp  *float64    `json:"timestamp,omitempty"`
}

// detectionEnvelope is the object form some service versions use.
type detectionEnvelope struct {
	Detections []Detection `json:"detections"`
}

// DecodeDetections parses a `get-last-detections` body. Both a bare array
// and an object with a `detections` field are accepted. An empty body, JSON
// null and an empty list all mean "no detections" and yield nil.
func DecodeDetections(body []byte) ([]Detection, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var detections []Detection
	if trimmed[0] == '{' {
		var envelope detectionEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		detections = envelope.Detections
	} else if err := json.Unmarshal(trimmed, &detections); err != nil {
		return nil, err
	}

	if len(detections) == 0 {
		return nil, nil
	}
	return detections, nil
}
