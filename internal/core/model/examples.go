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

// This file provides canned data used by the development detection service
// and by tests.
package model

// GetExampleVideoContent returns the smallest byte sequence recognised as an
// MP4 container: a single `ftyp` box (brand isom, compatible with mp42)
// followed by an empty `mdat` box.
func GetExampleVideoContent() []byte {
	return []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'm', 'p', '4', '2',
		0x00, 0x00, 0x00, 0x08, 'm', 'd', 'a', 't',
	}
}

// GetExampleVideoFile wraps GetExampleVideoContent as an upload candidate.
func GetExampleVideoFile() *VideoFile {
	return NewVideoFile("test-trailer-001.mp4", GetExampleVideoContent(), "video/mp4")
}

// GetExampleDetections returns a deterministic detection list.
func GetExampleDetections() []Detection {
	first, second := 0, 12
	t0, t1 := 0.0, 0.4
	return []Detection{
		{
			Label:      "person",
			Confidence: 0.91,
			BBox:       BoundingBox{X: 34, Y: 50, Width: 120, Height: 310},
			FrameIndex: &first,
			Timestamp:  &t0,
		},
		{
			Label:      "car",
			Confidence: 0.78,
			BBox:       BoundingBox{X: 400, Y: 220, Width: 260, Height: 140},
			FrameIndex: &second,
			Timestamp:  &t1,
		},
	}
}
