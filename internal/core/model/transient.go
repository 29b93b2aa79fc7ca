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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the values that only live for the
// duration of a single pipeline run: the selected video, the opaque paths the
// detection service hands back, and the raw response bodies of each stage.
// They are passed between the commands of the detection chain and are never
// persisted by the client.
package model

import (
	"errors"
	"mime"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
)

// DefaultVideoMIMEType is used when neither sniffing nor the file extension
// can tell what a file is.
const DefaultVideoMIMEType = "application/octet-stream"

// UploadedVideoPath is the server assigned identifier returned by the upload
// stage. It is only ever forwarded to the detect stage.
type UploadedVideoPath string

// ProcessedVideoPath is the server assigned identifier of the annotated video
// produced by the detect stage.
type ProcessedVideoPath string

// VideoFile is the binary the user selected. The pipeline borrows it for the
// duration of the upload call and never mutates it.
type VideoFile struct {
	Name     string // The file name sent with the multipart form.
	MIMEType string // The content type sent with the multipart part.
	Content  []byte // The raw video bytes.
}

// NewVideoFile wraps in-memory content. When mimeType is empty it is sniffed
// from the content.
func NewVideoFile(name string, content []byte, mimeType string) *VideoFile {
	if mimeType == "" {
		mimeType = DetectMIMEType(name, content)
	}
	return &VideoFile{Name: name, MIMEType: mimeType, Content: content}
}

// NewVideoFileFromPath reads a video from the local file system.
//
// Inputs:
//   - path: The location of the video file.
//
// Outputs:
//   - *VideoFile: The loaded file with its MIME type detected.
//   - error: Any error raised while reading the file.
func NewVideoFileFromPath(path string) (*VideoFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewVideoFile(filepath.Base(path), content, ""), nil
}

// Validate reports whether the file carries anything worth uploading.
func (v *VideoFile) Validate() error {
	if len(v.Content) == 0 {
		return errors.New("video file is empty")
	}
	return nil
}

// Size returns the number of bytes in the file.
func (v *VideoFile) Size() int {
	return len(v.Content)
}

// DetectMIMEType sniffs the content first, then falls back to the file
// extension, and finally to DefaultVideoMIMEType.
func DetectMIMEType(name string, content []byte) string {
	if kind, err := filetype.Match(content); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return DefaultVideoMIMEType
}

// UploadResponse is the body of a successful `POST /upload`.
type UploadResponse struct {
	Message   string            `json:"message"`
	VideoPath UploadedVideoPath `json:"video_path"`
}

// DetectRequest is the body sent to `POST /detect`. Confidence and IoU are
// always transmitted even when the service ignores them.
type DetectRequest struct {
	VideoPath  UploadedVideoPath `json:"video_path"`
	Confidence float64           `json:"confidence"`
	IoU        float64           `json:"iou"`
}

// DetectResponse is the body of a successful `POST /detect`.
type DetectResponse struct {
	Message            string             `json:"message"`
	ProcessedVideoPath ProcessedVideoPath `json:"processed_video_path"`
}

// DetectionOutcome is everything a successful run delivers to the
// presentation layer.
type DetectionOutcome struct {
	RunID      string
	Media      *MediaHandle
	Detections []Detection // nil when the service reported no detections.
}
