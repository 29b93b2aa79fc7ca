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

// Package api implements a development detection service that speaks the same
// HTTP contract as the production one. It keeps uploads and processed videos
// in memory, answers every detect request with a fixed detection list and can
// be told to fail in the ways a real service does, which makes it the backend
// of the end to end tests and of local runs of the client.
package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// Endpoint names used for fault injection and in the call log.
const (
	EndpointUpload         = "upload"
	EndpointDetect         = "detect"
	EndpointGetVideo       = "get-video"
	EndpointLastDetections = "get-last-detections"
)

const processedMIMEType = "video/mp4"

// Fault forces an endpoint to answer with Status and, when set, a JSON
// {"message": Message} body.
type Fault struct {
	Status  int
	Message string
}

// Call is one request the service received.
type Call struct {
	Endpoint   string
	Method     string
	Path       string
	Filename   string
	VideoPath  string
	Confidence float64
	IoU        float64
}

type storedVideo struct {
	content  []byte
	mimeType string
}

// DevService is the in-memory state behind the routes. It is safe for
// concurrent use.
type DevService struct {
	mu              sync.Mutex
	processingDelay time.Duration
	uploads         map[string]storedVideo
	processed       map[string]storedVideo
	lastDetections  []model.Detection
	detections      []model.Detection

	faults             map[string]Fault
	emptyProcessedPath bool
	mediaContentType   string
	calls              []Call
}

// NewDevService creates a service with no stored videos. Each detect call
// records model.GetExampleDetections as the last detections.
func NewDevService(config cloud.DevServer) *DevService {
	return &DevService{
		processingDelay: time.Duration(config.ProcessingDelayMs) * time.Millisecond,
		uploads:         make(map[string]storedVideo),
		processed:       make(map[string]storedVideo),
		detections:      model.GetExampleDetections(),
		faults:          make(map[string]Fault),
	}
}

// FailEndpoint makes every later request to endpoint fail with the fault.
func (s *DevService) FailEndpoint(endpoint string, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[endpoint] = fault
}

// ReturnEmptyProcessedPath makes detect succeed without naming a processed video.
func (s *DevService) ReturnEmptyProcessedPath(empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyProcessedPath = empty
}

// SetMediaContentType overrides the Content-Type served by get-video. The
// empty string restores video/mp4.
func (s *DevService) SetMediaContentType(contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaContentType = contentType
}

// SetDetections replaces the list recorded by each detect call. Nil means the
// service reports no detections.
func (s *DevService) SetDetections(detections []model.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = detections
}

// Reset clears stored videos, faults and the call log.
func (s *DevService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = make(map[string]storedVideo)
	s.processed = make(map[string]storedVideo)
	s.lastDetections = nil
	s.detections = model.GetExampleDetections()
	s.faults = make(map[string]Fault)
	s.emptyProcessedPath = false
	s.mediaContentType = ""
	s.calls = nil
}

// Calls returns a copy of the call log.
func (s *DevService) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many requests reached endpoint.
func (s *DevService) CallCount(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *DevService) record(call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *DevService) fault(endpoint string) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[endpoint]
	return f, ok
}

func (s *DevService) storeUpload(filename string, content []byte, mimeType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := fmt.Sprintf("uploads/%s_%s", uuid.New().String(), filename)
	s.uploads[path] = storedVideo{content: content, mimeType: mimeType}
	return path
}

// process creates the processed copy of an uploaded video and records the
// detections. It returns false when the upload is unknown.
func (s *DevService) process(videoPath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, ok := s.uploads[videoPath]
	if !ok {
		return "", false
	}
	s.lastDetections = s.detections
	if s.emptyProcessedPath {
		return "", true
	}
	path := fmt.Sprintf("processed/%s.mp4", uuid.New().String())
	s.processed[path] = storedVideo{content: upload.content, mimeType: processedMIMEType}
	return path, true
}

func (s *DevService) processedVideo(path string) (storedVideo, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.processed[path]
	contentType := video.mimeType
	if s.mediaContentType != "" {
		contentType = s.mediaContentType
	}
	return video, contentType, ok
}

func (s *DevService) last() []model.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetections
}
