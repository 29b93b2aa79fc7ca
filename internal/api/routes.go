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

// This file wires the DevService into gin.
//
// Routes:
//   - POST /upload: multipart form with a "video" file. Returns
//     {"message", "video_path"}.
//   - POST /detect: JSON {"video_path", "confidence", "iou"}. Returns
//     {"message", "processed_video_path"}.
//   - GET /get-video/*path: the processed video bytes.
//   - GET /get-last-detections: the detections of the last detect call, or
//     404 when there are none.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type detectRequest struct {
	VideoPath  string   `json:"video_path" binding:"required"`
	Confidence *float64 `json:"confidence" binding:"required"`
	IoU        *float64 `json:"iou" binding:"required"`
}

// SetupRouter builds the gin engine serving s.
//
// Inputs:
//   - s: The state behind every route.
//   - serviceName: The service name reported on server spans.
//
// Outputs:
//   - *gin.Engine: The configured router, ready to be used as an http.Handler.
func SetupRouter(s *DevService, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/upload", s.handleUpload)
	r.POST("/detect", s.handleDetect)
	r.GET("/get-video/*path", s.handleGetVideo)
	r.GET("/get-last-detections", s.handleLastDetections)
	return r
}

// injectFault answers the request with the configured fault, if any.
func (s *DevService) injectFault(c *gin.Context, endpoint string) bool {
	f, ok := s.fault(endpoint)
	if !ok {
		return false
	}
	if f.Message == "" {
		c.Status(f.Status)
	} else {
		c.JSON(f.Status, gin.H{"message": f.Message})
	}
	return true
}

func (s *DevService) handleUpload(c *gin.Context) {
	call := Call{Endpoint: EndpointUpload, Method: c.Request.Method, Path: c.Request.URL.Path}
	file, err := c.FormFile("video")
	if err == nil {
		call.Filename = file.Filename
	}
	s.record(call)
	if s.injectFault(c, EndpointUpload) {
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No video file provided"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Uploaded video is empty"})
		return
	}

	path := s.storeUpload(file.Filename, content, file.Header.Get("Content-Type"))
	slog.InfoContext(c.Request.Context(), "video uploaded", "video_path", path, "bytes", len(content))
	c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully", "video_path": path})
}

func (s *DevService) handleDetect(c *gin.Context) {
	var req detectRequest
	bindErr := c.ShouldBindJSON(&req)
	call := Call{Endpoint: EndpointDetect, Method: c.Request.Method, Path: c.Request.URL.Path, VideoPath: req.VideoPath}
	if req.Confidence != nil {
		call.Confidence = *req.Confidence
	}
	if req.IoU != nil {
		call.IoU = *req.IoU
	}
	s.record(call)
	if s.injectFault(c, EndpointDetect) {
		return
	}
	if bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindErr.Error()})
		return
	}
	if !model.InUnitInterval(*req.Confidence) || !model.InUnitInterval(*req.IoU) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "confidence and iou must be between 0 and 1"})
		return
	}

	if s.processingDelay > 0 {
		select {
		case <-time.After(s.processingDelay):
		case <-c.Request.Context().Done():
			return
		}
	}

	processed, ok := s.process(req.VideoPath)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Video not found"})
		return
	}
	slog.InfoContext(c.Request.Context(), "video processed", "video_path", req.VideoPath, "processed_video_path", processed)
	c.JSON(http.StatusOK, gin.H{"message": "Video processed successfully", "processed_video_path": processed})
}

func (s *DevService) handleGetVideo(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	s.record(Call{Endpoint: EndpointGetVideo, Method: c.Request.Method, Path: c.Request.URL.Path, VideoPath: path})
	if s.injectFault(c, EndpointGetVideo) {
		return
	}

	video, contentType, ok := s.processedVideo(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Video not found"})
		return
	}
	c.Data(http.StatusOK, contentType, video.content)
}

func (s *DevService) handleLastDetections(c *gin.Context) {
	s.record(Call{Endpoint: EndpointLastDetections, Method: c.Request.Method, Path: c.Request.URL.Path})
	if s.injectFault(c, EndpointLastDetections) {
		return
	}

	detections := s.last()
	if detections == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "No detections available"})
		return
	}
	c.JSON(http.StatusOK, detections)
}
