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

// Package services_test exercises the detection service client against
// in-process HTTP servers.
package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *services.DetectionService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := services.NewDetectionServiceWithClient(srv.URL+"/", srv.Client(), t.TempDir())
	require.NoError(t, err)
	return svc
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewDetectionServiceRejectsBadURL(t *testing.T) {
	_, err := services.NewDetectionServiceWithClient("localhost:8080", nil, "")
	assert.Error(t, err)

	svc, err := services.NewDetectionService(cloud.DetectionServiceConfig{BaseURL: "http://localhost:8080/", TimeoutMs: 1500, RequestsPerSecond: 5})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", svc.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, svc.HTTPClient.Timeout)
	assert.IsType(t, &cloud.QuotaAwareTransport{}, svc.HTTPClient.Transport)
}

func TestUploadSendsMultipartVideo(t *testing.T) {
	video := model.GetExampleVideoFile()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		file, header, err := r.FormFile("video")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)

		assert.Equal(t, video.Name, header.Filename)
		assert.Equal(t, "video/mp4", header.Header.Get("Content-Type"))
		assert.Equal(t, video.Content, content)

		writeJSON(w, http.StatusOK, map[string]string{"message": "Video uploaded successfully", "video_path": "uploads/abc.mp4"})
	})

	resp, err := svc.Upload(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, model.UploadedVideoPath("uploads/abc.mp4"), resp.VideoPath)
	assert.Equal(t, "Video uploaded successfully", resp.Message)
}

func TestUploadFailures(t *testing.T) {
	t.Run("server message is preferred", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unsupported codec"})
		})
		_, err := svc.Upload(context.Background(), model.GetExampleVideoFile())

		var transport *model.TransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, http.StatusBadRequest, transport.StatusCode)
		assert.Equal(t, "unsupported codec", transport.Message)
	})

	t.Run("generic message without body", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := svc.Upload(context.Background(), model.GetExampleVideoFile())
		assert.Equal(t, "upload failed with status 500", model.UserMessage(err))
	})

	t.Run("only 200 succeeds", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]string{"video_path": "uploads/abc.mp4"})
		})
		_, err := svc.Upload(context.Background(), model.GetExampleVideoFile())
		assert.Equal(t, model.KindTransport, model.KindOf(err))
	})

	t.Run("empty path", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "stored nowhere"})
		})
		_, err := svc.Upload(context.Background(), model.GetExampleVideoFile())
		assert.Equal(t, model.KindEmptyResult, model.KindOf(err))
	})

	t.Run("network failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		svc, err := services.NewDetectionServiceWithClient(url, nil, "")
		require.NoError(t, err)
		_, err = svc.Upload(context.Background(), model.GetExampleVideoFile())

		var transport *model.TransportError
		require.ErrorAs(t, err, &transport)
		assert.Zero(t, transport.StatusCode)
		assert.Error(t, transport.Err)
	})
}

func TestDetectSendsParameters(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req model.DetectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.DetectRequest{VideoPath: "uploads/abc.mp4", Confidence: 0.35, IoU: 0.45}, req)

		writeJSON(w, http.StatusOK, map[string]string{"message": "Video processed", "processed_video_path": "processed/abc.mp4"})
	})

	resp, err := svc.Detect(context.Background(), "uploads/abc.mp4", 0.35, 0.45)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessedVideoPath("processed/abc.mp4"), resp.ProcessedVideoPath)
}

func TestDetectEmptyResult(t *testing.T) {
	for name, body := range map[string]interface{}{
		"missing field": map[string]string{"message": "model crashed"},
		"empty field":   map[string]string{"message": "model crashed", "processed_video_path": ""},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			})
			_, err := svc.Detect(context.Background(), "uploads/abc.mp4", 0.7, 0.5)

			var empty *model.EmptyResultError
			require.ErrorAs(t, err, &empty)
			assert.Equal(t, "model crashed", empty.Message)
		})
	}

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	})
	_, err := svc.Detect(context.Background(), "uploads/abc.mp4", 0.7, 0.5)
	assert.Equal(t, model.KindTransport, model.KindOf(err))
	assert.Equal(t, "busy", model.UserMessage(err))
}

func TestFetchProcessedMedia(t *testing.T) {
	video := model.GetExampleVideoContent()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-video/processed/my clip.mp4", r.URL.Path)
		assert.Equal(t, "/get-video/processed/my%20clip.mp4", r.URL.EscapedPath())
		assert.Equal(t, services.MediaAcceptHeader, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(video)
	})

	handle, err := svc.FetchProcessedMedia(context.Background(), "processed/my clip.mp4")
	require.NoError(t, err)
	defer handle.Release()

	assert.Equal(t, "video/mp4", handle.MIMEType)
	stored, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	assert.Equal(t, video, stored)
}

func TestFetchProcessedMediaRejectsJSON(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "file not ready"})
	})
	_, err := svc.FetchProcessedMedia(context.Background(), "processed/abc.mp4")
	assert.Equal(t, model.KindUnexpectedContentType, model.KindOf(err))

	svc = newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such video"})
	})
	_, err = svc.FetchProcessedMedia(context.Background(), "processed/abc.mp4")
	assert.Equal(t, model.KindTransport, model.KindOf(err))
	assert.Equal(t, "no such video", model.UserMessage(err))
}

func TestFetchLastDetections(t *testing.T) {
	expected := model.GetExampleDetections()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-last-detections", r.URL.Path)
		writeJSON(w, http.StatusOK, expected)
	})

	detections, err := svc.FetchLastDetections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expected, detections)
}

func TestFetchLastDetectionsNone(t *testing.T) {
	responses := map[string]func(w http.ResponseWriter){
		"no content": func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) },
		"not found":  func(w http.ResponseWriter) { writeJSON(w, http.StatusNotFound, map[string]string{"message": "none"}) },
		"null":       func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, nil) },
		"empty list": func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, []model.Detection{}) },
	}
	for name, respond := range responses {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) { respond(w) })
			detections, err := svc.FetchLastDetections(context.Background())
			require.NoError(t, err)
			assert.Nil(t, detections)
		})
	}

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := svc.FetchLastDetections(context.Background())
	assert.Equal(t, model.KindTransport, model.KindOf(err))
}

func TestRequestsHonourContext(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.FetchLastDetections(ctx)
	assert.Equal(t, model.KindTransport, model.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
