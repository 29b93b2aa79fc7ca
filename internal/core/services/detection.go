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

// Package services contains the clients the application uses to reach its
// data sources. This file, `detection.go`, defines the DetectionService, the
// HTTP client of the remote object detection service. Each method issues
// exactly one request and normalizes the response into either a typed result
// or one of the model error types. Nothing is retried here; a failed call is
// reported to the caller as is.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// Operation names, used in errors, spans and logs.
const (
	OpUpload              = "upload"
	OpDetect              = "detect"
	OpFetchProcessedMedia = "fetch-processed-media"
	OpFetchLastDetections = "fetch-last-detections"
)

// Endpoint paths of the detection service.
const (
	UploadPath         = "/upload"
	DetectPath         = "/detect"
	GetVideoPath       = "/get-video/"
	LastDetectionsPath = "/get-last-detections"
	UploadFormField    = "video"
	MediaAcceptHeader  = "video/mp4;charset=UTF-8"
)

// DetectionService is the client of the remote detection service.
type DetectionService struct {
	BaseURL    string       // Root URL of the service without a trailing slash.
	HTTPClient *http.Client // Carries the timeout and, optionally, the rate limit.
	MediaDir   string       // Where processed media handles are written.
	tracer     trace.Tracer
}

// NewDetectionService builds a client from configuration. The request timeout
// becomes the http.Client timeout and a positive requests_per_second wraps the
// transport in a rate limiter.
func NewDetectionService(config cloud.DetectionServiceConfig) (*DetectionService, error) {
	httpClient := &http.Client{
		Timeout:   config.Timeout(),
		Transport: cloud.NewQuotaAwareTransport(http.DefaultTransport, cloud.NewRateLimiter(config.RequestsPerSecond)),
	}
	return NewDetectionServiceWithClient(config.BaseURL, httpClient, config.MediaDir)
}

// NewDetectionServiceWithClient builds a client around an existing
// http.Client, which tests use to point at an httptest server.
func NewDetectionServiceWithClient(baseURL string, httpClient *http.Client, mediaDir string) (*DetectionService, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid detection service base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DetectionService{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		MediaDir:   mediaDir,
		tracer:     otel.Tracer("services.detection"),
	}, nil
}

// Upload sends the video as the `video` field of a multipart form. Only an
// HTTP 200 with a non-empty video_path counts as success.
func (s *DetectionService) Upload(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
	body, contentType, err := multipartBody(video)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload form: %w", err)
	}

	status, respBody, _, err := s.do(ctx, OpUpload, http.MethodPost, s.BaseURL+UploadPath, body, map[string]string{
		"Content-Type": contentType,
		"Accept":       "application/json",
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(OpUpload, status, respBody)
	}

	var resp model.UploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &model.TransportError{Op: OpUpload, StatusCode: status, Message: "malformed upload response", Err: err}
	}
	if resp.VideoPath == "" {
		return nil, &model.EmptyResultError{Op: OpUpload, Message: resp.Message}
	}
	return &resp, nil
}

// Detect asks the service to run detection on an uploaded video.
func (s *DetectionService) Detect(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error) {
	payload, err := json.Marshal(model.DetectRequest{VideoPath: videoPath, Confidence: confidence, IoU: iou})
	if err != nil {
		return nil, fmt.Errorf("failed to encode detect request: %w", err)
	}

	status, respBody, _, err := s.do(ctx, OpDetect, http.MethodPost, s.BaseURL+DetectPath, bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(OpDetect, status, respBody)
	}

	var resp model.DetectResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, &model.TransportError{Op: OpDetect, StatusCode: status, Message: "malformed detect response", Err: err}
		}
	}
	if resp.ProcessedVideoPath == "" {
		return nil, &model.EmptyResultError{Op: OpDetect, Message: resp.Message}
	}
	return &resp, nil
}

// FetchProcessedMedia downloads the processed video and wraps it in a
// MediaHandle owned by the caller.
func (s *DetectionService) FetchProcessedMedia(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error) {
	target := s.BaseURL + GetVideoPath + EscapeMediaPath(string(processedPath))
	status, respBody, header, err := s.do(ctx, OpFetchProcessedMedia, http.MethodGet, target, nil, map[string]string{
		"Accept": MediaAcceptHeader,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(OpFetchProcessedMedia, status, respBody)
	}

	mimeType, err := CheckBinaryMedia(OpFetchProcessedMedia, header.Get("Content-Type"), respBody)
	if err != nil {
		return nil, err
	}
	return model.NewMediaHandle(s.MediaDir, respBody, mimeType)
}

// FetchLastDetections returns the detections of the most recent run, or nil
// when the service has none.
func (s *DetectionService) FetchLastDetections(ctx context.Context) ([]model.Detection, error) {
	status, respBody, _, err := s.do(ctx, OpFetchLastDetections, http.MethodGet, s.BaseURL+LastDetectionsPath, nil, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNoContent || status == http.StatusNotFound:
		return nil, nil
	case !isSuccess(status):
		return nil, statusError(OpFetchLastDetections, status, respBody)
	}

	detections, err := model.DecodeDetections(respBody)
	if err != nil {
		return nil, &model.TransportError{Op: OpFetchLastDetections, StatusCode: status, Message: "malformed detections response", Err: err}
	}
	return detections, nil
}

// do issues a single request and reads the whole body. Network failures come
// back as a *model.TransportError with a zero status.
func (s *DetectionService) do(ctx context.Context, op, method, target string, body io.Reader, headers map[string]string) (int, []byte, http.Header, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", target),
	)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, nil, &model.TransportError{Op: op, Message: "invalid request", Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	slog.DebugContext(ctx, "calling detection service", "op", op, "method", method, "url", target)
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return 0, nil, nil, &model.TransportError{Op: op, Message: fmt.Sprintf("%s request failed", op), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed reading response")
		return 0, nil, nil, &model.TransportError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read %s response", op), Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// statusError turns an unexpected status into a TransportError, using the
// server's message when the body carries one.
func statusError(op string, status int, body []byte) error {
	msg := ServerMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("%s failed with status %d", op, status)
	}
	return &model.TransportError{Op: op, StatusCode: status, Message: msg}
}

// ServerMessage extracts `message`, or failing that `error`, from a JSON body.
func ServerMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(video *model.VideoFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mimeType := video.MIMEType
	if mimeType == "" {
		mimeType = model.DefaultVideoMIMEType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, UploadFormField, quoteEscaper.Replace(video.Name)))
	header.Set("Content-Type", mimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(video.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// EscapeMediaPath escapes each segment of a server path while keeping the
// separators, so `processed/a b.mp4` becomes `processed/a%20b.mp4`.
func EscapeMediaPath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
