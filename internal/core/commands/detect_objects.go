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

// This file defines the detect stage. It forwards the uploaded video path and
// the two thresholds to the service and passes the processed video path on
// to the media retrieval stage. A success response without a processed path
// is surfaced by the client as an EmptyResultError and recorded like any other
// failure.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// ObjectDetector is the part of the detection service client this command needs.
type ObjectDetector interface {
	Detect(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error)
}

// DetectObjects is the detect stage command.
type DetectObjects struct {
	cor.BaseCommand
	detector ObjectDetector
}

// NewDetectObjects is the constructor for the DetectObjects command.
func NewDetectObjects(name string, detector ObjectDetector) *DetectObjects {
	return &DetectObjects{BaseCommand: *cor.NewBaseCommand(name), detector: detector}
}

// IsExecutable requires both the uploaded path and the detection parameters.
func (c *DetectObjects) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(GetDetectionParametersParameterName()) != nil
}

// Execute requests detection on the uploaded video.
func (c *DetectObjects) Execute(context cor.Context) {
	videoPath, ok := context.Get(c.GetInputParam()).(model.UploadedVideoPath)
	if !ok {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("%s: input is not an uploaded video path: %w", c.GetName(), cor.ErrNotExecutable))
		return
	}
	params, _ := context.Get(GetDetectionParametersParameterName()).(model.DetectionParameters)

	resp, err := c.detector.Detect(context.GetContext(), videoPath, params.Confidence, params.IoU)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to detect objects in %s: %w", videoPath, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.InfoContext(context.GetContext(), "objects detected",
		"run_id", runID(context), "video_path", videoPath, "processed_video_path", resp.ProcessedVideoPath,
		"confidence", params.Confidence, "iou", params.IoU)

	context.Add(GetProcessedVideoPathParameterName(), resp.ProcessedVideoPath)
	context.Add(GetStageMessageParameterName(), resp.Message)
	context.Add(c.GetOutputParam(), resp.ProcessedVideoPath)
}
