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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface, one per network stage of
// a detection run. This file holds the canonical context keys shared by the
// commands and by the workflow that assembles them.
package commands

import (
	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
)

// GetRunIDParameterName is the key of the run identifier.
func GetRunIDParameterName() string {
	return "__RUN_ID__"
}

// GetDetectionParametersParameterName is the key of the model.DetectionParameters
// sent with the detect request.
func GetDetectionParametersParameterName() string {
	return "__DETECTION_PARAMETERS__"
}

// GetUploadedVideoPathParameterName is the key of the path returned by upload.
func GetUploadedVideoPathParameterName() string {
	return "__UPLOADED_VIDEO_PATH__"
}

// GetProcessedVideoPathParameterName is the key of the path returned by detect.
func GetProcessedVideoPathParameterName() string {
	return "__PROCESSED_VIDEO_PATH__"
}

// GetMediaHandleParameterName is the key of the fetched *model.MediaHandle.
func GetMediaHandleParameterName() string {
	return "__MEDIA_HANDLE__"
}

// GetDetectionsParameterName is the key of the fetched []model.Detection.
func GetDetectionsParameterName() string {
	return "__DETECTIONS__"
}

// GetStageMessageParameterName is the key where a command leaves the message
// the service returned with a successful response.
func GetStageMessageParameterName() string {
	return "__STAGE_MESSAGE__"
}

// runID returns the run identifier stored in the context, if any.
func runID(context cor.Context) string {
	id, _ := context.Get(GetRunIDParameterName()).(string)
	return id
}
