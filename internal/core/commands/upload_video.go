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

// This file defines the first stage of a detection run: sending the selected
// video to the detection service.
//
// Logic Flow:
//  1. Takes the *model.VideoFile placed in the context's input parameter.
//  2. Uploads it through the VideoUploader.
//  3. Places the returned UploadedVideoPath in the output parameter, making it
//     the input of the detect stage, and keeps the service's message for the
//     workflow to report.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// VideoUploader is the part of the detection service client this command needs.
type VideoUploader interface {
	Upload(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error)
}

// UploadVideo is the upload stage command.
type UploadVideo struct {
	cor.BaseCommand
	uploader VideoUploader
}

// NewUploadVideo is the constructor for the UploadVideo command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - uploader: The client used to reach the service.
//
// Outputs:
//   - *UploadVideo: A pointer to the newly instantiated command.
func NewUploadVideo(name string, uploader VideoUploader) *UploadVideo {
	return &UploadVideo{BaseCommand: *cor.NewBaseCommand(name), uploader: uploader}
}

// Execute uploads the video held in the input parameter.
func (c *UploadVideo) Execute(context cor.Context) {
	video, ok := context.Get(c.GetInputParam()).(*model.VideoFile)
	if !ok || video == nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), &model.MissingInputError{})
		return
	}

	resp, err := c.uploader.Upload(context.GetContext(), video)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to upload video %s: %w", video.Name, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.InfoContext(context.GetContext(), "video uploaded",
		"run_id", runID(context), "file", video.Name, "bytes", video.Size(), "video_path", resp.VideoPath)

	context.Add(GetUploadedVideoPathParameterName(), resp.VideoPath)
	context.Add(GetStageMessageParameterName(), resp.Message)
	context.Add(c.GetOutputParam(), resp.VideoPath)
}
