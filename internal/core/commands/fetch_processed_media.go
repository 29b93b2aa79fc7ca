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

// This file defines the media retrieval stage. The downloaded video becomes a
// *model.MediaHandle which is tracked as a context resource: if a later stage
// fails the handle is released with the context, and only a successful run
// hands it over to the caller.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// MediaFetcher is the part of the detection service client this command needs.
type MediaFetcher interface {
	FetchProcessedMedia(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error)
}

// FetchProcessedMedia is the media retrieval command.
type FetchProcessedMedia struct {
	cor.BaseCommand
	fetcher MediaFetcher
}

// NewFetchProcessedMedia is the constructor for the FetchProcessedMedia command.
func NewFetchProcessedMedia(name string, fetcher MediaFetcher) *FetchProcessedMedia {
	return &FetchProcessedMedia{BaseCommand: *cor.NewBaseCommand(name), fetcher: fetcher}
}

// Execute downloads the processed video.
func (c *FetchProcessedMedia) Execute(context cor.Context) {
	processedPath, ok := context.Get(c.GetInputParam()).(model.ProcessedVideoPath)
	if !ok {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("%s: input is not a processed video path: %w", c.GetName(), cor.ErrNotExecutable))
		return
	}

	handle, err := c.fetcher.FetchProcessedMedia(context.GetContext(), processedPath)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to fetch processed video %s: %w", processedPath, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.InfoContext(context.GetContext(), "processed video retrieved",
		"run_id", runID(context), "processed_video_path", processedPath, "bytes", handle.Size, "mime_type", handle.MIMEType)

	context.AddResource(handle)
	context.Add(GetMediaHandleParameterName(), handle)
	context.Add(c.GetOutputParam(), handle)
}
