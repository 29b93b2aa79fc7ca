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

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// DetectionsFetcher is the part of the detection service client this command needs.
type DetectionsFetcher interface {
	FetchLastDetections(ctx context.Context) ([]model.Detection, error)
}

// FetchLastDetections retrieves the detection metadata. It takes no data
// input, but only runs once the processed media is in hand so the two
// retrieval calls keep a fixed order.
type FetchLastDetections struct {
	cor.BaseCommand
	fetcher DetectionsFetcher
}

// NewFetchLastDetections is the constructor for the FetchLastDetections command.
func NewFetchLastDetections(name string, fetcher DetectionsFetcher) *FetchLastDetections {
	return &FetchLastDetections{BaseCommand: *cor.NewBaseCommand(name), fetcher: fetcher}
}

// IsExecutable requires the media handle from the previous stage.
func (c *FetchLastDetections) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(GetMediaHandleParameterName()) != nil
}

// Execute fetches the detections. A nil list is a valid result.
func (c *FetchLastDetections) Execute(context cor.Context) {
	detections, err := c.fetcher.FetchLastDetections(context.GetContext())
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to fetch detections: %w", err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.InfoContext(context.GetContext(), "detections retrieved", "run_id", runID(context), "count", len(detections))

	context.Add(GetDetectionsParameterName(), detections)
	context.Add(c.GetOutputParam(), detections)
}
