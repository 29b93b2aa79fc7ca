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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/workflow"
)

// consoleReporter prints the progress of a run for a human.
type consoleReporter struct {
	w io.Writer
}

func (r *consoleReporter) Notify(_ context.Context, event workflow.Event) {
	switch e := event.(type) {
	case workflow.ProcessingStateChanged:
		if e.IsProcessing {
			fmt.Fprintln(r.w, "Processing...")
		}
	case workflow.StageCompleted:
		if e.Message != "" {
			fmt.Fprintf(r.w, "%s: %s\n", e.Stage, e.Message)
		}
	case workflow.MediaReady:
		fmt.Fprintf(r.w, "Processed video: %s (%d bytes)\n", e.Handle.URL(), e.Handle.Size)
	case workflow.DetectionsReady:
		if e.Detections == nil {
			fmt.Fprintln(r.w, "No detections reported.")
			return
		}
		fmt.Fprintf(r.w, "%d detections:\n", len(e.Detections))
		for _, d := range e.Detections {
			fmt.Fprintf(r.w, "  %-12s %.2f  bbox=(%.0f,%.0f %.0fx%.0f)\n", d.Label, d.Confidence, d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height)
		}
	case workflow.RunFailed:
		fmt.Fprintln(r.w, e.Message)
	}
}

// runArchiver stores the result of a successful run.
type runArchiver interface {
	StoreRun(ctx context.Context, runID string, media *model.MediaHandle, detections []model.Detection) ([]cloud.GCSObject, error)
}

// archiveSubscriber copies successful runs to Cloud Storage. The media handle
// arrives before the detections; the copy happens once both are known.
type archiveSubscriber struct {
	store runArchiver
	media map[string]*model.MediaHandle
}

func newArchiveSubscriber(store runArchiver) *archiveSubscriber {
	return &archiveSubscriber{store: store, media: make(map[string]*model.MediaHandle)}
}

func (a *archiveSubscriber) Notify(ctx context.Context, event workflow.Event) {
	switch e := event.(type) {
	case workflow.MediaReady:
		a.media[e.RunID] = e.Handle
	case workflow.DetectionsReady:
		handle, ok := a.media[e.RunID]
		if !ok {
			return
		}
		delete(a.media, e.RunID)
		objects, err := a.store.StoreRun(ctx, e.RunID, handle, e.Detections)
		if err != nil {
			slog.ErrorContext(ctx, "failed to archive run", "run_id", e.RunID, "error", err)
			return
		}
		for _, o := range objects {
			slog.InfoContext(ctx, "archived run output", "run_id", e.RunID, "uri", o.URI())
		}
	case workflow.RunFailed:
		delete(a.media, e.RunID)
	}
}
