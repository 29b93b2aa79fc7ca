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

package workflow_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient succeeds by default and records every call it receives.
type fakeClient struct {
	mu         sync.Mutex
	calls      []string
	upload     func(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error)
	detect     func(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error)
	media      func(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error)
	detections func(ctx context.Context) ([]model.Detection, error)

	detectedPath model.UploadedVideoPath
	fetchedPath  model.ProcessedVideoPath
	handles      []*model.MediaHandle
}

func newFakeClient(t *testing.T) *fakeClient {
	f := &fakeClient{}
	f.upload = func(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
		return &model.UploadResponse{Message: "File uploaded", VideoPath: "uploads/abc_" + model.UploadedVideoPath(video.Name)}, nil
	}
	f.detect = func(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error) {
		return &model.DetectResponse{Message: "Video processed", ProcessedVideoPath: "processed/xyz.mp4"}, nil
	}
	f.media = func(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error) {
		return model.NewMediaHandle(t.TempDir(), model.GetExampleVideoContent(), "video/mp4")
	}
	f.detections = func(ctx context.Context) ([]model.Detection, error) {
		return model.GetExampleDetections(), nil
	}
	return f
}

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Upload(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
	f.record("upload")
	return f.upload(ctx, video)
}

func (f *fakeClient) Detect(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error) {
	f.record("detect")
	f.detectedPath = videoPath
	return f.detect(ctx, videoPath, confidence, iou)
}

func (f *fakeClient) FetchProcessedMedia(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error) {
	f.record("media")
	f.fetchedPath = processedPath
	handle, err := f.media(ctx, processedPath)
	if handle != nil {
		f.handles = append(f.handles, handle)
	}
	return handle, err
}

func (f *fakeClient) FetchLastDetections(ctx context.Context) ([]model.Detection, error) {
	f.record("detections")
	return f.detections(ctx)
}

// eventLog collects every event a workflow emits.
type eventLog struct {
	mu     sync.Mutex
	events []workflow.Event
}

func (l *eventLog) Notify(_ context.Context, event workflow.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) states() []model.PipelineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []model.PipelineState
	for _, e := range l.events {
		if sc, ok := e.(workflow.StateChanged); ok {
			if len(states) == 0 {
				states = append(states, sc.From)
			}
			states = append(states, sc.To)
		}
	}
	return states
}

func (l *eventLog) processing() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var flags []bool
	for _, e := range l.events {
		if p, ok := e.(workflow.ProcessingStateChanged); ok {
			flags = append(flags, p.IsProcessing)
		}
	}
	return flags
}

func (l *eventLog) failures() []workflow.RunFailed {
	l.mu.Lock()
	defer l.mu.Unlock()
	var failures []workflow.RunFailed
	for _, e := range l.events {
		if f, ok := e.(workflow.RunFailed); ok {
			failures = append(failures, f)
		}
	}
	return failures
}

func TestRunSucceeds(t *testing.T) {
	client := newFakeClient(t)
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	defer outcome.Media.Release()

	assert.Equal(t, []model.PipelineState{
		model.StateIdle, model.StateUploading, model.StateProcessing, model.StateRetrieving, model.StateSucceeded,
	}, events.states())
	assert.Equal(t, []bool{true, false}, events.processing())
	assert.Empty(t, events.failures())
	assert.Equal(t, model.StateSucceeded, wf.State())
	assert.Equal(t, []string{"upload", "detect", "media", "detections"}, client.Calls())

	assert.False(t, outcome.Media.IsReleased())
	assert.Equal(t, model.GetExampleDetections(), outcome.Detections)
	assert.NotEmpty(t, outcome.RunID)
	for _, e := range events.events {
		assert.Equal(t, outcome.RunID, e.EventRunID())
	}
}

func TestRunDeliversThroughCallbacks(t *testing.T) {
	client := newFakeClient(t)
	client.detections = func(ctx context.Context) ([]model.Detection, error) {
		return nil, nil
	}

	var (
		processing []bool
		media      *model.MediaHandle
		delivered  bool
		detections []model.Detection
		failed     bool
	)
	wf := workflow.NewDetectionWorkflow(client, workflow.Callbacks{
		OnProcessingStateChanged: func(p bool) { processing = append(processing, p) },
		OnMediaReady:             func(h *model.MediaHandle) { media = h },
		OnDetectionsReady: func(d []model.Detection) {
			delivered = true
			detections = d
		},
		OnFailure: func(model.ErrorKind, string) { failed = true },
	})

	_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0, 1)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, processing)
	require.NotNil(t, media)
	defer media.Release()
	assert.False(t, media.IsReleased())
	assert.True(t, delivered)
	assert.Nil(t, detections)
	assert.False(t, failed)
	assert.Equal(t, model.StateSucceeded, wf.State())
}

func TestRunRoundTripsOpaquePaths(t *testing.T) {
	client := newFakeClient(t)
	client.upload = func(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
		return &model.UploadResponse{VideoPath: "uploads/9f1c_weird name?.mp4"}, nil
	}
	client.detect = func(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error) {
		assert.Equal(t, 0.25, confidence)
		assert.Equal(t, 0.75, iou)
		return &model.DetectResponse{ProcessedVideoPath: "processed/a b/c.mp4"}, nil
	}
	wf := workflow.NewDetectionWorkflow(client)

	outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.25, 0.75)
	require.NoError(t, err)
	defer outcome.Media.Release()

	assert.Equal(t, model.UploadedVideoPath("uploads/9f1c_weird name?.mp4"), client.detectedPath)
	assert.Equal(t, model.ProcessedVideoPath("processed/a b/c.mp4"), client.fetchedPath)
}

func TestRunWithoutVideoMakesNoCalls(t *testing.T) {
	client := newFakeClient(t)
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	_, err := wf.Run(context.Background(), nil, 0.7, 0.5)

	var missing *model.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, client.Calls())
	assert.Equal(t, model.StateFailed, wf.State())
	assert.Equal(t, []bool{false}, events.processing())

	failures := events.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, model.KindMissingInput, failures[0].Kind)
	assert.Equal(t, "No input video.", failures[0].Message)
	assert.Equal(t, workflow.StageValidate, failures[0].Stage)
}

func TestRunRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		iou        float64
		param      string
	}{
		{"confidence too high", 1.5, 0.5, "confidence"},
		{"negative iou", 0.7, -0.1, "iou"},
		{"nan confidence", math.NaN(), 0.5, "confidence"},
		{"infinite iou", 0.7, math.Inf(1), "iou"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient(t)
			events := &eventLog{}
			wf := workflow.NewDetectionWorkflow(client, events)

			_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), tt.confidence, tt.iou)

			var invalid *model.InvalidParameterError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.param, invalid.Name)
			assert.Empty(t, client.Calls())
			assert.Equal(t, model.StateFailed, wf.State())
			require.Len(t, events.failures(), 1)
			assert.Equal(t, model.KindInvalidParameter, events.failures()[0].Kind)
		})
	}
}

func TestRunUploadFailureStopsPipeline(t *testing.T) {
	client := newFakeClient(t)
	client.upload = func(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
		return nil, &model.TransportError{Op: "upload", StatusCode: 500, Message: "Disk full"}
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)

	var transport *model.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, 500, transport.StatusCode)
	assert.Equal(t, []string{"upload"}, client.Calls())
	assert.Equal(t, model.StateFailed, wf.State())
	assert.Equal(t, []bool{true, false}, events.processing())

	failures := events.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, workflow.StageUploadVideo, failures[0].Stage)
	assert.Equal(t, model.KindTransport, failures[0].Kind)
	assert.Equal(t, "Error uploading file: Disk full", failures[0].Message)
}

func TestRunEmptyProcessedPath(t *testing.T) {
	client := newFakeClient(t)
	client.detect = func(ctx context.Context, videoPath model.UploadedVideoPath, confidence, iou float64) (*model.DetectResponse, error) {
		return nil, &model.EmptyResultError{Op: "detect"}
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)

	var empty *model.EmptyResultError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, []string{"upload", "detect"}, client.Calls())
	require.Len(t, events.failures(), 1)
	assert.Equal(t, model.KindEmptyResult, events.failures()[0].Kind)
	assert.Equal(t, "Error in process the video in server.", events.failures()[0].Message)
	assert.Equal(t, []bool{true, false}, events.processing())
}

func TestRunDetectionsFailureReleasesMedia(t *testing.T) {
	client := newFakeClient(t)
	client.detections = func(ctx context.Context) ([]model.Detection, error) {
		return nil, &model.TransportError{Op: "fetch-last-detections", StatusCode: 502, Message: "fetch-last-detections failed with status 502"}
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)

	require.Error(t, err)
	assert.Nil(t, outcome)
	require.Len(t, client.handles, 1)
	assert.True(t, client.handles[0].IsReleased())

	for _, e := range events.events {
		_, isMedia := e.(workflow.MediaReady)
		assert.False(t, isMedia, "no partial result may be delivered")
	}
	require.Len(t, events.failures(), 1)
	assert.Equal(t, workflow.StageFetchLastDetections, events.failures()[0].Stage)
	assert.Equal(t, "Error getting the detections: fetch-last-detections failed with status 502", events.failures()[0].Message)
}

func TestRunMediaContentTypeFailure(t *testing.T) {
	client := newFakeClient(t)
	client.media = func(ctx context.Context, processedPath model.ProcessedVideoPath) (*model.MediaHandle, error) {
		return nil, &model.UnexpectedContentTypeError{Op: "fetch-processed-media", ContentType: "application/json"}
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)

	require.Error(t, err)
	assert.Equal(t, []string{"upload", "detect", "media"}, client.Calls())
	require.Len(t, events.failures(), 1)
	assert.Equal(t, model.KindUnexpectedContentType, events.failures()[0].Kind)
}

func TestRunStageCompletedCarriesServerMessages(t *testing.T) {
	client := newFakeClient(t)
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
	require.NoError(t, err)
	defer outcome.Media.Release()

	var completed []workflow.StageCompleted
	for _, e := range events.events {
		if sc, ok := e.(workflow.StageCompleted); ok {
			completed = append(completed, sc)
		}
	}
	require.Len(t, completed, 4)
	assert.Equal(t, workflow.StageUploadVideo, completed[0].Stage)
	assert.Equal(t, "File uploaded", completed[0].Message)
	assert.Equal(t, workflow.StageDetectObjects, completed[1].Stage)
	assert.Equal(t, "Video processed", completed[1].Message)
	assert.Equal(t, workflow.StageFetchProcessedMedia, completed[2].Stage)
	assert.Empty(t, completed[2].Message)
	assert.Equal(t, workflow.StageFetchLastDetections, completed[3].Stage)
}

func TestRunRejectsOverlap(t *testing.T) {
	client := newFakeClient(t)
	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	client.upload = func(ctx context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
		once.Do(func() { close(started) })
		<-proceed
		return &model.UploadResponse{VideoPath: "uploads/a.mp4"}, nil
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	done := make(chan error, 1)
	go func() {
		outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
		if outcome != nil {
			outcome.Media.Release()
		}
		done <- err
	}()

	<-started
	eventsBefore := len(events.processing())
	_, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
	assert.ErrorIs(t, err, model.ErrPipelineBusy)
	assert.Equal(t, eventsBefore, len(events.processing()))
	assert.Equal(t, model.StateUploading, wf.State())

	close(proceed)
	require.NoError(t, <-done)
	assert.Equal(t, model.StateSucceeded, wf.State())

	outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
	require.NoError(t, err, "a finished workflow accepts a new run")
	outcome.Media.Release()
}

func TestRunAcceptsResubmitWhenProcessingEnds(t *testing.T) {
	for name, failUpload := range map[string]bool{"after success": false, "after failure": true} {
		t.Run(name, func(t *testing.T) {
			client := newFakeClient(t)
			if failUpload {
				client.upload = func(_ context.Context, _ *model.VideoFile) (*model.UploadResponse, error) {
					return nil, &model.TransportError{Op: "upload", StatusCode: 500, Message: "Disk full"}
				}
			}

			var wf *workflow.DetectionWorkflow
			var rerunState model.PipelineState
			var rerunErr error
			resubmitted := false
			wf = workflow.NewDetectionWorkflow(client, workflow.Callbacks{
				OnProcessingStateChanged: func(isProcessing bool) {
					if isProcessing || resubmitted {
						return
					}
					resubmitted = true
					rerunState = wf.State()
					outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
					rerunErr = err
					if outcome != nil {
						outcome.Media.Release()
					}
				},
			})

			outcome, err := wf.Run(context.Background(), model.GetExampleVideoFile(), 0.7, 0.5)
			if outcome != nil {
				outcome.Media.Release()
			}

			require.True(t, resubmitted)
			assert.True(t, rerunState.IsTerminal())
			assert.NotErrorIs(t, rerunErr, model.ErrPipelineBusy)
			if failUpload {
				assert.Error(t, err)
				assert.Equal(t, []string{"upload", "upload"}, client.Calls())
			} else {
				assert.NoError(t, err)
				assert.NoError(t, rerunErr)
				assert.Len(t, client.Calls(), 8)
			}
			assert.True(t, wf.State().AcceptsRun())
		})
	}
}

func TestRunCancelledContext(t *testing.T) {
	client := newFakeClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	client.upload = func(_ context.Context, video *model.VideoFile) (*model.UploadResponse, error) {
		cancel()
		return &model.UploadResponse{VideoPath: "uploads/a.mp4"}, nil
	}
	events := &eventLog{}
	wf := workflow.NewDetectionWorkflow(client, events)

	_, err := wf.Run(ctx, model.GetExampleVideoFile(), 0.7, 0.5)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"upload"}, client.Calls())
	assert.Equal(t, model.StateFailed, wf.State())
	assert.Equal(t, []bool{true, false}, events.processing())
}

func TestWorkflowAsCommand(t *testing.T) {
	client := newFakeClient(t)
	wf := workflow.NewDetectionWorkflow(client)

	chCtx := cor.NewBaseContextWith(context.Background())
	chCtx.Add(cor.CtxIn, model.GetExampleVideoFile())
	chCtx.Add(commands.GetDetectionParametersParameterName(), model.DetectionParameters{Confidence: 0.3, IoU: 0.4})

	wf.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	outcome, ok := chCtx.Get(cor.CtxOut).(*model.DetectionOutcome)
	require.True(t, ok)
	require.Len(t, chCtx.GetResources(), 1)

	chCtx.Close()
	assert.True(t, outcome.Media.IsReleased())
}

func TestWorkflowAsCommandRecordsFailure(t *testing.T) {
	client := newFakeClient(t)
	wf := workflow.NewDetectionWorkflow(client)

	chCtx := cor.NewBaseContextWith(context.Background())
	wf.Execute(chCtx)

	var missing *model.MissingInputError
	assert.True(t, errors.As(chCtx.Err(), &missing))
	assert.Empty(t, client.Calls())
}
