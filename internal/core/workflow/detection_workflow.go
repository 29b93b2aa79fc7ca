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

// Package workflow provides the orchestrator of a detection run. This file
// defines the DetectionWorkflow, a composite command that drives a video
// through the detection service and reports every step as a typed event.
//
// Logic Flow:
//
//  1. **Validate**: The video must be present and both thresholds must lie in
//     [0, 1]. A failure here never reaches the network.
//  2. **Upload**: The video is sent to the service, which returns an opaque
//     uploaded path.
//  3. **Detect**: The uploaded path and thresholds are sent for processing,
//     which returns an opaque processed path.
//  4. **Retrieve**: The processed video and then the detection list are
//     downloaded.
//  5. **Deliver**: On success the media handle and detections are handed to
//     the subscribers. On failure any fetched media is released and a single
//     RunFailed event is emitted.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// Stage names, which double as the command names of the chain.
const (
	StageValidate            = "validate"
	StageUploadVideo         = "upload-video"
	StageDetectObjects       = "detect-objects"
	StageFetchProcessedMedia = "fetch-processed-media"
	StageFetchLastDetections = "fetch-last-detections"
)

// emptyDetectMessage is shown when the service accepted a detect request but
// named no processed video.
const emptyDetectMessage = "Error in process the video in server."

// DetectionClient is everything the workflow needs from the detection service.
// *services.DetectionService satisfies it.
type DetectionClient interface {
	commands.VideoUploader
	commands.ObjectDetector
	commands.MediaFetcher
	commands.DetectionsFetcher
}

type stage struct {
	state  model.PipelineState
	prefix string
}

var stages = map[string]stage{
	StageUploadVideo:         {model.StateUploading, "Error uploading file:"},
	StageDetectObjects:       {model.StateProcessing, "Error processing the video:"},
	StageFetchProcessedMedia: {model.StateRetrieving, "Error getting the video:"},
	StageFetchLastDetections: {model.StateRetrieving, "Error getting the detections:"},
}

// DetectionWorkflow is the upload orchestrator. At most one run is active at a
// time; State and Subscribe are safe to call from any goroutine.
type DetectionWorkflow struct {
	cor.BaseCommand
	client DetectionClient
	chain  cor.Chain

	mu          sync.Mutex
	state       model.PipelineState
	active      string // run id holding the pipeline, empty when none
	subscribers []Subscriber
}

// NewDetectionWorkflow is the constructor for the DetectionWorkflow.
//
// Inputs:
//   - client: The detection service client used by every stage.
//   - subscribers: Optional event consumers, notified in the order given.
//
// Returns:
//   - *DetectionWorkflow: A workflow in the Idle state.
func NewDetectionWorkflow(client DetectionClient, subscribers ...Subscriber) *DetectionWorkflow {
	w := &DetectionWorkflow{
		BaseCommand: *cor.NewBaseCommand("detection-workflow"),
		client:      client,
		state:       model.StateIdle,
		subscribers: subscribers,
	}
	w.initializeChain()
	return w
}

func (w *DetectionWorkflow) initializeChain() {
	chain := cor.NewBaseChain(w.GetName())
	chain.AddCommand(commands.NewUploadVideo(StageUploadVideo, w.client))
	chain.AddCommand(commands.NewDetectObjects(StageDetectObjects, w.client))
	chain.AddCommand(commands.NewFetchProcessedMedia(StageFetchProcessedMedia, w.client))
	chain.AddCommand(commands.NewFetchLastDetections(StageFetchLastDetections, w.client))
	chain.AddObserver(w)
	w.chain = chain
}

// Subscribe registers an additional event consumer.
func (w *DetectionWorkflow) Subscribe(subscriber Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, subscriber)
}

// State returns the current pipeline state.
func (w *DetectionWorkflow) State() model.PipelineState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run executes one detection run and blocks until it ends.
//
// Inputs:
//   - ctx: Bounds every network call of the run.
//   - video: The video to analyse. Nil fails the run with a MissingInputError.
//   - confidence, iou: Detection thresholds, each in [0, 1].
//
// Returns:
//   - *model.DetectionOutcome: The processed media and detections. The caller
//     owns the media handle and must release it.
//   - error: model.ErrPipelineBusy if another run is active, otherwise the
//     error that failed the run.
func (w *DetectionWorkflow) Run(ctx context.Context, video *model.VideoFile, confidence, iou float64) (*model.DetectionOutcome, error) {
	runID := uuid.New().String()
	if !w.begin(runID) {
		return nil, model.ErrPipelineBusy
	}
	defer w.end(runID)

	if err := validate(video, confidence, iou); err != nil {
		w.fail(ctx, runID, StageValidate, err)
		return nil, err
	}

	chCtx := cor.NewBaseContextWith(ctx)
	chCtx.Add(commands.GetRunIDParameterName(), runID)
	chCtx.Add(commands.GetDetectionParametersParameterName(), model.DetectionParameters{Confidence: confidence, IoU: iou})
	chCtx.Add(cor.CtxIn, video)

	slog.InfoContext(ctx, "detection run started", "run_id", runID, "file", video.Name, "confidence", confidence, "iou", iou)
	w.transition(ctx, runID, model.StateUploading)
	w.emit(ctx, ProcessingStateChanged{RunID: runID, IsProcessing: true})

	w.chain.Execute(chCtx)

	if chCtx.HasErrors() {
		chCtx.Close()
		failed := chCtx.Errors()[0]
		w.fail(ctx, runID, failed.Name, failed.Err)
		return nil, failed.Err
	}

	handle, _ := chCtx.Get(commands.GetMediaHandleParameterName()).(*model.MediaHandle)
	detections, _ := chCtx.Get(commands.GetDetectionsParameterName()).([]model.Detection)
	chCtx.ClearResources()

	w.GetSuccessCounter().Add(ctx, 1)
	slog.InfoContext(ctx, "detection run succeeded", "run_id", runID, "media", handle.URL(), "detections", len(detections))

	w.transition(ctx, runID, model.StateSucceeded)
	w.emit(ctx, MediaReady{RunID: runID, Handle: handle})
	w.emit(ctx, DetectionsReady{RunID: runID, Detections: detections})
	w.emit(ctx, ProcessingStateChanged{RunID: runID, IsProcessing: false})

	return &model.DetectionOutcome{RunID: runID, Media: handle, Detections: detections}, nil
}

// Execute runs the workflow as a command of an enclosing chain. The video is
// read from the input parameter and the thresholds from the detection
// parameters key, falling back to the defaults. The outcome is written to the
// output parameter.
func (w *DetectionWorkflow) Execute(context cor.Context) {
	video, _ := context.Get(w.GetInputParam()).(*model.VideoFile)
	params, ok := context.Get(commands.GetDetectionParametersParameterName()).(model.DetectionParameters)
	if !ok {
		params = *model.NewDetectionParameters()
	}

	outcome, err := w.Run(context.GetContext(), video, params.Confidence, params.IoU)
	if err != nil {
		context.AddError(w.GetName(), err)
		return
	}
	context.AddResource(outcome.Media)
	context.Add(w.GetOutputParam(), outcome)
}

// BeforeCommand moves the state machine to the stage about to run.
func (w *DetectionWorkflow) BeforeCommand(context cor.Context, command cor.Command) {
	if s, ok := stages[command.GetName()]; ok {
		w.transition(context.GetContext(), runIDOf(context), s.state)
	}
}

// AfterCommand reports a successful stage along with its service message.
func (w *DetectionWorkflow) AfterCommand(context cor.Context, command cor.Command) {
	message, _ := context.Get(commands.GetStageMessageParameterName()).(string)
	context.Remove(commands.GetStageMessageParameterName())
	if _, failed := context.GetErrors()[command.GetName()]; failed {
		return
	}
	w.emit(context.GetContext(), StageCompleted{RunID: runIDOf(context), Stage: command.GetName(), Message: message})
}

func (w *DetectionWorkflow) begin(runID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active != "" || !w.state.AcceptsRun() {
		return false
	}
	w.active = runID
	return true
}

// end frees the pipeline if the run still holds it. The terminal transition
// normally frees it first; this covers a run that never got there.
func (w *DetectionWorkflow) end(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == runID {
		w.active = ""
	}
}

func (w *DetectionWorkflow) fail(ctx context.Context, runID string, stageName string, err error) {
	kind := model.KindOf(err)
	message := failureMessage(stageName, err)

	w.GetErrorCounter().Add(ctx, 1)
	slog.ErrorContext(ctx, "detection run failed", "run_id", runID, "stage", stageName, "kind", kind, "error", err)

	w.transition(ctx, runID, model.StateFailed)
	w.emit(ctx, RunFailed{RunID: runID, Stage: stageName, Kind: kind, Message: message, Err: err})
	w.emit(ctx, ProcessingStateChanged{RunID: runID, IsProcessing: false})
}

// transition moves to the given state, emitting StateChanged only when the
// state actually changes. Reaching a terminal state frees the pipeline before
// any terminal event is emitted, so subscribers may start the next run.
func (w *DetectionWorkflow) transition(ctx context.Context, runID string, to model.PipelineState) {
	w.mu.Lock()
	from := w.state
	w.state = to
	if to.IsTerminal() && w.active == runID {
		w.active = ""
	}
	w.mu.Unlock()

	if from == to {
		return
	}
	slog.DebugContext(ctx, "pipeline state changed", "run_id", runID, "from", from, "to", to)
	w.emit(ctx, StateChanged{RunID: runID, From: from, To: to})
}

func (w *DetectionWorkflow) emit(ctx context.Context, event Event) {
	w.mu.Lock()
	subscribers := make([]Subscriber, len(w.subscribers))
	copy(subscribers, w.subscribers)
	w.mu.Unlock()

	for _, s := range subscribers {
		s.Notify(ctx, event)
	}
}

func validate(video *model.VideoFile, confidence, iou float64) error {
	if video == nil {
		return &model.MissingInputError{}
	}
	if err := model.ValidateUnitInterval("confidence", confidence); err != nil {
		return err
	}
	return model.ValidateUnitInterval("iou", iou)
}

// failureMessage builds the text shown to a user for a failed stage.
func failureMessage(stageName string, err error) string {
	s, ok := stages[stageName]
	if !ok {
		return model.UserMessage(err)
	}
	if stageName == StageDetectObjects && model.KindOf(err) == model.KindEmptyResult {
		return emptyDetectMessage
	}
	return fmt.Sprintf("%s %s", s.prefix, model.UserMessage(err))
}

func runIDOf(context cor.Context) string {
	id, _ := context.Get(commands.GetRunIDParameterName()).(string)
	return id
}
