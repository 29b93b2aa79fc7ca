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

// This file defines the typed events a detection run emits. A presentation
// layer is just one Subscriber; loggers, archives and tests subscribe the same
// way.
package workflow

import (
	"context"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// Event is implemented by every notification a run emits.
type Event interface {
	// EventRunID returns the identifier of the run that emitted the event.
	EventRunID() string
}

// StateChanged reports a PipelineState transition.
type StateChanged struct {
	RunID string
	From  model.PipelineState
	To    model.PipelineState
}

// ProcessingStateChanged is emitted with true when a run starts its network
// stages and with false exactly once when the run ends.
type ProcessingStateChanged struct {
	RunID        string
	IsProcessing bool
}

// StageCompleted reports a successful stage along with any message the service
// returned for it.
type StageCompleted struct {
	RunID   string
	Stage   string
	Message string
}

// MediaReady hands the processed video to subscribers. From this point the
// presentation layer owns the handle and must release it.
type MediaReady struct {
	RunID  string
	Handle *model.MediaHandle
}

// DetectionsReady carries the detection list, nil when the service had none.
type DetectionsReady struct {
	RunID      string
	Detections []model.Detection
}

// RunFailed is emitted exactly once for a failed run.
type RunFailed struct {
	RunID   string
	Stage   string
	Kind    model.ErrorKind
	Message string
	Err     error
}

func (e StateChanged) EventRunID() string           { return e.RunID }
func (e ProcessingStateChanged) EventRunID() string { return e.RunID }
func (e StageCompleted) EventRunID() string         { return e.RunID }
func (e MediaReady) EventRunID() string             { return e.RunID }
func (e DetectionsReady) EventRunID() string        { return e.RunID }
func (e RunFailed) EventRunID() string              { return e.RunID }

// Subscriber receives run events synchronously, in emission order.
type Subscriber interface {
	Notify(ctx context.Context, event Event)
}

// SubscriberFunc adapts a function into a Subscriber.
type SubscriberFunc func(ctx context.Context, event Event)

func (f SubscriberFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

// Callbacks adapts the four presentation callbacks into a Subscriber. Nil
// fields are ignored.
type Callbacks struct {
	OnProcessingStateChanged func(isProcessing bool)
	OnMediaReady             func(handle *model.MediaHandle)
	OnDetectionsReady        func(detections []model.Detection)
	OnFailure                func(kind model.ErrorKind, message string)
}

func (c Callbacks) Notify(_ context.Context, event Event) {
	switch e := event.(type) {
	case ProcessingStateChanged:
		if c.OnProcessingStateChanged != nil {
			c.OnProcessingStateChanged(e.IsProcessing)
		}
	case MediaReady:
		if c.OnMediaReady != nil {
			c.OnMediaReady(e.Handle)
		}
	case DetectionsReady:
		if c.OnDetectionsReady != nil {
			c.OnDetectionsReady(e.Detections)
		}
	case RunFailed:
		if c.OnFailure != nil {
			c.OnFailure(e.Kind, e.Message)
		}
	}
}
