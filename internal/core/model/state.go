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

package model

// PipelineState is the position of a run in the detection state machine.
type PipelineState string

const (
	StateIdle       PipelineState = "Idle"
	StateUploading  PipelineState = "Uploading"
	StateProcessing PipelineState = "Processing"
	StateRetrieving PipelineState = "Retrieving"
	StateSucceeded  PipelineState = "Succeeded"
	StateFailed     PipelineState = "Failed"
)

func (s PipelineState) String() string {
	return string(s)
}

// IsTerminal reports whether the run has finished.
func (s PipelineState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// AcceptsRun reports whether a new run may start from this state.
func (s PipelineState) AcceptsRun() bool {
	return s == StateIdle || s.IsTerminal()
}
