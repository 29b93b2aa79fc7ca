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

// This file defines the error taxonomy of a pipeline run. Every failure that
// reaches the presentation layer is classified into exactly one ErrorKind, and
// carries the text the user should see.
package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed run.
type ErrorKind string

const (
	KindMissingInput          ErrorKind = "MissingInput"
	KindInvalidParameter      ErrorKind = "InvalidParameter"
	KindTransport             ErrorKind = "Transport"
	KindEmptyResult           ErrorKind = "EmptyResult"
	KindUnexpectedContentType ErrorKind = "UnexpectedContentType"
	KindInternal              ErrorKind = "Internal"
)

func (k ErrorKind) String() string {
	return string(k)
}

// ErrPipelineBusy is returned when a run is requested while another one is
// still active on the same workflow.
var ErrPipelineBusy = errors.New("a detection run is already in progress")

// MissingInputError means no video was supplied.
type MissingInputError struct{}

func (e *MissingInputError) Error() string {
	return "No input video."
}

// InvalidParameterError means a detection threshold was not a finite number
// in [0, 1] when the run was requested.
type InvalidParameterError struct {
	Name  string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %v: must be a number between 0 and 1", e.Name, e.Value)
}

// TransportError covers network failures and unexpected HTTP statuses. Message
// holds the text supplied by the service when there was one.
type TransportError struct {
	Op         string // The client operation, e.g. "upload".
	StatusCode int    // Zero when no response was received.
	Message    string // Server supplied message, or a generic one.
	Err        error  // The underlying network error, if any.
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EmptyResultError means the service answered with a success status but left
// out the path the next stage needs.
type EmptyResultError struct {
	Op      string
	Message string // Whatever message accompanied the empty result.
}

func (e *EmptyResultError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned no result: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s returned no result", e.Op)
}

// UnexpectedContentTypeError means the processed media request returned
// something other than a binary payload.
type UnexpectedContentTypeError struct {
	Op          string
	ContentType string
}

func (e *UnexpectedContentTypeError) Error() string {
	ct := e.ContentType
	if ct == "" {
		ct = "empty body"
	}
	return fmt.Sprintf("%s: expected binary media, got %s", e.Op, ct)
}

// KindOf classifies err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) ErrorKind {
	var (
		missing     *MissingInputError
		invalid     *InvalidParameterError
		transport   *TransportError
		empty       *EmptyResultError
		contentType *UnexpectedContentTypeError
	)
	switch {
	case errors.As(err, &missing):
		return KindMissingInput
	case errors.As(err, &invalid):
		return KindInvalidParameter
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &empty):
		return KindEmptyResult
	case errors.As(err, &contentType):
		return KindUnexpectedContentType
	default:
		return KindInternal
	}
}

// UserMessage extracts the text worth showing to a user, preferring anything
// the service said over the generic description of the error.
func UserMessage(err error) string {
	var transport *TransportError
	if errors.As(err, &transport) && transport.Message != "" {
		return transport.Message
	}
	var empty *EmptyResultError
	if errors.As(err, &empty) && empty.Message != "" {
		return empty.Message
	}
	var missing *MissingInputError
	if errors.As(err, &missing) {
		return missing.Error()
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
