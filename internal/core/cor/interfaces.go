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

// Package cor (Chain of Responsibility) provides the fundamental building blocks
// for creating workflows. This file defines the core interfaces that govern the
// behavior of all components within this pattern: the shared Context, the
// Command, the Chain that sequences commands, and the Observer that is told
// when each command starts and finishes.
package cor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are constant keys used to manage the primary data flow
// within a BaseChain.
const (
	// CtxIn is the default key for the primary input of a command. The BaseChain
	// will automatically populate the value of this key with the output from the
	// previous command.
	CtxIn = "__IN__"
	// CtxOut is the default key where a command should place its primary output.
	// The BaseChain will pick up the value from this key to use as the input
	// for the next command.
	CtxOut = "__OUT__"
)

// ErrNotExecutable is recorded against a command whose preconditions were not
// met when the chain reached it.
var ErrNotExecutable = errors.New("command not executable")

// Releasable is a resource created during a workflow that must be released if
// the workflow does not hand it over to its caller.
type Releasable interface {
	Release() error
}

// Context defines the interface for a shared state object that is passed
// through a chain of commands. It carries data, errors, and tracked resources
// between commands for a single workflow execution.
type Context interface {
	// SetContext sets the standard Go `context.Context` used for cancellation
	// and trace propagation.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go `context.Context`.
	GetContext() context.Context

	// Add stores a key-value pair in the context. It returns the Context to
	// allow for fluent method chaining.
	Add(key string, value interface{}) Context

	// AddError records an error that occurred within a command. The key should
	// be the name of the command that produced the error.
	AddError(key string, err error)

	// GetErrors returns all errors keyed by command name.
	GetErrors() map[string]error

	// Errors returns the recorded errors in the order they were added.
	Errors() []NamedError

	// Err returns the first recorded error, or nil.
	Err() error

	// Get retrieves a value from the context by its key.
	Get(key string) interface{}

	// Remove deletes a key-value pair from the context.
	Remove(key string)

	// HasErrors checks if any errors have been recorded in the context.
	HasErrors() bool

	// AddResource tracks a resource for release by Close.
	AddResource(resource Releasable)

	// GetResources returns the tracked resources.
	GetResources() []Releasable

	// ClearResources stops tracking all resources, typically because the
	// caller took ownership of them.
	ClearResources()

	// Close releases every tracked resource.
	Close()
}

// NamedError pairs an error with the command that produced it.
type NamedError struct {
	Name string
	Err  error
}

// Executable is a simple interface for any object that has a core execution logic.
type Executable interface {
	// Execute contains the primary business logic of the object.
	Execute(context Context)
}

// Command represents an atomic, testable unit of work.
type Command interface {
	Executable

	// GetName returns the unique name of the command, used for logging and telemetry.
	GetName() string

	// GetInputParam returns the key of the command's primary input.
	GetInputParam() string

	// GetOutputParam returns the key of the command's primary output.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the Context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Observer is notified around every command a chain runs. BeforeCommand is
// called only for commands the chain is about to execute; AfterCommand is
// called after each of those, whether or not it failed.
type Observer interface {
	BeforeCommand(context Context, command Command)
	AfterCommand(context Context, command Command)
}

// Chain represents a sequence of commands. It is itself a Command, which allows
// chains to be nested within other chains.
type Chain interface {
	Command

	// ContinueOnFailure tells the chain whether to keep going after a command
	// records an error.
	ContinueOnFailure(bool) Chain

	// AddCommand adds a new command to the end of the execution sequence.
	AddCommand(command Command) Chain

	// AddObserver registers an observer for command boundaries.
	AddObserver(observer Observer) Chain
}
