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
// for creating workflows. This file defines `BaseContext`, the default
// implementation of the `Context` interface.
//
// This implementation includes:
//   - A map to hold arbitrary data (`data`).
//   - An ordered list of errors from any command in the chain (`errors`).
//   - A list of resources created during the workflow that are released on
//     Close unless ownership was handed over (`resources`).
//   - A standard Go `context.Context` for cancellation, deadlines and
//     OpenTelemetry spans.
package cor

import (
	"context"
	"log/slog"
)

// BaseContext is the default implementation of the Context interface. It is
// owned by a single workflow execution and is not safe for concurrent use.
type BaseContext struct {
	data      map[string]interface{}
	errors    []NamedError
	resources []Releasable
	context   context.Context
}

// NewBaseContext is the constructor for BaseContext.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make([]NamedError, 0),
		resources: make([]Releasable, 0),
	}
}

// NewBaseContextWith creates a BaseContext bound to ctx.
func NewBaseContextWith(ctx context.Context) Context {
	c := NewBaseContext()
	c.SetContext(ctx)
	return c
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close releases every tracked resource. Release failures are logged, not
// returned, since Close usually runs deferred.
func (c *BaseContext) Close() {
	for _, resource := range c.resources {
		if err := resource.Release(); err != nil {
			slog.Warn("failed to release workflow resource", "error", err)
		}
	}
	c.resources = make([]Releasable, 0)
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) AddResource(resource Releasable) {
	c.resources = append(c.resources, resource)
}

func (c *BaseContext) GetResources() []Releasable {
	return c.resources
}

func (c *BaseContext) ClearResources() {
	c.resources = make([]Releasable, 0)
}

// AddError records err against key. A second error for the same key replaces
// the first in GetErrors but both remain in Errors.
func (c *BaseContext) AddError(key string, err error) {
	if err == nil {
		return
	}
	c.errors = append(c.errors, NamedError{Name: key, Err: err})
}

func (c *BaseContext) GetErrors() map[string]error {
	out := make(map[string]error, len(c.errors))
	for _, e := range c.errors {
		out[e.Name] = e.Err
	}
	return out
}

func (c *BaseContext) Errors() []NamedError {
	return c.errors
}

func (c *BaseContext) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	return c.errors[0].Err
}

// Get returns the stored value, or nil if the key does not exist.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
