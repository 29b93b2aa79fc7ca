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
// for creating workflows as a sequence of commands. This file defines the
// `BaseChain`, which is the default implementation of the `Chain` interface.
//
// Logic Flow:
//
//  1. **Telemetry**: An OpenTelemetry span is created for the entire chain.
//  2. **Command Loop**: The chain iterates through its commands in order.
//  3. **Early Exit**: Before each command, the chain stops if the context already
//     holds an error (unless `continueOnFailure` is set) or if the Go context
//     has been cancelled. A cancelled context is recorded as an error.
//  4. **Preconditions**: A command whose `IsExecutable` returns false is recorded
//     as `ErrNotExecutable`; it never runs silently skipped.
//  5. **Execution**: Each command runs inside its own child span, bracketed by
//     the observers' `BeforeCommand` and `AfterCommand` hooks.
//  6. **Data Piping**: After a command executes, the value it placed in `CtxOut`
//     is moved to `CtxIn` for the next command.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain is the default implementation of the Chain interface. It holds a slice
// of commands to be executed sequentially.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
	observers         []Observer
}

// NewBaseChain is the constructor for BaseChain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure sets whether the chain keeps going after a command fails.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand adds a command to the end of the chain's execution sequence.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// AddObserver registers an observer. Observers are called in registration order.
func (c *BaseChain) AddObserver(observer Observer) Chain {
	c.observers = append(c.observers, observer)
	return c
}

// Commands returns the commands in execution order.
func (c *BaseChain) Commands() []Command {
	return c.commands
}

// IsExecutable checks if the chain can be executed. For a chain, this simply means
// that a valid Go context exists.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context.GetContext() != nil
}

// Execute runs every command in sequence against chCtx.
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	defer chCtx.SetContext(parentCtx)

	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(command.GetName(), fmt.Errorf("%s: %w", command.GetName(), err))
			break
		}

		if !command.IsExecutable(chCtx) {
			chCtx.AddError(command.GetName(), fmt.Errorf("%s: %w", command.GetName(), ErrNotExecutable))
			continue
		}

		commandCtx, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		errorsBefore := len(chCtx.Errors())

		chCtx.SetContext(commandCtx)
		for _, o := range c.observers {
			o.BeforeCommand(chCtx, command)
		}
		command.Execute(chCtx)
		for _, o := range c.observers {
			o.AfterCommand(chCtx, command)
		}
		// Reset so the next command's span is a sibling, not a child.
		chCtx.SetContext(outerCtx)

		if errs := chCtx.Errors(); len(errs) > errorsBefore {
			commandSpan.RecordError(errs[len(errs)-1].Err)
			commandSpan.SetStatus(codes.Error, "command failed")
		} else {
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if !chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	} else {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	}
}
