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
	"os"

	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/services"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/workflow"
)

// StateManager holds the components shared by a run of the CLI.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	client   *services.DetectionService
	workflow *workflow.DetectionWorkflow
}

// SetupOS defaults the configuration environment for the CLI. Values already
// present in the environment win.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, cloud.DefaultRuntime)
	}
	return nil
}

// GetConfig loads and validates the layered TOML configuration.
func GetConfig() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// InitState builds the client, the optional cloud clients and the workflow
// with its subscribers.
func InitState(ctx context.Context, config *cloud.Config, subscribers ...workflow.Subscriber) (*StateManager, error) {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud clients: %w", err)
	}

	client, err := services.NewDetectionService(config.DetectionService)
	if err != nil {
		cloudClients.Close()
		return nil, fmt.Errorf("failed to create detection client: %w", err)
	}

	if cloudClients.ResultStore != nil {
		subscribers = append(subscribers, newArchiveSubscriber(cloudClients.ResultStore))
	}

	return &StateManager{
		config:   config,
		cloud:    cloudClients,
		client:   client,
		workflow: workflow.NewDetectionWorkflow(client, subscribers...),
	}, nil
}

// Close releases the cloud clients.
func (s *StateManager) Close() {
	s.cloud.Close()
}
