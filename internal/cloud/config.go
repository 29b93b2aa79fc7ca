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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, along with the clients the application uses to talk
// to remote services: the detection service pacing limiter and the optional
// Cloud Storage result archive.
//
// Structs:
//   - DetectionServiceConfig: Where the detection service lives and how to call it.
//   - DetectionDefaults: The threshold values offered before the user edits them.
//   - Telemetry: Export and log level settings.
//   - Archive: Optional Cloud Storage location for finished runs.
//   - DevServer: Settings for the local development detection service.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// DetectionServiceConfig describes the remote detection service.
type DetectionServiceConfig struct {
	BaseURL           string  `toml:"base_url"`            // Root URL of the service, e.g. "http://localhost:8080".
	TimeoutMs         int     `toml:"timeout_ms"`          // Per request timeout in milliseconds.
	RequestsPerSecond float64 `toml:"requests_per_second"` // Client side pacing. Zero disables it.
	MediaDir          string  `toml:"media_dir"`           // Where processed media handles are written. Empty means the OS temp dir.
}

// Timeout converts TimeoutMs into a time.Duration.
func (d DetectionServiceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// DetectionDefaults are the thresholds shown before the user edits them.
type DetectionDefaults struct {
	Confidence float64 `toml:"confidence"`
	IoU        float64 `toml:"iou"`
}

// Telemetry controls log verbosity and where traces and metrics go.
type Telemetry struct {
	GoogleProjectId string `toml:"google_project_id"` // When set, traces and metrics are exported to this project.
	LogLevel        string `toml:"log_level"`         // debug, info, warn or error.
}

// Archive is the optional Cloud Storage destination for finished runs.
type Archive struct {
	Bucket string `toml:"bucket"` // Empty disables archiving.
	Prefix string `toml:"prefix"`
}

// DevServer holds the settings of the development detection service.
type DevServer struct {
	Port              int `toml:"port"`
	ProcessingDelayMs int `toml:"processing_delay_ms"` // Artificial delay added to each detect call.
}

// Config represents the overall configuration for the application, loaded from TOML files.
type Config struct {
	Application struct {
		Name string `toml:"name"` // The name of the application, used as the telemetry service name.
	} `toml:"application"`
	DetectionService  DetectionServiceConfig `toml:"detection_service"`
	DetectionDefaults DetectionDefaults      `toml:"detection_defaults"`
	Telemetry         Telemetry              `toml:"telemetry"`
	Archive           Archive                `toml:"archive"`
	DevServer         DevServer              `toml:"dev_server"`
}

// NewConfig creates a Config pre-populated with the defaults the TOML files
// can override.
func NewConfig() *Config {
	c := &Config{
		DetectionService: DetectionServiceConfig{
			BaseURL:   "http://localhost:8080",
			TimeoutMs: 120000,
		},
		DetectionDefaults: DetectionDefaults{
			Confidence: model.DefaultConfidence,
			IoU:        model.DefaultIoU,
		},
		Telemetry: Telemetry{LogLevel: "info"},
		Archive:   Archive{Prefix: "detections"},
		DevServer: DevServer{Port: 8080},
	}
	c.Application.Name = "video-detect-client"
	return c
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.DetectionService.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("detection_service.base_url must be an absolute http(s) URL, got %q", c.DetectionService.BaseURL))
	}
	if c.DetectionService.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("detection_service.timeout_ms must be positive, got %d", c.DetectionService.TimeoutMs))
	}
	if c.DetectionService.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("detection_service.requests_per_second must not be negative, got %v", c.DetectionService.RequestsPerSecond))
	}
	if !model.InUnitInterval(c.DetectionDefaults.Confidence) {
		errs = append(errs, fmt.Errorf("detection_defaults.confidence must be in [0, 1], got %v", c.DetectionDefaults.Confidence))
	}
	if !model.InUnitInterval(c.DetectionDefaults.IoU) {
		errs = append(errs, fmt.Errorf("detection_defaults.iou must be in [0, 1], got %v", c.DetectionDefaults.IoU))
	}
	return errors.Join(errs...)
}
