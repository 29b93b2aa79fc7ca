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

// Package test provides utility functions and sample data to support the
// application's test suite. It loads the test configuration from the
// repository's configs directory, starts the development detection service on
// a loopback port and writes sample videos to disk.
package test

import (
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-video-detect/internal/api"
	"github.com/jaycherian/gcp-go-video-detect/internal/cloud"
	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// TestRuntime selects configs/.env.test.toml.
const TestRuntime = "test"

// StateManager caches the configuration across the tests of a package.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
//
// Inputs:
//   - err: The error to check.
//   - t: The *testing.T object from the current test.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ConfigDir returns the absolute path of the repository's configs directory,
// independent of the package directory the test runs in.
func ConfigDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "configs"
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test configuration files.
//
// Returns:
//   - An error if setting any environment variable fails.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, TestRuntime)
}

// GetConfig is a singleton accessor for the test configuration. The files are
// read once per test binary.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// StartDevService runs the development detection service on a loopback port
// for the duration of the test.
//
// Returns:
//   - *api.DevService: The service state, for fault injection and call checks.
//   - *httptest.Server: The running server; its URL is the client's base URL.
func StartDevService(t *testing.T) (*api.DevService, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := api.NewDevService(cloud.DevServer{})
	server := httptest.NewServer(api.SetupRouter(svc, "detect-dev-test"))
	t.Cleanup(server.Close)
	return svc, server
}

// WriteSampleVideo writes the sample MP4 to a temporary directory and returns
// its path.
func WriteSampleVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, model.GetExampleVideoContent(), 0o600); err != nil {
		t.Fatalf("failed to write sample video: %v", err)
	}
	return path
}
