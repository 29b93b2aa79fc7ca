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

// This file initializes and holds the Google Cloud clients the application
// needs. Everything here is optional: with no archive bucket configured no
// client is created and the application runs fully offline.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/storage"
)

// ServiceClients is a container for the Google Cloud clients shared across the
// application.
type ServiceClients struct {
	StorageClient *storage.Client // nil unless archiving is enabled.
	ResultStore   *GCSResultStore // nil unless archiving is enabled.
}

// Close releases any open client connections.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
}

// NewCloudServiceClients creates the clients required by config.
//
// Inputs:
//   - ctx: The root context.Context for the application.
//   - config: The loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients, possibly empty.
//   - error: An error if the storage client cannot be created.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clients := &ServiceClients{}
	if config.Archive.Bucket == "" {
		return clients, nil
	}

	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	clients.StorageClient = sc
	clients.ResultStore = NewGCSResultStore(sc, config.Archive)
	slog.InfoContext(ctx, "result archive enabled", "bucket", config.Archive.Bucket, "prefix", config.Archive.Prefix)
	return clients, nil
}
