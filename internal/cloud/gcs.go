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

// This file archives finished detection runs to Google Cloud Storage. Each run
// is stored under `<prefix>/<run id>/` as the processed video plus a JSON
// document with the detections.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

// GCSObject identifies a stored object.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI returns the gs:// form of the object.
func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ArchiveObjectNames returns the object names used for a run.
func ArchiveObjectNames(prefix string, runID string) (video string, detections string) {
	base := path.Join(prefix, runID)
	return path.Join(base, "processed.mp4"), path.Join(base, "detections.json")
}

// archiveDocument is what gets written next to the processed video.
type archiveDocument struct {
	RunID      string            `json:"run_id"`
	Detections []model.Detection `json:"detections"`
}

// GCSResultStore writes run results to a bucket.
type GCSResultStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSResultStore creates a store bound to a bucket and prefix.
func NewGCSResultStore(client *storage.Client, archive Archive) *GCSResultStore {
	return &GCSResultStore{client: client, bucket: archive.Bucket, prefix: archive.Prefix}
}

// StoreRun uploads the processed media and the detections for a run.
//
// Inputs:
//   - ctx: Controls cancellation of both uploads.
//   - runID: The run identifier used in the object path.
//   - media: The processed video handle. It is opened, not released.
//   - detections: May be nil; it is stored as JSON null.
//
// Outputs:
//   - []GCSObject: The objects written.
//   - error: The first upload error.
func (s *GCSResultStore) StoreRun(ctx context.Context, runID string, media *model.MediaHandle, detections []model.Detection) ([]GCSObject, error) {
	videoName, detectionsName := ArchiveObjectNames(s.prefix, runID)

	reader, err := media.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open media handle for archive: %w", err)
	}
	defer reader.Close()

	video := GCSObject{Bucket: s.bucket, Name: videoName, MIMEType: media.MIMEType}
	if err := s.write(ctx, video, reader); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(archiveDocument{RunID: runID, Detections: detections})
	if err != nil {
		return nil, err
	}
	meta := GCSObject{Bucket: s.bucket, Name: detectionsName, MIMEType: "application/json"}
	if err := s.write(ctx, meta, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return []GCSObject{video, meta}, nil
}

func (s *GCSResultStore) write(ctx context.Context, obj GCSObject, r io.Reader) error {
	w := s.client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	w.ContentType = obj.MIMEType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s: %w", obj.URI(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", obj.URI(), err)
	}
	return nil
}
