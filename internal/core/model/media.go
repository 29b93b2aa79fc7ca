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

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// MediaHandle is a locally addressable reference to the processed video. The
// bytes live in a file under the media directory until the handle is released.
// Once delivered to the presentation layer, releasing it is the presentation
// layer's job.
type MediaHandle struct {
	ID       string
	Path     string
	MIMEType string
	Size     int64

	mu       sync.Mutex
	released bool
}

// NewMediaHandle writes data to a uniquely named file in dir. An empty dir
// means os.TempDir().
func NewMediaHandle(dir string, data []byte, mimeType string) (*MediaHandle, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}

	id := uuid.NewString()
	path := filepath.Join(dir, "processed-"+id+extensionFor(mimeType))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write media handle: %w", err)
	}
	return &MediaHandle{ID: id, Path: path, MIMEType: mimeType, Size: int64(len(data))}, nil
}

func extensionFor(mimeType string) string {
	if mimeType == "video/mp4" {
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// URL returns a file:// URL suitable for a local player.
func (h *MediaHandle) URL() string {
	abs, err := filepath.Abs(h.Path)
	if err != nil {
		abs = h.Path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Open returns a reader over the media bytes.
func (h *MediaHandle) Open() (io.ReadCloser, error) {
	if h.IsReleased() {
		return nil, errors.New("media handle has been released")
	}
	return os.Open(h.Path)
}

// IsReleased reports whether Release has been called.
func (h *MediaHandle) IsReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release revokes the handle and removes its backing file. It is safe to call
// more than once.
func (h *MediaHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
