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

package services

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"

	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
)

const fallbackMediaType = "video/mp4"

// CheckBinaryMedia decides whether a media response actually carries media.
// An empty body, a textual declared type, or an undeclared body that parses
// as JSON or markup is rejected with *model.UnexpectedContentTypeError. On
// success it returns the best known MIME type: the sniffed one, then the
// declared one, then video/mp4.
func CheckBinaryMedia(op, contentType string, body []byte) (string, error) {
	declared := ""
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			declared = strings.ToLower(mt)
		} else {
			declared = strings.ToLower(strings.TrimSpace(contentType))
		}
	}

	if len(body) == 0 || isTextualMediaType(declared) {
		return "", &model.UnexpectedContentTypeError{Op: op, ContentType: contentType}
	}

	if kind, err := filetype.Match(body); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	if declared == "" || declared == "application/octet-stream" {
		if looksTextual(body) {
			return "", &model.UnexpectedContentTypeError{Op: op, ContentType: contentType}
		}
		return fallbackMediaType, nil
	}
	return declared, nil
}

func isTextualMediaType(mt string) bool {
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return true
	case mt == "application/xml", strings.HasSuffix(mt, "+xml"):
		return true
	case mt == "application/x-www-form-urlencoded":
		return true
	}
	return false
}

func looksTextual(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	if json.Valid(trimmed) {
		return true
	}
	return trimmed[0] == '<'
}
