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

// Command detect sends one video through the detection service and reports
// the processed video and the detections it returns.
//
// Usage:
//
//	detect -video clip.mp4 [-confidence 0.7] [-iou 0.5] [-out annotated.mp4] [-detections detections.json|-]
//
// The service URL and defaults come from configs/.env.toml and
// configs/.env.<DETECT_RUNTIME>.toml. The exit code is 0 when the run
// succeeds and 1 otherwise.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-video-detect/internal/core/model"
	"github.com/jaycherian/gcp-go-video-detect/internal/telemetry"
)

type options struct {
	video      string
	confidence string
	iou        string
	out        string
	detections string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.video, "video", "", "path of the video to analyse")
	fs.StringVar(&opts.confidence, "confidence", "", "confidence threshold in [0, 1]; defaults to the configured value")
	fs.StringVar(&opts.iou, "iou", "", "IoU threshold in [0, 1]; defaults to the configured value")
	fs.StringVar(&opts.out, "out", "", "copy the processed video to this path")
	fs.StringVar(&opts.detections, "detections", "", "write the detections as JSON to this path, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// parameters starts from the configured defaults and applies the flag values
// through the same guard an input widget uses. A rejected value is reported
// and the default kept.
func parameters(opts *options, defaults model.DetectionParameters) model.DetectionParameters {
	params := defaults
	if opts.confidence != "" && !params.SetConfidenceText(opts.confidence) {
		slog.Warn("ignoring confidence value", "value", opts.confidence, "using", params.Confidence)
	}
	if opts.iou != "" && !params.SetIoUText(opts.iou) {
		slog.Warn("ignoring iou value", "value", opts.iou, "using", params.IoU)
	}
	return params
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 1
	}

	config, err := GetConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := telemetry.SetupLogging(stderr, config.Telemetry.LogLevel); err != nil {
		slog.Warn("invalid log level, using info", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("failed to setup OpenTelemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown telemetry", "error", err)
		}
	}()

	params := parameters(opts, model.DetectionParameters{
		Confidence: config.DetectionDefaults.Confidence,
		IoU:        config.DetectionDefaults.IoU,
	})

	console := stdout
	if opts.detections == "-" {
		console = stderr
	}

	// No -video is left to the workflow, which reports the missing input.
	var video *model.VideoFile
	if opts.video != "" {
		video, err = model.NewVideoFileFromPath(opts.video)
		if err != nil {
			slog.Error("failed to read video", "path", opts.video, "error", err)
			fmt.Fprintf(console, "Error reading video: %v\n", err)
			return 1
		}
	}
	state, err := InitState(ctx, config, &consoleReporter{w: console})
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return 1
	}
	defer state.Close()

	outcome, err := state.workflow.Run(ctx, video, params.Confidence, params.IoU)
	if err != nil {
		return 1
	}
	defer outcome.Media.Release()

	if opts.out != "" {
		if err := copyMedia(outcome.Media, opts.out); err != nil {
			slog.Error("failed to save processed video", "path", opts.out, "error", err)
			return 1
		}
	}
	if opts.detections != "" {
		if err := writeDetections(opts.detections, stdout, outcome.Detections); err != nil {
			slog.Error("failed to write detections", "path", opts.detections, "error", err)
			return 1
		}
	}
	return 0
}

func copyMedia(handle *model.MediaHandle, path string) (err error) {
	src, err := handle.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, dst.Close())
	}()
	_, err = io.Copy(dst, src)
	return err
}

// writeDetections writes the list as indented JSON. No detections are
// written as null.
func writeDetections(path string, stdout io.Writer, detections []model.Detection) error {
	data, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
