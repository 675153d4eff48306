// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package transcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/objectstore"
	"github.com/tomtom215/mediaforge/internal/quality"
)

// FFmpegRunner encodes with the ffmpeg and ffprobe binaries. Sources are
// fetched from object storage into a per-job temp directory and the output
// is written back to object storage.
type FFmpegRunner struct {
	objects objectstore.Store
	ffmpeg  string
	ffprobe string
	tempDir string
}

// NewFFmpegRunner creates a runner from the transcode configuration.
func NewFFmpegRunner(cfg config.TranscodeConfig, objects objectstore.Store) *FFmpegRunner {
	r := &FFmpegRunner{
		objects: objects,
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		tempDir: cfg.TempDir,
	}
	if r.ffmpeg == "" {
		r.ffmpeg = "ffmpeg"
	}
	if r.ffprobe == "" {
		r.ffprobe = "ffprobe"
	}
	return r
}

// Run implements Runner.
func (r *FFmpegRunner) Run(ctx context.Context, task Task, progress ProgressFunc) (string, error) {
	workDir, err := os.MkdirTemp(r.tempDir, "job-"+task.JobID+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// No extension: ffmpeg probes the container instead of trusting the name.
	input := filepath.Join(workDir, "source")
	if err := r.download(ctx, task.SourceKey, input); err != nil {
		return "", err
	}

	outputKey := RenditionKey(task.SourceKey, task.ContentType, task.Profile.Name)
	output := filepath.Join(workDir, "output"+path.Ext(outputKey))
	image := IsImage(task.ContentType)

	var duration time.Duration
	if !image {
		duration, err = r.probeDuration(ctx, input)
		if err != nil {
			// Progress reporting degrades to start/end only.
			task.logf("warn", "ffprobe: "+err.Error())
		}
	}

	var args []string
	if image {
		args = ImageArgs(input, output, task.Profile)
	} else {
		args = VideoArgs(input, output, task.Profile)
	}
	task.logf("info", "ffmpeg "+strings.Join(args, " "))

	if err := r.encode(ctx, args, duration, task, progress); err != nil {
		return "", err
	}

	if err := r.upload(ctx, output, outputKey); err != nil {
		return "", err
	}
	return outputKey, nil
}

func (r *FFmpegRunner) download(ctx context.Context, key, dst string) error {
	src, err := r.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch source %s: %w", key, err)
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("download source %s: %w", key, err)
	}
	return f.Close()
}

func (r *FFmpegRunner) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := r.objects.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("store rendition %s: %w", key, err)
	}
	return nil
}

func (r *FFmpegRunner) probeDuration(ctx context.Context, input string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return ParseDuration(string(out))
}

func (r *FFmpegRunner) encode(ctx context.Context, args []string, duration time.Duration, task Task, progress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	parseErr := ParseProgress(stdout, duration, progress)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		tail := strings.TrimSpace(stderr.String())
		if tail != "" {
			task.logf("error", tail)
		}
		return fmt.Errorf("ffmpeg: %w: %s", waitErr, lastLine(tail))
	}
	if parseErr != nil {
		task.logf("warn", "progress: "+parseErr.Error())
	}
	return nil
}

// codecs maps profile codec names to ffmpeg encoders.
var codecs = map[string]string{
	"h264": "libx264",
	"h265": "libx265",
	"hevc": "libx265",
	"vp9":  "libvpx-vp9",
	"av1":  "libaom-av1",
}

// VideoArgs builds the ffmpeg arguments for a video rendition.
func VideoArgs(input, output string, p quality.Profile) []string {
	encoder, ok := codecs[strings.ToLower(p.Codec)]
	if !ok {
		encoder = "libx264"
	}
	bitrate := strconv.Itoa(p.BitrateKbps) + "k"
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-vf", fmt.Sprintf("scale=-2:%d", p.Height),
		"-c:v", encoder,
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", strconv.Itoa(p.BitrateKbps*2) + "k",
	}
	if p.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(p.FrameRate))
	}
	args = append(args,
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", "pipe:1", "-nostats",
		output,
	)
	return args
}

// ImageArgs builds the ffmpeg arguments for a still image rendition.
func ImageArgs(input, output string, p quality.Profile) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-vf", fmt.Sprintf("scale=-2:%d", p.Height),
		"-frames:v", "1",
		"-progress", "pipe:1", "-nostats",
		output,
	}
}

// ParseDuration parses ffprobe's duration output in seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, errors.New("duration unavailable")
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ParseProgress reads ffmpeg's -progress key=value stream and reports
// percent complete whenever it changes. Without a known duration only the
// final progress=end is reported. Percentages are capped at 99 until end.
func ParseProgress(r io.Reader, duration time.Duration, fn ProgressFunc) error {
	last := -1
	report := func(p int) {
		if p != last && fn != nil {
			last = p
			fn(p)
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			if duration <= 0 {
				continue
			}
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			pct := int(float64(us) / float64(duration.Microseconds()) * 100)
			if pct > 99 {
				pct = 99
			}
			report(pct)
		case "progress":
			if value == "end" {
				report(100)
			}
		}
	}
	return scanner.Err()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return n, nil
}

func (b *tailBuffer) String() string { return b.buf.String() }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
