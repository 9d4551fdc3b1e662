// Package transcoder rescales a local video file with an external tool.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Transcoder turns inputPath into outputPath at the given scale. It blocks
// until the tool reports done or error.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string, scale Scale) error
}

// Auto lets the tool compute a dimension from the aspect ratio.
const Auto = -1

// Scale is a target frame size. Either side may be Auto.
type Scale struct {
	Width  int
	Height int
}

// Scale360p is 360 pixels high with width derived from the aspect ratio.
var Scale360p = Scale{Width: Auto, Height: 360}

// Filter renders the ffmpeg video filter, e.g. "scale=-1:360".
func (s Scale) Filter() string {
	return "scale=" + strconv.Itoa(s.Width) + ":" + strconv.Itoa(s.Height)
}

func (s Scale) Valid() bool {
	if s.Width == Auto && s.Height == Auto {
		return false
	}
	return (s.Width == Auto || s.Width > 0) && (s.Height == Auto || s.Height > 0)
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) Transcode(ctx context.Context, inputPath, outputPath string, scale Scale) error {
	if !scale.Valid() {
		return fmt.Errorf("invalid scale %dx%d", scale.Width, scale.Height)
	}

	cmd := exec.CommandContext(ctx, f.Path, Args(inputPath, outputPath, scale)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg canceled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 2000))
	}
	return nil
}

// Args builds the ffmpeg command line.
func Args(inputPath, outputPath string, scale Scale) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-vf", scale.Filter(),
		outputPath,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
