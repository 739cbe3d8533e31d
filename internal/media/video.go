package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrToolUnavailable means ffmpeg/ffprobe are not installed. Video
	// processing degrades to placeholder assets instead of failing.
	ErrToolUnavailable = errors.New("media: video tools unavailable")

	// ErrInvalidVideo means the input could not be read as a video.
	ErrInvalidVideo = errors.New("media: invalid video file")
)

const (
	Resolution480p = "480p"
	Resolution720p = "720p"

	FormatMP4  = "mp4"
	FormatWebM = "webm"

	thumbnailWidth = 640
)

// VideoTool shells out to ffmpeg and ffprobe.
type VideoTool struct {
	ffmpegPath  string
	ffprobePath string
}

func NewVideoTool(ffmpegPath, ffprobePath string) *VideoTool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &VideoTool{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Available reports whether both binaries can be found.
func (t *VideoTool) Available() bool {
	if _, err := exec.LookPath(t.ffmpegPath); err != nil {
		return false
	}
	if _, err := exec.LookPath(t.ffprobePath); err != nil {
		return false
	}
	return true
}

// Metadata describes a probed video.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	Format   string
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (t *VideoTool) Probe(ctx context.Context, filePath string) (*Metadata, error) {
	if !t.Available() {
		return nil, fmt.Errorf("%w: %s or %s not found in PATH", ErrToolUnavailable, t.ffmpegPath, t.ffprobePath)
	}

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %v", ErrInvalidVideo, filepath.Base(filePath), err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("%w: parse probe output: %v", ErrInvalidVideo, err)
	}

	meta := &Metadata{Format: probed.Format.FormatName}
	if probed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	for _, stream := range probed.Streams {
		if stream.CodecType == "video" {
			meta.Width = stream.Width
			meta.Height = stream.Height
			break
		}
	}
	return meta, nil
}

// Thumbnail extracts a single frame at 10% of the duration, scaled to
// 640px wide, and returns the path of the JPEG written next to the input.
func (t *VideoTool) Thumbnail(ctx context.Context, filePath string, duration float64) (string, error) {
	seek := duration * 0.1
	if seek < 0 {
		seek = 0
	}

	base := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	outPath := base + "_thumbnail.jpg"

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-ss", strconv.FormatFloat(seek, 'f', 2, 64),
		"-i", filePath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", thumbnailWidth),
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("extract thumbnail from %s: %v: %s", filepath.Base(filePath), err, string(out))
	}
	return outPath, nil
}

// TranscodeOptions selects the output rendition.
type TranscodeOptions struct {
	Resolution string // Resolution480p or Resolution720p
	Format     string // FormatMP4 or FormatWebM
}

func (t *VideoTool) Transcode(ctx context.Context, filePath string, opts TranscodeOptions) (string, error) {
	res := opts.Resolution
	if res == "" {
		res = Resolution720p
	}
	var scale, videoBitrate string
	switch res {
	case Resolution480p:
		scale, videoBitrate = "scale=854:480", "1000k"
	case Resolution720p:
		scale, videoBitrate = "scale=1280:720", "2500k"
	default:
		return "", fmt.Errorf("unsupported resolution %q", res)
	}

	format := opts.Format
	if format == "" {
		format = FormatMP4
	}
	if format != FormatMP4 && format != FormatWebM {
		return "", fmt.Errorf("unsupported format %q", format)
	}

	base := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	outPath := fmt.Sprintf("%s_%s.%s", base, res, format)

	args := []string{
		"-y",
		"-i", filePath,
		"-vf", scale,
		"-b:v", videoBitrate,
		"-b:a", "128k",
	}
	if format == FormatMP4 {
		// Streaming-friendly: moov atom up front.
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("transcode %s: %v: %s", filepath.Base(filePath), err, string(out))
	}
	return outPath, nil
}
