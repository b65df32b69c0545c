package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	json "github.com/goccy/go-json"
)

// probeStream represents one media stream in ffprobe's JSON output.
type probeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Channels  int    `json:"channels,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// ProbeResult holds the metadata the preloader needs: intrinsic dimensions,
// duration, and whether the container carries audio.
type ProbeResult struct {
	Width    int
	Height   int
	Duration float64
	HasVideo bool
	HasAudio bool
}

// Probe extracts stream metadata from a media URL or file path using ffprobe.
// The context bounds the probe; a hung network source is cancelled rather
// than stalling the preload batch.
func Probe(ctx context.Context, ffprobePath, source string) (*ProbeResult, error) {
	if source == "" {
		return nil, fmt.Errorf("source cannot be empty")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		source,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var raw probeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		result.Duration = d
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if !result.HasVideo {
				result.Width = s.Width
				result.Height = s.Height
			}
			result.HasVideo = true
		case "audio":
			result.HasAudio = true
		}
		if result.Duration == 0 && s.Duration != "" {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				result.Duration = d
			}
		}
	}

	if !result.HasVideo && !result.HasAudio {
		return nil, fmt.Errorf("no decodable streams in %s", source)
	}

	return result, nil
}
