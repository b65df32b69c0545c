package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os/exec"
	"strings"
	"time"

	"clipstudio/internal/media"
	"clipstudio/internal/timeline"
)

// Mix output format. All sources are resampled to a common rate so the
// summing loop never needs per-source conversion.
const (
	SampleRate = 48000
	Channels   = 2

	// HeadroomGain attenuates every source before summing so stacked clips
	// do not clip the master bus.
	HeadroomGain = 0.8

	sourceTimeout = 5 * time.Second
)

// Source is one audio contribution to the mix: an element placement plus
// the media it decodes from.
type Source struct {
	ElementID string
	ItemID    string
	Name      string
	URL       string

	// Offset is the timeline position in seconds where playback starts.
	Offset float64
	// TrimStart is skipped from the head of the underlying media.
	TrimStart float64
	// Duration is the trimmed playable length in seconds.
	Duration float64
}

// DiscoverSources collects every element that contributes audio: elements on
// audio tracks referencing audio items, and media elements whose video was
// probed to carry an audio stream. Placeholder and unresolved references are
// excluded; they have nothing to decode.
func DiscoverSources(tracks []timeline.Track, items map[string]*timeline.MediaItem, handles map[string]*media.Handle) []Source {
	var sources []Source

	for ti := range tracks {
		track := &tracks[ti]
		for ei := range track.Elements {
			el := &track.Elements[ei]
			if el.Type != timeline.ElementTypeMedia || el.MediaID == timeline.PlaceholderMediaID {
				continue
			}
			item := items[el.MediaID]
			if item == nil {
				continue
			}

			switch track.Type {
			case timeline.TrackTypeAudio:
				if item.Type != timeline.MediaTypeAudio {
					continue
				}
			case timeline.TrackTypeMedia, timeline.TrackTypeVideo:
				if item.Type != timeline.MediaTypeVideo {
					continue
				}
				if h := handles[item.ID]; h == nil || !h.HasAudio() {
					continue
				}
			default:
				continue
			}

			sources = append(sources, Source{
				ElementID: el.ID,
				ItemID:    item.ID,
				Name:      item.Name,
				URL:       item.URL,
				Offset:    el.StartTime,
				TrimStart: el.TrimStart,
				Duration:  el.TrimmedDuration(),
			})
		}
	}
	return sources
}

// Mix is the summed master bus for one export.
type Mix struct {
	PCM        []int16
	SampleRate int
	Channels   int

	// Attempted and Connected record how many sources were scheduled and
	// how many actually decoded, for progress reporting.
	Attempted int
	Connected int
}

// Duration reports the mix length in seconds.
func (m *Mix) Duration() float64 {
	if m == nil || m.Channels == 0 || m.SampleRate == 0 {
		return 0
	}
	return float64(len(m.PCM)) / float64(m.Channels) / float64(m.SampleRate)
}

// Mixer decodes sources through ffmpeg and sums them into a single
// interleaved stereo PCM buffer.
type Mixer struct {
	ffmpegPath string
	logf       func(format string, args ...interface{})
}

func NewMixer(ffmpegPath string) *Mixer {
	return &Mixer{ffmpegPath: ffmpegPath, logf: log.Printf}
}

// SetLogf overrides the mixer's log sink.
func (m *Mixer) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		m.logf = logf
	}
}

// BuildMix decodes and sums all sources over a totalDuration-second bus.
// With no sources it returns (nil, nil): the export is then video-only.
// Individual source failures are logged and skipped; BuildMix fails only
// when the context is canceled.
func (m *Mixer) BuildMix(ctx context.Context, sources []Source, totalDuration float64) (*Mix, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	if totalDuration <= 0 {
		return nil, fmt.Errorf("non-positive mix duration %.3f", totalDuration)
	}

	totalSamples := int(math.Ceil(totalDuration*SampleRate)) * Channels
	acc := make([]int32, totalSamples)

	connected := 0
	sched := NewScheduler()
	sched.SetLogf(m.logf)

	for i := range sources {
		src := sources[i]
		sched.At(src.Offset, src.Name, func(offset float64) error {
			pcm, err := m.decodeSource(ctx, src)
			if err != nil {
				return err
			}
			start := int(offset*SampleRate+0.5) * Channels
			mixInto(acc, pcm, start, HeadroomGain)
			connected++
			m.logf("[Audio] connected %s at %.3fs (%d samples)", src.Name, offset, len(pcm))
			return nil
		})
	}

	if err := sched.Run(ctx); err != nil {
		return nil, fmt.Errorf("mix schedule: %w", err)
	}

	return &Mix{
		PCM:        clampPCM(acc),
		SampleRate: SampleRate,
		Channels:   Channels,
		Attempted:  len(sources),
		Connected:  connected,
	}, nil
}

// decodeSource runs ffmpeg to produce interleaved s16le stereo samples for
// one trimmed source.
func (m *Mixer) decodeSource(ctx context.Context, src Source) ([]int16, error) {
	if m.ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not available")
	}

	ctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	input := strings.TrimPrefix(src.URL, "file://")
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", src.TrimStart),
		"-t", fmt.Sprintf("%.3f", src.Duration),
		"-i", input,
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-",
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.Name, err)
	}

	pcm := make([]int16, len(out)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	return pcm, nil
}

// mixInto sums gain-scaled samples into the accumulator starting at the
// given interleaved sample index. Samples past the end of the bus are
// dropped rather than grown; the bus length is the export length.
func mixInto(acc []int32, pcm []int16, start int, gain float64) {
	if start < 0 {
		if -start >= len(pcm) {
			return
		}
		pcm = pcm[-start:]
		start = 0
	}
	for i, s := range pcm {
		idx := start + i
		if idx >= len(acc) {
			return
		}
		acc[idx] += int32(float64(s) * gain)
	}
}

// clampPCM saturates the 32-bit accumulator to the int16 output range.
func clampPCM(acc []int32) []int16 {
	out := make([]int16, len(acc))
	for i, v := range acc {
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}
