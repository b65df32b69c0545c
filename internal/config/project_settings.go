package config

import "fmt"

// Quality presets map to fixed output resolutions.
const (
	Quality480p  = "480p"
	Quality720p  = "720p"
	Quality1080p = "1080p"
	Quality1440p = "1440p"
	Quality2160p = "2160p"
)

// Bitrate bounds in kbps, user-adjustable independent of the quality preset.
const (
	MinBitrate     = 500
	MaxBitrate     = 30000
	DefaultBitrate = 5000
)

// validFPS is the enumerated set of supported frame rates.
var validFPS = map[int]bool{
	24: true, 25: true, 30: true, 50: true, 60: true, 120: true,
}

// qualityDimensions maps each preset to its pixel resolution.
var qualityDimensions = map[string][2]int{
	Quality480p:  {854, 480},
	Quality720p:  {1280, 720},
	Quality1080p: {1920, 1080},
	Quality1440p: {2560, 1440},
	Quality2160p: {3840, 2160},
}

// ProjectSettings is the immutable render configuration snapshot handed to
// the export engine. The engine never writes it back.
type ProjectSettings struct {
	FPS           int    `json:"fps"`
	Quality       string `json:"quality"`
	CustomBitrate int    `json:"customBitrate"` // kbps
}

// DefaultProjectSettings returns the settings applied to new projects.
func DefaultProjectSettings() ProjectSettings {
	return ProjectSettings{
		FPS:           30,
		Quality:       Quality1080p,
		CustomBitrate: DefaultBitrate,
	}
}

// Dimensions returns the output resolution for the quality preset.
// Unknown presets fall back to 1080p.
func (s ProjectSettings) Dimensions() (width, height int) {
	if dims, ok := qualityDimensions[s.Quality]; ok {
		return dims[0], dims[1]
	}
	dims := qualityDimensions[Quality1080p]
	return dims[0], dims[1]
}

// BitsPerSecond returns the configured video bitrate in bits per second.
func (s ProjectSettings) BitsPerSecond() int {
	return s.CustomBitrate * 1000
}

// Validate checks that all fields are within their enumerated ranges.
func (s ProjectSettings) Validate() error {
	if !validFPS[s.FPS] {
		return fmt.Errorf("invalid fps %d (supported: 24, 25, 30, 50, 60, 120)", s.FPS)
	}
	if _, ok := qualityDimensions[s.Quality]; !ok {
		return fmt.Errorf("invalid quality %q (supported: 480p, 720p, 1080p, 1440p, 2160p)", s.Quality)
	}
	if s.CustomBitrate < MinBitrate || s.CustomBitrate > MaxBitrate {
		return fmt.Errorf("bitrate %d out of range [%d, %d]", s.CustomBitrate, MinBitrate, MaxBitrate)
	}
	return nil
}
