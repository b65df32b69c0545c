package timeline

// TrackType identifies the kind of lane a track represents
type TrackType string

const (
	TrackTypeVideo TrackType = "video"
	TrackTypeAudio TrackType = "audio"
	TrackTypeMedia TrackType = "media"
	TrackTypeText  TrackType = "text"
)

// ElementType discriminates the element union
type ElementType string

const (
	ElementTypeMedia ElementType = "media"
	ElementTypeText  ElementType = "text"
)

// MediaType identifies the kind of asset a media item holds
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeImage MediaType = "image"
)

// PlaceholderMediaID is the sentinel ID the frontend assigns to empty clip
// slots. Elements referencing it render a placeholder panel instead of media.
const PlaceholderMediaID = "placeholder"

// minActiveWindow guards against zero or negative windows when trims
// consume the entire element duration.
const minActiveWindow = 1e-6

// MediaItem references an asset in the media library. Owned by the media
// store; the export engine only dereferences it, never mutates it.
type MediaItem struct {
	ID       string    `json:"id"`
	Type     MediaType `json:"type"`
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Duration float64   `json:"duration,omitempty"` // seconds, optional
}

// Element is one timed item placed on a track. The Type field discriminates
// between the media and text variants; consumers must handle both and
// defensively skip unknown kinds.
type Element struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`
	Name string      `json:"name,omitempty"`

	// Timing (seconds on the output timeline)
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trimStart"`
	TrimEnd   float64 `json:"trimEnd"`

	// Transform
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Rotation float64 `json:"rotation,omitempty"` // degrees
	Opacity  float64 `json:"opacity,omitempty"`  // 0-1, 0 means unset (treated as 1)

	// Media variant
	MediaID string `json:"mediaId,omitempty"`

	// Text variant
	Content         string  `json:"content,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	FontStyle       string  `json:"fontStyle,omitempty"`
	Color           string  `json:"color,omitempty"`           // hex, e.g. "#ffffff"
	BackgroundColor string  `json:"backgroundColor,omitempty"` // hex or "" for none
	TextAlign       string  `json:"textAlign,omitempty"`
}

// Track is an ordered, typed lane of elements. Order is the layering rank:
// lower order draws first (background).
type Track struct {
	ID       string    `json:"id"`
	Type     TrackType `json:"type"`
	Order    int       `json:"order"`
	Elements []Element `json:"elements"`
}

// TrimmedDuration returns the playable window after trims, clamped to a
// minimum so an over-trimmed element never yields a zero or negative window.
func (e *Element) TrimmedDuration() float64 {
	d := e.Duration - e.TrimStart - e.TrimEnd
	if d < minActiveWindow {
		return minActiveWindow
	}
	return d
}

// ActiveAt reports whether the element is visible/audible at timestamp t.
// The window is half-open: t == StartTime+window is excluded.
func (e *Element) ActiveAt(t float64) bool {
	return t >= e.StartTime && t < e.StartTime+e.TrimmedDuration()
}

// EffectiveOpacity normalizes the optional opacity field to the 0-1 range,
// treating the zero value as fully opaque.
func (e *Element) EffectiveOpacity() float64 {
	if e.Opacity <= 0 {
		return 1
	}
	if e.Opacity > 1 {
		return 1
	}
	return e.Opacity
}

// LocalTime maps an output-timeline timestamp to the element's media-local
// playback time, clamped to [0, mediaDuration] when mediaDuration > 0.
func (e *Element) LocalTime(t, mediaDuration float64) float64 {
	local := (t - e.StartTime) + e.TrimStart
	if local < 0 {
		local = 0
	}
	if mediaDuration > 0 && local > mediaDuration {
		local = mediaDuration
	}
	return local
}
