package timeline

import "sort"

// ActiveElement pairs an element with its track and resolved media item.
// Item is nil for text elements, missing media references, and the
// placeholder sentinel; renderers must still draw a placeholder visual for
// media elements with a nil item rather than skipping them.
type ActiveElement struct {
	Element *Element
	Track   *Track
	Item    *MediaItem
}

// ItemIndex builds an ID lookup over a media item snapshot.
func ItemIndex(items []MediaItem) map[string]*MediaItem {
	idx := make(map[string]*MediaItem, len(items))
	for i := range items {
		idx[items[i].ID] = &items[i]
	}
	return idx
}

// ActiveElementsAt computes the set of elements active at timestamp t across
// all tracks. Output order is unspecified; callers sort with SortByTrackOrder
// before drawing.
func ActiveElementsAt(t float64, tracks []Track, items []MediaItem) []ActiveElement {
	idx := ItemIndex(items)

	var active []ActiveElement
	for ti := range tracks {
		track := &tracks[ti]
		for ei := range track.Elements {
			el := &track.Elements[ei]
			if !el.ActiveAt(t) {
				continue
			}

			var item *MediaItem
			if el.Type == ElementTypeMedia && el.MediaID != PlaceholderMediaID {
				item = idx[el.MediaID]
			}

			active = append(active, ActiveElement{
				Element: el,
				Track:   track,
				Item:    item,
			})
		}
	}
	return active
}

// SortByTrackOrder sorts active elements ascending by track order so that
// lower-order tracks draw first. The sort is stable: elements on the same
// track keep their relative order, making draw order deterministic.
func SortByTrackOrder(active []ActiveElement) {
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Track.Order < active[j].Track.Order
	})
}

// ReferencedItems returns the distinct media items referenced by any element
// in the project, in first-reference order. Placeholder and unresolvable
// references are skipped; preloading has nothing to load for them.
func ReferencedItems(tracks []Track, items []MediaItem) []MediaItem {
	idx := ItemIndex(items)
	seen := make(map[string]bool)

	var refs []MediaItem
	for _, track := range tracks {
		for _, el := range track.Elements {
			if el.Type != ElementTypeMedia || el.MediaID == "" || el.MediaID == PlaceholderMediaID {
				continue
			}
			if seen[el.MediaID] {
				continue
			}
			seen[el.MediaID] = true
			if item := idx[el.MediaID]; item != nil {
				refs = append(refs, *item)
			}
		}
	}
	return refs
}

// TotalDuration returns the end time of the last active window across all
// tracks, used when the caller does not supply an explicit duration.
func TotalDuration(tracks []Track) float64 {
	var end float64
	for _, track := range tracks {
		for i := range track.Elements {
			el := &track.Elements[i]
			if e := el.StartTime + el.TrimmedDuration(); e > end {
				end = e
			}
		}
	}
	return end
}
