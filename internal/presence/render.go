package presence

import "sort"

// Segment is a run of document text with at most one highlight applied.
// Color is empty for unstyled runs.
type Segment struct {
	Text  string        `json:"text"`
	Color string        `json:"color,omitempty"`
	Kind  HighlightKind `json:"kind,omitempty"`
}

// Render splits content into ordered segments according to the highlights.
// It does not mutate tracker state and tolerates spans that overlap or run
// past the end of the content; later-starting highlights lose any overlapped
// region. Offsets are Unicode code points.
func Render(content string, highlights []Highlight) []Segment {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	ordered := make([]Highlight, len(highlights))
	copy(ordered, highlights)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	segments := make([]Segment, 0, 2*len(ordered)+1)
	cursor := 0
	for _, highlight := range ordered {
		start := highlight.Start
		end := highlight.End
		if start < cursor {
			start = cursor
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start >= end {
			continue
		}
		if start > cursor {
			segments = append(segments, Segment{Text: string(runes[cursor:start])})
		}
		segments = append(segments, Segment{
			Text:  string(runes[start:end]),
			Color: highlight.Color,
			Kind:  highlight.Kind,
		})
		cursor = end
	}
	if cursor < len(runes) {
		segments = append(segments, Segment{Text: string(runes[cursor:])})
	}

	return segments
}
