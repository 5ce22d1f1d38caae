package presence

import (
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *manualClock) {
	clock := &manualClock{now: time.Unix(1700000000, 0).UTC()}
	tracker := NewTracker(TrackerConfig{Clock: clock.Now, HighlightTTL: 2 * time.Second})
	return tracker, clock
}

func TestSetCursorReplacesExisting(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.SetCursor("doc-1", Cursor{UserID: "user-1", Position: 3})
	tracker.SetCursor("doc-1", Cursor{UserID: "user-1", Position: 9})
	tracker.SetCursor("doc-1", Cursor{UserID: "user-2", Position: 1})

	cursors := tracker.Cursors("doc-1")
	if len(cursors) != 2 {
		t.Fatalf("expected one cursor per participant, got %d", len(cursors))
	}
	for _, cursor := range cursors {
		if cursor.UserID == "user-1" && cursor.Position != 9 {
			t.Fatalf("expected replaced cursor at 9, got %d", cursor.Position)
		}
	}
}

func TestRemoveCursorDropsParticipantState(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.SetCursor("doc-1", Cursor{UserID: "user-1", Position: 3})
	tracker.AddHighlight("doc-1", "user-1", 0, 4, "#FF6B6B", HighlightInsert)
	tracker.AddHighlight("doc-1", "user-2", 5, 8, "#4ECDC4", HighlightInsert)

	tracker.RemoveCursor("doc-1", "user-1")

	if len(tracker.Cursors("doc-1")) != 0 {
		t.Fatal("expected cursor to be removed")
	}
	remaining := tracker.Highlights("doc-1")
	if len(remaining) != 1 || remaining[0].UserID != "user-2" {
		t.Fatalf("expected only user-2 highlights to remain, got %+v", remaining)
	}
}

func TestHighlightExpiresAfterTTL(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.AddHighlight("doc-1", "user-1", 0, 4, "#FF6B6B", HighlightInsert)
	if len(tracker.Highlights("doc-1")) != 1 {
		t.Fatal("expected highlight to be active")
	}

	clock.Advance(1900 * time.Millisecond)
	if len(tracker.Highlights("doc-1")) != 1 {
		t.Fatal("expected highlight to survive just under the TTL")
	}

	clock.Advance(200 * time.Millisecond)
	if len(tracker.Highlights("doc-1")) != 0 {
		t.Fatal("expected highlight to expire after the TTL")
	}
}

func TestCursorHighlightReplacesPrior(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.AddHighlight("doc-1", "user-1", 2, 3, "#FF6B6B", HighlightCursor)
	tracker.AddHighlight("doc-1", "user-1", 7, 8, "#FF6B6B", HighlightCursor)
	tracker.AddHighlight("doc-1", "user-1", 0, 1, "#FF6B6B", HighlightInsert)

	highlights := tracker.Highlights("doc-1")
	cursorCount := 0
	for _, highlight := range highlights {
		if highlight.Kind == HighlightCursor {
			cursorCount++
			if highlight.Start != 7 {
				t.Fatalf("expected latest cursor highlight at 7, got %d", highlight.Start)
			}
		}
	}
	if cursorCount != 1 {
		t.Fatalf("expected a single cursor highlight, got %d", cursorCount)
	}
	if len(highlights) != 2 {
		t.Fatalf("expected cursor + insert highlights, got %d", len(highlights))
	}
}

func TestSweepReclaimsExpiredEntries(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.AddHighlight("doc-1", "user-1", 0, 4, "#FF6B6B", HighlightInsert)
	clock.Advance(3 * time.Second)
	tracker.sweep()

	tracker.mu.RLock()
	_, ok := tracker.highlights["doc-1"]
	tracker.mu.RUnlock()
	if ok {
		t.Fatal("expected swept document entry to be pruned")
	}
}

func TestRenderSplitsContentAroundHighlights(t *testing.T) {
	highlights := []Highlight{
		{Start: 6, End: 11, Color: "#4ECDC4", Kind: HighlightInsert},
		{Start: 0, End: 5, Color: "#FF6B6B", Kind: HighlightDelete},
	}

	segments := Render("Hello world!", highlights)
	want := []Segment{
		{Text: "Hello", Color: "#FF6B6B", Kind: HighlightDelete},
		{Text: " "},
		{Text: "world", Color: "#4ECDC4", Kind: HighlightInsert},
		{Text: "!"},
	}

	if len(segments) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(segments), segments)
	}
	for i, segment := range segments {
		if segment != want[i] {
			t.Fatalf("segment %d: expected %+v, got %+v", i, want[i], segment)
		}
	}
}

func TestRenderClampsAndSkipsOverlap(t *testing.T) {
	highlights := []Highlight{
		{Start: 0, End: 4, Color: "#FF6B6B", Kind: HighlightInsert},
		{Start: 2, End: 99, Color: "#4ECDC4", Kind: HighlightInsert},
	}

	segments := Render("abcdef", highlights)
	joined := ""
	for _, segment := range segments {
		joined += segment.Text
	}
	if joined != "abcdef" {
		t.Fatalf("expected segments to cover the content exactly, got %q", joined)
	}
	if segments[0].Text != "abcd" || segments[1].Text != "ef" {
		t.Fatalf("unexpected segmentation: %+v", segments)
	}
}

func TestRenderEmptyContent(t *testing.T) {
	if segments := Render("", []Highlight{{Start: 0, End: 2}}); segments != nil {
		t.Fatalf("expected no segments for empty content, got %+v", segments)
	}
}
