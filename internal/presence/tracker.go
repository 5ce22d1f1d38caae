// Package presence tracks ephemeral per-document state: participant cursors
// and short-lived edit highlights. Nothing here is persisted; entries expire
// on a timer and the whole package is safe to lose on restart.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHighlightTTL is how long an edit highlight stays visible.
const DefaultHighlightTTL = 2 * time.Second

// HighlightKind classifies what a highlight marks.
type HighlightKind string

const (
	HighlightInsert HighlightKind = "insert"
	HighlightDelete HighlightKind = "delete"
	HighlightCursor HighlightKind = "cursor"
)

// Cursor is a participant's caret position within a document. Offsets are
// Unicode code points.
type Cursor struct {
	UserID   string `json:"userId"`
	Position int    `json:"position"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Highlight marks a span of the document with a participant color for a
// short time after an edit or cursor move.
type Highlight struct {
	ID     string        `json:"id"`
	UserID string        `json:"userId"`
	Start  int           `json:"start"`
	End    int           `json:"end"`
	Color  string        `json:"color"`
	Kind   HighlightKind `json:"kind"`

	expiresAt time.Time
}

// TrackerConfig carries the tracker dependencies.
type TrackerConfig struct {
	Clock        func() time.Time
	HighlightTTL time.Duration
}

// Tracker holds cursors and highlights keyed by document id.
type Tracker struct {
	mu         sync.RWMutex
	clock      func() time.Time
	ttl        time.Duration
	cursors    map[string]map[string]Cursor // documentID -> userID -> cursor
	highlights map[string][]Highlight       // documentID -> active highlights
}

// NewTracker constructs a Tracker, falling back to time.Now and the default
// TTL when the config leaves them unset.
func NewTracker(cfg TrackerConfig) *Tracker {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.HighlightTTL
	if ttl <= 0 {
		ttl = DefaultHighlightTTL
	}
	return &Tracker{
		clock:      clock,
		ttl:        ttl,
		cursors:    make(map[string]map[string]Cursor),
		highlights: make(map[string][]Highlight),
	}
}

// SetCursor replaces the participant's cursor entry for the document. Each
// participant holds at most one live cursor per document.
func (t *Tracker) SetCursor(documentID string, cursor Cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cursors[documentID]; !ok {
		t.cursors[documentID] = make(map[string]Cursor)
	}
	t.cursors[documentID][cursor.UserID] = cursor
}

// Cursors returns all live cursors for the document.
func (t *Tracker) Cursors(documentID string) []Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.cursors[documentID]
	cursors := make([]Cursor, 0, len(entries))
	for _, cursor := range entries {
		cursors = append(cursors, cursor)
	}
	return cursors
}

// RemoveCursor drops the participant's cursor and any highlights they own in
// the document. Called when a participant disconnects.
func (t *Tracker) RemoveCursor(documentID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entries, ok := t.cursors[documentID]; ok {
		delete(entries, userID)
		if len(entries) == 0 {
			delete(t.cursors, documentID)
		}
	}

	kept := t.highlights[documentID][:0]
	for _, highlight := range t.highlights[documentID] {
		if highlight.UserID != userID {
			kept = append(kept, highlight)
		}
	}
	t.setHighlights(documentID, kept)
}

// AddHighlight registers a highlight over [start, end) and returns its
// generated id. The highlight expires after the configured TTL. A cursor-kind
// highlight replaces the participant's previous cursor highlight, so a moving
// caret never leaves a trail.
func (t *Tracker) AddHighlight(documentID, userID string, start, end int, color string, kind HighlightKind) Highlight {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	highlight := Highlight{
		ID:        uuid.NewString(),
		UserID:    userID,
		Start:     start,
		End:       end,
		Color:     color,
		Kind:      kind,
		expiresAt: now.Add(t.ttl),
	}

	existing := t.highlights[documentID]
	kept := existing[:0]
	for _, candidate := range existing {
		if kind == HighlightCursor && candidate.Kind == HighlightCursor && candidate.UserID == userID {
			continue
		}
		if !candidate.expiresAt.After(now) {
			continue
		}
		kept = append(kept, candidate)
	}
	t.setHighlights(documentID, append(kept, highlight))

	return highlight
}

// Highlights returns the document's highlights that have not yet expired.
func (t *Tracker) Highlights(documentID string) []Highlight {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock()
	active := make([]Highlight, 0, len(t.highlights[documentID]))
	for _, highlight := range t.highlights[documentID] {
		if highlight.expiresAt.After(now) {
			active = append(active, highlight)
		}
	}
	return active
}

// ClearDocument drops all presence state for the document.
func (t *Tracker) ClearDocument(documentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.cursors, documentID)
	delete(t.highlights, documentID)
}

// Run sweeps expired highlights until the context is cancelled. Reads already
// filter expired entries; the sweep only reclaims memory, so its cadence is
// not a correctness concern.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	for documentID, highlights := range t.highlights {
		kept := highlights[:0]
		for _, highlight := range highlights {
			if highlight.expiresAt.After(now) {
				kept = append(kept, highlight)
			}
		}
		t.setHighlights(documentID, kept)
	}
}

func (t *Tracker) setHighlights(documentID string, highlights []Highlight) {
	if len(highlights) == 0 {
		delete(t.highlights, documentID)
		return
	}
	t.highlights[documentID] = highlights
}
